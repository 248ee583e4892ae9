// Package sqlite is the gorm-backed SQLite store used for single-machine clinic installs.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// Store implements store.Store on top of gorm.
type Store struct {
	db  *gorm.DB
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to the SQLite database at path (":memory:" for a private
// in-memory database) and migrates the schema.
func Open(path string, debug bool) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "phongkham.db"
	}
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logLevel),
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection keeps :memory: databases alive
	// and avoids SQLITE_BUSY between concurrent transactions.
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// DB exposes the gorm handle for instrumentation.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(store.Queries) error) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, Now: s.Now})
	})
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) exists(ctx context.Context, model any, id string) (bool, error) {
	var n int64
	if err := s.conn(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	var row patientRow
	if err := s.conn(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Patient{}, mapErr(err)
	}
	return patientFromRow(row), nil
}

func (s *Store) CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	row := patientRow{ID: p.ID, Code: p.Code, FullName: p.FullName, Phone: p.Phone, CreatedAt: p.CreatedAt.UTC()}
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return domain.Patient{}, mapErr(err)
	}
	return patientFromRow(row), nil
}

func (s *Store) CountPatients(ctx context.Context) (int, error) {
	var n int64
	err := s.conn(ctx).Model(&patientRow{}).Count(&n).Error
	return int(n), err
}

func (s *Store) RecentPatients(ctx context.Context, limit int) ([]domain.Patient, error) {
	var rows []patientRow
	if err := s.conn(ctx).Order("created_at DESC, code DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Patient, 0, len(rows))
	for _, r := range rows {
		out = append(out, patientFromRow(r))
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]domain.Product, error) {
	q := s.conn(ctx).Model(&productRow{})
	if f.Category != "" {
		q = q.Where("category = ?", string(f.Category))
	}
	if needle := strings.TrimSpace(f.Query); needle != "" {
		like := "%" + needle + "%"
		q = q.Where("name LIKE ? OR code LIKE ?", like, like)
	}
	var rows []productRow
	err := q.Order("created_at DESC").Limit(store.ClampLimit(f.Limit, store.MaxProductList)).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return productsFromRows(rows), nil
}

func productsFromRows(rows []productRow) []domain.Product {
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, productFromRow(r))
	}
	return out
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	var row productRow
	if err := s.conn(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Product{}, mapErr(err)
	}
	return productFromRow(row), nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	row := productToRow(p)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return domain.Product{}, mapErr(err)
	}
	return productFromRow(row), nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.UpdatedAt = s.now()
	row := productToRow(p)
	res := s.conn(ctx).Model(&productRow{}).Where("id = ?", p.ID).
		Select("*").Omit("id", "quantity", "created_at").Updates(&row)
	if res.Error != nil {
		return domain.Product{}, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Product{}, store.ErrNotFound
	}
	return s.GetProduct(ctx, p.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&productRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int64
	err := s.conn(ctx).Model(&productRow{}).Count(&n).Error
	return int(n), err
}

func (s *Store) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	var rows []productRow
	err := s.conn(ctx).Where("quantity <= min_stock").Order("quantity ASC, code ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return productsFromRows(rows), nil
}

func (s *Store) ExpiringProducts(ctx context.Context, from, to time.Time) ([]domain.Product, error) {
	var rows []productRow
	err := s.conn(ctx).
		Where("expires_at IS NOT NULL AND expires_at >= ? AND expires_at <= ?", from.UTC(), to.UTC()).
		Order("expires_at ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return productsFromRows(rows), nil
}

func (s *Store) CategorySummary(ctx context.Context) ([]store.CategoryStat, error) {
	var rows []struct {
		Category      string
		Count         int
		TotalQuantity int
	}
	err := s.conn(ctx).Model(&productRow{}).
		Select("category, COUNT(*) AS count, COALESCE(SUM(quantity), 0) AS total_quantity").
		Group("category").Order("category ASC").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.CategoryStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.CategoryStat{Category: domain.Category(r.Category), Count: r.Count, TotalQuantity: r.TotalQuantity})
	}
	return out, nil
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	res := s.conn(ctx).Model(&productRow{}).
		Where("id = ? AND quantity >= ?", productID, qty).
		Updates(map[string]any{"quantity": gorm.Expr("quantity - ?", qty), "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	ok, err := s.exists(ctx, &productRow{}, productID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) error {
	res := s.conn(ctx).Model(&productRow{}).Where("id = ?", productID).
		Updates(map[string]any{"quantity": gorm.Expr("quantity + ?", qty), "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	res := s.conn(ctx).Model(&productRow{}).Where("id = ?", productID).
		Updates(map[string]any{"quantity": qty, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	var rows []voucherRow
	if err := s.conn(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Voucher, 0, len(rows))
	for _, r := range rows {
		out = append(out, voucherFromRow(r))
	}
	return out, nil
}

func (s *Store) GetVoucher(ctx context.Context, id string) (domain.Voucher, error) {
	var row voucherRow
	if err := s.conn(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Voucher{}, mapErr(err)
	}
	return voucherFromRow(row), nil
}

func (s *Store) GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error) {
	var row voucherRow
	if err := s.conn(ctx).First(&row, "code = ?", code).Error; err != nil {
		return domain.Voucher{}, mapErr(err)
	}
	return voucherFromRow(row), nil
}

func (s *Store) CreateVoucher(ctx context.Context, v domain.Voucher) (domain.Voucher, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := s.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	row := voucherToRow(v)
	if err := s.conn(ctx).Create(&row).Error; err != nil {
		return domain.Voucher{}, mapErr(err)
	}
	return voucherFromRow(row), nil
}

func (s *Store) UpdateVoucher(ctx context.Context, v domain.Voucher) (domain.Voucher, error) {
	v.UpdatedAt = s.now()
	row := voucherToRow(v)
	res := s.conn(ctx).Model(&voucherRow{}).Where("id = ?", v.ID).
		Select("*").Omit("id", "created_at", "usage_count").Updates(&row)
	if res.Error != nil {
		return domain.Voucher{}, mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Voucher{}, store.ErrNotFound
	}
	return s.GetVoucher(ctx, v.ID)
}

func (s *Store) DeleteVoucher(ctx context.Context, id string) error {
	res := s.conn(ctx).Delete(&voucherRow{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumeVoucher(ctx context.Context, id string) error {
	res := s.conn(ctx).Model(&voucherRow{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", id).
		Updates(map[string]any{"usage_count": gorm.Expr("usage_count + 1"), "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	ok, err := s.exists(ctx, &voucherRow{}, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrUsageExceeded
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := s.now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		txs := &Store{db: tx, Now: s.Now}
		if ok, err := txs.exists(ctx, &patientRow{}, inv.PatientID); err != nil {
			return err
		} else if !ok {
			return store.ErrNotFound
		}
		row := invoiceToRow(inv)
		if err := tx.Create(&row).Error; err != nil {
			return mapErr(err)
		}
		for i := range inv.Items {
			it := &inv.Items[i]
			if ok, err := txs.exists(ctx, &productRow{}, it.ProductID); err != nil {
				return err
			} else if !ok {
				return store.ErrNotFound
			}
			if it.ID == "" {
				it.ID = uuid.NewString()
			}
			it.InvoiceID = inv.ID
			itemRow := invoiceItemRow{
				ID:         it.ID,
				InvoiceID:  inv.ID,
				ProductID:  it.ProductID,
				Quantity:   it.Quantity,
				UnitPrice:  it.UnitPrice,
				TotalPrice: it.TotalPrice,
			}
			if err := tx.Create(&itemRow).Error; err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	return s.GetInvoice(ctx, inv.ID)
}

func (s *Store) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	var row invoiceRow
	if err := s.conn(ctx).First(&row, "id = ?", id).Error; err != nil {
		return domain.Invoice{}, mapErr(err)
	}
	out, err := s.hydrate(ctx, []invoiceRow{row})
	if err != nil {
		return domain.Invoice{}, err
	}
	return out[0], nil
}

func (s *Store) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	q := s.conn(ctx).Model(&invoiceRow{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var rows []invoiceRow
	if err := q.Order("created_at DESC").Limit(store.ClampLimit(f.Limit, store.MaxInvoiceList)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rows)
}

// hydrate loads patients, items and item products for the given invoices.
func (s *Store) hydrate(ctx context.Context, rows []invoiceRow) ([]domain.Invoice, error) {
	if len(rows) == 0 {
		return []domain.Invoice{}, nil
	}
	invoiceIDs := make([]string, 0, len(rows))
	patientIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		invoiceIDs = append(invoiceIDs, r.ID)
		patientIDs = append(patientIDs, r.PatientID)
	}
	var patients []patientRow
	if err := s.conn(ctx).Where("id IN ?", patientIDs).Find(&patients).Error; err != nil {
		return nil, err
	}
	var items []invoiceItemRow
	if err := s.conn(ctx).Where("invoice_id IN ?", invoiceIDs).Order("rowid ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	productIDs := make([]string, 0, len(items))
	for _, it := range items {
		productIDs = append(productIDs, it.ProductID)
	}
	var products []productRow
	if len(productIDs) > 0 {
		if err := s.conn(ctx).Where("id IN ?", productIDs).Find(&products).Error; err != nil {
			return nil, err
		}
	}

	patientByID := make(map[string]domain.Patient, len(patients))
	for _, p := range patients {
		patientByID[p.ID] = patientFromRow(p)
	}
	productByID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = productFromRow(p)
	}
	itemsByInvoice := make(map[string][]domain.InvoiceItem, len(rows))
	for _, it := range items {
		item := domain.InvoiceItem{
			ID:         it.ID,
			InvoiceID:  it.InvoiceID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
		}
		if p, ok := productByID[it.ProductID]; ok {
			item.Product = &p
		}
		itemsByInvoice[it.InvoiceID] = append(itemsByInvoice[it.InvoiceID], item)
	}

	out := make([]domain.Invoice, 0, len(rows))
	for _, r := range rows {
		inv := invoiceFromRow(r)
		if p, ok := patientByID[r.PatientID]; ok {
			inv.Patient = &p
		}
		inv.Items = itemsByInvoice[r.ID]
		if inv.Items == nil {
			inv.Items = []domain.InvoiceItem{}
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, from, to domain.InvoiceStatus) error {
	res := s.conn(ctx).Model(&invoiceRow{}).Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	ok, err := s.exists(ctx, &invoiceRow{}, id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrStaleStatus
}

func (s *Store) UpdateInvoiceSignature(ctx context.Context, id, signature string) error {
	res := s.conn(ctx).Model(&invoiceRow{}).Where("id = ?", id).
		Updates(map[string]any{"signature": signature, "updated_at": s.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	return s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&invoiceItemRow{}, "invoice_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&invoiceRow{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CountInvoices(ctx context.Context, status domain.InvoiceStatus) (int, error) {
	q := s.conn(ctx).Model(&invoiceRow{})
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var n int64
	err := q.Count(&n).Error
	return int(n), err
}

func (s *Store) PaidRevenueBetween(ctx context.Context, from, to time.Time) (domain.Money, error) {
	var total int64
	err := s.conn(ctx).Model(&invoiceRow{}).
		Where("status = ? AND created_at >= ? AND created_at < ?", string(domain.StatusPaid), from.UTC(), to.UTC()).
		Select("COALESCE(SUM(total), 0)").Scan(&total).Error
	return total, err
}
