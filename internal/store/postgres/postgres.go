// Package postgres is the pgx-backed store for multi-workstation deployments.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements store.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	db   dbtx
	Now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// Config controls pool creation.
type Config struct {
	URL             string
	ApplicationName string
	MaxConns        int32
	Tracer          pgx.QueryTracer
}

// Connect opens a pool, verifies connectivity and wraps it in a Store.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.Tracer != nil {
		poolConfig.ConnConfig.Tracer = cfg.Tracer
	}
	if cfg.ApplicationName != "" {
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(store.Queries) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(&Store{pool: s.pool, db: tx, Now: s.Now}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres: pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrDuplicate
		case "23503":
			return store.ErrNotFound
		}
	}
	return err
}

func (s *Store) exists(ctx context.Context, table, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&ok)
	return ok, err
}

func (s *Store) count(ctx context.Context, sql string, args ...any) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, sql, args...).Scan(&n)
	return n, err
}

const patientColumns = `id, code, full_name, phone, created_at`

func (s *Store) GetPatient(ctx context.Context, id string) (domain.Patient, error) {
	var p domain.Patient
	err := s.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id).
		Scan(&p.ID, &p.Code, &p.FullName, &p.Phone, &p.CreatedAt)
	return p, mapErr(err)
}

func (s *Store) CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO patients (`+patientColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Code, p.FullName, p.Phone, p.CreatedAt)
	if err != nil {
		return domain.Patient{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) CountPatients(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM patients`)
}

func (s *Store) RecentPatients(ctx context.Context, limit int) ([]domain.Patient, error) {
	rows, err := s.db.Query(ctx, `SELECT `+patientColumns+` FROM patients
		ORDER BY created_at DESC, code DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Patient{}
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.ID, &p.Code, &p.FullName, &p.Phone, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const productColumns = `id, code, name, category, manufacturer, material, sph_range, cyl_range,
	price, quantity, min_stock, expires_at, image_url, created_at, updated_at`

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p        domain.Product
		category string
	)
	err := row.Scan(&p.ID, &p.Code, &p.Name, &category, &p.Manufacturer, &p.Material, &p.SphRange, &p.CylRange,
		&p.Price, &p.Quantity, &p.MinStock, &p.ExpiresAt, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	p.Category = domain.Category(category)
	return p, err
}

func (s *Store) queryProducts(ctx context.Context, sql string, args ...any) ([]domain.Product, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if needle := strings.TrimSpace(f.Query); needle != "" {
		args = append(args, "%"+needle+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	sql := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, store.ClampLimit(f.Limit, store.MaxProductList))
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	return s.queryProducts(ctx, sql, args...)
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	return p, mapErr(err)
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
	_, err := s.db.Exec(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Code, p.Name, string(p.Category), p.Manufacturer, p.Material, p.SphRange, p.CylRange,
		p.Price, p.Quantity, p.MinStock, p.ExpiresAt, p.ImageURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Product{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	out, err := scanProduct(s.db.QueryRow(ctx, `UPDATE products SET
		code = $2, name = $3, category = $4, manufacturer = $5, material = $6, sph_range = $7, cyl_range = $8,
		price = $9, min_stock = $10, expires_at = $11, image_url = $12, updated_at = $13
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Code, p.Name, string(p.Category), p.Manufacturer, p.Material, p.SphRange, p.CylRange,
		p.Price, p.MinStock, p.ExpiresAt, p.ImageURL, s.now()))
	return out, mapErr(err)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM products`)
}

func (s *Store) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE quantity <= min_stock ORDER BY quantity ASC, code ASC`)
}

func (s *Store) ExpiringProducts(ctx context.Context, from, to time.Time) ([]domain.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products
		WHERE expires_at IS NOT NULL AND expires_at >= $1 AND expires_at <= $2
		ORDER BY expires_at ASC`, from, to)
}

func (s *Store) CategorySummary(ctx context.Context) ([]store.CategoryStat, error) {
	rows, err := s.db.Query(ctx, `SELECT category, COUNT(*), COALESCE(SUM(quantity), 0)
		FROM products GROUP BY category ORDER BY category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []store.CategoryStat{}
	for rows.Next() {
		var (
			stat     store.CategoryStat
			category string
		)
		if err := rows.Scan(&category, &stat.Count, &stat.TotalQuantity); err != nil {
			return nil, err
		}
		stat.Category = domain.Category(category)
		out = append(out, stat)
	}
	return out, rows.Err()
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET quantity = quantity - $2, updated_at = $3
		WHERE id = $1 AND quantity >= $2`, productID, qty, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := s.exists(ctx, "products", productID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrInsufficientStock
}

func (s *Store) IncrementStock(ctx context.Context, productID string, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = $3 WHERE id = $1`,
		productID, qty, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	tag, err := s.db.Exec(ctx, `UPDATE products SET quantity = $2, updated_at = $3 WHERE id = $1`,
		productID, qty, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const voucherColumns = `id, code, description, type, value, min_amount, max_discount, start_date, end_date,
	usage_limit, usage_count, is_active, created_at, updated_at`

func scanVoucher(row pgx.Row) (domain.Voucher, error) {
	var (
		v   domain.Voucher
		typ string
	)
	err := row.Scan(&v.ID, &v.Code, &v.Description, &typ, &v.Value, &v.MinAmount, &v.MaxDiscount,
		&v.StartDate, &v.EndDate, &v.UsageLimit, &v.UsageCount, &v.IsActive, &v.CreatedAt, &v.UpdatedAt)
	v.Type = domain.VoucherType(typ)
	return v, err
}

func (s *Store) ListVouchers(ctx context.Context) ([]domain.Voucher, error) {
	rows, err := s.db.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) GetVoucher(ctx context.Context, id string) (domain.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id))
	return v, mapErr(err)
}

func (s *Store) GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error) {
	v, err := scanVoucher(s.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, code))
	return v, mapErr(err)
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
	_, err := s.db.Exec(ctx, `INSERT INTO vouchers (`+voucherColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		v.ID, v.Code, v.Description, string(v.Type), v.Value, v.MinAmount, v.MaxDiscount, v.StartDate, v.EndDate,
		v.UsageLimit, v.UsageCount, v.IsActive, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return domain.Voucher{}, mapErr(err)
	}
	return v, nil
}

func (s *Store) UpdateVoucher(ctx context.Context, v domain.Voucher) (domain.Voucher, error) {
	out, err := scanVoucher(s.db.QueryRow(ctx, `UPDATE vouchers SET
		code = $2, description = $3, type = $4, value = $5, min_amount = $6, max_discount = $7,
		start_date = $8, end_date = $9, usage_limit = $10, is_active = $11, updated_at = $12
		WHERE id = $1
		RETURNING `+voucherColumns,
		v.ID, v.Code, v.Description, string(v.Type), v.Value, v.MinAmount, v.MaxDiscount,
		v.StartDate, v.EndDate, v.UsageLimit, v.IsActive, s.now()))
	return out, mapErr(err)
}

func (s *Store) DeleteVoucher(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM vouchers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ConsumeVoucher(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `UPDATE vouchers SET usage_count = usage_count + 1, updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)`, id, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := s.exists(ctx, "vouchers", id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrUsageExceeded
}

const invoiceColumns = `id, code, patient_id, type, status, subtotal, discount, voucher_code, voucher_discount,
	processing_fee, shipping_fee, service_fee, tax, total, signature, notes, instructions, dosage,
	follow_up_date, created_at, updated_at`

func scanInvoice(row pgx.Row) (domain.Invoice, error) {
	var (
		inv         domain.Invoice
		typ, status string
	)
	err := row.Scan(&inv.ID, &inv.Code, &inv.PatientID, &typ, &status, &inv.Subtotal, &inv.Discount,
		&inv.VoucherCode, &inv.VoucherDiscount, &inv.ProcessingFee, &inv.ShippingFee, &inv.ServiceFee,
		&inv.Tax, &inv.Total, &inv.Signature, &inv.Notes, &inv.Instructions, &inv.Dosage,
		&inv.FollowUpDate, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Type = domain.InvoiceType(typ)
	inv.Status = domain.InvoiceStatus(status)
	return inv, err
}

func (s *Store) CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	now := s.now()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		inv.ID, inv.Code, inv.PatientID, string(inv.Type), string(inv.Status), inv.Subtotal, inv.Discount,
		inv.VoucherCode, inv.VoucherDiscount, inv.ProcessingFee, inv.ShippingFee, inv.ServiceFee,
		inv.Tax, inv.Total, inv.Signature, inv.Notes, inv.Instructions, inv.Dosage,
		inv.FollowUpDate, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return domain.Invoice{}, mapErr(err)
	}
	txs := &Store{pool: s.pool, db: tx, Now: s.Now}
	for i, it := range inv.Items {
		ok, err := txs.exists(ctx, "products", it.ProductID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if !ok {
			return domain.Invoice{}, store.ErrNotFound
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `INSERT INTO invoice_items (id, invoice_id, product_id, position, quantity, unit_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			it.ID, inv.ID, it.ProductID, i, it.Quantity, it.UnitPrice, it.TotalPrice)
		if err != nil {
			return domain.Invoice{}, mapErr(err)
		}
	}
	out, err := txs.GetInvoice(ctx, inv.ID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Invoice{}, err
	}
	return out, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return domain.Invoice{}, mapErr(err)
	}
	out, err := s.hydrate(ctx, []domain.Invoice{inv})
	if err != nil {
		return domain.Invoice{}, err
	}
	return out[0], nil
}

func (s *Store) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	limit := store.ClampLimit(f.Limit, store.MaxInvoiceList)
	var (
		rows pgx.Rows
		err  error
	)
	if f.Status != "" {
		rows, err = s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE status = $1
			ORDER BY created_at DESC LIMIT $2`, string(f.Status), limit)
	} else {
		rows, err = s.db.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.hydrate(ctx, invoices)
}

// hydrate attaches patients, items and item products.
func (s *Store) hydrate(ctx context.Context, invoices []domain.Invoice) ([]domain.Invoice, error) {
	if len(invoices) == 0 {
		return []domain.Invoice{}, nil
	}
	ids := make([]string, 0, len(invoices))
	patientIDs := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
		patientIDs = append(patientIDs, inv.PatientID)
	}

	patients := map[string]domain.Patient{}
	rows, err := s.db.Query(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = ANY($1)`, patientIDs)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.ID, &p.Code, &p.FullName, &p.Phone, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		patients[p.ID] = p
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := map[string][]domain.InvoiceItem{}
	var productIDs []string
	rows, err = s.db.Query(ctx, `SELECT id, invoice_id, product_id, quantity, unit_price, total_price
		FROM invoice_items WHERE invoice_id = ANY($1) ORDER BY invoice_id, position`, ids)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var it domain.InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.TotalPrice); err != nil {
			rows.Close()
			return nil, err
		}
		items[it.InvoiceID] = append(items[it.InvoiceID], it)
		productIDs = append(productIDs, it.ProductID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	products := map[string]domain.Product{}
	if len(productIDs) > 0 {
		list, err := s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, productIDs)
		if err != nil {
			return nil, err
		}
		for _, p := range list {
			products[p.ID] = p
		}
	}

	for i := range invoices {
		inv := &invoices[i]
		if p, ok := patients[inv.PatientID]; ok {
			inv.Patient = &p
		}
		inv.Items = items[inv.ID]
		if inv.Items == nil {
			inv.Items = []domain.InvoiceItem{}
		}
		for j := range inv.Items {
			if p, ok := products[inv.Items[j].ProductID]; ok {
				inv.Items[j].Product = &p
			}
		}
	}
	return invoices, nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id string, from, to domain.InvoiceStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, string(from), string(to), s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	ok, err := s.exists(ctx, "invoices", id)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return store.ErrStaleStatus
}

func (s *Store) UpdateInvoiceSignature(ctx context.Context, id, signature string) error {
	tag, err := s.db.Exec(ctx, `UPDATE invoices SET signature = $2, updated_at = $3 WHERE id = $1`, id, signature, s.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	// invoice_items rows go with the invoice through ON DELETE CASCADE.
	tag, err := s.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountInvoices(ctx context.Context, status domain.InvoiceStatus) (int, error) {
	if status == "" {
		return s.count(ctx, `SELECT COUNT(*) FROM invoices`)
	}
	return s.count(ctx, `SELECT COUNT(*) FROM invoices WHERE status = $1`, string(status))
}

func (s *Store) PaidRevenueBetween(ctx context.Context, from, to time.Time) (domain.Money, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(total), 0)::BIGINT FROM invoices
		WHERE status = $1 AND created_at >= $2 AND created_at < $3`, string(domain.StatusPaid), from, to).Scan(&total)
	return total, err
}
