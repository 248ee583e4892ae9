package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// Store keeps all rows in process memory. Transactions run under the store
// mutex against a copy of the data that replaces the live copy on commit,
// so InTx is serializable.
type Store struct {
	mu   sync.Mutex
	data *state
	Now  func() time.Time

	*queries
}

type state struct {
	patients map[string]domain.Patient
	products map[string]domain.Product
	vouchers map[string]domain.Voucher
	invoices map[string]domain.Invoice
}

// New returns an empty store.
func New() *Store {
	s := &Store{data: &state{
		patients: map[string]domain.Patient{},
		products: map[string]domain.Product{},
		vouchers: map[string]domain.Voucher{},
		invoices: map[string]domain.Invoice{},
	}}
	s.queries = &queries{s: s}
	return s
}

var _ store.Store = (*Store)(nil)

// InTx implements store.Store.
func (s *Store) InTx(ctx context.Context, fn func(store.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.data.clone()
	if err := fn(&queries{s: s, tx: snapshot}); err != nil {
		return err
	}
	s.data = snapshot
	return nil
}

// Ping implements store.Store.
func (s *Store) Ping(context.Context) error { return nil }

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (st *state) clone() *state {
	out := &state{
		patients: maps.Clone(st.patients),
		products: maps.Clone(st.products),
		vouchers: maps.Clone(st.vouchers),
		invoices: make(map[string]domain.Invoice, len(st.invoices)),
	}
	for id, inv := range st.invoices {
		inv.Items = slices.Clone(inv.Items)
		out.invoices[id] = inv
	}
	return out
}

type queries struct {
	s  *Store
	tx *state
}

func (q *queries) begin() (*state, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.s.mu.Lock()
	return q.s.data, q.s.mu.Unlock
}

func (q *queries) now() time.Time {
	if q.s.Now != nil {
		return q.s.Now()
	}
	return time.Now().UTC()
}

func (q *queries) GetPatient(_ context.Context, id string) (domain.Patient, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.patients[id]
	if !ok {
		return domain.Patient{}, store.ErrNotFound
	}
	return p, nil
}

func (q *queries) CreatePatient(_ context.Context, p domain.Patient) (domain.Patient, error) {
	st, done := q.begin()
	defer done()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, existing := range st.patients {
		if existing.ID == p.ID || (p.Code != "" && existing.Code == p.Code) {
			return domain.Patient{}, store.ErrDuplicate
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = q.now()
	}
	st.patients[p.ID] = p
	return p, nil
}

func (q *queries) CountPatients(context.Context) (int, error) {
	st, done := q.begin()
	defer done()
	return len(st.patients), nil
}

func (q *queries) RecentPatients(_ context.Context, limit int) ([]domain.Patient, error) {
	st, done := q.begin()
	defer done()
	out := make([]domain.Patient, 0, len(st.patients))
	for _, p := range st.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Code > out[j].Code
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *queries) ListProducts(_ context.Context, f store.ProductFilter) ([]domain.Product, error) {
	st, done := q.begin()
	defer done()
	needle := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Product, 0, len(st.products))
	for _, p := range st.products {
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Code), needle) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := store.ClampLimit(f.Limit, store.MaxProductList); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *queries) GetProduct(_ context.Context, id string) (domain.Product, error) {
	st, done := q.begin()
	defer done()
	p, ok := st.products[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (q *queries) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	st, done := q.begin()
	defer done()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for _, existing := range st.products {
		if existing.ID == p.ID || existing.Code == p.Code {
			return domain.Product{}, store.ErrDuplicate
		}
	}
	now := q.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	st.products[p.ID] = p
	return p, nil
}

func (q *queries) UpdateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	st, done := q.begin()
	defer done()
	current, ok := st.products[p.ID]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	for _, existing := range st.products {
		if existing.ID != p.ID && existing.Code == p.Code {
			return domain.Product{}, store.ErrDuplicate
		}
	}
	p.Quantity = current.Quantity
	p.CreatedAt = current.CreatedAt
	p.UpdatedAt = q.now()
	st.products[p.ID] = p
	return p, nil
}

func (q *queries) DeleteProduct(_ context.Context, id string) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.products, id)
	return nil
}

func (q *queries) CountProducts(context.Context) (int, error) {
	st, done := q.begin()
	defer done()
	return len(st.products), nil
}

func (q *queries) LowStockProducts(context.Context) ([]domain.Product, error) {
	st, done := q.begin()
	defer done()
	var out []domain.Product
	for _, p := range st.products {
		if p.LowStock() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Quantity == out[j].Quantity {
			return out[i].Code < out[j].Code
		}
		return out[i].Quantity < out[j].Quantity
	})
	return out, nil
}

func (q *queries) ExpiringProducts(_ context.Context, from, to time.Time) ([]domain.Product, error) {
	st, done := q.begin()
	defer done()
	var out []domain.Product
	for _, p := range st.products {
		if p.ExpiresAt == nil || p.ExpiresAt.Before(from) || p.ExpiresAt.After(to) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out, nil
}

func (q *queries) CategorySummary(context.Context) ([]store.CategoryStat, error) {
	st, done := q.begin()
	defer done()
	byCategory := map[domain.Category]*store.CategoryStat{}
	for _, p := range st.products {
		stat, ok := byCategory[p.Category]
		if !ok {
			stat = &store.CategoryStat{Category: p.Category}
			byCategory[p.Category] = stat
		}
		stat.Count++
		stat.TotalQuantity += p.Quantity
	}
	out := make([]store.CategoryStat, 0, len(byCategory))
	for _, stat := range byCategory {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (q *queries) DecrementStock(_ context.Context, productID string, qty int) error {
	st, done := q.begin()
	defer done()
	p, ok := st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if p.Quantity < qty {
		return store.ErrInsufficientStock
	}
	p.Quantity -= qty
	p.UpdatedAt = q.now()
	st.products[productID] = p
	return nil
}

func (q *queries) SetStock(_ context.Context, productID string, qty int) error {
	st, done := q.begin()
	defer done()
	p, ok := st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Quantity = qty
	p.UpdatedAt = q.now()
	st.products[productID] = p
	return nil
}

func (q *queries) IncrementStock(_ context.Context, productID string, qty int) error {
	st, done := q.begin()
	defer done()
	p, ok := st.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	p.Quantity += qty
	p.UpdatedAt = q.now()
	st.products[productID] = p
	return nil
}

func (q *queries) ListVouchers(context.Context) ([]domain.Voucher, error) {
	st, done := q.begin()
	defer done()
	out := slices.Collect(maps.Values(st.vouchers))
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (q *queries) GetVoucher(_ context.Context, id string) (domain.Voucher, error) {
	st, done := q.begin()
	defer done()
	v, ok := st.vouchers[id]
	if !ok {
		return domain.Voucher{}, store.ErrNotFound
	}
	return v, nil
}

func (q *queries) GetVoucherByCode(_ context.Context, code string) (domain.Voucher, error) {
	st, done := q.begin()
	defer done()
	for _, v := range st.vouchers {
		if v.Code == code {
			return v, nil
		}
	}
	return domain.Voucher{}, store.ErrNotFound
}

func (q *queries) CreateVoucher(_ context.Context, v domain.Voucher) (domain.Voucher, error) {
	st, done := q.begin()
	defer done()
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	for _, existing := range st.vouchers {
		if existing.ID == v.ID || existing.Code == v.Code {
			return domain.Voucher{}, store.ErrDuplicate
		}
	}
	now := q.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	st.vouchers[v.ID] = v
	return v, nil
}

func (q *queries) UpdateVoucher(_ context.Context, v domain.Voucher) (domain.Voucher, error) {
	st, done := q.begin()
	defer done()
	current, ok := st.vouchers[v.ID]
	if !ok {
		return domain.Voucher{}, store.ErrNotFound
	}
	for _, existing := range st.vouchers {
		if existing.ID != v.ID && existing.Code == v.Code {
			return domain.Voucher{}, store.ErrDuplicate
		}
	}
	v.CreatedAt = current.CreatedAt
	v.UsageCount = current.UsageCount
	v.UpdatedAt = q.now()
	st.vouchers[v.ID] = v
	return v, nil
}

func (q *queries) DeleteVoucher(_ context.Context, id string) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.vouchers[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.vouchers, id)
	return nil
}

func (q *queries) ConsumeVoucher(_ context.Context, id string) error {
	st, done := q.begin()
	defer done()
	v, ok := st.vouchers[id]
	if !ok {
		return store.ErrNotFound
	}
	if v.UsageLimit != nil && v.UsageCount >= *v.UsageLimit {
		return store.ErrUsageExceeded
	}
	v.UsageCount++
	v.UpdatedAt = q.now()
	st.vouchers[id] = v
	return nil
}

func (q *queries) CreateInvoice(_ context.Context, inv domain.Invoice) (domain.Invoice, error) {
	st, done := q.begin()
	defer done()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	for _, existing := range st.invoices {
		if existing.ID == inv.ID || existing.Code == inv.Code {
			return domain.Invoice{}, store.ErrDuplicate
		}
	}
	if _, ok := st.patients[inv.PatientID]; !ok {
		return domain.Invoice{}, store.ErrNotFound
	}
	now := q.now()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.Patient = nil
	items := make([]domain.InvoiceItem, len(inv.Items))
	for i, it := range inv.Items {
		if _, ok := st.products[it.ProductID]; !ok {
			return domain.Invoice{}, store.ErrNotFound
		}
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.InvoiceID = inv.ID
		it.Product = nil
		items[i] = it
	}
	inv.Items = items
	st.invoices[inv.ID] = inv
	return st.hydrate(inv), nil
}

func (q *queries) GetInvoice(_ context.Context, id string) (domain.Invoice, error) {
	st, done := q.begin()
	defer done()
	inv, ok := st.invoices[id]
	if !ok {
		return domain.Invoice{}, store.ErrNotFound
	}
	return st.hydrate(inv), nil
}

func (q *queries) ListInvoices(_ context.Context, f store.InvoiceFilter) ([]domain.Invoice, error) {
	st, done := q.begin()
	defer done()
	out := make([]domain.Invoice, 0, len(st.invoices))
	for _, inv := range st.invoices {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := store.ClampLimit(f.Limit, store.MaxInvoiceList); len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i] = st.hydrate(out[i])
	}
	return out, nil
}

func (q *queries) UpdateInvoiceStatus(_ context.Context, id string, from, to domain.InvoiceStatus) error {
	st, done := q.begin()
	defer done()
	inv, ok := st.invoices[id]
	if !ok {
		return store.ErrNotFound
	}
	if inv.Status != from {
		return store.ErrStaleStatus
	}
	inv.Status = to
	inv.UpdatedAt = q.now()
	st.invoices[id] = inv
	return nil
}

func (q *queries) UpdateInvoiceSignature(_ context.Context, id, signature string) error {
	st, done := q.begin()
	defer done()
	inv, ok := st.invoices[id]
	if !ok {
		return store.ErrNotFound
	}
	inv.Signature = signature
	inv.UpdatedAt = q.now()
	st.invoices[id] = inv
	return nil
}

func (q *queries) DeleteInvoice(_ context.Context, id string) error {
	st, done := q.begin()
	defer done()
	if _, ok := st.invoices[id]; !ok {
		return store.ErrNotFound
	}
	delete(st.invoices, id)
	return nil
}

func (q *queries) CountInvoices(_ context.Context, status domain.InvoiceStatus) (int, error) {
	st, done := q.begin()
	defer done()
	n := 0
	for _, inv := range st.invoices {
		if status == "" || inv.Status == status {
			n++
		}
	}
	return n, nil
}

func (q *queries) PaidRevenueBetween(_ context.Context, from, to time.Time) (domain.Money, error) {
	st, done := q.begin()
	defer done()
	var total domain.Money
	for _, inv := range st.invoices {
		if inv.Status != domain.StatusPaid {
			continue
		}
		if inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
			continue
		}
		total += inv.Total
	}
	return total, nil
}

// hydrate attaches the patient and item products the way API responses embed them.
func (st *state) hydrate(inv domain.Invoice) domain.Invoice {
	if p, ok := st.patients[inv.PatientID]; ok {
		inv.Patient = &p
	}
	items := make([]domain.InvoiceItem, len(inv.Items))
	for i, it := range inv.Items {
		if p, ok := st.products[it.ProductID]; ok {
			it.Product = &p
		}
		items[i] = it
	}
	inv.Items = items
	return inv
}
