package store

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock is returned when a guarded decrement would make quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrUsageExceeded is returned when a guarded voucher usage increment would pass the limit.
	ErrUsageExceeded = errors.New("voucher usage limit reached")
	// ErrDuplicate is returned when a unique code is already taken.
	ErrDuplicate = errors.New("duplicate key")
	// ErrStaleStatus is returned when a guarded status update finds a different current status.
	ErrStaleStatus = errors.New("invoice status changed concurrently")
)

const (
	// MaxProductList caps product listings.
	MaxProductList = 200
	// MaxInvoiceList caps invoice listings.
	MaxInvoiceList = 100
)

// ProductFilter narrows product listings.
type ProductFilter struct {
	Category domain.Category
	// Query matches name or code, case-insensitively.
	Query string
	Limit int
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	Status domain.InvoiceStatus
	Limit  int
}

// CategoryStat aggregates inventory per product category.
type CategoryStat struct {
	Category      domain.Category `json:"category"`
	Count         int             `json:"count"`
	TotalQuantity int             `json:"totalQuantity"`
}

// Queries is the data access surface shared by the services. Every
// implementation must make DecrementStock and ConsumeVoucher conditional
// single-statement updates. UpdateProduct leaves quantity untouched: stock
// only moves through DecrementStock, IncrementStock and SetStock, so a stale
// product read can never overwrite a concurrent sale.
type Queries interface {
	GetPatient(ctx context.Context, id string) (domain.Patient, error)
	CreatePatient(ctx context.Context, p domain.Patient) (domain.Patient, error)
	CountPatients(ctx context.Context) (int, error)
	RecentPatients(ctx context.Context, limit int) ([]domain.Patient, error)

	ListProducts(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	CountProducts(ctx context.Context) (int, error)
	LowStockProducts(ctx context.Context) ([]domain.Product, error)
	ExpiringProducts(ctx context.Context, from, to time.Time) ([]domain.Product, error)
	CategorySummary(ctx context.Context) ([]CategoryStat, error)
	DecrementStock(ctx context.Context, productID string, qty int) error
	IncrementStock(ctx context.Context, productID string, qty int) error
	SetStock(ctx context.Context, productID string, qty int) error

	ListVouchers(ctx context.Context) ([]domain.Voucher, error)
	GetVoucher(ctx context.Context, id string) (domain.Voucher, error)
	GetVoucherByCode(ctx context.Context, code string) (domain.Voucher, error)
	CreateVoucher(ctx context.Context, v domain.Voucher) (domain.Voucher, error)
	UpdateVoucher(ctx context.Context, v domain.Voucher) (domain.Voucher, error)
	DeleteVoucher(ctx context.Context, id string) error
	ConsumeVoucher(ctx context.Context, id string) error

	CreateInvoice(ctx context.Context, inv domain.Invoice) (domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (domain.Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]domain.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, from, to domain.InvoiceStatus) error
	UpdateInvoiceSignature(ctx context.Context, id, signature string) error
	DeleteInvoice(ctx context.Context, id string) error
	CountInvoices(ctx context.Context, status domain.InvoiceStatus) (int, error)
	PaidRevenueBetween(ctx context.Context, from, to time.Time) (domain.Money, error)
}

// Store is a Queries implementation with transactions and a lifecycle.
type Store interface {
	Queries
	// InTx runs fn against a transactional view. Any error returned by fn
	// rolls back every write made through that view.
	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

// ClampLimit bounds a requested page size to (0, max], defaulting to max.
func ClampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
