// Package storetest holds behaviour checks every store.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("GuardedDecrement", func(t *testing.T) { testGuardedDecrement(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("ConsumeVoucherGuard", func(t *testing.T) { testConsumeVoucher(t, newStore(t)) })
	t.Run("InvoiceRoundTrip", func(t *testing.T) { testInvoiceRoundTrip(t, newStore(t)) })
	t.Run("InvoiceStatusGuard", func(t *testing.T) { testInvoiceStatus(t, newStore(t)) })
	t.Run("ProductQueries", func(t *testing.T) { testProductQueries(t, newStore(t)) })
	t.Run("UpdateKeepsStock", func(t *testing.T) { testUpdateKeepsStock(t, newStore(t)) })
	t.Run("DuplicateCodes", func(t *testing.T) { testDuplicates(t, newStore(t)) })
	t.Run("RecentPatients", func(t *testing.T) { testRecentPatients(t, newStore(t)) })
}

// SeedPatient inserts a patient with the given code.
func SeedPatient(t *testing.T, s store.Queries, code string) domain.Patient {
	t.Helper()
	p, err := s.CreatePatient(context.Background(), domain.Patient{Code: code, FullName: "Nguyen Van " + code})
	require.NoError(t, err)
	return p
}

// SeedProduct inserts a product with the given code, price and quantity.
func SeedProduct(t *testing.T, s store.Queries, code string, price domain.Money, qty int) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		Code:     code,
		Name:     "Product " + code,
		Category: domain.CategoryGlasses,
		Price:    price,
		Quantity: qty,
		MinStock: 5,
	})
	require.NoError(t, err)
	return p
}

// SeedVoucher inserts an active voucher valid around now.
func SeedVoucher(t *testing.T, s store.Queries, v domain.Voucher) domain.Voucher {
	t.Helper()
	if v.StartDate.IsZero() {
		v.StartDate = time.Now().Add(-24 * time.Hour)
	}
	if v.EndDate.IsZero() {
		v.EndDate = time.Now().Add(24 * time.Hour)
	}
	if v.Type == "" {
		v.Type = domain.VoucherFixed
	}
	out, err := s.CreateVoucher(context.Background(), v)
	require.NoError(t, err)
	return out
}

func testGuardedDecrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedProduct(t, s, "GK-01", 100_000, 3)

	require.NoError(t, s.DecrementStock(ctx, p.ID, 2))
	err := s.DecrementStock(ctx, p.ID, 2)
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.ErrorIs(t, s.DecrementStock(ctx, "missing", 1), store.ErrNotFound)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Quantity)

	require.NoError(t, s.IncrementStock(ctx, p.ID, 4))
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Quantity)
	require.ErrorIs(t, s.IncrementStock(ctx, "missing", 1), store.ErrNotFound)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedProduct(t, s, "GK-02", 100_000, 5)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q store.Queries) error {
		require.NoError(t, q.DecrementStock(ctx, p.ID, 4))
		inTx, err := q.GetProduct(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, 1, inTx.Quantity)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Quantity)

	require.NoError(t, s.InTx(ctx, func(q store.Queries) error {
		return q.DecrementStock(ctx, p.ID, 5)
	}))
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Quantity)
}

func testConsumeVoucher(t *testing.T, s store.Store) {
	ctx := context.Background()
	limit := 2
	v := SeedVoucher(t, s, domain.Voucher{Code: "SALE10", Value: 10_000, UsageLimit: &limit, IsActive: true})
	unlimited := SeedVoucher(t, s, domain.Voucher{Code: "FREE", Value: 5_000, IsActive: true})

	require.NoError(t, s.ConsumeVoucher(ctx, v.ID))
	require.NoError(t, s.ConsumeVoucher(ctx, v.ID))
	require.ErrorIs(t, s.ConsumeVoucher(ctx, v.ID), store.ErrUsageExceeded)
	require.ErrorIs(t, s.ConsumeVoucher(ctx, "missing"), store.ErrNotFound)

	got, err := s.GetVoucherByCode(ctx, "SALE10")
	require.NoError(t, err)
	require.Equal(t, 2, got.UsageCount)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.ConsumeVoucher(ctx, unlimited.ID))
	}
	got, err = s.GetVoucher(ctx, unlimited.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.UsageCount)
}

func testInvoiceRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	patient := SeedPatient(t, s, "BN-001")
	product := SeedProduct(t, s, "GK-03", 300_000, 5)
	follow := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	created, err := s.CreateInvoice(ctx, domain.Invoice{
		Code:          "HK-2026123456789",
		PatientID:     patient.ID,
		Type:          domain.InvoiceGlasses,
		Status:        domain.StatusUnpaid,
		Subtotal:      600_000,
		ProcessingFee: 50_000,
		ServiceFee:    20_000,
		Tax:           67_000,
		Total:         737_000,
		Notes:         "Kính cận",
		FollowUpDate:  &follow,
		Items: []domain.InvoiceItem{{
			ProductID:  product.ID,
			Quantity:   2,
			UnitPrice:  300_000,
			TotalPrice: 600_000,
		}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Items, 1)
	require.NotEmpty(t, created.Items[0].ID)

	got, err := s.GetInvoice(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "HK-2026123456789", got.Code)
	require.Equal(t, domain.Money(737_000), got.Total)
	require.NotNil(t, got.Patient)
	require.Equal(t, patient.ID, got.Patient.ID)
	require.Len(t, got.Items, 1)
	require.NotNil(t, got.Items[0].Product)
	require.Equal(t, product.Code, got.Items[0].Product.Code)
	require.NotNil(t, got.FollowUpDate)
	require.True(t, follow.Equal(*got.FollowUpDate))

	require.NoError(t, s.UpdateInvoiceSignature(ctx, created.ID, "data:image/png;base64,AAAA"))
	got, err = s.GetInvoice(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,AAAA", got.Signature)

	list, err := s.ListInvoices(ctx, store.InvoiceFilter{Status: domain.StatusUnpaid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = s.ListInvoices(ctx, store.InvoiceFilter{Status: domain.StatusPaid})
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, s.DeleteInvoice(ctx, created.ID))
	_, err = s.GetInvoice(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteInvoice(ctx, created.ID), store.ErrNotFound)
}

func testInvoiceStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	patient := SeedPatient(t, s, "BN-002")
	product := SeedProduct(t, s, "GK-04", 100_000, 5)
	inv, err := s.CreateInvoice(ctx, domain.Invoice{
		Code:      "HT-2026000000001",
		PatientID: patient.ID,
		Type:      domain.InvoiceExamination,
		Status:    domain.StatusUnpaid,
		Subtotal:  100_000,
		Total:     132_000,
		Items:     []domain.InvoiceItem{{ProductID: product.ID, Quantity: 1, UnitPrice: 100_000, TotalPrice: 100_000}},
	})
	require.NoError(t, err)

	require.ErrorIs(t, s.UpdateInvoiceStatus(ctx, inv.ID, domain.StatusPaid, domain.StatusCancelled), store.ErrStaleStatus)
	require.NoError(t, s.UpdateInvoiceStatus(ctx, inv.ID, domain.StatusUnpaid, domain.StatusPaid))
	require.ErrorIs(t, s.UpdateInvoiceStatus(ctx, "missing", domain.StatusUnpaid, domain.StatusPaid), store.ErrNotFound)

	paid, err := s.CountInvoices(ctx, domain.StatusPaid)
	require.NoError(t, err)
	require.Equal(t, 1, paid)
	all, err := s.CountInvoices(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, all)

	revenue, err := s.PaidRevenueBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, domain.Money(132_000), revenue)
	revenue, err = s.PaidRevenueBetween(ctx, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	require.Zero(t, revenue)
}

func testProductQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	soon := now.Add(10 * 24 * time.Hour)
	later := now.Add(90 * 24 * time.Hour)

	_, err := s.CreateProduct(ctx, domain.Product{Code: "TK-01", Name: "Nhỏ mắt Rohto", Category: domain.CategoryMedicine, Price: 45_000, Quantity: 2, MinStock: 5, ExpiresAt: &soon})
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, domain.Product{Code: "TK-02", Name: "V.Rohto Vitamin", Category: domain.CategoryMedicine, Price: 55_000, Quantity: 20, MinStock: 5, ExpiresAt: &later})
	require.NoError(t, err)
	lens := SeedProduct(t, s, "TT-01", 500_000, 5)

	meds, err := s.ListProducts(ctx, store.ProductFilter{Category: domain.CategoryMedicine})
	require.NoError(t, err)
	require.Len(t, meds, 2)

	found, err := s.ListProducts(ctx, store.ProductFilter{Query: "rohto"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	found, err = s.ListProducts(ctx, store.ProductFilter{Query: "tt-0"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	low, err := s.LowStockProducts(ctx)
	require.NoError(t, err)
	require.Len(t, low, 2)
	require.Equal(t, "TK-01", low[0].Code)
	require.Equal(t, lens.ID, low[1].ID)

	expiring, err := s.ExpiringProducts(ctx, now, now.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.Equal(t, "TK-01", expiring[0].Code)

	stats, err := s.CategorySummary(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.Equal(t, store.CategoryStat{Category: domain.CategoryGlasses, Count: 1, TotalQuantity: 5}, stats[0])
	require.Equal(t, store.CategoryStat{Category: domain.CategoryMedicine, Count: 2, TotalQuantity: 22}, stats[1])

	lens.Name = "Tròng Essilor"
	lens.Price = 650_000
	updated, err := s.UpdateProduct(ctx, lens)
	require.NoError(t, err)
	require.Equal(t, domain.Money(650_000), updated.Price)

	count, err := s.CountProducts(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, s.DeleteProduct(ctx, lens.ID))
	_, err = s.GetProduct(ctx, lens.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateKeepsStock(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := SeedProduct(t, s, "TK-STALE", 400_000, 5)
	stale, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, s.DecrementStock(ctx, p.ID, 2))
	stale.Name = "Tròng đổi tên"
	updated, err := s.UpdateProduct(ctx, stale)
	require.NoError(t, err)
	require.Equal(t, "Tròng đổi tên", updated.Name)
	require.Equal(t, 3, updated.Quantity)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Quantity)

	require.NoError(t, s.SetStock(ctx, p.ID, 12))
	got, err = s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 12, got.Quantity)
	require.ErrorIs(t, s.SetStock(ctx, "missing", 1), store.ErrNotFound)
}

func testRecentPatients(t *testing.T, s store.Store) {
	ctx := context.Background()
	empty, err := s.RecentPatients(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, empty)

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		_, err := s.CreatePatient(ctx, domain.Patient{
			Code:      fmt.Sprintf("BN%03d", i),
			FullName:  "Tran Thi " + fmt.Sprint(i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	got, err := s.RecentPatients(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	codes := make([]string, 0, len(got))
	for _, p := range got {
		codes = append(codes, p.Code)
	}
	require.Equal(t, []string{"BN005", "BN004", "BN003", "BN002", "BN001"}, codes)
}

func testDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	SeedProduct(t, s, "DUP-1", 1_000, 1)
	_, err := s.CreateProduct(ctx, domain.Product{Code: "DUP-1", Name: "again", Category: domain.CategoryLenses})
	require.ErrorIs(t, err, store.ErrDuplicate)

	SeedVoucher(t, s, domain.Voucher{Code: "DUPV", Value: 1_000, IsActive: true})
	_, err = s.CreateVoucher(ctx, domain.Voucher{Code: "DUPV", Type: domain.VoucherFixed, Value: 2_000, StartDate: time.Now(), EndDate: time.Now()})
	require.ErrorIs(t, err, store.ErrDuplicate)
}
