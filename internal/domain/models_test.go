package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseInvoiceStatus(t *testing.T) {
	s, ok := ParseInvoiceStatus(" paid ")
	require.True(t, ok)
	require.Equal(t, StatusPaid, s)

	_, ok = ParseInvoiceStatus("REFUNDED")
	require.False(t, ok)
}

func TestEnumsValid(t *testing.T) {
	require.True(t, CategoryMedicine.Valid())
	require.False(t, Category("frames").Valid())
	require.True(t, InvoiceExamination.Valid())
	require.False(t, InvoiceType("").Valid())
	require.True(t, VoucherFixed.Valid())
	require.False(t, VoucherType("bogo").Valid())
}

func TestProductStockFlags(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(10 * 24 * time.Hour)
	p := Product{Quantity: 5, MinStock: 5, ExpiresAt: &expiry}

	require.True(t, p.LowStock())
	require.True(t, p.ExpiringWithin(now, 10*24*time.Hour))
	require.False(t, p.ExpiringWithin(now, 9*24*time.Hour))
	require.False(t, p.ExpiringWithin(expiry.Add(time.Second), time.Hour), "already expired")
	require.False(t, Product{}.ExpiringWithin(now, time.Hour))
}
