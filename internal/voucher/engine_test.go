package voucher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

var testNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func activeVoucher(mut func(*domain.Voucher)) domain.Voucher {
	v := domain.Voucher{
		Code:      "KM10",
		Type:      domain.VoucherPercent,
		Value:     10,
		StartDate: testNow.Add(-24 * time.Hour),
		EndDate:   testNow.Add(24 * time.Hour),
		IsActive:  true,
	}
	if mut != nil {
		mut(&v)
	}
	return v
}

func money(v domain.Money) *domain.Money { return &v }

func intPtr(v int) *int { return &v }

func TestComputePercentCapped(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) { v.MaxDiscount = money(100_000) })
	require.NoError(t, Validate(v, 2_000_000, testNow))
	require.Equal(t, domain.Money(100_000), Compute(v, 2_000_000))
}

func TestComputePercentRoundsHalfUp(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) { v.Value = 15 })
	// 15% of 3_333 is 499.95
	require.Equal(t, domain.Money(500), Compute(v, 3_333))
	// 10% of 1_005 is 100.5
	require.Equal(t, domain.Money(101), Compute(activeVoucher(nil), 1_005))
}

func TestComputePercentOfLargeAmount(t *testing.T) {
	full := activeVoucher(func(v *domain.Voucher) { v.Value = 100 })
	require.Equal(t, domain.Money(100_000_000_000_000_000), Compute(full, 100_000_000_000_000_000))
	require.Equal(t, domain.Money(1_000_000_000_000), Compute(activeVoucher(nil), 10_000_000_000_000))
}

func TestComputeFixedIsNotCapped(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) {
		v.Type = domain.VoucherFixed
		v.Value = 50_000
		v.MaxDiscount = money(10_000)
	})
	require.Equal(t, domain.Money(50_000), Compute(v, 20_000))
}

func TestValidateBelowMinimum(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) {
		v.Type = domain.VoucherFixed
		v.Value = 50_000
		v.MinAmount = 300_000
	})
	err := Validate(v, 200_000, testNow)
	require.ErrorIs(t, err, ErrBelowMinimum)

	var below *BelowMinimumError
	require.True(t, errors.As(err, &below))
	require.Equal(t, domain.Money(300_000), below.Minimum)
	require.Equal(t, "Đơn hàng tối thiểu 300.000đ để áp dụng voucher này", Message(err))
	require.Equal(t, "BELOW_MINIMUM", Reason(err))
}

func TestValidateMinimumBoundary(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) { v.MinAmount = 500_000 })
	require.NoError(t, Validate(v, 500_000, testNow))
	require.ErrorIs(t, Validate(v, 499_999, testNow), ErrBelowMinimum)
}

func TestValidateUsageExceededRegardlessOfAmount(t *testing.T) {
	v := activeVoucher(func(v *domain.Voucher) {
		v.UsageLimit = intPtr(1)
		v.UsageCount = 1
	})
	for _, amount := range []domain.Money{0, 1, 10_000_000} {
		require.ErrorIs(t, Validate(v, amount, testNow), ErrUsageExceeded)
	}
}

func TestValidateOrder(t *testing.T) {
	cases := []struct {
		name   string
		mut    func(*domain.Voucher)
		want   error
		reason string
	}{
		{"disabled wins over expiry", func(v *domain.Voucher) {
			v.IsActive = false
			v.EndDate = testNow.Add(-time.Hour)
		}, ErrDisabled, "DISABLED"},
		{"not yet active", func(v *domain.Voucher) { v.StartDate = testNow.Add(time.Minute) }, ErrNotYetActive, "NOT_YET_ACTIVE"},
		{"expired", func(v *domain.Voucher) { v.EndDate = testNow.Add(-time.Second) }, ErrExpired, "EXPIRED"},
		{"expiry wins over usage", func(v *domain.Voucher) {
			v.EndDate = testNow.Add(-time.Second)
			v.UsageLimit = intPtr(1)
			v.UsageCount = 1
		}, ErrExpired, "EXPIRED"},
		{"usage wins over minimum", func(v *domain.Voucher) {
			v.UsageLimit = intPtr(2)
			v.UsageCount = 2
			v.MinAmount = 1_000_000
		}, ErrUsageExceeded, "USAGE_EXCEEDED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(activeVoucher(tc.mut), 100_000, testNow)
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, tc.reason, Reason(err))
			require.NotEmpty(t, Message(err))
		})
	}
}

func TestValidateWindowIsInclusive(t *testing.T) {
	v := activeVoucher(nil)
	require.NoError(t, Validate(v, 1, v.StartDate))
	require.NoError(t, Validate(v, 1, v.EndDate))
}

func TestFormatVND(t *testing.T) {
	require.Equal(t, "1.000.000đ", FormatVND(1_000_000))
	require.Equal(t, "Giảm 50.000đ", DiscountMessage(50_000))
}
