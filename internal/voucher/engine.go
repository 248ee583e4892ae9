package voucher

import (
	"errors"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/pricing"
)

var (
	// ErrNotFound is returned when no voucher carries the requested code.
	ErrNotFound = errors.New("voucher not found")
	// ErrDisabled is returned for vouchers switched off by staff.
	ErrDisabled = errors.New("voucher disabled")
	// ErrNotYetActive is returned before the voucher start date.
	ErrNotYetActive = errors.New("voucher not yet active")
	// ErrExpired is returned after the voucher end date.
	ErrExpired = errors.New("voucher expired")
	// ErrUsageExceeded indicates the voucher has exhausted its usage quota.
	ErrUsageExceeded = errors.New("voucher usage limit reached")
	// ErrBelowMinimum indicates the amount did not reach the voucher minimum.
	ErrBelowMinimum = errors.New("voucher minimum amount not met")
)

var vnd = message.NewPrinter(language.Vietnamese)

// FormatVND renders an amount with Vietnamese digit grouping, e.g. 1.000.000đ.
func FormatVND(amount domain.Money) string {
	return vnd.Sprintf("%d", amount) + "đ"
}

// BelowMinimumError carries the minimum amount the voucher requires.
type BelowMinimumError struct {
	Minimum domain.Money
}

func (e *BelowMinimumError) Error() string {
	return "Đơn hàng tối thiểu " + FormatVND(e.Minimum) + " để áp dụng voucher này"
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }

// Validate checks a voucher against an amount at the given instant. Checks run
// in a fixed order and the first failure wins. It never mutates the voucher.
func Validate(v domain.Voucher, amount domain.Money, now time.Time) error {
	if !v.IsActive {
		return ErrDisabled
	}
	if now.Before(v.StartDate) {
		return ErrNotYetActive
	}
	if now.After(v.EndDate) {
		return ErrExpired
	}
	if v.UsageLimit != nil && v.UsageCount >= *v.UsageLimit {
		return ErrUsageExceeded
	}
	if amount < v.MinAmount {
		return &BelowMinimumError{Minimum: v.MinAmount}
	}
	return nil
}

// Compute returns the discount the voucher grants on amount. Percent vouchers
// round half up and respect MaxDiscount; fixed vouchers grant their value as is.
func Compute(v domain.Voucher, amount domain.Money) domain.Money {
	if v.Type != domain.VoucherPercent {
		return v.Value
	}
	discount := pricing.MulDiv(amount, v.Value, 100)
	if v.MaxDiscount != nil && discount > *v.MaxDiscount {
		discount = *v.MaxDiscount
	}
	return discount
}

// Reason maps a validation error to its machine-readable reason code.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrDisabled):
		return "DISABLED"
	case errors.Is(err, ErrNotYetActive):
		return "NOT_YET_ACTIVE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrUsageExceeded):
		return "USAGE_EXCEEDED"
	case errors.Is(err, ErrBelowMinimum):
		return "BELOW_MINIMUM"
	}
	return ""
}

// Message returns the user-facing message for a validation error.
func Message(err error) string {
	var below *BelowMinimumError
	switch {
	case errors.As(err, &below):
		return below.Error()
	case errors.Is(err, ErrNotFound):
		return "Mã voucher không tồn tại"
	case errors.Is(err, ErrDisabled):
		return "Mã voucher đã bị vô hiệu hóa"
	case errors.Is(err, ErrNotYetActive):
		return "Mã voucher chưa có hiệu lực"
	case errors.Is(err, ErrExpired):
		return "Mã voucher đã hết hạn"
	case errors.Is(err, ErrUsageExceeded):
		return "Mã voucher đã hết lượt sử dụng"
	}
	return "Mã voucher không hợp lệ"
}

// DiscountMessage is the confirmation shown for a valid voucher.
func DiscountMessage(discount domain.Money) string {
	return "Giảm " + FormatVND(discount)
}
