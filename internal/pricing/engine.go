package pricing

import "github.com/noah-isme/backend-phongkham/internal/domain"

// Money represents a monetary value in whole VND.
type Money = domain.Money

// VATBps is the value-added tax rate applied to subtotal plus fees, in basis points.
const VATBps = 1000

const (
	// GlassesProcessingFee is charged on glasses invoices for lens fitting.
	GlassesProcessingFee Money = 50_000
	// DefaultServiceFee is charged on every invoice unless overridden.
	DefaultServiceFee Money = 20_000
)

// Item describes a line item used for pricing calculation. A non-positive
// quantity counts as one unit.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Fees groups the flat charges added before tax.
type Fees struct {
	Processing Money
	Shipping   Money
	Service    Money
}

// Sum returns the combined fee amount.
func (f Fees) Sum() Money {
	return f.Processing + f.Shipping + f.Service
}

// DefaultFees returns the fee schedule the front desk applies for an invoice type.
func DefaultFees(t domain.InvoiceType) Fees {
	fees := Fees{Service: DefaultServiceFee}
	if t == domain.InvoiceGlasses {
		fees.Processing = GlassesProcessingFee
	}
	return fees
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal        Money
	Fees            Fees
	BeforeTax       Money
	Tax             Money
	Discount        Money
	VoucherDiscount Money
	Total           Money
}

// Compute calculates invoice totals. Total is not clamped; callers decide
// whether a non-positive total is acceptable.
func Compute(items []Item, fees Fees, discount, voucherDiscount Money) Summary {
	var subtotal Money
	for _, it := range items {
		subtotal += Money(Quantity(it.Qty)) * it.UnitPrice
	}
	beforeTax := subtotal + fees.Sum()
	tax := Tax(beforeTax)
	return Summary{
		Subtotal:        subtotal,
		Fees:            fees,
		BeforeTax:       beforeTax,
		Tax:             tax,
		Discount:        discount,
		VoucherDiscount: voucherDiscount,
		Total:           beforeTax + tax - discount - voucherDiscount,
	}
}

// Quantity applies the default of one unit to missing or non-positive quantities.
func Quantity(qty int) int {
	if qty <= 0 {
		return 1
	}
	return qty
}

// Tax returns VAT on the amount rounded half up to the nearest whole unit.
func Tax(amount Money) Money {
	return MulDiv(amount, VATBps, 10_000)
}

// MulDiv returns n*m/d (d > 0) rounded like RoundDiv. It splits n by d first
// so the product n*m is never formed and cannot overflow on its own.
func MulDiv(n, m, d int64) int64 {
	return (n/d)*m + RoundDiv((n%d)*m, d)
}

// RoundDiv divides n by d (d > 0) rounding half toward positive infinity.
func RoundDiv(n, d int64) int64 {
	q := n + d/2
	if q >= 0 {
		return q / d
	}
	return -((-q + d - 1) / d)
}
