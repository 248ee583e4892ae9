package domain

import (
	"strings"
	"time"
)

// Money represents a monetary value in whole VND.
type Money = int64

// Input bounds. Together they keep every invoice sum far below the int64 range.
const (
	// MaxMoney caps any single amount accepted from a client: one trillion VND.
	MaxMoney Money = 1_000_000_000_000
	// MaxItemQuantity caps the quantity of one invoice line.
	MaxItemQuantity = 10_000
	// MaxInvoiceItems caps the number of lines on one invoice.
	MaxInvoiceItems = 200
	// MaxStock caps a product's stored quantity.
	MaxStock = 1_000_000
)

// Category classifies a product in the optical shop inventory.
type Category string

const (
	CategoryGlasses  Category = "glasses"
	CategoryLenses   Category = "lenses"
	CategoryMedicine Category = "medicine"
)

// Valid reports whether the category is one of the known values.
func (c Category) Valid() bool {
	switch c {
	case CategoryGlasses, CategoryLenses, CategoryMedicine:
		return true
	}
	return false
}

// InvoiceType selects the invoice code prefix and the default fee schedule.
type InvoiceType string

const (
	InvoiceGlasses     InvoiceType = "glasses"
	InvoiceExamination InvoiceType = "examination"
	InvoiceMedicine    InvoiceType = "medicine"
)

// Valid reports whether the invoice type is known.
func (t InvoiceType) Valid() bool {
	switch t {
	case InvoiceGlasses, InvoiceExamination, InvoiceMedicine:
		return true
	}
	return false
}

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	StatusUnpaid    InvoiceStatus = "UNPAID"
	StatusPaid      InvoiceStatus = "PAID"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

// ParseInvoiceStatus normalises user input into a known status.
func ParseInvoiceStatus(raw string) (InvoiceStatus, bool) {
	switch s := InvoiceStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusUnpaid, StatusPaid, StatusCancelled:
		return s, true
	}
	return "", false
}

// VoucherType selects how a voucher discount is computed.
type VoucherType string

const (
	VoucherPercent VoucherType = "percent"
	VoucherFixed   VoucherType = "fixed"
)

func (t VoucherType) Valid() bool {
	return t == VoucherPercent || t == VoucherFixed
}

// Patient is the subset of the patient record the billing core reads.
type Patient struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Product is an inventory item. Quantity is the on-hand stock counter.
type Product struct {
	ID           string     `json:"id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Category     Category   `json:"category"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Material     string     `json:"material,omitempty"`
	SphRange     string     `json:"sphRange,omitempty"`
	CylRange     string     `json:"cylRange,omitempty"`
	Price        Money      `json:"price"`
	Quantity     int        `json:"quantity"`
	MinStock     int        `json:"minStock"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// LowStock reports whether the product is at or below its reorder threshold.
func (p Product) LowStock() bool {
	return p.Quantity <= p.MinStock
}

// ExpiringWithin reports whether the product expires in [now, now+window].
func (p Product) ExpiringWithin(now time.Time, window time.Duration) bool {
	if p.ExpiresAt == nil {
		return false
	}
	return !p.ExpiresAt.Before(now) && !p.ExpiresAt.After(now.Add(window))
}

// Voucher is a discount code with validity window and usage accounting.
type Voucher struct {
	ID          string      `json:"id"`
	Code        string      `json:"code"`
	Description string      `json:"description,omitempty"`
	Type        VoucherType `json:"type"`
	Value       int64       `json:"value"`
	MinAmount   Money       `json:"minAmount"`
	MaxDiscount *Money      `json:"maxDiscount,omitempty"`
	StartDate   time.Time   `json:"startDate"`
	EndDate     time.Time   `json:"endDate"`
	UsageLimit  *int        `json:"usageLimit,omitempty"`
	UsageCount  int         `json:"usageCount"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Invoice is a billing document for a patient.
type Invoice struct {
	ID              string        `json:"id"`
	Code            string        `json:"code"`
	PatientID       string        `json:"patientId"`
	Type            InvoiceType   `json:"type"`
	Status          InvoiceStatus `json:"status"`
	Subtotal        Money         `json:"subtotal"`
	Discount        Money         `json:"discount"`
	VoucherCode     string        `json:"voucherCode,omitempty"`
	VoucherDiscount Money         `json:"voucherDiscount"`
	ProcessingFee   Money         `json:"processingFee"`
	ShippingFee     Money         `json:"shippingFee"`
	ServiceFee      Money         `json:"serviceFee"`
	Tax             Money         `json:"tax"`
	Total           Money         `json:"total"`
	Signature       string        `json:"signature,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Instructions    string        `json:"instructions,omitempty"`
	Dosage          string        `json:"dosage,omitempty"`
	FollowUpDate    *time.Time    `json:"followUpDate,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`

	Patient *Patient      `json:"patient,omitempty"`
	Items   []InvoiceItem `json:"items"`
}

// InvoiceItem is one invoice line. UnitPrice is the product price at creation time.
type InvoiceItem struct {
	ID         string   `json:"id"`
	InvoiceID  string   `json:"invoiceId"`
	ProductID  string   `json:"productId"`
	Quantity   int      `json:"quantity"`
	UnitPrice  Money    `json:"unitPrice"`
	TotalPrice Money    `json:"totalPrice"`
	Product    *Product `json:"product,omitempty"`
}
