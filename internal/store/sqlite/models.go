package sqlite

import (
	"time"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

type patientRow struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	FullName  string `gorm:"not null"`
	Phone     string
	CreatedAt time.Time
}

func (patientRow) TableName() string { return "patients" }

type productRow struct {
	ID           string `gorm:"primaryKey"`
	Code         string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	Category     string `gorm:"index;not null"`
	Manufacturer string
	Material     string
	SphRange     string
	CylRange     string
	Price        int64 `gorm:"not null;check:price >= 0"`
	Quantity     int   `gorm:"not null;check:quantity >= 0"`
	MinStock     int   `gorm:"not null;default:5"`
	ExpiresAt    *time.Time
	ImageURL     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (productRow) TableName() string { return "products" }

type voucherRow struct {
	ID          string `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"`
	Description string
	Type        string `gorm:"not null"`
	Value       int64  `gorm:"not null"`
	MinAmount   int64  `gorm:"not null;default:0"`
	MaxDiscount *int64
	StartDate   time.Time
	EndDate     time.Time
	UsageLimit  *int
	UsageCount  int  `gorm:"not null;default:0"`
	IsActive    bool `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (voucherRow) TableName() string { return "vouchers" }

type invoiceRow struct {
	ID              string `gorm:"primaryKey"`
	Code            string `gorm:"uniqueIndex;not null"`
	PatientID       string `gorm:"index;not null"`
	Type            string `gorm:"not null"`
	Status          string `gorm:"index;not null"`
	Subtotal        int64
	Discount        int64
	VoucherCode     string
	VoucherDiscount int64
	ProcessingFee   int64
	ShippingFee     int64
	ServiceFee      int64
	Tax             int64
	Total           int64
	Signature       string
	Notes           string
	Instructions    string
	Dosage          string
	FollowUpDate    *time.Time
	CreatedAt       time.Time `gorm:"index"`
	UpdatedAt       time.Time
}

func (invoiceRow) TableName() string { return "invoices" }

type invoiceItemRow struct {
	ID         string `gorm:"primaryKey"`
	InvoiceID  string `gorm:"index;not null"`
	ProductID  string `gorm:"index;not null"`
	Quantity   int    `gorm:"not null;check:quantity >= 1"`
	UnitPrice  int64
	TotalPrice int64
}

func (invoiceItemRow) TableName() string { return "invoice_items" }

func allModels() []any {
	return []any{&patientRow{}, &productRow{}, &voucherRow{}, &invoiceRow{}, &invoiceItemRow{}}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func patientFromRow(r patientRow) domain.Patient {
	return domain.Patient{ID: r.ID, Code: r.Code, FullName: r.FullName, Phone: r.Phone, CreatedAt: r.CreatedAt}
}

func productToRow(p domain.Product) productRow {
	return productRow{
		ID:           p.ID,
		Code:         p.Code,
		Name:         p.Name,
		Category:     string(p.Category),
		Manufacturer: p.Manufacturer,
		Material:     p.Material,
		SphRange:     p.SphRange,
		CylRange:     p.CylRange,
		Price:        p.Price,
		Quantity:     p.Quantity,
		MinStock:     p.MinStock,
		ExpiresAt:    utcPtr(p.ExpiresAt),
		ImageURL:     p.ImageURL,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func productFromRow(r productRow) domain.Product {
	return domain.Product{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name,
		Category:     domain.Category(r.Category),
		Manufacturer: r.Manufacturer,
		Material:     r.Material,
		SphRange:     r.SphRange,
		CylRange:     r.CylRange,
		Price:        r.Price,
		Quantity:     r.Quantity,
		MinStock:     r.MinStock,
		ExpiresAt:    r.ExpiresAt,
		ImageURL:     r.ImageURL,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func voucherToRow(v domain.Voucher) voucherRow {
	return voucherRow{
		ID:          v.ID,
		Code:        v.Code,
		Description: v.Description,
		Type:        string(v.Type),
		Value:       v.Value,
		MinAmount:   v.MinAmount,
		MaxDiscount: v.MaxDiscount,
		StartDate:   v.StartDate.UTC(),
		EndDate:     v.EndDate.UTC(),
		UsageLimit:  v.UsageLimit,
		UsageCount:  v.UsageCount,
		IsActive:    v.IsActive,
		CreatedAt:   v.CreatedAt.UTC(),
		UpdatedAt:   v.UpdatedAt.UTC(),
	}
}

func voucherFromRow(r voucherRow) domain.Voucher {
	return domain.Voucher{
		ID:          r.ID,
		Code:        r.Code,
		Description: r.Description,
		Type:        domain.VoucherType(r.Type),
		Value:       r.Value,
		MinAmount:   r.MinAmount,
		MaxDiscount: r.MaxDiscount,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		UsageLimit:  r.UsageLimit,
		UsageCount:  r.UsageCount,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func invoiceToRow(inv domain.Invoice) invoiceRow {
	return invoiceRow{
		ID:              inv.ID,
		Code:            inv.Code,
		PatientID:       inv.PatientID,
		Type:            string(inv.Type),
		Status:          string(inv.Status),
		Subtotal:        inv.Subtotal,
		Discount:        inv.Discount,
		VoucherCode:     inv.VoucherCode,
		VoucherDiscount: inv.VoucherDiscount,
		ProcessingFee:   inv.ProcessingFee,
		ShippingFee:     inv.ShippingFee,
		ServiceFee:      inv.ServiceFee,
		Tax:             inv.Tax,
		Total:           inv.Total,
		Signature:       inv.Signature,
		Notes:           inv.Notes,
		Instructions:    inv.Instructions,
		Dosage:          inv.Dosage,
		FollowUpDate:    utcPtr(inv.FollowUpDate),
		CreatedAt:       inv.CreatedAt.UTC(),
		UpdatedAt:       inv.UpdatedAt.UTC(),
	}
}

func invoiceFromRow(r invoiceRow) domain.Invoice {
	return domain.Invoice{
		ID:              r.ID,
		Code:            r.Code,
		PatientID:       r.PatientID,
		Type:            domain.InvoiceType(r.Type),
		Status:          domain.InvoiceStatus(r.Status),
		Subtotal:        r.Subtotal,
		Discount:        r.Discount,
		VoucherCode:     r.VoucherCode,
		VoucherDiscount: r.VoucherDiscount,
		ProcessingFee:   r.ProcessingFee,
		ShippingFee:     r.ShippingFee,
		ServiceFee:      r.ServiceFee,
		Tax:             r.Tax,
		Total:           r.Total,
		Signature:       r.Signature,
		Notes:           r.Notes,
		Instructions:    r.Instructions,
		Dosage:          r.Dosage,
		FollowUpDate:    r.FollowUpDate,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
