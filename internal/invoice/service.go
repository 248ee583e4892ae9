// Package invoice creates invoices and moves them through their payment
// lifecycle, keeping stock and voucher usage consistent with every change.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/events"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/pricing"
	"github.com/noah-isme/backend-phongkham/internal/store"
	"github.com/noah-isme/backend-phongkham/internal/voucher"
)

// maxCodeAttempts bounds how often Create retries after an invoice code collision.
const maxCodeAttempts = 3

// Emitter publishes invoice events after commit.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// ItemInput is one requested invoice line. UnitPrice is ignored; the
// product's current price is used instead.
type ItemInput struct {
	ProductID string       `json:"productId" validate:"required"`
	Quantity  int          `json:"quantity" validate:"gte=0,max=10000"`
	UnitPrice domain.Money `json:"unitPrice"`
}

// CreateInput is the payload for creating an invoice.
type CreateInput struct {
	PatientID       string             `json:"patientId" validate:"required"`
	Type            domain.InvoiceType `json:"type" validate:"omitempty,invoice_type"`
	Items           []ItemInput        `json:"items" validate:"max=200,dive"`
	Discount        domain.Money       `json:"discount" validate:"gte=0,max=1000000000000"`
	VoucherCode     string             `json:"voucherCode"`
	VoucherDiscount *domain.Money      `json:"voucherDiscount"`
	ProcessingFee   *domain.Money      `json:"processingFee" validate:"omitempty,gte=0,max=1000000000000"`
	ShippingFee     *domain.Money      `json:"shippingFee" validate:"omitempty,gte=0,max=1000000000000"`
	ServiceFee      *domain.Money      `json:"serviceFee" validate:"omitempty,gte=0,max=1000000000000"`
	Signature       string             `json:"signature"`
	Notes           string             `json:"notes"`
	Instructions    string             `json:"instructions"`
	Dosage          string             `json:"dosage"`
	FollowUpDate    *time.Time         `json:"followUpDate"`
}

// Service implements the invoice lifecycle on top of a transactional store.
type Service struct {
	Store  store.Store
	Events Emitter
	Now    func() time.Time
	Log    zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CanTransition reports whether an invoice may move from one status to another.
// Only unpaid invoices change state.
func CanTransition(from, to domain.InvoiceStatus) bool {
	return from == domain.StatusUnpaid && (to == domain.StatusPaid || to == domain.StatusCancelled)
}

// Code builds the human readable invoice code for a type at a point in time.
func Code(t domain.InvoiceType, at time.Time) string {
	prefix := "HT-"
	if t == domain.InvoiceGlasses {
		prefix = "HK-"
	}
	ms := strconv.FormatInt(at.UnixMilli(), 10)
	if len(ms) > 9 {
		ms = ms[len(ms)-9:]
	}
	return prefix + strconv.Itoa(at.Year()) + ms
}

// Create prices the requested items server side and stores the invoice while
// taking stock and consuming the voucher in the same transaction.
func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Invoice, error) {
	if err := precheck(&in); err != nil {
		obs.CountInvoiceCreateFailure(strings.ToLower(err.Code))
		return domain.Invoice{}, err
	}
	now := s.now()
	var (
		inv domain.Invoice
		err error
	)
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code := Code(in.Type, now.Add(time.Duration(attempt-1)*time.Millisecond))
		inv, err = s.createOnce(ctx, in, code, now)
		if !errors.Is(err, store.ErrDuplicate) {
			break
		}
		obs.CountInvoiceCodeRetry()
		s.Log.Warn().Str("invoice_code", code).Int("attempt", attempt).Msg("invoice code collision")
	}
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = common.Conflict("INVOICE_CODE_CONFLICT", "could not allocate an invoice code", err)
		}
		appErr := common.AsAppError(err)
		obs.CountInvoiceCreateFailure(strings.ToLower(appErr.Code))
		if appErr.HTTPStatus >= 500 {
			s.Log.Error().Err(err).Msg("invoice create failed")
		}
		return domain.Invoice{}, appErr
	}

	obs.CountInvoiceCreated(string(inv.Type))
	s.Log.Info().
		Str("invoice_id", inv.ID).
		Str("invoice_code", inv.Code).
		Int64("total", inv.Total).
		Msg("invoice created")
	s.emit(ctx, events.TopicInvoiceCreated, inv.ID, events.InvoiceCreated{
		InvoiceID:   inv.ID,
		Code:        inv.Code,
		Type:        string(inv.Type),
		Total:       inv.Total,
		VoucherCode: inv.VoucherCode,
		ProductIDs:  productIDs(inv.Items),
	})
	return inv, nil
}

func precheck(in *CreateInput) *common.AppError {
	in.PatientID = strings.TrimSpace(in.PatientID)
	if in.PatientID == "" {
		return common.Validation("VALIDATION_FAILED", "patientId is required", nil)
	}
	if in.Type == "" {
		in.Type = domain.InvoiceGlasses
	}
	if !in.Type.Valid() {
		return common.Validation("VALIDATION_FAILED", "unknown invoice type", nil)
	}
	if len(in.Items) == 0 {
		return common.Validation("EMPTY_CART", "invoice has no items", nil)
	}
	if len(in.Items) > domain.MaxInvoiceItems {
		return common.Validation("VALIDATION_FAILED", "invoice has too many items", nil)
	}
	for i := range in.Items {
		in.Items[i].ProductID = strings.TrimSpace(in.Items[i].ProductID)
		if in.Items[i].ProductID == "" {
			return common.Validation("VALIDATION_FAILED", "productId is required", nil)
		}
		in.Items[i].Quantity = pricing.Quantity(in.Items[i].Quantity)
		if in.Items[i].Quantity > domain.MaxItemQuantity {
			return common.Validation("VALIDATION_FAILED", "item quantity is too large", nil)
		}
	}
	if in.Discount < 0 || in.Discount > domain.MaxMoney {
		return common.Validation("VALIDATION_FAILED", "discount is out of range", nil)
	}
	for _, fee := range []*domain.Money{in.ProcessingFee, in.ShippingFee, in.ServiceFee} {
		if fee != nil && (*fee < 0 || *fee > domain.MaxMoney) {
			return common.Validation("VALIDATION_FAILED", "fees are out of range", nil)
		}
	}
	return nil
}

func fees(in CreateInput) pricing.Fees {
	f := pricing.DefaultFees(in.Type)
	if in.ProcessingFee != nil {
		f.Processing = *in.ProcessingFee
	}
	if in.ShippingFee != nil {
		f.Shipping = *in.ShippingFee
	}
	if in.ServiceFee != nil {
		f.Service = *in.ServiceFee
	}
	return f
}

// createOnce runs one creation attempt. A store.ErrDuplicate from the invoice
// insert is returned unwrapped so the caller can retry with a new code.
func (s *Service) createOnce(ctx context.Context, in CreateInput, code string, now time.Time) (domain.Invoice, error) {
	var out domain.Invoice
	err := s.Store.InTx(ctx, func(q store.Queries) error {
		if _, err := q.GetPatient(ctx, in.PatientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return common.NotFound("PATIENT_NOT_FOUND", "patient not found", err).
					WithDetails(map[string]string{"patientId": in.PatientID})
			}
			return common.Internal(err)
		}

		lines := make([]domain.InvoiceItem, 0, len(in.Items))
		priced := make([]pricing.Item, 0, len(in.Items))
		for _, it := range in.Items {
			p, err := q.GetProduct(ctx, it.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return productMissing(it.ProductID, err)
				}
				return common.Internal(err)
			}
			lines = append(lines, domain.InvoiceItem{
				ProductID:  p.ID,
				Quantity:   it.Quantity,
				UnitPrice:  p.Price,
				TotalPrice: p.Price * domain.Money(it.Quantity),
			})
			priced = append(priced, pricing.Item{Qty: it.Quantity, UnitPrice: p.Price})
		}

		var applied *voucher.Result
		if strings.TrimSpace(in.VoucherCode) != "" {
			subtotal := pricing.Compute(priced, pricing.Fees{}, 0, 0).Subtotal
			res, err := voucher.Lookup(ctx, q, in.VoucherCode, subtotal, now)
			if err != nil {
				return voucher.ToAppError(err)
			}
			applied = &res
		}
		var voucherDiscount domain.Money
		if applied != nil {
			voucherDiscount = applied.Discount
		}
		if in.VoucherDiscount != nil && *in.VoucherDiscount != voucherDiscount {
			s.Log.Warn().
				Int64("client_voucher_discount", *in.VoucherDiscount).
				Int64("voucher_discount", voucherDiscount).
				Msg("client voucher discount ignored")
		}

		summary := pricing.Compute(priced, fees(in), in.Discount, voucherDiscount)
		if summary.Total <= 0 {
			return common.Validation("NON_POSITIVE_TOTAL", "invoice total must be positive", nil).
				WithDetails(map[string]int64{"total": summary.Total})
		}

		inv := domain.Invoice{
			Code:            code,
			PatientID:       in.PatientID,
			Type:            in.Type,
			Status:          domain.StatusUnpaid,
			Subtotal:        summary.Subtotal,
			Discount:        summary.Discount,
			VoucherDiscount: summary.VoucherDiscount,
			ProcessingFee:   summary.Fees.Processing,
			ShippingFee:     summary.Fees.Shipping,
			ServiceFee:      summary.Fees.Service,
			Tax:             summary.Tax,
			Total:           summary.Total,
			Signature:       in.Signature,
			Notes:           strings.TrimSpace(in.Notes),
			Instructions:    strings.TrimSpace(in.Instructions),
			Dosage:          strings.TrimSpace(in.Dosage),
			FollowUpDate:    in.FollowUpDate,
			Items:           lines,
		}
		if applied != nil {
			inv.VoucherCode = applied.Voucher.Code
		}
		created, err := q.CreateInvoice(ctx, inv)
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return err
			}
			return common.Internal(err)
		}

		for _, d := range aggregate(lines) {
			if err := q.DecrementStock(ctx, d.productID, d.qty); err != nil {
				switch {
				case errors.Is(err, store.ErrInsufficientStock):
					return common.Conflict("INSUFFICIENT_STOCK", "not enough stock for product", err).
						WithDetails(map[string]any{"productId": d.productID, "requested": d.qty})
				case errors.Is(err, store.ErrNotFound):
					return productMissing(d.productID, err)
				}
				return common.Internal(err)
			}
		}

		if applied != nil {
			if err := q.ConsumeVoucher(ctx, applied.Voucher.ID); err != nil {
				switch {
				case errors.Is(err, store.ErrUsageExceeded):
					return common.Conflict("USAGE_EXCEEDED", voucher.Message(voucher.ErrUsageExceeded), err)
				case errors.Is(err, store.ErrNotFound):
					return voucher.ToAppError(voucher.ErrNotFound)
				}
				return common.Internal(err)
			}
		}

		out, err = q.GetInvoice(ctx, created.ID)
		if err != nil {
			return common.Internal(err)
		}
		return nil
	})
	return out, err
}

type decrement struct {
	productID string
	qty       int
}

// aggregate sums quantities per product in a stable order so concurrent
// creations touch rows in the same sequence.
func aggregate(lines []domain.InvoiceItem) []decrement {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}
	out := make([]decrement, 0, len(totals))
	for id, qty := range totals {
		out = append(out, decrement{productID: id, qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

func productMissing(id string, err error) *common.AppError {
	return common.NotFound("PRODUCT_NOT_FOUND", "product not found", err).
		WithDetails(map[string]string{"productId": id})
}

// Get returns an invoice with its patient and items.
func (s *Service) Get(ctx context.Context, id string) (domain.Invoice, error) {
	inv, err := s.Store.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, mapStoreErr(err)
	}
	return inv, nil
}

// List returns invoices newest first, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit int) ([]domain.Invoice, error) {
	f := store.InvoiceFilter{Limit: store.ClampLimit(limit, store.MaxInvoiceList)}
	if strings.TrimSpace(status) != "" {
		st, ok := domain.ParseInvoiceStatus(status)
		if !ok {
			return nil, common.Validation("INVALID_STATUS", "unknown invoice status", nil)
		}
		f.Status = st
	}
	out, err := s.Store.ListInvoices(ctx, f)
	if err != nil {
		return nil, common.Internal(err)
	}
	if out == nil {
		out = []domain.Invoice{}
	}
	return out, nil
}

// UpdateStatus moves an invoice to status. Setting the current status again
// succeeds without writing.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) (domain.Invoice, error) {
	to, ok := domain.ParseInvoiceStatus(status)
	if !ok {
		return domain.Invoice{}, common.Validation("INVALID_STATUS", "unknown invoice status", nil)
	}
	var (
		out  domain.Invoice
		from domain.InvoiceStatus
	)
	err := s.Store.InTx(ctx, func(q store.Queries) error {
		inv, err := q.GetInvoice(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		from = inv.Status
		if from == to {
			out = inv
			return nil
		}
		if !CanTransition(from, to) {
			return common.Conflict("INVALID_STATE",
				fmt.Sprintf("cannot change invoice from %s to %s", from, to), nil).
				WithDetails(map[string]string{"from": string(from), "to": string(to)})
		}
		if err := q.UpdateInvoiceStatus(ctx, id, from, to); err != nil {
			if errors.Is(err, store.ErrStaleStatus) {
				return common.Conflict("STALE_STATUS", "invoice status changed concurrently", err)
			}
			return mapStoreErr(err)
		}
		out, err = q.GetInvoice(ctx, id)
		if err != nil {
			return common.Internal(err)
		}
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	if from != to {
		obs.CountStatusChange(string(from), string(to))
		s.emit(ctx, events.TopicInvoiceStatusChanged, out.ID, events.InvoiceStatusChanged{
			InvoiceID: out.ID,
			Code:      out.Code,
			From:      string(from),
			To:        string(to),
		})
	}
	return out, nil
}

// UpdateSignature stores the signature exactly as given.
func (s *Service) UpdateSignature(ctx context.Context, id, signature string) (domain.Invoice, error) {
	if strings.TrimSpace(signature) == "" {
		return domain.Invoice{}, common.Validation("SIGNATURE_REQUIRED", "signature is required", nil)
	}
	if err := s.Store.UpdateInvoiceSignature(ctx, id, signature); err != nil {
		return domain.Invoice{}, mapStoreErr(err)
	}
	return s.Get(ctx, id)
}

// Delete removes an invoice and returns its items to stock. Products deleted
// since the sale are skipped. Voucher usage is not given back.
func (s *Service) Delete(ctx context.Context, id string) error {
	var deleted domain.Invoice
	err := s.Store.InTx(ctx, func(q store.Queries) error {
		inv, err := q.GetInvoice(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		for _, it := range inv.Items {
			err := q.IncrementStock(ctx, it.ProductID, it.Quantity)
			if errors.Is(err, store.ErrNotFound) {
				s.Log.Warn().
					Str("invoice_id", inv.ID).
					Str("product_id", it.ProductID).
					Msg("product missing while restoring stock")
				continue
			}
			if err != nil {
				return common.Internal(err)
			}
		}
		if err := q.DeleteInvoice(ctx, id); err != nil {
			return mapStoreErr(err)
		}
		deleted = inv
		return nil
	})
	if err != nil {
		return err
	}
	s.Log.Info().Str("invoice_id", deleted.ID).Str("invoice_code", deleted.Code).Msg("invoice deleted")
	s.emit(ctx, events.TopicInvoiceDeleted, deleted.ID, events.InvoiceDeleted{
		InvoiceID:  deleted.ID,
		Code:       deleted.Code,
		ProductIDs: productIDs(deleted.Items),
	})
	return nil
}

func (s *Service) emit(ctx context.Context, topic, id string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, id, payload); err != nil {
		s.Log.Error().Err(err).Str("topic", topic).Str("invoice_id", id).Msg("event emit failed")
	}
}

func productIDs(items []domain.InvoiceItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		out = append(out, it.ProductID)
	}
	return out
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return common.NotFound("INVOICE_NOT_FOUND", "invoice not found", err)
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return common.Internal(err)
}
