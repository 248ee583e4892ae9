package voucher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// Result describes a voucher that passed validation together with its discount.
type Result struct {
	Voucher  domain.Voucher `json:"voucher"`
	Discount domain.Money   `json:"discount"`
}

// Input is the payload for creating a voucher.
type Input struct {
	Code        string             `json:"code" validate:"required,max=50"`
	Description string             `json:"description" validate:"max=500"`
	Type        domain.VoucherType `json:"type" validate:"required,voucher_type"`
	Value       int64              `json:"value" validate:"gt=0,max=1000000000000"`
	MinAmount   domain.Money       `json:"minAmount" validate:"gte=0,max=1000000000000"`
	MaxDiscount *domain.Money      `json:"maxDiscount" validate:"omitempty,gte=0,max=1000000000000"`
	StartDate   time.Time          `json:"startDate" validate:"required"`
	EndDate     time.Time          `json:"endDate" validate:"required"`
	UsageLimit  *int               `json:"usageLimit" validate:"omitempty,gte=0"`
	IsActive    *bool              `json:"isActive"`
}

// Patch is a partial voucher update. Nil fields are left unchanged; a zero
// MaxDiscount or UsageLimit removes the cap.
type Patch struct {
	Description *string             `json:"description" validate:"omitempty,max=500"`
	Type        *domain.VoucherType `json:"type" validate:"omitempty,voucher_type"`
	Value       *int64              `json:"value" validate:"omitempty,gt=0,max=1000000000000"`
	MinAmount   *domain.Money       `json:"minAmount" validate:"omitempty,gte=0,max=1000000000000"`
	MaxDiscount *domain.Money       `json:"maxDiscount" validate:"omitempty,gte=0,max=1000000000000"`
	StartDate   *time.Time          `json:"startDate"`
	EndDate     *time.Time          `json:"endDate"`
	UsageLimit  *int                `json:"usageLimit" validate:"omitempty,gte=0"`
	IsActive    *bool               `json:"isActive"`
}

// Service validates and manages vouchers.
type Service struct {
	Store store.Store
	Now   func() time.Time
	Log   zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// NormalizeCode trims and upper-cases a voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup loads the voucher by code through q and validates it against amount.
// It is read-only so it can run inside a caller's transaction.
func Lookup(ctx context.Context, q store.Queries, code string, amount domain.Money, now time.Time) (Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Result{}, ErrNotFound
	}
	v, err := q.GetVoucherByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if err := Validate(v, amount, now); err != nil {
		return Result{Voucher: v}, err
	}
	return Result{Voucher: v, Discount: Compute(v, amount)}, nil
}

// Validate checks code against amount without consuming a use.
func (s *Service) Validate(ctx context.Context, code string, amount domain.Money) (Result, error) {
	if s == nil || s.Store == nil {
		return Result{}, errors.New("voucher service not configured")
	}
	res, err := Lookup(ctx, s.Store, code, amount, s.now())
	switch reason := Reason(err); {
	case err == nil:
		obs.CountVoucherValidation("valid")
	case reason != "":
		obs.CountVoucherValidation(strings.ToLower(reason))
	default:
		obs.CountVoucherValidation("error")
	}
	return res, err
}

// ToAppError converts a validation failure into the API error taxonomy.
func ToAppError(err error) *common.AppError {
	reason := Reason(err)
	switch {
	case reason == "":
		return common.Internal(err)
	case errors.Is(err, ErrNotFound):
		return common.NotFound(reason, Message(err), err)
	default:
		return common.Validation(reason, Message(err), err)
	}
}

// List returns every voucher, newest first.
func (s *Service) List(ctx context.Context) ([]domain.Voucher, error) {
	out, err := s.Store.ListVouchers(ctx)
	if err != nil {
		return nil, common.Internal(err)
	}
	if out == nil {
		out = []domain.Voucher{}
	}
	return out, nil
}

// Get returns a voucher by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Voucher, error) {
	v, err := s.Store.GetVoucher(ctx, id)
	if err != nil {
		return domain.Voucher{}, mapStoreErr(err)
	}
	return v, nil
}

// Create stores a new voucher. Codes are upper-cased and must be unique.
func (s *Service) Create(ctx context.Context, in Input) (domain.Voucher, error) {
	v := domain.Voucher{
		Code:        NormalizeCode(in.Code),
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		Value:       in.Value,
		MinAmount:   in.MinAmount,
		MaxDiscount: positiveOrNil(in.MaxDiscount),
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		UsageLimit:  positiveIntOrNil(in.UsageLimit),
		IsActive:    true,
	}
	if in.IsActive != nil {
		v.IsActive = *in.IsActive
	}
	if err := checkRules(v); err != nil {
		return domain.Voucher{}, err
	}
	created, err := s.Store.CreateVoucher(ctx, v)
	if err != nil {
		return domain.Voucher{}, mapStoreErr(err)
	}
	s.Log.Info().Str("voucher_code", created.Code).Msg("voucher created")
	return created, nil
}

// Update applies a partial change. Usage count is never touched here.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.Voucher, error) {
	var out domain.Voucher
	err := s.Store.InTx(ctx, func(q store.Queries) error {
		v, err := q.GetVoucher(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		applyPatch(&v, p)
		if err := checkRules(v); err != nil {
			return err
		}
		out, err = q.UpdateVoucher(ctx, v)
		if err != nil {
			return mapStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return domain.Voucher{}, err
	}
	return out, nil
}

// Delete removes a voucher. Invoices keep the code they were issued with.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Store.DeleteVoucher(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func applyPatch(v *domain.Voucher, p Patch) {
	if p.Description != nil {
		v.Description = strings.TrimSpace(*p.Description)
	}
	if p.Type != nil {
		v.Type = *p.Type
	}
	if p.Value != nil {
		v.Value = *p.Value
	}
	if p.MinAmount != nil {
		v.MinAmount = *p.MinAmount
	}
	if p.MaxDiscount != nil {
		v.MaxDiscount = positiveOrNil(p.MaxDiscount)
	}
	if p.StartDate != nil {
		v.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		v.EndDate = *p.EndDate
	}
	if p.UsageLimit != nil {
		v.UsageLimit = positiveIntOrNil(p.UsageLimit)
	}
	if p.IsActive != nil {
		v.IsActive = *p.IsActive
	}
}

func checkRules(v domain.Voucher) error {
	switch {
	case v.Code == "":
		return common.Validation("INVALID_VOUCHER", "code is required", nil)
	case !v.Type.Valid():
		return common.Validation("INVALID_VOUCHER", "type must be percent or fixed", nil)
	case v.Value <= 0:
		return common.Validation("INVALID_VOUCHER", "value must be positive", nil)
	case v.Value > domain.MaxMoney:
		return common.Validation("INVALID_VOUCHER", "value is too large", nil)
	case v.Type == domain.VoucherPercent && v.Value > 100:
		return common.Validation("INVALID_VOUCHER", "percent value must not exceed 100", nil)
	case v.MinAmount < 0 || v.MinAmount > domain.MaxMoney:
		return common.Validation("INVALID_VOUCHER", "minAmount is out of range", nil)
	case v.MaxDiscount != nil && *v.MaxDiscount > domain.MaxMoney:
		return common.Validation("INVALID_VOUCHER", "maxDiscount is too large", nil)
	case v.StartDate.IsZero() || v.EndDate.IsZero():
		return common.Validation("INVALID_VOUCHER_WINDOW", "startDate and endDate are required", nil)
	case v.EndDate.Before(v.StartDate):
		return common.Validation("INVALID_VOUCHER_WINDOW", "endDate must not be before startDate", nil)
	}
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return common.NotFound("NOT_FOUND", "voucher not found", err)
	case errors.Is(err, store.ErrDuplicate):
		return common.Conflict("DUPLICATE_CODE", "voucher code already exists", err)
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return common.Internal(err)
}

func positiveOrNil(v *domain.Money) *domain.Money {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}

func positiveIntOrNil(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	out := *v
	return &out
}
