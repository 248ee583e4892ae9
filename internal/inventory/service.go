// Package inventory manages the optical shop's products, stock alerts and
// lens recommendations for a refraction result.
package inventory

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/obs"
	"github.com/noah-isme/backend-phongkham/internal/store"
)

// DefaultMinStock is the reorder threshold for products created without one.
const DefaultMinStock = 5

// DefaultExpiringWindow is used when Expiring is called without a window.
const DefaultExpiringWindow = 30 * 24 * time.Hour

// Input is the payload for creating a product.
type Input struct {
	Code         string          `json:"code" validate:"max=50"`
	Name         string          `json:"name" validate:"required,max=200"`
	Category     domain.Category `json:"category" validate:"omitempty,category"`
	Manufacturer string          `json:"manufacturer" validate:"max=200"`
	Material     string          `json:"material" validate:"max=200"`
	SphRange     string          `json:"sphRange" validate:"max=100"`
	CylRange     string          `json:"cylRange" validate:"max=100"`
	Price        domain.Money    `json:"price" validate:"gte=0,max=1000000000000"`
	Quantity     int             `json:"quantity" validate:"gte=0,max=1000000"`
	MinStock     *int            `json:"minStock" validate:"omitempty,gte=0"`
	ExpiresAt    *time.Time      `json:"expiresAt"`
	ImageURL     string          `json:"imageUrl" validate:"omitempty,max=2048"`
}

// Patch is a partial product update. Nil fields are left unchanged. The code
// is immutable.
type Patch struct {
	Name         *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category     *domain.Category `json:"category" validate:"omitempty,category"`
	Manufacturer *string          `json:"manufacturer" validate:"omitempty,max=200"`
	Material     *string          `json:"material" validate:"omitempty,max=200"`
	SphRange     *string          `json:"sphRange" validate:"omitempty,max=100"`
	CylRange     *string          `json:"cylRange" validate:"omitempty,max=100"`
	Price        *domain.Money    `json:"price" validate:"omitempty,gte=0,max=1000000000000"`
	Quantity     *int             `json:"quantity" validate:"omitempty,gte=0,max=1000000"`
	MinStock     *int             `json:"minStock" validate:"omitempty,gte=0"`
	ExpiresAt    *time.Time       `json:"expiresAt"`
	ClearExpiry  bool             `json:"clearExpiresAt"`
	ImageURL     *string          `json:"imageUrl" validate:"omitempty,max=2048"`
}

// Service reads and maintains the product catalogue.
type Service struct {
	Store store.Store
	Now   func() time.Time
	Log   zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// List returns products newest first, filtered by category and a name/code query.
func (s *Service) List(ctx context.Context, category, query string) ([]domain.Product, error) {
	f := store.ProductFilter{Query: strings.TrimSpace(query), Limit: store.MaxProductList}
	if c := domain.Category(strings.ToLower(strings.TrimSpace(category))); c != "" {
		if !c.Valid() {
			return nil, common.Validation("INVALID_CATEGORY", "unknown product category", nil)
		}
		f.Category = c
	}
	out, err := s.Store.ListProducts(ctx, f)
	if err != nil {
		return nil, common.Internal(err)
	}
	return nonNil(out), nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, mapStoreErr(err)
	}
	return p, nil
}

// Create stores a new product, filling in code, category and minimum stock
// when omitted.
func (s *Service) Create(ctx context.Context, in Input) (domain.Product, error) {
	p := domain.Product{
		Code:         strings.TrimSpace(in.Code),
		Name:         strings.TrimSpace(in.Name),
		Category:     in.Category,
		Manufacturer: strings.TrimSpace(in.Manufacturer),
		Material:     strings.TrimSpace(in.Material),
		SphRange:     strings.TrimSpace(in.SphRange),
		CylRange:     strings.TrimSpace(in.CylRange),
		Price:        in.Price,
		Quantity:     in.Quantity,
		MinStock:     DefaultMinStock,
		ExpiresAt:    in.ExpiresAt,
		ImageURL:     strings.TrimSpace(in.ImageURL),
	}
	if p.Code == "" {
		p.Code = "PRD" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	if p.Category == "" {
		p.Category = domain.CategoryGlasses
	}
	if in.MinStock != nil {
		p.MinStock = *in.MinStock
	}
	if err := checkRules(p); err != nil {
		return domain.Product{}, err
	}
	created, err := s.Store.CreateProduct(ctx, p)
	if err != nil {
		return domain.Product{}, mapStoreErr(err)
	}
	s.Log.Info().Str("product_id", created.ID).Str("product_code", created.Code).Msg("product created")
	return created, nil
}

// Update applies a partial change to a product. A quantity in the patch is a
// stock count correction and replaces the stored quantity; without one the
// quantity is left to the stock ledger.
func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.Product, error) {
	var out domain.Product
	err := s.Store.InTx(ctx, func(q store.Queries) error {
		cur, err := q.GetProduct(ctx, id)
		if err != nil {
			return mapStoreErr(err)
		}
		applyPatch(&cur, p)
		if err := checkRules(cur); err != nil {
			return err
		}
		out, err = q.UpdateProduct(ctx, cur)
		if err != nil {
			return mapStoreErr(err)
		}
		if p.Quantity != nil {
			if err := q.SetStock(ctx, id, *p.Quantity); err != nil {
				return mapStoreErr(err)
			}
			out.Quantity = *p.Quantity
			s.Log.Info().Str("product_id", id).Int("quantity", *p.Quantity).Msg("stock count corrected")
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return out, nil
}

// Delete removes a product. Invoice lines keep their price snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.Store.DeleteProduct(ctx, id); err != nil {
		return mapStoreErr(err)
	}
	s.Log.Info().Str("product_id", id).Msg("product deleted")
	return nil
}

// LowStock returns products at or below their minimum stock, lowest quantity first.
func (s *Service) LowStock(ctx context.Context) ([]domain.Product, error) {
	out, err := s.Store.LowStockProducts(ctx)
	if err != nil {
		return nil, common.Internal(err)
	}
	obs.SetLowStock(len(out))
	return nonNil(out), nil
}

// Expiring returns products whose expiry falls within window from now,
// soonest first.
func (s *Service) Expiring(ctx context.Context, window time.Duration) ([]domain.Product, error) {
	if window <= 0 {
		window = DefaultExpiringWindow
	}
	now := s.now()
	out, err := s.Store.ExpiringProducts(ctx, now, now.Add(window))
	if err != nil {
		return nil, common.Internal(err)
	}
	obs.SetExpiring(len(out))
	return nonNil(out), nil
}

// Recommend lists products suitable for both eyes of a prescription.
func (s *Service) Recommend(ctx context.Context, rx Prescription, category string) ([]domain.Product, error) {
	products, err := s.List(ctx, category, "")
	if err != nil {
		return nil, err
	}
	return Match(products, rx), nil
}

func applyPatch(p *domain.Product, in Patch) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Manufacturer != nil {
		p.Manufacturer = strings.TrimSpace(*in.Manufacturer)
	}
	if in.Material != nil {
		p.Material = strings.TrimSpace(*in.Material)
	}
	if in.SphRange != nil {
		p.SphRange = strings.TrimSpace(*in.SphRange)
	}
	if in.CylRange != nil {
		p.CylRange = strings.TrimSpace(*in.CylRange)
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Quantity != nil {
		p.Quantity = *in.Quantity
	}
	if in.MinStock != nil {
		p.MinStock = *in.MinStock
	}
	if in.ExpiresAt != nil {
		p.ExpiresAt = in.ExpiresAt
	}
	if in.ClearExpiry {
		p.ExpiresAt = nil
	}
	if in.ImageURL != nil {
		p.ImageURL = strings.TrimSpace(*in.ImageURL)
	}
}

func checkRules(p domain.Product) error {
	switch {
	case p.Name == "":
		return common.Validation("INVALID_PRODUCT", "name is required", nil)
	case !p.Category.Valid():
		return common.Validation("INVALID_CATEGORY", "unknown product category", nil)
	case p.Price < 0 || p.Price > domain.MaxMoney:
		return common.Validation("INVALID_PRODUCT", "price is out of range", nil)
	case p.Quantity < 0 || p.Quantity > domain.MaxStock:
		return common.Validation("INVALID_PRODUCT", "quantity is out of range", nil)
	case p.MinStock < 0:
		return common.Validation("INVALID_PRODUCT", "minStock must not be negative", nil)
	case p.ExpiresAt != nil && p.Category != domain.CategoryMedicine:
		return common.Validation("INVALID_PRODUCT", "only medicine can carry an expiry date", nil)
	}
	return nil
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return common.NotFound("PRODUCT_NOT_FOUND", "product not found", err)
	case errors.Is(err, store.ErrDuplicate):
		return common.Conflict("DUPLICATE_CODE", "product code already exists", err)
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return common.Internal(err)
}

// nonNil keeps empty listings rendering as [] rather than null.
func nonNil(ps []domain.Product) []domain.Product {
	if ps == nil {
		return []domain.Product{}
	}
	return ps
}
