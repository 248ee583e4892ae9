package voucher

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
)

// Handler exposes voucher validation and management endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type validateRequest struct {
	Code   string       `json:"code" validate:"required"`
	Amount domain.Money `json:"amount" validate:"gte=0,max=1000000000000"`
}

type validateResponse struct {
	Valid    bool            `json:"valid"`
	Voucher  *domain.Voucher `json:"voucher,omitempty"`
	Discount *domain.Money   `json:"discount,omitempty"`
	Message  string          `json:"message"`
	Reason   string          `json:"reason,omitempty"`
}

// Routes mounts the voucher endpoints. validateLimit wraps the public
// validation route and may be nil.
func (h *Handler) Routes(r chi.Router, validateLimit func(http.Handler) http.Handler) {
	if validateLimit != nil {
		r.With(validateLimit).Post("/validate", h.ValidateCode)
	} else {
		r.Post("/validate", h.ValidateCode)
	}
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// ValidateCode reports whether a code applies to an amount and the discount it grants.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := common.Decode(r, h.Validate, &req); err != nil {
		common.JSON(w, http.StatusBadRequest, validateResponse{
			Message: "Dữ liệu không hợp lệ",
			Reason:  "BAD_REQUEST",
		})
		return
	}
	res, err := h.Svc.Validate(r.Context(), req.Code, req.Amount)
	if err != nil {
		reason := Reason(err)
		if reason == "" {
			common.WriteError(w, common.Internal(err))
			return
		}
		status := http.StatusBadRequest
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		common.JSON(w, status, validateResponse{Message: Message(err), Reason: reason})
		return
	}
	discount := res.Discount
	common.JSON(w, http.StatusOK, validateResponse{
		Valid:    true,
		Voucher:  &res.Voucher,
		Discount: &discount,
		Message:  DiscountMessage(discount),
	})
}

// List returns all vouchers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.List(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Get returns a single voucher.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Svc.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, v)
}

// Create inserts a new voucher.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.Decode(r, h.Validate, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, v)
}

// Update applies a partial change to a voucher.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var p Patch
	if err := common.Decode(r, h.Validate, &p); err != nil {
		common.WriteError(w, err)
		return
	}
	v, err := h.Svc.Update(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")), p)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, v)
}

// Delete removes a voucher.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), strings.TrimSpace(chi.URLParam(r, "id"))); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Deleted(w)
}
