package invoice

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-phongkham/internal/common"
)

// Handler exposes the invoice endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	// Idempotency wraps invoice creation and may be nil.
	Idempotency func(http.Handler) http.Handler
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type signatureRequest struct {
	Signature string `json:"signature"`
}

// Routes mounts the invoice endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	if h.Idempotency != nil {
		r.With(h.Idempotency).Post("/", h.Create)
	} else {
		r.Post("/", h.Create)
	}
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Patch("/{id}/signature", h.UpdateSignature)
	r.Delete("/{id}", h.Delete)
}

func invoiceID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// List returns invoices, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Svc.List(r.Context(), q.Get("status"), common.QueryInt(r, "limit", 0))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Get returns one invoice.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Svc.Get(r.Context(), invoiceID(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, inv)
}

// Create issues a new invoice.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := common.Decode(r, h.Validate, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	inv, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, inv)
}

// UpdateStatus applies a payment status transition.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := common.Decode(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	inv, err := h.Svc.UpdateStatus(r.Context(), invoiceID(r), req.Status)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, inv)
}

// UpdateSignature stores the patient's signature image.
func (h *Handler) UpdateSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := common.Decode(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	inv, err := h.Svc.UpdateSignature(r.Context(), invoiceID(r), req.Signature)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, inv)
}

// Delete removes an invoice and restocks its items.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), invoiceID(r)); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Deleted(w)
}
