package inventory

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-phongkham/internal/common"
)

// Handler exposes the product endpoints.
type Handler struct {
	Svc            *Service
	Validate       *validator.Validate
	ExpiringWindow time.Duration
}

type recommendRequest struct {
	Prescription
	Category string `json:"category" validate:"omitempty,category"`
}

// Routes mounts the product endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/alerts/low-stock", h.LowStock)
	r.Get("/alerts/expiring", h.Expiring)
	r.Post("/recommend", h.Recommend)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

func productID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// List returns products filtered by ?category= and ?q=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.Svc.List(r.Context(), q.Get("category"), q.Get("q"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Get(r.Context(), productID(r))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := common.Decode(r, h.Validate, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in Patch
	if err := common.Decode(r, h.Validate, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.Update(r.Context(), productID(r), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), productID(r)); err != nil {
		common.WriteError(w, err)
		return
	}
	common.Deleted(w)
}

// LowStock lists products at or below their minimum stock.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	out, err := h.Svc.LowStock(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Expiring lists products expiring soon. ?days= overrides the configured window.
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	window := h.ExpiringWindow
	if days := common.QueryInt(r, "days", 0); days > 0 {
		window = time.Duration(days) * 24 * time.Hour
	}
	out, err := h.Svc.Expiring(r.Context(), window)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Recommend matches lenses to a refraction result.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := common.Decode(r, h.Validate, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Recommend(r.Context(), req.Prescription, req.Category)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}
