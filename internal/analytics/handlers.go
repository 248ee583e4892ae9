package analytics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-phongkham/internal/common"
)

// Handler exposes reporting endpoints.
type Handler struct {
	Svc *Service
	Log zerolog.Logger
}

// Routes mounts the reporting endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/revenue/monthly", h.MonthlyRevenue)
	r.Get("/products/categories", h.Categories)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.Log.Error().Err(err).Msg("analytics query failed")
	common.WriteError(w, common.Internal(err))
}

// Dashboard returns the front desk summary.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.Svc.Dashboard(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// MonthlyRevenue returns paid revenue per month for ?year=, defaulting to the current year.
func (h *Handler) MonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	year := h.Svc.now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		year = common.QueryInt(r, "year", 0)
		if year < 1970 || year > 9999 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid year", nil)
			return
		}
	}
	out, err := h.Svc.MonthlyRevenue(r.Context(), year)
	if err != nil {
		h.fail(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}

// Categories returns product distribution per category.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	out, err := h.Svc.Categories(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	common.JSON(w, http.StatusOK, out)
}
