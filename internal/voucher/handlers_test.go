package voucher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/store/storetest"
)

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestService(t)
	h := &Handler{Svc: svc, Validate: common.NewValidator()}
	r := chi.NewRouter()
	r.Route("/api/vouchers", func(r chi.Router) { h.Routes(r, nil) })
	return r, svc
}

func postJSON(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return rr, out
}

func TestValidateEndpointValid(t *testing.T) {
	h, svc := newTestRouter(t)
	storetest.SeedVoucher(t, svc.Store, activeVoucher(func(v *domain.Voucher) { v.MaxDiscount = money(100_000) }))

	rr, body := postJSON(t, h, "/api/vouchers/validate", `{"code":"km10","amount":2000000}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, body["valid"])
	require.Equal(t, float64(100_000), body["discount"])
	require.Equal(t, "Giảm 100.000đ", body["message"])
	require.NotNil(t, body["voucher"])
}

func TestValidateEndpointFailures(t *testing.T) {
	h, svc := newTestRouter(t)
	storetest.SeedVoucher(t, svc.Store, activeVoucher(func(v *domain.Voucher) {
		v.Code = "MIN300"
		v.Type = domain.VoucherFixed
		v.Value = 50_000
		v.MinAmount = 300_000
	}))

	rr, body := postJSON(t, h, "/api/vouchers/validate", `{"code":"MIN300","amount":200000}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, false, body["valid"])
	require.Equal(t, "BELOW_MINIMUM", body["reason"])
	require.Contains(t, body["message"], "300.000đ")

	rr, body = postJSON(t, h, "/api/vouchers/validate", `{"code":"GHOST","amount":1}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "NOT_FOUND", body["reason"])

	rr, body = postJSON(t, h, "/api/vouchers/validate", `{"amount":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "BAD_REQUEST", body["reason"])

	rr, body = postJSON(t, h, "/api/vouchers/validate", `{"code":"MIN300","amount":100000000000000000}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, false, body["valid"])
	require.Equal(t, "BAD_REQUEST", body["reason"])
}

func TestCreateEndpointValidatesPayload(t *testing.T) {
	h, _ := newTestRouter(t)
	rr, body := postJSON(t, h, "/api/vouchers", `{"code":"X","type":"bogus","value":0}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "VALIDATION_FAILED", errBody["code"])
	details := errBody["details"].(map[string]any)
	require.Equal(t, "voucher_type", details["type"])
	require.Equal(t, "gt", details["value"])

	rr, body = postJSON(t, h, "/api/vouchers",
		`{"code":"he2026","type":"percent","value":15,"startDate":"2026-06-01T00:00:00Z","endDate":"2026-08-31T23:59:59Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "HE2026", body["code"])
}
