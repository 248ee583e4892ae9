package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-phongkham/internal/app"
	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/config"
	"github.com/noah-isme/backend-phongkham/internal/domain"
	"github.com/noah-isme/backend-phongkham/internal/events"
	memstore "github.com/noah-isme/backend-phongkham/internal/store/memory"
	"github.com/noah-isme/backend-phongkham/internal/store/storetest"
)

func testRouter(t *testing.T, lim *limiter.Limiter) (http.Handler, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	deps := &app.Dependencies{
		Config:    &config.Config{BodyLimitBytes: 1 << 10, DBDriver: config.DriverMemory},
		Log:       zerolog.Nop(),
		Store:     st,
		Validator: common.NewValidator(),
		Bus:       &events.Bus{},
	}
	return newRouter(deps, routerOptions{Logger: zerolog.Nop(), VoucherLimiter: lim, Telemetry: true}), st
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterServesHealth(t *testing.T) {
	h, _ := testRouter(t, nil)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/live", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/health/ready", "").Code)
}

func TestRouterInvoiceFlow(t *testing.T) {
	h, st := testRouter(t, nil)
	patient := storetest.SeedPatient(t, st, "BN001")
	product := storetest.SeedProduct(t, st, "GK001", 500_000, 10)

	body, err := json.Marshal(map[string]any{
		"patientId": patient.ID,
		"type":      "glasses",
		"items":     []map[string]any{{"productId": product.ID, "quantity": 2}},
	})
	require.NoError(t, err)
	rr := do(h, http.MethodPost, "/api/invoices", string(body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var inv domain.Invoice
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &inv))
	require.True(t, strings.HasPrefix(inv.Code, "HK-"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = do(h, http.MethodGet, "/api/products/"+product.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"quantity":8`)
}

func TestRouterRejectsLargeBodies(t *testing.T) {
	h, _ := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodPatch, "/api/invoices/x/signature", bytes.NewReader(make([]byte, 2<<10)))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRouterLimitsVoucherValidation(t *testing.T) {
	lim, err := limiterFor("1-M")
	require.NoError(t, err)
	h, _ := testRouter(t, lim)

	first := do(h, http.MethodPost, "/api/vouchers/validate", `{"code":"NONE","amount":100000}`)
	require.NotEqual(t, http.StatusTooManyRequests, first.Code)
	second := do(h, http.MethodPost, "/api/vouchers/validate", `{"code":"NONE","amount":100000}`)
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	// Management routes are not throttled.
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/vouchers", "").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/vouchers", "").Code)
}

func TestRouterQueueAdminWithoutRedis(t *testing.T) {
	h, _ := testRouter(t, nil)
	require.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodGet, "/api/admin/queue/stats", "").Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	h, _ := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/invoices", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func limiterFor(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}
