package invoice

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/common"
	"github.com/noah-isme/backend-phongkham/internal/store/storetest"
)

func newTestRouter(t *testing.T, f fixture, idem func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	h := &Handler{Svc: f.svc, Validate: common.NewValidator(), Idempotency: idem}
	r := chi.NewRouter()
	r.Route("/api/invoices", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestInvoiceEndpointsLifecycle(t *testing.T) {
	f := newFixture(t)
	p := storetest.SeedProduct(t, f.store, "GK-H", 300_000, 5)
	h := newTestRouter(t, f, nil)

	body := `{"patientId":"` + f.patient.ID + `","type":"glasses","items":[{"productId":"` + p.ID + `","quantity":2}]}`
	rr := do(t, h, http.MethodPost, "/api/invoices", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created["id"].(string)
	require.Equal(t, "UNPAID", created["status"])
	require.Len(t, created["items"], 1)

	rr = do(t, h, http.MethodGet, "/api/invoices/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"patient"`)

	rr = do(t, h, http.MethodPatch, "/api/invoices/"+id+"/signature", `{"signature":"data:image/png;base64,AAAA"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPatch, "/api/invoices/"+id+"/status", `{"status":"PAID"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"PAID"`)

	rr = do(t, h, http.MethodPatch, "/api/invoices/"+id+"/status", `{"status":"CANCELLED"}`, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"code":"INVALID_STATE"`)

	rr = do(t, h, http.MethodGet, "/api/invoices?status=PAID", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rr = do(t, h, http.MethodDelete, "/api/invoices/"+id, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true}`, rr.Body.String())
	require.Equal(t, 5, quantity(t, f.store, p.ID))
}

func TestCreateEndpointErrors(t *testing.T) {
	f := newFixture(t)
	p := storetest.SeedProduct(t, f.store, "GK-E1", 100_000, 1)
	h := newTestRouter(t, f, nil)

	rr := do(t, h, http.MethodPost, "/api/invoices", `{"items":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"VALIDATION_FAILED"`)

	rr = do(t, h, http.MethodPost, "/api/invoices", `{"patientId":"`+f.patient.ID+`","items":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"EMPTY_CART"`)

	body := `{"patientId":"` + f.patient.ID + `","items":[{"productId":"` + p.ID + `","quantity":4}]}`
	rr = do(t, h, http.MethodPost, "/api/invoices", body, nil)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), `"INSUFFICIENT_STOCK"`)

	rr = do(t, h, http.MethodGet, "/api/invoices/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateEndpointReplaysIdempotentRequest(t *testing.T) {
	f := newFixture(t)
	p := storetest.SeedProduct(t, f.store, "GK-I", 100_000, 10)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h := newTestRouter(t, f, common.Idem{R: client, TTL: time.Hour}.Middleware)

	body := `{"patientId":"` + f.patient.ID + `","items":[{"productId":"` + p.ID + `","quantity":1}]}`
	header := http.Header{"Idempotency-Key": []string{"abc-123"}}
	first := do(t, h, http.MethodPost, "/api/invoices", body, header)
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(t, h, http.MethodPost, "/api/invoices", body, header)
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	changed := `{"patientId":"` + f.patient.ID + `","items":[{"productId":"` + p.ID + `","quantity":3}]}`
	third := do(t, h, http.MethodPost, "/api/invoices", changed, header)
	require.Equal(t, http.StatusUnprocessableEntity, third.Code)
	require.Contains(t, third.Body.String(), `"IDEMPOTENCY_KEY_REUSED"`)
	require.Empty(t, third.Header().Get("Idempotent-Replay"))

	require.Equal(t, 9, quantity(t, f.store, p.ID))
}
