package inventory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/common"
)

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestProductEndpoints(t *testing.T) {
	svc := newTestService(t)
	h := &Handler{Svc: svc, Validate: common.NewValidator()}
	r := chi.NewRouter()
	r.Route("/api/products", h.Routes)

	rr := serve(r, http.MethodPost, "/api/products", `{"code":"TK-01","name":"Tròng Essilor","category":"lenses","sphRange":"-8.00 đến +8.00","price":900000,"quantity":3}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created["id"].(string)

	rr = serve(r, http.MethodPost, "/api/products", `{"name":"Bad","category":"shoes"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), `"category":"category"`)

	rr = serve(r, http.MethodGet, "/api/products/alerts/low-stock", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "TK-01")

	rr = serve(r, http.MethodGet, "/api/products/alerts/expiring?days=7", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())

	rr = serve(r, http.MethodPost, "/api/products/recommend", `{"odSph":-2.5,"osSph":-1.75,"category":"lenses"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "TK-01")

	rr = serve(r, http.MethodPut, "/api/products/"+id, `{"quantity":12}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"quantity":12`)

	rr = serve(r, http.MethodDelete, "/api/products/"+id, "")
	require.JSONEq(t, `{"success":true}`, rr.Body.String())

	rr = serve(r, http.MethodGet, "/api/products/"+id, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}
