package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/domain"
)

func TestWriteErrorHidesInternalCause(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("wrapped: %w", errors.New("pq: connection refused")))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":{"code":"INTERNAL","message":"internal server error"}}`, rr.Body.String())
}

func TestWriteErrorKeepsDetails(t *testing.T) {
	rr := httptest.NewRecorder()
	err := Conflict("INSUFFICIENT_STOCK", "not enough stock", nil).WithDetails(map[string]any{"productId": "p1"})
	WriteError(rr, fmt.Errorf("create invoice: %w", err))

	require.Equal(t, http.StatusConflict, rr.Code)
	require.JSONEq(t, `{"error":{"code":"INSUFFICIENT_STOCK","message":"not enough stock","details":{"productId":"p1"}}}`, rr.Body.String())
}

type itemPayload struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0"`
}

type invoicePayload struct {
	Type     domain.InvoiceType `json:"type" validate:"omitempty,invoice_type"`
	Category domain.Category    `json:"category" validate:"omitempty,category"`
	Items    []itemPayload      `json:"items" validate:"dive"`
}

func decode(body string) error {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dst invoicePayload
	return Decode(req, NewValidator(), &dst)
}

func TestDecodeReportsJSONFieldPaths(t *testing.T) {
	err := decode(`{"type":"surgery","category":"shoes","items":[{"productId":"","quantity":-1}]}`)
	appErr := AsAppError(err)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
	require.Equal(t, map[string]string{
		"type":               "invoice_type",
		"category":           "category",
		"items[0].productId": "required",
		"items[0].quantity":  "gte",
	}, appErr.Details)
}

func TestDecodeRejectsMissingAndMalformedBodies(t *testing.T) {
	require.Equal(t, "request body is required", AsAppError(decode("")).Message)
	require.Equal(t, "BAD_REQUEST", AsAppError(decode("{")).Code)
	require.NoError(t, decode(`{"type":"medicine","items":[{"productId":"p1","quantity":2}]}`))
}

func TestDecodeMapsOversizedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"glasses","items":[]}`))
	req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 5)
	var dst invoicePayload
	err := Decode(req, nil, &dst)
	require.Equal(t, http.StatusRequestEntityTooLarge, AsAppError(err).HTTPStatus)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	require.Equal(t, "192.0.2.10", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	require.Equal(t, "203.0.113.9", ClientIP(req))
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&page=x", nil)
	require.Equal(t, 25, QueryInt(req, "limit", 0))
	require.Equal(t, 1, QueryInt(req, "page", 1))
	require.Equal(t, 7, QueryInt(req, "days", 7))
}

func TestDeleted(t *testing.T) {
	rr := httptest.NewRecorder()
	Deleted(rr)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true}`, rr.Body.String())
}
