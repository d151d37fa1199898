package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rifalabs/raffle-engine/internal/observability"
	"github.com/stretchr/testify/assert"
)

func TestLoggerMiddlewareStoresRequestLogger(t *testing.T) {
	var got observability.Logger
	h := LoggerMiddleware(observability.NewLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestLogger(r.Context(), nil)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotNil(t, got, "handlers read the request-scoped logger back out")
}

func TestRequestLoggerFallsBack(t *testing.T) {
	fallback := observability.NewLogger()
	assert.Equal(t, fallback, requestLogger(context.Background(), fallback))
}

func TestIdempotencyKeyMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := IdempotencyKeyMiddleware(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "POST without a key is refused")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Idempotency-Key", "short")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Idempotency-Key", "long-enough-key-0001")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code, "reads need no key")
}
