package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const paymentsPattern = "/api/v1/orders/{orderId}/payments"

func newMiniStore(t *testing.T) *pkgredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return pkgredis.NewFromRaw(raw)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = WithTenantID(ctx, "tenant-1")
	return req.WithContext(ctx)
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"record payment", http.MethodPost, paymentsPattern, criticalIdempotencyTTL, true},
		{"generate report", http.MethodPost, "/api/v1/reports/z-reports", criticalIdempotencyTTL, true},
		{"create order", http.MethodPost, "/api/v1/orders", defaultIdempotencyTTL, true},
		{"send email", http.MethodPost, "/api/v1/reports/z-reports/{id}/send-email", defaultIdempotencyTTL, true},
		{"list orders", http.MethodGet, "/api/v1/orders", 0, false},
		{"webhook", http.MethodPost, "/api/v1/webhooks/paytr", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ttl, ok := routeTTL(tt.method, tt.pattern)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, ttl)
			}
		})
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newMiniStore(t), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusCreated)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/orders/o1/payments", paymentsPattern, strings.NewReader(`{"amount":"10.00"}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.False(t, handlerCalled)
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newMiniStore(t), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	send := func() *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/v1/orders/o1/payments", paymentsPattern, strings.NewReader(`{"amount":"10.00"}`))
		req.Header.Set("Idempotency-Key", "abc")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)

	replay := send()
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, strings.TrimSpace(replay.Body.String()))
	assert.Equal(t, "true", replay.Header().Get(replayedHeader))
	assert.Empty(t, first.Header().Get(replayedHeader))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	mw := Idempotency(newMiniStore(t), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	send := func() *httptest.ResponseRecorder {
		req := requestWithPattern(http.MethodPost, "/api/v1/reports/z-reports", "/api/v1/reports/z-reports", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", "close-day")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusServiceUnavailable, send().Code)
	assert.Equal(t, http.StatusCreated, send().Code)
	assert.Equal(t, http.StatusCreated, send().Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newMiniStore(t)
	mw := Idempotency(store, nil)

	req := requestWithPattern(http.MethodPost, "/api/v1/orders", "/api/v1/orders", strings.NewReader(`{"tableId":"t1"}`))
	req.Header.Set("Idempotency-Key", "dup")
	key := store.IdempotencyKey(requestScope(req), "dup")
	pending := storedResponse{Pending: true, Fingerprint: fingerprintRequest([]byte(`{"tableId":"t1"}`))}
	require.NoError(t, store.Set(context.Background(), key, pending.encode(), time.Minute))

	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ })
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newMiniStore(t), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := requestWithPattern(http.MethodPost, "/api/v1/orders/o1/payments", paymentsPattern, strings.NewReader(`{"amount":"10.00"}`))
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := requestWithPattern(http.MethodPost, "/api/v1/orders/o1/payments", paymentsPattern, strings.NewReader(`{"amount":"99.00"}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	require.Equal(t, http.StatusConflict, resp.Code)
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeIdempotency), payload.Error.Code)
}

func TestIdempotencyMiddlewareSkipsUnlistedRoutes(t *testing.T) {
	mw := Idempotency(newMiniStore(t), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodGet, "/api/v1/orders", "/api/v1/orders", nil)
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestRoutePatternFallsBackToPathUnderWildcard(t *testing.T) {
	req := requestWithPattern(http.MethodPost, "/api/v1/orders/", "/api/v1/*", nil)
	assert.Equal(t, "/api/v1/orders", routePattern(req))

	req = requestWithPattern(http.MethodPost, "/api/v1/orders/abc/payments", paymentsPattern, nil)
	assert.Equal(t, paymentsPattern, routePattern(req))
}
