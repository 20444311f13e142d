package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/mtarikucar/kds-sub004/api/responses"
	pkgerrors "github.com/mtarikucar/kds-sub004/pkg/errors"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
	pkgredis "github.com/mtarikucar/kds-sub004/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute

	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// guardedRoute marks a mutating endpoint whose responses are replayed.
type guardedRoute struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (g guardedRoute) matches(method, pattern string) bool {
	if g.method != method {
		return false
	}
	if g.exact {
		return pattern == g.prefix
	}
	return strings.HasPrefix(pattern, g.prefix) && strings.HasSuffix(pattern, g.suffix)
}

var guardedRoutes = []guardedRoute{
	{method: http.MethodPost, prefix: "/api/v1/orders", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/payments/create-intent", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/reports/z-reports/", suffix: "/send-email", ttl: defaultIdempotencyTTL},
	// settlement and day closing are replayed for a week
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/payments", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/reports/z-reports", exact: true, ttl: criticalIdempotencyTTL},
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, route := range guardedRoutes {
		if route.matches(method, pattern) {
			return route.ttl, true
		}
	}
	return 0, false
}

// storedResponse is the redis value behind an idempotency key. A reservation
// has Pending set and no response yet.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

func (s storedResponse) encode() string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func parseStoredResponse(raw string) (storedResponse, error) {
	var s storedResponse
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(s.Body)
}

// replayStore reserves keys before the handler runs so concurrent retries
// cannot execute the same mutation twice.
type replayStore struct {
	store pkgredis.IdempotencyStore
}

// reserve returns the existing entry when the key is already taken.
func (rs replayStore) reserve(ctx context.Context, key, fingerprint string) (*storedResponse, error) {
	pending := storedResponse{Pending: true, Fingerprint: fingerprint}.encode()
	for attempt := 0; attempt < 2; attempt++ {
		claimed, err := rs.store.SetNX(ctx, key, pending, pendingTTL)
		if err != nil {
			return nil, err
		}
		if claimed {
			return nil, nil
		}
		raw, err := rs.store.Get(ctx, key)
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return nil, err
		}
		existing, err := parseStoredResponse(raw)
		if err != nil {
			return nil, err
		}
		return &existing, nil
	}
	return nil, errors.New("idempotency key kept expiring during reservation")
}

func (rs replayStore) complete(ctx context.Context, key string, resp storedResponse, ttl time.Duration) error {
	return rs.store.Set(ctx, key, resp.encode(), ttl)
}

func (rs replayStore) release(ctx context.Context, key string) error {
	return rs.store.Del(ctx, key)
}

// Idempotency replays the first response for a repeated Idempotency-Key on
// guarded routes. Server errors release the key so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		rs := replayStore{store: store}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := routeTTL(r.Method, routePattern(r))
			if !guarded {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := fingerprintRequest(body)
			key := store.IdempotencyKey(requestScope(r), clientKey)

			existing, err := rs.reserve(ctx, key, fingerprint)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if existing != nil {
				switch {
				case existing.Fingerprint != fingerprint:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
				case existing.Pending:
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
				default:
					existing.replay(w)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			// the client may have gone away; bookkeeping still has to land
			bg := context.WithoutCancel(ctx)
			if capture.statusCode() >= http.StatusInternalServerError {
				if err := rs.release(bg, key); err != nil && logg != nil {
					logg.Error(bg, "release idempotency key", err)
				}
				return
			}
			resp := storedResponse{
				Fingerprint: fingerprint,
				Status:      capture.statusCode(),
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := rs.complete(bg, key, resp, ttl); err != nil && logg != nil {
				logg.Error(bg, "store idempotent response", err)
			}
		})
	}
}

// requestScope keeps keys from colliding across tenants, users and endpoints.
func requestScope(r *http.Request) string {
	ctx := r.Context()
	return strings.Join([]string{
		TenantIDFromContext(ctx),
		UserIDFromContext(ctx),
		r.Method,
		trimSlash(r.URL.Path),
	}, "|")
}

func fingerprintRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// mounted above the subrouters the pattern is still a wildcard
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return trimSlash(pattern)
		}
	}
	return trimSlash(r.URL.Path)
}

func trimSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimSuffix(path, "/")
	}
	return path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
