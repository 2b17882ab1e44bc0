package router

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/smart-parking/internal/config"
    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/metrics"
    "github.com/iliyamo/smart-parking/internal/middleware"
    "github.com/iliyamo/smart-parking/internal/model"
    "github.com/iliyamo/smart-parking/internal/repository"
)

const secret = "router-secret"

type oneSpot struct{ s model.Spot }

func (o *oneSpot) Create(ctx context.Context, s *model.Spot) error { return repository.ErrConflict }
func (o *oneSpot) GetByID(ctx context.Context, id string) (*model.Spot, error) {
    return &o.s, nil
}
func (o *oneSpot) List(ctx context.Context, f model.SpotFilter) ([]model.Spot, error) {
    return []model.Spot{o.s}, nil
}
func (o *oneSpot) UpdateStatus(ctx context.Context, id string, st model.SpotStatus) (*model.Spot, error) {
    o.s.Status = st
    return &o.s, nil
}
func (o *oneSpot) Delete(ctx context.Context, id string) error { return nil }

func bearer(t *testing.T, role string) string {
    t.Helper()
    return bearerFor(t, "u1", role)
}

func bearerFor(t *testing.T, sub, role string) string {
    t.Helper()
    tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "sub": sub, "role": role, "exp": time.Now().Add(time.Hour).Unix(),
    }).SignedString([]byte(secret))
    require.NoError(t, err)
    return "Bearer " + tok
}

func call(e *echo.Echo, method, path, auth, body string) int {
    req := httptest.NewRequest(method, path, strings.NewReader(body))
    req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    req.Header.Set(echo.HeaderXRealIP, "192.0.2.1")
    if auth != "" {
        req.Header.Set("Authorization", auth)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec.Code
}

func TestSpotRoutesEnforceRoles(t *testing.T) {
    e := echo.New()
    RegisterSpots(e, handler.NewSpotHandler(&oneSpot{s: model.Spot{ID: "s1", Status: model.StatusVacant}}), Guard{Secret: secret})

    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/spots", "", ""))
    assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/spots", bearer(t, "customer"), ""))

    put := `{"status":"occupied"}`
    assert.Equal(t, http.StatusForbidden, call(e, http.MethodPut, "/v1/spots/s1", bearer(t, "customer"), put))
    assert.Equal(t, http.StatusOK, call(e, http.MethodPut, "/v1/spots/s1", bearer(t, "simulator"), put))

    assert.Equal(t, http.StatusForbidden, call(e, http.MethodDelete, "/v1/spots/s1", bearer(t, "simulator"), ""))
    assert.Equal(t, http.StatusNoContent, call(e, http.MethodDelete, "/v1/spots/s1", bearer(t, "admin"), ""))
}

func TestRoutesRunOpenWithoutSecret(t *testing.T) {
    e := echo.New()
    RegisterSpots(e, handler.NewSpotHandler(&oneSpot{s: model.Spot{ID: "s1"}}), Guard{})
    assert.Equal(t, http.StatusOK, call(e, http.MethodPut, "/v1/spots/s1", "", `{"status":"reserved"}`))
}

// keyLog records the rate keys it is asked for and allows the first
// budget[key] takes.
type keyLog struct {
    mu     sync.Mutex
    keys   []string
    budget int
    taken  map[string]int
}

func (k *keyLog) Take(ctx context.Context, key string) (middleware.Decision, error) {
    k.mu.Lock()
    defer k.mu.Unlock()
    if k.taken == nil {
        k.taken = map[string]int{}
    }
    k.keys = append(k.keys, key)
    k.taken[key]++
    return middleware.Decision{Allowed: k.taken[key] <= k.budget, RetryMs: 1000}, nil
}

func limitedServer(bucket *keyLog, exempt ...string) *echo.Echo {
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, Prefix: "rl", KeyStrategy: "ip_user_route", ExemptRoles: exempt}
    e := echo.New()
    RegisterSpots(e, handler.NewSpotHandler(&oneSpot{s: model.Spot{ID: "s1"}}), Guard{
        Secret: secret,
        Limit:  middleware.RateLimit(cfg, bucket, nil),
    })
    return e
}

func TestRateLimitKeysOnAuthenticatedCaller(t *testing.T) {
    bucket := &keyLog{budget: 1}
    e := limitedServer(bucket)
    put := `{"status":"occupied"}`

    require.Equal(t, http.StatusOK, call(e, http.MethodPut, "/v1/spots/s1", bearerFor(t, "ops-a", "admin"), put))
    require.Equal(t, http.StatusOK, call(e, http.MethodPut, "/v1/spots/s1", bearerFor(t, "ops-b", "admin"), put))
    assert.Equal(t, []string{
        "rl:ip:192.0.2.1:user:ops-a:route:PUT /v1/spots/:id",
        "rl:ip:192.0.2.1:user:ops-b:route:PUT /v1/spots/:id",
    }, bucket.keys)

    assert.Equal(t, http.StatusTooManyRequests, call(e, http.MethodPut, "/v1/spots/s1", bearerFor(t, "ops-a", "admin"), put))
}

func TestRateLimitSkipsRejectedAndExemptCallers(t *testing.T) {
    bucket := &keyLog{budget: 1}
    e := limitedServer(bucket, middleware.RoleSimulator)
    put := `{"status":"reserved"}`

    assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPut, "/v1/spots/s1", "", put))
    for i := 0; i < 3; i++ {
        assert.Equal(t, http.StatusOK, call(e, http.MethodPut, "/v1/spots/s1", bearerFor(t, "sim-1", "simulator"), put))
    }
    assert.Empty(t, bucket.keys)
}

func TestOpenRoutesAreLimitedByAddress(t *testing.T) {
    bucket := &keyLog{budget: 10}
    cfg := config.RateLimitConfig{Enabled: true, Capacity: 10, Prefix: "rl", KeyStrategy: "user"}
    e := echo.New()
    RegisterSpots(e, handler.NewSpotHandler(&oneSpot{s: model.Spot{ID: "s1"}}), Guard{Limit: middleware.RateLimit(cfg, bucket, nil)})

    require.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/spots", "", ""))
    assert.Equal(t, []string{"rl:user:anon-192.0.2.1"}, bucket.keys)
}

func TestProbesAndMetrics(t *testing.T) {
    reg := prometheus.NewRegistry()
    metrics.New(reg).Admission("admitted")

    e := echo.New()
    RegisterRoutes(e, nil)
    RegisterMetrics(e, reg)

    assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "", ""))

    req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), `reservation_admission_total{result="admitted"} 1`)
}
