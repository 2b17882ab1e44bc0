package router // package router defines how HTTP routes are registered for the API

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
    e.GET("/healthz", handler.Health)
    if db != nil {
        e.GET("/readyz", handler.Ready(db))
    }
}

// RegisterMetrics exposes the Prometheus registry at /metrics.
func RegisterMetrics(e *echo.Echo, g prometheus.Gatherer) {
    var h http.Handler = promhttp.Handler()
    if g != nil {
        h = promhttp.HandlerFor(g, promhttp.HandlerOpts{})
    }
    e.GET("/metrics", echo.WrapHandler(h))
}

// Guard builds the middleware chain of the /v1 routes.
type Guard struct {
    Secret string              // HS256 secret; empty runs the API open
    Limit  echo.MiddlewareFunc // optional rate limiter
}

// chain authenticates, checks roles, then rate limits so the limiter can key
// on the caller.  With an empty secret the API runs open, which is how the
// simulators are driven in development, and callers are limited by address.
func (g Guard) chain(roles ...string) []echo.MiddlewareFunc {
    var mw []echo.MiddlewareFunc
    if g.Secret != "" {
        mw = append(mw, middleware.JWTAuth(g.Secret), middleware.RequireRole(roles...))
    }
    if g.Limit != nil {
        mw = append(mw, g.Limit)
    }
    return mw
}
