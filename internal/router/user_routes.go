package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/middleware"
)

// RegisterUsers registers the read-only user directory for admins.  cache may
// be nil.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, guard Guard, cache echo.MiddlewareFunc) {
    mw := guard.chain(middleware.RoleAdmin)
    if cache != nil {
        mw = append(mw, cache)
    }
    g := e.Group("/v1/users", mw...)
    g.GET("", h.List)
    g.GET("/:id", h.Get)
}
