package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/middleware"
)

// RegisterSpots registers the spot registry under /v1/spots.  Every role may
// read; simulators and admins may report status; only admins manage spots.
func RegisterSpots(e *echo.Echo, h *handler.SpotHandler, guard Guard) {
    g := e.Group("/v1/spots")

    read := guard.chain(middleware.RoleAdmin, middleware.RoleSimulator, middleware.RoleCustomer)
    g.GET("", h.List, read...)
    g.GET("/:id", h.Get, read...)

    g.PUT("/:id", h.UpdateStatus, guard.chain(middleware.RoleAdmin, middleware.RoleSimulator)...)

    admin := guard.chain(middleware.RoleAdmin)
    g.POST("", h.Create, admin...)
    g.DELETE("/:id", h.Delete, admin...)
}
