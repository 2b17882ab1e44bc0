package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/handler"
    "github.com/iliyamo/smart-parking/internal/middleware"
)

// RegisterReservations registers /v1/reservations.  Customers are limited to
// their own reservations inside the handler.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, guard Guard) {
    g := e.Group("/v1/reservations")

    // Static segment first so it is never taken for an id.
    g.POST("/reconcile", h.Reconcile, guard.chain(middleware.RoleAdmin)...)

    both := guard.chain(middleware.RoleAdmin, middleware.RoleCustomer)
    g.POST("", h.Create, both...)
    g.GET("", h.List, both...)
    g.GET("/:id", h.Get, both...)
    g.DELETE("/:id", h.Delete, both...)
}
