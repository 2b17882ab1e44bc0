package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/middleware"
    "github.com/iliyamo/smart-parking/internal/model"
    "github.com/iliyamo/smart-parking/internal/reservation"
)

// ReservationService is the part of reservation.Service the handlers use.
type ReservationService interface {
    Admit(ctx context.Context, req reservation.Request) (*model.Reservation, error)
    Get(ctx context.Context, id string) (*model.Reservation, error)
    List(ctx context.Context, f model.ReservationFilter) ([]model.Reservation, error)
    Cancel(ctx context.Context, id string) error
    Reconcile(ctx context.Context) (reservation.ReconcileResult, error)
}

// ReservationHandler serves /v1/reservations.
type ReservationHandler struct {
    svc ReservationService
}

// NewReservationHandler panics on a nil service.
func NewReservationHandler(svc ReservationService) *ReservationHandler {
    if svc == nil {
        panic("nil service passed to NewReservationHandler")
    }
    return &ReservationHandler{svc: svc}
}

type createReservationRequest struct {
    UserID    string `json:"user_id"`
    SpotID    string `json:"spot_id"`
    StartTime string `json:"start_time"`
    EndTime   string `json:"end_time"`
}

// Create handles POST /v1/reservations.  Timestamps must be RFC 3339 with a
// zone.  Customers may only book for themselves; the user_id defaults to
// the token subject.  The price is always computed server side.
func (h *ReservationHandler) Create(c echo.Context) error {
    var body createReservationRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    start, err := time.Parse(time.RFC3339, body.StartTime)
    if err != nil {
        return badRequest(c, "start_time must be an RFC 3339 timestamp with a zone")
    }
    end, err := time.Parse(time.RFC3339, body.EndTime)
    if err != nil {
        return badRequest(c, "end_time must be an RFC 3339 timestamp with a zone")
    }

    if sub := middleware.CurrentUser(c); sub != "" && middleware.CurrentRole(c) != middleware.RoleAdmin {
        if body.UserID == "" {
            body.UserID = sub
        }
        if body.UserID != sub {
            return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot reserve on behalf of another user", "kind": "forbidden"})
        }
    }

    res, err := h.svc.Admit(c.Request().Context(), reservation.Request{
        UserID:    body.UserID,
        SpotID:    body.SpotID,
        StartTime: start,
        EndTime:   end,
    })
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/reservations?spot_id=&user_id=&start_after=&limit=.
func (h *ReservationHandler) List(c echo.Context) error {
    f := model.ReservationFilter{
        SpotID: c.QueryParam("spot_id"),
        UserID: c.QueryParam("user_id"),
    }
    if v := c.QueryParam("start_after"); v != "" {
        t, err := time.Parse(time.RFC3339, v)
        if err != nil {
            return badRequest(c, "start_after must be an RFC 3339 timestamp")
        }
        f.StartAfter = t
    }
    if v := c.QueryParam("limit"); v != "" {
        n, err := parsePositive(v)
        if err != nil {
            return badRequest(c, "limit must be a positive integer")
        }
        f.Limit = n
    }
    if sub := middleware.CurrentUser(c); sub != "" && middleware.CurrentRole(c) == middleware.RoleCustomer {
        f.UserID = sub
    }
    list, err := h.svc.List(c.Request().Context(), f)
    if err != nil {
        return fail(c, err)
    }
    if list == nil {
        list = []model.Reservation{}
    }
    return c.JSON(http.StatusOK, echo.Map{"records": list, "count": len(list)})
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
    res, err := h.svc.Get(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    if !h.visible(c, res) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found", "kind": "not_found"})
    }
    return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
    ctx := c.Request().Context()
    id := c.Param("id")
    if middleware.CurrentRole(c) == middleware.RoleCustomer {
        res, err := h.svc.Get(ctx, id)
        if err != nil {
            return fail(c, err)
        }
        if !h.visible(c, res) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found", "kind": "not_found"})
        }
    }
    if err := h.svc.Cancel(ctx, id); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Reconcile handles POST /v1/reservations/reconcile.
func (h *ReservationHandler) Reconcile(c echo.Context) error {
    out, err := h.svc.Reconcile(c.Request().Context())
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, out)
}

// visible hides other users' reservations from customers.
func (h *ReservationHandler) visible(c echo.Context, res *model.Reservation) bool {
    if middleware.CurrentRole(c) != middleware.RoleCustomer {
        return true
    }
    return res.UserID == middleware.CurrentUser(c)
}
