package handler

import (
    "context"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/model"
)

// SpotStore is the spot registry.
type SpotStore interface {
    Create(ctx context.Context, s *model.Spot) error
    GetByID(ctx context.Context, id string) (*model.Spot, error)
    List(ctx context.Context, f model.SpotFilter) ([]model.Spot, error)
    UpdateStatus(ctx context.Context, id string, status model.SpotStatus) (*model.Spot, error)
    Delete(ctx context.Context, id string) error
}

// SpotHandler serves /v1/spots.  The simulators use PUT /v1/spots/:id to
// report live status.
type SpotHandler struct {
    spots SpotStore
}

func NewSpotHandler(spots SpotStore) *SpotHandler {
    if spots == nil {
        panic("nil store passed to NewSpotHandler")
    }
    return &SpotHandler{spots: spots}
}

// List handles GET /v1/spots?floor_level=&spot_number=&status=.
func (h *SpotHandler) List(c echo.Context) error {
    var f model.SpotFilter
    for _, p := range []struct {
        name string
        dst  **int
    }{{"floor_level", &f.FloorLevel}, {"spot_number", &f.SpotNumber}} {
        v := c.QueryParam(p.name)
        if v == "" {
            continue
        }
        n, err := strconv.Atoi(v)
        if err != nil {
            return badRequest(c, p.name+" must be an integer")
        }
        *p.dst = &n
    }
    if v := c.QueryParam("status"); v != "" {
        st, err := model.ParseSpotStatus(v)
        if err != nil {
            return badRequest(c, err.Error())
        }
        f.Status = st
    }
    list, err := h.spots.List(c.Request().Context(), f)
    if err != nil {
        return fail(c, err)
    }
    if list == nil {
        list = []model.Spot{}
    }
    return c.JSON(http.StatusOK, echo.Map{"records": list, "count": len(list)})
}

// Get handles GET /v1/spots/:id.
func (h *SpotHandler) Get(c echo.Context) error {
    s, err := h.spots.GetByID(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, s)
}

type createSpotRequest struct {
    FloorLevel *int   `json:"floor_level"`
    SpotNumber *int   `json:"spot_number"`
    Status     string `json:"status"`
}

// Create handles POST /v1/spots.
func (h *SpotHandler) Create(c echo.Context) error {
    var body createSpotRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    if body.FloorLevel == nil || body.SpotNumber == nil {
        return badRequest(c, "floor_level and spot_number are required")
    }
    s := &model.Spot{FloorLevel: *body.FloorLevel, SpotNumber: *body.SpotNumber, Status: model.StatusVacant}
    if body.Status != "" {
        st, err := model.ParseSpotStatus(body.Status)
        if err != nil {
            return badRequest(c, err.Error())
        }
        s.Status = st
    }
    if err := h.spots.Create(c.Request().Context(), s); err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusCreated, s)
}

// UpdateStatus handles PUT /v1/spots/:id with {"status": ...}.  Setting the
// current status again succeeds, so simulators may retry freely.
func (h *SpotHandler) UpdateStatus(c echo.Context) error {
    var body struct {
        Status string `json:"status"`
    }
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    st, err := model.ParseSpotStatus(body.Status)
    if err != nil {
        return badRequest(c, err.Error())
    }
    s, err := h.spots.UpdateStatus(c.Request().Context(), c.Param("id"), st)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, s)
}

// Delete handles DELETE /v1/spots/:id.
func (h *SpotHandler) Delete(c echo.Context) error {
    if err := h.spots.Delete(c.Request().Context(), c.Param("id")); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}
