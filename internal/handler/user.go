package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/model"
)

// UserStore reads the user directory.
type UserStore interface {
    GetByID(ctx context.Context, id string) (*model.User, error)
    List(ctx context.Context, limit int) ([]model.User, error)
}

// UserHandler exposes read-only user lookups.  Accounts are managed by the
// identity service.
type UserHandler struct {
    users UserStore
}

func NewUserHandler(users UserStore) *UserHandler { return &UserHandler{users: users} }

// List handles GET /v1/users.
func (h *UserHandler) List(c echo.Context) error {
    limit := 0
    if v := c.QueryParam("limit"); v != "" {
        n, err := parsePositive(v)
        if err != nil {
            return badRequest(c, "limit must be a positive integer")
        }
        limit = n
    }
    list, err := h.users.List(c.Request().Context(), limit)
    if err != nil {
        return fail(c, err)
    }
    if list == nil {
        list = []model.User{}
    }
    return c.JSON(http.StatusOK, echo.Map{"records": list, "count": len(list)})
}

// Get handles GET /v1/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
    u, err := h.users.GetByID(c.Request().Context(), c.Param("id"))
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, u)
}
