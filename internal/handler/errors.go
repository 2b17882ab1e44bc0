package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/smart-parking/internal/repository"
    "github.com/iliyamo/smart-parking/internal/reservation"
)

// errorKinds maps sentinel errors to an HTTP status and a stable kind string
// clients can switch on.
var errorKinds = []struct {
    err    error
    status int
    kind   string
}{
    {reservation.ErrValidation, http.StatusBadRequest, "validation"},
    {reservation.ErrNotFound, http.StatusNotFound, "not_found"},
    {repository.ErrNotFound, http.StatusNotFound, "not_found"},
    {reservation.ErrBusy, http.StatusConflict, "busy"},
    {reservation.ErrConflict, http.StatusConflict, "conflict"},
    {repository.ErrConflict, http.StatusConflict, "conflict"},
    {reservation.ErrPricingUnavailable, http.StatusServiceUnavailable, "pricing_unavailable"},
    {reservation.ErrLockTimeout, http.StatusServiceUnavailable, "try_again"},
}

// fail writes err as {"error","kind"}.  Unknown errors become a 500 without
// leaking details.
func fail(c echo.Context, err error) error {
    for _, k := range errorKinds {
        if errors.Is(err, k.err) {
            return c.JSON(k.status, echo.Map{"error": err.Error(), "kind": k.kind})
        }
    }
    c.Logger().Errorf("request failed: %v", err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error", "kind": "internal"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "kind": "validation"})
}

// parsePositive parses a query parameter that must be a positive integer.
func parsePositive(v string) (int, error) {
    n, err := strconv.Atoi(v)
    if err != nil {
        return 0, err
    }
    if n <= 0 {
        return 0, errors.New("must be positive")
    }
    return n, nil
}
