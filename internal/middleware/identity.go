package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// Roles understood by the API.
const (
    RoleAdmin     = "admin"     // manages spots and runs reconciliation
    RoleSimulator = "simulator" // reports live spot status
    RoleCustomer  = "customer"  // books reservations for itself
)

// CurrentUser returns the authenticated subject, or "" when the request was
// not authenticated.
func CurrentUser(c echo.Context) string {
    if v, ok := c.Get(ctxUserID).(string); ok {
        return v
    }
    return ""
}

// CurrentRole returns the authenticated role, or "".
func CurrentRole(c echo.Context) string {
    if v, ok := c.Get(ctxRole).(string); ok {
        return v
    }
    return ""
}
