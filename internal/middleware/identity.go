package middleware

// identity.go reads the caller's identity from values JWTAuth stored in
// the Echo context.  Anonymous callers are reported as "anon".

import (
    "fmt"
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated staff account id as a string, or
// "anon".  The sub claim arrives as a JSON number.
func UserID(c echo.Context) string {
    switch v := c.Get("user_id").(type) {
    case string:
        if v != "" {
            return v
        }
    case float64:
        return strconv.FormatUint(uint64(v), 10)
    case nil:
    default:
        return fmt.Sprint(v)
    }
    return "anon"
}

// Confirmer returns the authenticated staff email recorded on check-ins,
// or "" for anonymous callers.
func Confirmer(c echo.Context) string {
    if v, ok := c.Get("email").(string); ok {
        return v
    }
    return ""
}
