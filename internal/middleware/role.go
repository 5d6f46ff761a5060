package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/convocation-seating/internal/model"
)

// RequireRole rejects requests whose JWT role (set by JWTAuth) is not
// one of roles.  Comparison ignores case; missing roles get 403 too.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]struct{}, len(roles))
    for _, r := range roles {
        allowed[strings.ToUpper(r)] = struct{}{}
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, _ := c.Get("role").(string)
            if _, ok := allowed[strings.ToUpper(role)]; !ok {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            return next(c)
        }
    }
}

// RequireDesk admits anyone who may run the check-in desk: admins and
// staff.
func RequireDesk() echo.MiddlewareFunc {
    return RequireRole(model.RoleAdmin, model.RoleStaff)
}
