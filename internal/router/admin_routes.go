package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convocation-seating/internal/handler"
	"github.com/iliyamo/convocation-seating/internal/middleware"
	"github.com/iliyamo/convocation-seating/internal/model"
)

// RegisterAdmin registers allocation management under /v1/admin.  All
// routes require the ADMIN role.  statsCache wraps only the statistics
// read.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string, statsCache echo.MiddlewareFunc) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/allocations", h.Allocate)
	g.DELETE("/allocations", h.Clear)
	if statsCache != nil {
		g.GET("/stats", h.Stats, statsCache)
	} else {
		g.GET("/stats", h.Stats)
	}
}
