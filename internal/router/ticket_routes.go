package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convocation-seating/internal/handler"
	"github.com/iliyamo/convocation-seating/internal/middleware"
)

// RegisterCheckin registers the staff verification route.  Admins and
// staff may both check registrants in.
func RegisterCheckin(e *echo.Echo, h *handler.TicketHandler, jwtSecret string) {
	g := e.Group(
		"/v1/checkin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireDesk(),
	)
	g.POST("/verify", h.Verify)
}

// RegisterPublic registers the registrant self-service routes.  They need
// no login; limiter (if non-nil) throttles them per caller since the
// reveal route is a CRR oracle.
func RegisterPublic(e *echo.Echo, h *handler.TicketHandler, limiter echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limiter != nil {
		mw = append(mw, limiter)
	}
	g := e.Group("/v1/public", mw...)
	g.GET("/registrants/:identifier", h.Lookup)
	g.POST("/tickets/reveal", h.Reveal)
	g.GET("/tickets/:secret", h.Preview)
}
