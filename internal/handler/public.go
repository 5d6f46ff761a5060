package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/ticket"
)

// Lookup returns a registrant's public view by enrollment id or CRR.
// The verification secret is never part of it.
func (h *TicketHandler) Lookup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	reg, err := h.Tickets.Lookup(ctx, c.Param("identifier"))
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "registrant not found"})
		}
		h.Logger.ErrorContext(ctx, "lookup failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, reg)
}

type revealReq struct {
	EnrollmentID string `json:"enrollment_id"`
	CRR          string `json:"crr"`
}

// Reveal returns the verification secret when enrollment_id and crr
// belong together.  Unknown enrollment ids and wrong CRRs share one
// response.
func (h *TicketHandler) Reveal(c echo.Context) error {
	var req revealReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.EnrollmentID == "" || req.CRR == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "enrollment_id/crr required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	secret, err := h.Tickets.RevealSecret(ctx, req.EnrollmentID, req.CRR)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"secret": secret})
	case errors.Is(err, ticket.ErrNotFound), errors.Is(err, ticket.ErrIdentityMismatch):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, ticket.ErrNoSeat):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no seat allocated"})
	default:
		h.Logger.ErrorContext(ctx, "reveal failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "reveal failed"})
	}
}

// Preview lets a registrant check their own ticket by its secret.  It
// never records attendance.
func (h *TicketHandler) Preview(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Tickets.Verify(ctx, ticket.Request{
		Identifier: c.Param("secret"),
		VerifyOnly: true,
		Method:     model.AttendanceQRScan,
	})
	if err != nil {
		h.Logger.ErrorContext(ctx, "preview failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "preview failed"})
	}
	if res.Outcome == ticket.OutcomeNotFound {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	}
	return c.JSON(http.StatusOK, res)
}
