package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convocation-seating/internal/middleware"
	"github.com/iliyamo/convocation-seating/internal/model"
	"github.com/iliyamo/convocation-seating/internal/ticket"
)

// TicketHandler serves staff check-in and the public self-service
// routes.
type TicketHandler struct {
	Tickets *ticket.Service
	Logger  *slog.Logger
}

// NewTicketHandler panics if svc is nil.
func NewTicketHandler(svc *ticket.Service, logger *slog.Logger) *TicketHandler {
	if svc == nil {
		panic("nil ticket service passed to NewTicketHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketHandler{Tickets: svc, Logger: logger}
}

type verifyReq struct {
	Identifier string `json:"identifier"`
	VerifyOnly bool   `json:"verify_only"`
	Method     string `json:"method"` // QR_SCAN | MANUAL | empty to infer
	Location   string `json:"location"`
}

// Verify checks a ticket and, unless verify_only is set, marks
// attendance.  The confirmer is the logged-in staff email.  Every
// resolved outcome is 200; an unknown identifier is 404.
func (h *TicketHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if strings.TrimSpace(req.Identifier) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Tickets.Verify(ctx, ticket.Request{
		Identifier:  req.Identifier,
		VerifyOnly:  req.VerifyOnly,
		Method:      model.AttendanceMethod(strings.ToUpper(strings.TrimSpace(req.Method))),
		Location:    req.Location,
		ConfirmedBy: middleware.Confirmer(c),
	})
	if err != nil {
		if errors.Is(err, ticket.ErrInvalidMethod) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "method must be QR_SCAN or MANUAL"})
		}
		h.Logger.ErrorContext(ctx, "verify failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verify failed"})
	}
	if res.Outcome == ticket.OutcomeNotFound {
		return c.JSON(http.StatusNotFound, res)
	}
	return c.JSON(http.StatusOK, res)
}
