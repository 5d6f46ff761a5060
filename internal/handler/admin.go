package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/convocation-seating/internal/allocation"
)

// AdminHandler exposes the allocation engine to admins.  Purge, when
// set, drops cached statistics after allocations change.
type AdminHandler struct {
	Engine *allocation.Engine
	Purge  func(ctx context.Context) error
	Logger *slog.Logger
}

// NewAdminHandler panics if engine is nil.
func NewAdminHandler(engine *allocation.Engine, purge func(ctx context.Context) error, logger *slog.Logger) *AdminHandler {
	if engine == nil {
		panic("nil engine passed to NewAdminHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{Engine: engine, Purge: purge, Logger: logger}
}

type allocateReq struct {
	Enclosure string `json:"enclosure"`
}

// allocationTimeout bounds one HTTP-triggered allocation run.
const allocationTimeout = 2 * time.Minute

// Allocate runs the engine for one enclosure or, with an empty body,
// for all of them.  Partial failures are still 200; the body lists them.
func (h *AdminHandler) Allocate(c echo.Context) error {
	var req allocateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	scope := allocation.OneEnclosure(strings.TrimSpace(req.Enclosure))

	ctx, cancel := context.WithTimeout(c.Request().Context(), allocationTimeout)
	defer cancel()

	res, err := h.Engine.Allocate(ctx, scope)
	if res.Allocated > 0 {
		h.purge(ctx)
	}
	if err != nil {
		h.Logger.ErrorContext(ctx, "allocation run aborted", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "allocation aborted", "result": res})
	}
	return c.JSON(http.StatusOK, res)
}

// Clear deletes allocations for ?enclosure=X or, without it, for every
// enclosure.
func (h *AdminHandler) Clear(c echo.Context) error {
	scope := allocation.OneEnclosure(strings.TrimSpace(c.QueryParam("enclosure")))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	n, err := h.Engine.Clear(ctx, scope)
	if err != nil {
		if errors.Is(err, allocation.ErrEnclosureNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "enclosure not found"})
		}
		h.Logger.ErrorContext(ctx, "clear allocations failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "clear failed"})
	}
	h.purge(ctx)
	return c.JSON(http.StatusOK, echo.Map{"removed": n})
}

// Stats returns per-enclosure and total capacity figures.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	st, err := h.Engine.Stats(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "load stats failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "stats failed"})
	}
	return c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) purge(ctx context.Context) {
	if h.Purge == nil {
		return
	}
	if err := h.Purge(ctx); err != nil {
		h.Logger.WarnContext(ctx, "purge stats cache failed", slog.String("error", err.Error()))
	}
}
