package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"scholaverse/backend/internal/services"
)

// GenerationCallback handles the ai-worker completion callback. Delivery is
// at-least-once, so application is idempotent; the response is always
// definitive (2xx/4xx) for anything the worker should not retry.
// (POST /api/internal/generation-callback)
func (h *Handler) GenerationCallback(c echo.Context) error {
	var cb services.GenerationCallback
	if err := c.Bind(&cb); err != nil {
		return problem(c, http.StatusBadRequest, "Invalid callback", "malformed request body: "+err.Error())
	}
	if cb.CardID == "" || cb.Status == "" {
		return problem(c, http.StatusBadRequest, "Invalid callback", "card_id and status are required")
	}

	err := h.Fulfillment.ApplyCallback(c.Request().Context(), cb)
	if errors.Is(err, services.ErrUnknownCard) {
		h.Logger.Warn("callback for unknown card %s (job %s)", cb.CardID, cb.JobID)
		return problem(c, http.StatusNotFound, "Card not found", "callback references an unknown card")
	}
	if err != nil {
		// Transient storage failure: a 5xx lets the worker retry, which is
		// safe because application is idempotent.
		h.Logger.Error("failed to apply callback for card %s: %v", cb.CardID, err)
		return problem(c, http.StatusInternalServerError, "Callback failed", err.Error())
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "card_id": cb.CardID})
}
