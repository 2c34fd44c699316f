package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterHandlers mounts the authenticated student-facing card routes.
func RegisterHandlers(g *echo.Group, h *Handler) {
	g.POST("/cards/generate", h.GenerateCard)
	g.GET("/cards", h.ListCards)
	g.GET("/cards/latest", h.LatestCard)
	g.GET("/cards/hall", h.HallOfHeroes)
	g.GET("/cards/:id/status", h.CardStatus)
}

// RegisterInternalHandlers mounts the VM-to-VM callback routes. These are
// reachable without end-user authentication; they originate from the
// trusted worker network.
func RegisterInternalHandlers(e *echo.Echo, h *Handler) {
	e.POST("/api/internal/generation-callback", h.GenerationCallback)
}
