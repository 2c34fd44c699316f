package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"scholaverse/backend/internal/repository"
	"scholaverse/backend/internal/services"
)

// GenerateCardResponse is returned after a successful submission.
type GenerateCardResponse struct {
	CardID string `json:"card_id"`
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// GenerateCard submits a card generation request for the authenticated
// student. The new card becomes the student's latest immediately, even
// before generation finishes.
// (POST /api/v1/cards/generate)
func (h *Handler) GenerateCard(c echo.Context) error {
	student, ok := currentStudent(c)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated student")
	}

	card, err := h.Fulfillment.SubmitGeneration(c.Request().Context(), student)
	if errors.Is(err, services.ErrConfigurationMissing) {
		return problem(c, http.StatusBadRequest, "Configuration missing",
			"no card attributes configured yet; complete a learning unit first")
	}
	if errors.Is(err, services.ErrWorkerUnavailable) {
		return problem(c, http.StatusBadGateway, "Generation service unavailable",
			"could not reach the generation worker; try again later")
	}
	if err != nil {
		h.Logger.Error("card generation submission failed for student %s: %v", student.ID, err)
		return problem(c, http.StatusInternalServerError, "Submission failed", err.Error())
	}

	return c.JSON(http.StatusOK, GenerateCardResponse{
		CardID: card.ID,
		JobID:  card.JobID,
		Status: string(card.Status),
	})
}

// CardStatus returns the generation status of one of the student's cards.
// (GET /api/v1/cards/:id/status)
func (h *Handler) CardStatus(c echo.Context) error {
	student, ok := currentStudent(c)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated student")
	}

	view, err := h.Status.GetStatus(c.Request().Context(), c.Param("id"), student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return problem(c, http.StatusNotFound, "Card not found", "no such card")
	}
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Status lookup failed", err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

// ListCards returns the student's card gallery, newest first.
// (GET /api/v1/cards)
func (h *Handler) ListCards(c echo.Context) error {
	student, ok := currentStudent(c)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated student")
	}

	cards, err := h.Repo.ListCards(c.Request().Context(), student.ID)
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Listing failed", err.Error())
	}
	return c.JSON(http.StatusOK, cards)
}

// LatestCard returns the student's current card.
// (GET /api/v1/cards/latest)
func (h *Handler) LatestCard(c echo.Context) error {
	student, ok := currentStudent(c)
	if !ok {
		return problem(c, http.StatusUnauthorized, "Unauthorized", "no authenticated student")
	}

	card, err := h.Repo.GetLatestCard(c.Request().Context(), student.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return problem(c, http.StatusNotFound, "No card yet", "no card has been generated")
	}
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Lookup failed", err.Error())
	}
	return c.JSON(http.StatusOK, card)
}

// HallOfHeroes returns every student's latest completed card, highest
// level first.
// (GET /api/v1/cards/hall)
func (h *Handler) HallOfHeroes(c echo.Context) error {
	cards, err := h.Repo.ListLatestCompletedCards(c.Request().Context())
	if err != nil {
		return problem(c, http.StatusInternalServerError, "Listing failed", err.Error())
	}
	return c.JSON(http.StatusOK, cards)
}
