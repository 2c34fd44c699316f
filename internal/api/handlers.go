// Package api contains the HTTP handlers for the card service
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"scholaverse/backend/internal/logging"
	"scholaverse/backend/internal/repository"
	"scholaverse/backend/internal/services"
	"scholaverse/backend/pkg/models"
)

// Handler holds the dependencies for the REST API.
type Handler struct {
	Fulfillment *services.FulfillmentService
	Status      *services.StatusService
	Repo        repository.Repository
	Logger      *logging.Logger
}

// NewHandler creates a new Handler with required dependencies.
func NewHandler(fulfillment *services.FulfillmentService, status *services.StatusService,
	repo repository.Repository, logger *logging.Logger) *Handler {
	return &Handler{
		Fulfillment: fulfillment,
		Status:      status,
		Repo:        repo,
		Logger:      logger,
	}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
}

// HandleHealth returns basic health status, including a database check.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "scholaverse-backend",
		Version:   "1.0.0",
	}
	if err := h.Repo.Ping(c.Request().Context()); err != nil {
		status.Status = "degraded"
	}
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// problem writes an RFC 7807 Problem Details JSON error response
func problem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// currentStudent returns the authenticated student injected by the auth
// middleware.
func currentStudent(c echo.Context) (*models.Student, bool) {
	student, ok := c.Get("student").(*models.Student)
	return student, ok && student != nil
}
