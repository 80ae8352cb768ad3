// Package v1 provides the HTTP handlers for the chat API.
package v1

import (
	"context"
	"net/http"

	internal "github.com/ZanzyTHEbar/persona-rag/persona"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/ai"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ChatService is the core boundary the chat routes call into.
type ChatService interface {
	GetHistory(ctx context.Context, sessionID string) ([]ai.HistoryEntry, error)
	PostChat(ctx context.Context, sessionID, message string) (*ai.ChatResult, error)
}

// Inspector reports what the document store holds.
type Inspector interface {
	Diagnostics(ctx context.Context) (*service.Diagnostics, error)
}

// CapabilityReporter exposes the detected database features.
type CapabilityReporter interface {
	GetCapabilities() database.Capabilities
}

// Handler handles HTTP requests.
type Handler struct {
	chat   ChatService
	memory Inspector
	caps   CapabilityReporter
	logger zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(chat ChatService, memory Inspector, caps CapabilityReporter, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:   chat,
		memory: memory,
		caps:   caps,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")

	api.GET("/chat/history", h.GetHistory)
	api.POST("/chat", h.PostChat)

	api.GET("/health", h.Health)
	api.GET("/diagnostics", h.Diagnostics)
}

// Health returns health status, capability flags and retrieval metrics.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	resp := map[string]any{
		"status":  "healthy",
		"version": internal.Version,
	}
	if h.caps != nil {
		resp["capabilities"] = h.caps.GetCapabilities()
	}

	d, err := h.memory.Diagnostics(c.Request().Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Health check could not read the document store")
		resp["status"] = "degraded"
		resp["error"] = err.Error()
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	resp["metrics"] = d.Metrics
	resp["total_chunks"] = d.TotalChunks
	return c.JSON(http.StatusOK, resp)
}

// Diagnostics returns chunk counts per partition.
// GET /api/diagnostics
func (h *Handler) Diagnostics(c echo.Context) error {
	d, err := h.memory.Diagnostics(c.Request().Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Diagnostics failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "internal error",
			"details": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, d)
}
