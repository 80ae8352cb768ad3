package v1

import (
	"errors"
	"net/http"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation/ai"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness"
	"github.com/labstack/echo/v4"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// GetHistory returns the messages of a session, oldest first.
// GET /api/chat/history?session_id=...
func (h *Handler) GetHistory(c echo.Context) error {
	sessionID := c.QueryParam("session_id")

	history, err := h.chat.GetHistory(c.Request().Context(), sessionID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to load history")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "internal error",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"history": history,
	})
}

// PostChat answers one message.
// POST /api/chat
func (h *Handler) PostChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	ctx := ai.WithClientKey(c.Request().Context(), c.RealIP())
	result, err := h.chat.PostChat(ctx, req.SessionID, req.Message)
	if err != nil {
		return h.chatError(c, req.SessionID, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) chatError(c echo.Context, sessionID string, err error) error {
	switch {
	case errors.Is(err, ai.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message not provided"})
	case errors.Is(err, harness.ErrRateLimited):
		h.logger.Warn().Str("session_id", sessionID).Msg("Chat rate limited")
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
	}

	var internalErr *ai.InternalError
	if errors.As(err, &internalErr) {
		sessionID = internalErr.SessionID
	}
	h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Chat failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "internal error",
		"details": err.Error(),
	})
}
