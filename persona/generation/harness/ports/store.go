package harnessports

import (
	"context"
	"time"
)

// Turn represents one persisted conversational message.
type Turn struct {
	Role      string    // "user" | "assistant"
	Content   string    // message text
	CreatedAt time.Time // server-side timestamp
}

// ConversationStore persists per-session conversation history.
type ConversationStore interface {
	EnsureSession(ctx context.Context, sessionID string) error
	// AppendTurns writes all turns atomically, creating the session when missing.
	AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error
	SaveTurn(ctx context.Context, sessionID string, turn Turn) error
	LoadContext(ctx context.Context, sessionID string, k int) ([]Turn, error) // last-k turns, oldest first
	History(ctx context.Context, sessionID string) ([]Turn, error)
}
