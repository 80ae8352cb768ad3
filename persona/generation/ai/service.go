// Package ai exposes the two chat operations the transport layer serves:
// reading a session's history and posting a message to it.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness"
	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Role names as returned to clients.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// ErrEmptyMessage is returned when the trimmed message is blank.
var ErrEmptyMessage = harness.ErrEmptyMessage

// Orchestrator runs one conversation turn.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req *harness.Request) (*harness.Response, error)
}

// HistoryEntry is one message of a session as shown to clients.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResult is the reply to a posted message.
type ChatResult struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Tools     []string `json:"-"`
	Rounds    int      `json:"-"`
}

// InternalError wraps an unrecoverable failure while answering.
type InternalError struct {
	SessionID string
	Err       error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("chat failed for session %s: %v", e.SessionID, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Service provides the chat operations over the orchestrator and session store.
type Service struct {
	orchestrator Orchestrator
	store        ports.ConversationStore
	policy       *harness.Policy
	logger       zerolog.Logger
	newID        func() string
}

// NewService creates a new chat service; a nil policy uses harness.DefaultPolicy.
func NewService(orchestrator Orchestrator, store ports.ConversationStore, policy *harness.Policy, logger zerolog.Logger) *Service {
	if policy == nil {
		policy = harness.DefaultPolicy()
	}
	return &Service{
		orchestrator: orchestrator,
		store:        store,
		policy:       policy,
		logger:       logger.With().Str("component", "chat").Logger(),
		newID:        uuid.NewString,
	}
}

// GetHistory returns a session's messages oldest first. An unknown or empty
// id yields an empty history.
func (s *Service) GetHistory(ctx context.Context, sessionID string) ([]HistoryEntry, error) {
	entries := []HistoryEntry{}
	if strings.TrimSpace(sessionID) == "" {
		return entries, nil
	}

	turns, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for _, t := range turns {
		role := t.Role
		if role == "assistant" {
			role = RoleAI
		}
		entries = append(entries, HistoryEntry{Role: role, Content: t.Content})
	}
	return entries, nil
}

type clientKeyCtx struct{}

// WithClientKey tags ctx with the caller's identity, typically its address.
// Messages posted without a session id are rate limited on this key.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyCtx{}, key)
}

// ClientKeyFrom returns the key set by WithClientKey, or "".
func ClientKeyFrom(ctx context.Context) string {
	key, _ := ctx.Value(clientKeyCtx{}).(string)
	return key
}

// PostChat answers message within sessionID, creating a session id when none is given.
// Blank messages and rate limiting are returned as-is; everything else is an *InternalError.
func (s *Service) PostChat(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	req := &harness.Request{SessionID: sessionID, Message: message, Policy: s.policy}
	if strings.TrimSpace(sessionID) == "" {
		req.SessionID = s.newID()
		req.ClientKey = ClientKeyFrom(ctx)
		sessionID = req.SessionID
	}

	resp, err := s.orchestrator.Orchestrate(ctx, req)
	switch {
	case errors.Is(err, harness.ErrEmptyMessage), errors.Is(err, harness.ErrRateLimited):
		return nil, err
	case err != nil:
		return nil, &InternalError{SessionID: sessionID, Err: err}
	}

	result := &ChatResult{Response: resp.Text, SessionID: sessionID, Rounds: resp.Rounds}
	for _, tc := range resp.ToolCalls {
		result.Tools = append(result.Tools, tc.Name)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("rounds", resp.Rounds).
		Strs("tools", result.Tools).
		Msg("Chat answered")

	return result, nil
}
