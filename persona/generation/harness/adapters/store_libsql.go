package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
)

// LibSQLConversationStore implements ConversationStore over the chat_sessions and chat_messages tables.
type LibSQLConversationStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewLibSQLConversationStore creates a new LibSQL conversation store.
func NewLibSQLConversationStore(db *sql.DB) *LibSQLConversationStore {
	return &LibSQLConversationStore{db: db, now: time.Now}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *LibSQLConversationStore) ensureSession(ctx context.Context, ex execer, sessionID string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT OR IGNORE INTO chat_sessions (id, created_at) VALUES (?, ?)`,
		sessionID, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to ensure session %s: %w", sessionID, err)
	}
	return nil
}

// EnsureSession creates the session row if it does not exist yet.
func (s *LibSQLConversationStore) EnsureSession(ctx context.Context, sessionID string) error {
	return s.ensureSession(ctx, s.db, sessionID)
}

// AppendTurns writes the turns in order inside one transaction.
func (s *LibSQLConversationStore) AppendTurns(ctx context.Context, sessionID string, turns ...ports.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.ensureSession(ctx, tx, sessionID); err != nil {
			return err
		}
		for _, turn := range turns {
			if turn.Role != "user" && turn.Role != "assistant" {
				return fmt.Errorf("invalid turn role %q", turn.Role)
			}
			created := turn.CreatedAt
			if created.IsZero() {
				created = s.now()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
				sessionID, turn.Role, turn.Content, created.UnixMilli()); err != nil {
				return fmt.Errorf("failed to save turn: %w", err)
			}
		}
		return nil
	})
}

// SaveTurn saves a single turn.
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, sessionID string, turn ports.Turn) error {
	return s.AppendTurns(ctx, sessionID, turn)
}

// LoadContext loads the last k turns for a session, oldest first.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, sessionID string, k int) ([]ports.Turn, error) {
	if k <= 0 {
		return nil, nil
	}
	turns, err := s.query(ctx, `
		SELECT role, content, created_at FROM chat_messages
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?`, sessionID, k)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order (oldest first)
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// History returns every stored turn of the session in creation order.
func (s *LibSQLConversationStore) History(ctx context.Context, sessionID string) ([]ports.Turn, error) {
	return s.query(ctx, `
		SELECT role, content, created_at FROM chat_messages
		WHERE session_id = ?
		ORDER BY seq ASC`, sessionID)
}

func (s *LibSQLConversationStore) query(ctx context.Context, query string, args ...any) ([]ports.Turn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []ports.Turn{}
	for rows.Next() {
		var (
			turn    ports.Turn
			created int64
		)
		if err := rows.Scan(&turn.Role, &turn.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt = time.UnixMilli(created)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
