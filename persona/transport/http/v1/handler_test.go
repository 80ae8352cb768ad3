package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation/ai"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	history  map[string][]ai.HistoryEntry
	postErr  error
	lastID     string
	lastText   string
	lastClient string
}

func (f *fakeChat) GetHistory(_ context.Context, sessionID string) ([]ai.HistoryEntry, error) {
	if h, ok := f.history[sessionID]; ok {
		return h, nil
	}
	return []ai.HistoryEntry{}, nil
}

func (f *fakeChat) PostChat(ctx context.Context, sessionID, message string) (*ai.ChatResult, error) {
	f.lastID, f.lastText = sessionID, message
	f.lastClient = ai.ClientKeyFrom(ctx)
	if f.postErr != nil {
		return nil, f.postErr
	}
	if strings.TrimSpace(message) == "" {
		return nil, ai.ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = "generated"
	}
	return &ai.ChatResult{Response: "Olá! " + message, SessionID: sessionID, Tools: []string{"time-since"}}, nil
}

type fakeMemory struct {
	diag *service.Diagnostics
	err  error
}

func (f *fakeMemory) Diagnostics(context.Context) (*service.Diagnostics, error) {
	return f.diag, f.err
}

type fakeCaps struct{}

func (fakeCaps) GetCapabilities() database.Capabilities {
	return database.Capabilities{Checked: true, Vector: true, CosineDistance: true}
}

func newTestHandler(chat *fakeChat, memory *fakeMemory) *Handler {
	if memory == nil {
		memory = &fakeMemory{diag: &service.Diagnostics{
			Sources:     []service.SourceCount{{Source: "thesis.pdf", Chunks: 3}},
			TotalChunks: 3,
			Dimension:   1536,
			Distance:    "cosine",
		}}
	}
	return NewHandler(chat, memory, fakeCaps{}, zerolog.Nop())
}

func postJSON(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h.PostChat(e.NewContext(req, rec)))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetHistory_UnknownSessionIsEmpty(t *testing.T) {
	h := newTestHandler(&fakeChat{}, nil)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?session_id=nope", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.GetHistory(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history": []}`, rec.Body.String())
}

func TestGetHistory_ReturnsEntries(t *testing.T) {
	h := newTestHandler(&fakeChat{history: map[string][]ai.HistoryEntry{
		"s1": {{Role: ai.RoleUser, Content: "oi"}, {Role: ai.RoleAI, Content: "olá"}},
	}}, nil)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/history?session_id=s1", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.GetHistory(e.NewContext(req, rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history": [{"role":"user","content":"oi"},{"role":"ai","content":"olá"}]}`, rec.Body.String())
}

func TestPostChat_Success(t *testing.T) {
	chat := &fakeChat{}
	rec := postJSON(t, newTestHandler(chat, nil), `{"message":"oi","session_id":"s1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"Olá! oi","session_id":"s1"}`, rec.Body.String())
	assert.Equal(t, "s1", chat.lastID)
}

func TestPostChat_GeneratesSessionID(t *testing.T) {
	rec := postJSON(t, newTestHandler(&fakeChat{}, nil), `{"message":"oi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generated", decode(t, rec)["session_id"])
}

func TestPostChat_PassesClientAddress(t *testing.T) {
	chat := &fakeChat{}
	rec := postJSON(t, newTestHandler(chat, nil), `{"message":"oi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "192.0.2.1", chat.lastClient) // httptest default RemoteAddr
}

func TestPostChat_MissingMessage(t *testing.T) {
	for _, body := range []string{`{}`, `{"message":"   "}`} {
		rec := postJSON(t, newTestHandler(&fakeChat{}, nil), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"message not provided"}`, rec.Body.String())
	}
}

func TestPostChat_InvalidBody(t *testing.T) {
	rec := postJSON(t, newTestHandler(&fakeChat{}, nil), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode(t, rec)["error"])
}

func TestPostChat_RateLimited(t *testing.T) {
	chat := &fakeChat{postErr: fmt.Errorf("%w: %w", harness.ErrRateLimited, errors.New("bucket empty"))}
	rec := postJSON(t, newTestHandler(chat, nil), `{"message":"oi","session_id":"s1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPostChat_InternalError(t *testing.T) {
	chat := &fakeChat{postErr: &ai.InternalError{SessionID: "s1", Err: errors.New("provider call failed: boom")}}
	rec := postJSON(t, newTestHandler(chat, nil), `{"message":"oi","session_id":"s1"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "internal error", body["error"])
	assert.Contains(t, body["details"], "boom")
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeChat{}, nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, h.Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["version"])
	caps, ok := body["capabilities"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, caps["vector"])
	assert.Contains(t, body, "metrics")
}

func TestHealth_Degraded(t *testing.T) {
	h := newTestHandler(&fakeChat{}, &fakeMemory{err: errors.New("database is locked")})
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, h.Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/health", nil), rec)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])
}

func TestDiagnostics(t *testing.T) {
	h := newTestHandler(&fakeChat{}, nil)
	e := echo.New()

	rec := httptest.NewRecorder()
	require.NoError(t, h.Diagnostics(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/diagnostics", nil), rec)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var d service.Diagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Equal(t, 3, d.TotalChunks)
	require.Len(t, d.Sources, 1)
	assert.Equal(t, "thesis.pdf", d.Sources[0].Source)
}
