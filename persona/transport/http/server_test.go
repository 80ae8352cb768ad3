package http

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/ai"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	v1 "github.com/ZanzyTHEbar/persona-rag/persona/transport/http/v1"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type echoChat struct{}

func (echoChat) GetHistory(context.Context, string) ([]ai.HistoryEntry, error) {
	return []ai.HistoryEntry{}, nil
}

func (echoChat) PostChat(_ context.Context, sessionID, message string) (*ai.ChatResult, error) {
	return &ai.ChatResult{Response: message, SessionID: sessionID}, nil
}

type emptyMemory struct{}

func (emptyMemory) Diagnostics(context.Context) (*service.Diagnostics, error) {
	return &service.Diagnostics{Sources: []service.SourceCount{}}, nil
}

type noCaps struct{}

func (noCaps) GetCapabilities() database.Capabilities { return database.Capabilities{} }

func newTestServer() *Server {
	cfg := config.ServerConfig{
		Addr:           "127.0.0.1:0",
		CORSOrigins:    []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
	}
	return NewServer(cfg, v1.NewHandler(echoChat{}, emptyMemory{}, noCaps{}, zerolog.Nop()), zerolog.Nop())
}

func TestServer_RoutesAndRequestID(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(nethttp.MethodPost, "/api/chat", strings.NewReader(`{"message":"oi","session_id":"s1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"oi","session_id":"s1"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestServer_CORSAllowsConfiguredOrigin(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(nethttp.MethodOptions, "/api/chat", nil)
	req.Header.Set(echo.HeaderOrigin, "http://localhost:3000")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, nethttp.MethodPost)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServer_CORSRejectsOtherOrigin(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(nethttp.MethodGet, "/api/health", nil)
	req.Header.Set(echo.HeaderOrigin, "http://evil.example")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestServer_UnknownRoute(t *testing.T) {
	s := newTestServer()

	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/api/nope", nil))
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}
