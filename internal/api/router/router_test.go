package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency/emergencytest"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/mentalcare-crisis-engine/internal/http/middleware"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/observability/metrics"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/webchat"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

const testAdminSecret = "test-secret"

type memoryAuditStore struct {
	entries []audit.Entry
}

func (s *memoryAuditStore) List(context.Context, audit.Filter) ([]audit.Entry, error) {
	return s.entries, nil
}

type routerFixture struct {
	handler http.Handler
	engine  *conversation.Engine
	clock   *emergencytest.Clock
	logs    *memoryAuditStore
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	logger := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewCrisisMetrics(reg)
	clock := emergencytest.NewClock(time.Time{})
	hub := webchat.NewHub(logger)
	custom := answers.NewMemoryCustomStore()
	settings := emergency.DefaultSettings()

	engine := conversation.NewEngine(conversation.Deps{
		Emergency: settings,
		Custom:    custom,
		Recorder:  audit.NewRecorder(audit.NewLogSink(logger), logger, m),
		Dialer:    hub,
		Host:      hub,
		Clock:     clock,
		Metrics:   m,
		Logger:    logger,
	})
	hub.Bind(engine)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	logs := &memoryAuditStore{entries: []audit.Entry{{ID: "log-1", ConversationID: "conv-1", TriggerReason: "quiero morir"}}}
	h := New(&Config{
		Logger:             logger,
		Conversations:      handlers.NewConversationsHandler(engine, logger),
		Questions:          handlers.NewQuestionsHandler(nil, custom, logger),
		Hotlines:           handlers.NewHotlinesHandler(settings),
		EmergencyLogs:      handlers.NewAdminEmergencyLogsHandler(logs, nil, logger),
		Events:             hub.HandleWebSocket,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AdminAuthSecret:    testAdminSecret,
		CORSAllowedOrigins: []string{"https://chat.example.com"},
		QuestionWrites:     httpmiddleware.NewRateLimiter(0, 2),
	})
	return &routerFixture{handler: h, engine: engine, clock: clock, logs: logs}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterConversationFlow(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/conversations", handlers.OpenConversationRequest{ConversationID: "conv-1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/conversations/conv-1/messages", handlers.MessageRequest{Text: "quiero morir"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out conversation.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Emergency)

	rec = f.do(t, http.MethodGet, "/v1/conversations/conv-1/emergency", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/conversations/conv-1/emergency/cancel", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/conversations/conv-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouterHotlinesAndMetrics(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/hotlines", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "988")

	f.do(t, http.MethodPost, "/v1/conversations", handlers.OpenConversationRequest{ConversationID: "conv-m"}, nil)
	f.do(t, http.MethodPost, "/v1/conversations/conv-m/messages", handlers.MessageRequest{Text: "hola"}, nil)

	rec = f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mentalcare_crisis_verdicts_total")
}

func TestRouterQuestionWritesAreRateLimited(t *testing.T) {
	f := newRouterFixture(t)
	body := handlers.CreateQuestionRequest{Question: "¿Qué hago?", Answer: "Respira."}

	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/users/u-1/questions", body, nil).Code)
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/v1/users/u-1/questions", body, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/v1/users/u-1/questions", body, nil).Code)

	rec := f.do(t, http.MethodGet, "/v1/users/u-1/questions", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, "reads are not throttled")
	var list handlers.QuestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Custom, 2)
}

func TestRouterAdminLogsRequireToken(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/emergency-logs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "reviewer",
		Audience:  jwt.ClaimStrings{httpmiddleware.AdminAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte(testAdminSecret))
	require.NoError(t, err)

	rec = f.do(t, http.MethodGet, "/admin/emergency-logs", nil, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.EmergencyLogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, "log-1", resp.Logs[0].ID)
}

func TestRouterCORSPreflight(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodOptions, "/v1/conversations", nil, http.Header{
		"Origin":                        {"https://chat.example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://chat.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterEventsWebsocket(t *testing.T) {
	f := newRouterFixture(t)
	server := httptest.NewServer(f.handler)
	t.Cleanup(server.Close)

	_, err := f.engine.Open(context.Background(), conversation.OpenRequest{ConversationID: "conv-ws"})
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/conversations/conv-ws/events"
	conn, err := websocket.Dial(url, "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg webchat.OutboundMessage
	require.NoError(t, websocket.JSON.Receive(conn, &msg))
	assert.Equal(t, webchat.FrameSession, msg.Type)
	assert.Equal(t, "conv-ws", msg.ConversationID)
}
