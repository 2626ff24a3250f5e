package webchat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency/emergencytest"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

type discardRecorder struct{}

func (discardRecorder) Record(e audit.Entry) audit.Entry { return e }

type hubFixture struct {
	hub    *Hub
	engine *conversation.Engine
	clock  *emergencytest.Clock
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	hub := NewHub(logging.Discard())
	clock := emergencytest.NewClock(time.Time{})
	engine := conversation.NewEngine(conversation.Deps{
		Emergency: emergency.DefaultSettings(),
		Recorder:  discardRecorder{},
		Dialer:    hub,
		Host:      hub,
		Clock:     clock,
		Logger:    logging.Discard(),
	})
	hub.Bind(engine)

	r := chi.NewRouter()
	r.Get("/v1/conversations/{id}/events", hub.HandleWebSocket)
	server := httptest.NewServer(r)
	t.Cleanup(func() {
		_ = engine.Shutdown(context.Background())
		server.Close()
	})
	return &hubFixture{hub: hub, engine: engine, clock: clock, server: server}
}

func (f *hubFixture) open(t *testing.T) string {
	t.Helper()
	info, err := f.engine.Open(context.Background(), conversation.OpenRequest{})
	require.NoError(t, err)
	return info.ConversationID
}

func (f *hubFixture) dial(t *testing.T, convID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/conversations/" + convID + "/events"
	conn, err := websocket.Dial(url, "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	session := readUntil(t, conn, FrameSession)
	require.NotNil(t, session.Info)
	assert.Equal(t, convID, session.ConversationID)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, frameType string) OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg OutboundMessage
		require.NoError(t, websocket.JSON.Receive(conn, &msg))
		if msg.Type == frameType {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg InboundMessage) {
	t.Helper()
	require.NoError(t, websocket.JSON.Send(conn, msg))
}

func TestHubPingPong(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, f.open(t))

	send(t, conn, InboundMessage{Type: "ping"})
	readUntil(t, conn, FramePong)
}

func TestHubActivationPushesDecisionAndCountdown(t *testing.T) {
	f := newHubFixture(t)
	id := f.open(t)
	conn := f.dial(t, id)

	send(t, conn, InboundMessage{Type: "message", Text: "Quiero morir"})
	emergencyFrame := readUntil(t, conn, FrameEmergency)
	require.NotNil(t, emergencyFrame.Emergency)
	assert.Equal(t, emergency.PhaseCountingDown, emergencyFrame.Emergency.Phase)

	decision := readUntil(t, conn, FrameDecision)
	assert.Equal(t, crisis.DecisionActivateEmergency, decision.Decision)
	require.NotNil(t, decision.State)
	assert.True(t, decision.State.EmergencyActive)

	outcome := readUntil(t, conn, FrameOutcome)
	require.NotNil(t, outcome.Outcome)
	assert.Equal(t, crisis.TierHighPriority, outcome.Outcome.Verdict.Tier)
}

func TestHubCountdownExpirySendsPlaceCall(t *testing.T) {
	f := newHubFixture(t)
	id := f.open(t)
	conn := f.dial(t, id)

	send(t, conn, InboundMessage{Type: "message", Text: "Quiero morir"})
	readUntil(t, conn, FrameOutcome)

	f.clock.Advance(60 * time.Second)
	call := readUntil(t, conn, FramePlaceCall)
	assert.Equal(t, "911", call.Number)
	assert.Equal(t, id, call.ConversationID)

	snap, err := f.engine.Emergency(id)
	require.NoError(t, err)
	assert.Equal(t, emergency.PhaseConnectAttempted, snap.Phase)
	assert.Empty(t, snap.CallError)
}

func TestHubConnectAndCancelCommands(t *testing.T) {
	f := newHubFixture(t)
	id := f.open(t)
	conn := f.dial(t, id)

	send(t, conn, InboundMessage{Type: "message", Text: "Quiero morir"})
	readUntil(t, conn, FrameOutcome)

	send(t, conn, InboundMessage{Type: "connect"})
	call := readUntil(t, conn, FramePlaceCall)
	assert.Equal(t, "911", call.Number)

	send(t, conn, InboundMessage{Type: "cancel"})
	decision := readUntil(t, conn, FrameDecision)
	require.NotNil(t, decision.State)
	assert.False(t, decision.State.EmergencyActive)

	send(t, conn, InboundMessage{Type: "cancel"})
	errFrame := readUntil(t, conn, FrameError)
	assert.Contains(t, errFrame.Text, "no active emergency")
}

func TestHubShortcutSendsPlaceCall(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, f.open(t))

	send(t, conn, InboundMessage{Type: "message", Text: "911"})
	call := readUntil(t, conn, FramePlaceCall)
	assert.Equal(t, "911", call.Number)
	outcome := readUntil(t, conn, FrameOutcome)
	assert.True(t, outcome.Outcome.PlaceCall)
	assert.Empty(t, outcome.Outcome.CallError)
}

func TestHubPredefinedCommand(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, f.open(t))

	send(t, conn, InboundMessage{Type: "predefined", QuestionID: "depression-1"})
	outcome := readUntil(t, conn, FrameOutcome)
	require.NotNil(t, outcome.Outcome.Answer)
	assert.Equal(t, "depression-1", outcome.Outcome.Answer.ID)
}

func TestHubPlaceCallWithoutClient(t *testing.T) {
	hub := NewHub(logging.Discard())
	ctx := emergency.WithConversationID(context.Background(), "conv-1")
	assert.ErrorIs(t, hub.PlaceEmergencyCall(ctx, "911"), ErrNoClient)
	assert.Error(t, hub.PlaceEmergencyCall(context.Background(), "911"))
}

func TestHubCallWithoutClientIsRecordedOnSession(t *testing.T) {
	f := newHubFixture(t)
	id := f.open(t)
	_, err := f.engine.SubmitUtterance(context.Background(), id, "Quiero morir", conversation.SourceTyped)
	require.NoError(t, err)

	snap, err := f.engine.ConnectNow(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, snap.CallError, ErrNoClient.Error())
}

func TestHubUnknownConversation(t *testing.T) {
	f := newHubFixture(t)
	resp, err := http.Get(f.server.URL + "/v1/conversations/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHubUnboundEngine(t *testing.T) {
	hub := NewHub(logging.Discard())
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "conv-1")
	req := httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-1/events", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	hub.HandleWebSocket(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHubNewConnectionReplacesOld(t *testing.T) {
	f := newHubFixture(t)
	id := f.open(t)
	first := f.dial(t, id)
	second := f.dial(t, id)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg OutboundMessage
	assert.Error(t, websocket.JSON.Receive(first, &msg), "replaced connection is closed")

	send(t, second, InboundMessage{Type: "ping"})
	readUntil(t, second, FramePong)
	assert.True(t, f.hub.Connected(id))
}
