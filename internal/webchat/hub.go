// Package webchat pushes engine signals to connected chat clients over a websocket
// and accepts chat commands on the same connection.
package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/conversation"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// ErrNoClient means no websocket is connected for the conversation.
var ErrNoClient = errors.New("webchat: no connected client")

// Engine is the part of the conversation engine the websocket drives.
type Engine interface {
	Info(conversationID string) (*conversation.Info, error)
	SubmitUtterance(ctx context.Context, conversationID, text string, source conversation.Source) (*conversation.Outcome, error)
	SubmitPredefined(ctx context.Context, conversationID, questionID string) (*conversation.Outcome, error)
	ConnectNow(ctx context.Context, conversationID string) (*emergency.Snapshot, error)
	Cancel(ctx context.Context, conversationID string) (crisis.State, error)
}

// Frame types.
const (
	FrameSession   = "session"
	FrameOutcome   = "outcome"
	FrameDecision  = "decision"
	FrameEmergency = "emergency"
	FramePlaceCall = "place_call"
	FrameError     = "error"
	FramePong      = "pong"
)

// InboundMessage is what the chat client sends.
type InboundMessage struct {
	Type       string `json:"type"` // "message", "predefined", "connect", "cancel", "ping"
	Text       string `json:"text,omitempty"`
	Source     string `json:"source,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
}

// OutboundMessage is what we send to the chat client.
type OutboundMessage struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversation_id,omitempty"`
	Info           *conversation.Info    `json:"info,omitempty"`
	Outcome        *conversation.Outcome `json:"outcome,omitempty"`
	Decision       crisis.Decision       `json:"decision,omitempty"`
	State          *crisis.State         `json:"state,omitempty"`
	Emergency      *emergency.Snapshot   `json:"emergency,omitempty"`
	Number         string                `json:"number,omitempty"`
	Text           string                `json:"text,omitempty"`
	Timestamp      string                `json:"timestamp,omitempty"`
}

// Hub tracks one live websocket per conversation. It is the engine's Host and its
// Dialer: a call placement becomes a place_call frame the client turns into a dial.
type Hub struct {
	logger *logging.Logger
	now    func() time.Time

	engineMu sync.RWMutex
	engine   Engine

	mu       sync.RWMutex
	sessions map[string]*wsConn // conversationID -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

func (c *wsConn) send(msg OutboundMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.conn, msg)
}

// NewHub creates a hub. Bind must be called before clients send commands.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*wsConn),
	}
}

// Bind attaches the engine. The engine is built with the hub as its Host and Dialer,
// so it cannot be passed to NewHub.
func (h *Hub) Bind(engine Engine) {
	h.engineMu.Lock()
	h.engine = engine
	h.engineMu.Unlock()
}

func (h *Hub) boundEngine() Engine {
	h.engineMu.RLock()
	defer h.engineMu.RUnlock()
	return h.engine
}

// Connected reports whether a client is attached to the conversation.
func (h *Hub) Connected(conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sessions[conversationID]
	return ok
}

// HandleWebSocket upgrades GET /v1/conversations/{id}/events.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	engine := h.boundEngine()
	if engine == nil {
		http.Error(w, "chat engine unavailable", http.StatusServiceUnavailable)
		return
	}
	info, err := engine.Info(convID)
	if err != nil {
		http.Error(w, "unknown conversation", http.StatusNotFound)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r, engine, info)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request, engine Engine, info *conversation.Info) {
	convID := info.ConversationID

	// Registered before the session frame so a client that has read it can rely on
	// receiving every later push.
	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	previous := h.sessions[convID]
	h.sessions[convID] = wsc
	h.mu.Unlock()
	if previous != nil {
		_ = previous.conn.Close()
	}
	defer func() {
		h.mu.Lock()
		if h.sessions[convID] == wsc {
			delete(h.sessions, convID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	_ = wsc.send(OutboundMessage{Type: FrameSession, ConversationID: convID, Info: info, Timestamp: h.timestamp()})
	h.logger.Info("webchat: connection opened", "conversation_id", convID)

	ctx := r.Context()
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "conversation_id", convID, "error", err)
			return
		}
		h.handleInbound(ctx, engine, wsc, convID, msg)
	}
}

func (h *Hub) handleInbound(ctx context.Context, engine Engine, wsc *wsConn, convID string, msg InboundMessage) {
	var reply OutboundMessage
	switch msg.Type {
	case "ping":
		reply = OutboundMessage{Type: FramePong}
	case "message":
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		out, err := engine.SubmitUtterance(ctx, convID, msg.Text, conversation.ParseSource(msg.Source))
		reply = h.outcomeFrame(convID, out, err)
	case "predefined":
		out, err := engine.SubmitPredefined(ctx, convID, msg.QuestionID)
		reply = h.outcomeFrame(convID, out, err)
	case "connect":
		snap, err := engine.ConnectNow(ctx, convID)
		if err != nil {
			reply = h.errorFrame(convID, err)
			break
		}
		reply = OutboundMessage{Type: FrameEmergency, ConversationID: convID, Emergency: snap}
	case "cancel":
		state, err := engine.Cancel(ctx, convID)
		if err != nil {
			reply = h.errorFrame(convID, err)
			break
		}
		reply = OutboundMessage{Type: FrameDecision, ConversationID: convID, Decision: crisis.DecisionNoOp, State: &state}
	default:
		return
	}
	reply.Timestamp = h.timestamp()
	if err := wsc.send(reply); err != nil {
		h.logger.Debug("webchat: send failed", "conversation_id", convID, "error", err)
	}
}

func (h *Hub) outcomeFrame(convID string, out *conversation.Outcome, err error) OutboundMessage {
	if err != nil {
		return h.errorFrame(convID, err)
	}
	return OutboundMessage{Type: FrameOutcome, ConversationID: convID, Outcome: out}
}

func (h *Hub) errorFrame(convID string, err error) OutboundMessage {
	h.logger.Warn("webchat: command failed", "conversation_id", convID, "error", err)
	return OutboundMessage{Type: FrameError, ConversationID: convID, Text: err.Error()}
}

// SendToSession sends a message to an active websocket session.
func (h *Hub) SendToSession(convID string, msg OutboundMessage) error {
	h.mu.RLock()
	wsc, ok := h.sessions[convID]
	h.mu.RUnlock()
	if !ok {
		return ErrNoClient
	}
	if msg.Timestamp == "" {
		msg.Timestamp = h.timestamp()
	}
	return wsc.send(msg)
}

func (h *Hub) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
