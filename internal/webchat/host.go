package webchat

import (
	"context"
	"fmt"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
)

// OnEscalationDecision pushes every decision so the client can show or hide the
// emergency overlay.
func (h *Hub) OnEscalationDecision(conversationID string, decision crisis.Decision, state crisis.State) {
	err := h.SendToSession(conversationID, OutboundMessage{
		Type:           FrameDecision,
		ConversationID: conversationID,
		Decision:       decision,
		State:          &state,
	})
	if err != nil && decision == crisis.DecisionActivateEmergency {
		h.logger.Warn("webchat: emergency activation not delivered", "conversation_id", conversationID, "error", err)
	}
}

// OnEmergencyUpdate pushes countdown ticks and phase changes.
func (h *Hub) OnEmergencyUpdate(conversationID string, snapshot emergency.Snapshot) {
	_ = h.SendToSession(conversationID, OutboundMessage{
		Type:           FrameEmergency,
		ConversationID: conversationID,
		Emergency:      &snapshot,
	})
}

// PlaceEmergencyCall asks the connected client to open its dialer. Without a client
// the call cannot be placed and the caller falls back to showing the number.
func (h *Hub) PlaceEmergencyCall(ctx context.Context, number string) error {
	convID, ok := emergency.ConversationIDFrom(ctx)
	if !ok {
		return fmt.Errorf("webchat: place call: missing conversation id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.SendToSession(convID, OutboundMessage{
		Type:           FramePlaceCall,
		ConversationID: convID,
		Number:         number,
	}); err != nil {
		return fmt.Errorf("webchat: place call: %w", err)
	}
	h.logger.Info("webchat: place_call sent", "conversation_id", convID, "number", number)
	return nil
}
