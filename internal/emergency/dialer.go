package emergency

import "context"

// Dialer places the emergency phone call through the host platform.
type Dialer interface {
	PlaceEmergencyCall(ctx context.Context, number string) error
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, number string) error

func (f DialerFunc) PlaceEmergencyCall(ctx context.Context, number string) error {
	return f(ctx, number)
}

type conversationKey struct{}

// WithConversationID tags ctx so a Dialer can route the call to the right client.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, conversationKey{}, conversationID)
}

// ConversationIDFrom returns the conversation a call belongs to.
func ConversationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(conversationKey{}).(string)
	return id, ok && id != ""
}
