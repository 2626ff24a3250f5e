package answers

import (
	"context"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// CustomLister returns a user's own questions in creation order.
type CustomLister interface {
	List(ctx context.Context, userID string) ([]Answer, error)
}

// Resolver maps an utterance to a canned answer. It is only consulted for utterances
// that did not activate the emergency protocol.
type Resolver struct {
	bank   *Bank
	custom CustomLister
	logger *logging.Logger
}

// NewResolver creates a resolver. custom may be nil.
func NewResolver(bank *Bank, custom CustomLister, logger *logging.Logger) *Resolver {
	if bank == nil {
		bank = DefaultBank()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{bank: bank, custom: custom, logger: logger}
}

// Bank returns the predefined bank.
func (r *Resolver) Bank() *Bank { return r.bank }

// Resolve returns the first matching answer: the call shortcut, then the predefined
// bank, then the user's custom questions. A failing custom store is logged and
// treated as no match.
func (r *Resolver) Resolve(ctx context.Context, userID, text string) (*Answer, bool) {
	if crisis.IsShortcut(text) {
		if a, ok := r.bank.Get(CallAnswerID); ok {
			return &a, true
		}
		return &Answer{
			ID:       CallAnswerID,
			Question: lexicon.ReservedShortcut,
			Answer:   "Intentando abrir la marcación para 911.",
			Action:   ActionPlaceCall,
			Source:   SourcePredefined,
		}, true
	}

	normalized := lexicon.Normalize(r.bank.Tag(), text)
	if normalized == "" {
		return nil, false
	}
	if a, ok := r.bank.match(normalized); ok {
		return &a, true
	}

	if r.custom == nil || userID == "" {
		return nil, false
	}
	custom, err := r.custom.List(ctx, userID)
	if err != nil {
		r.logger.Warn("custom questions unavailable", "user_id", userID, "error", err)
		return nil, false
	}
	for _, q := range custom {
		if overlaps(normalized, lexicon.Normalize(r.bank.Tag(), q.Question)) {
			q.Source = SourceCustom
			return &q, true
		}
	}
	return nil, false
}
