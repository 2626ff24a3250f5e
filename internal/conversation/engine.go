package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/answers"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/lexicon"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/observability/metrics"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// InvariantDoubleActivation is reported when an activation arrives for a
// conversation that still owns a live emergency session.
const InvariantDoubleActivation = "double_activation"

// Deps wires the engine. Dialer is required; everything else has a default.
type Deps struct {
	Lexicons          *lexicon.Registry
	Policy            crisis.Policy
	MaxUtteranceRunes int
	Emergency         emergency.Settings

	Resolver *answers.Resolver
	Fallback *answers.Fallback
	Custom   answers.CustomLister
	States   StateStore
	Recorder emergency.Recorder
	Dialer   emergency.Dialer
	Host     Host
	Clock    emergency.Clock
	Metrics  *metrics.CrisisMetrics
	Logger   *logging.Logger

	// OnInvariantViolation receives logic defects. The default logs and counts them.
	OnInvariantViolation func(kind, conversationID string)
}

// Engine owns every open conversation. Events for one conversation are applied one
// at a time; different conversations never share state.
type Engine struct {
	lexicons  *lexicon.Registry
	policy    crisis.Policy
	maxRunes  int
	settings  emergency.Settings
	resolver  *answers.Resolver
	fallback  *answers.Fallback
	custom    answers.CustomLister
	states    StateStore
	recorder  emergency.Recorder
	dialer    emergency.Dialer
	host      Host
	clock     emergency.Clock
	metrics   *metrics.CrisisMetrics
	logger    *logging.Logger
	violation func(kind, conversationID string)
	tracer    trace.Tracer

	mu    sync.RWMutex
	convs map[string]*conversation
}

type conversation struct {
	mu      sync.Mutex
	id      string
	profile Profile
	state   crisis.State
	session *emergency.Session
	closed  bool
}

// NewEngine creates an engine.
func NewEngine(deps Deps) *Engine {
	if deps.Dialer == nil {
		panic("conversation: dialer cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Lexicons == nil {
		reg, err := lexicon.NewRegistry("es", lexicon.Default())
		if err != nil {
			panic(err)
		}
		deps.Lexicons = reg
	}
	if deps.Resolver == nil {
		deps.Resolver = answers.NewResolver(nil, deps.Custom, deps.Logger)
	}
	if deps.Fallback == nil {
		deps.Fallback = answers.NewFallback("", deps.Emergency)
	}
	if deps.States == nil {
		deps.States = NewMemoryStateStore()
	}
	if deps.Host == nil {
		deps.Host = NopHost{}
	}
	if deps.Clock == nil {
		deps.Clock = emergency.SystemClock
	}

	e := &Engine{
		lexicons:  deps.Lexicons,
		policy:    deps.Policy,
		maxRunes:  deps.MaxUtteranceRunes,
		settings:  deps.Emergency,
		resolver:  deps.Resolver,
		fallback:  deps.Fallback,
		custom:    deps.Custom,
		states:    deps.States,
		recorder:  deps.Recorder,
		dialer:    deps.Dialer,
		host:      deps.Host,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		violation: deps.OnInvariantViolation,
		tracer:    otel.Tracer("mentalcare/crisis-engine"),
		convs:     make(map[string]*conversation),
	}
	if e.violation == nil {
		e.violation = e.logViolation
	}
	return e
}

// Open starts a conversation or resumes one by id. A resumed state that claims an
// active emergency without a live session is reset, since the countdown cannot be
// recovered after a restart.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (*Info, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.open")
	defer span.End()

	id := strings.TrimSpace(req.ConversationID)
	if id == "" {
		id = uuid.NewString()
	}
	span.SetAttributes(attribute.String("conversation.id", id))

	e.mu.Lock()
	conv, exists := e.convs[id]
	if exists {
		e.mu.Unlock()
		conv.mu.Lock()
		defer conv.mu.Unlock()
		conv.profile = mergeProfile(conv.profile, req.Profile)
		return e.infoLocked(conv), nil
	}
	// Locked before publishing so no event can see the unloaded state.
	conv = &conversation{id: id, profile: req.Profile}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	e.convs[id] = conv
	e.mu.Unlock()

	state, found, err := e.states.Load(ctx, id)
	if err != nil {
		e.logger.Warn("conversation state unavailable, starting fresh", "conversation_id", id, "error", err)
	}
	if found && state.EmergencyActive {
		e.logger.Warn("dropping stale emergency state without a live session", "conversation_id", id)
		state = state.Deactivate()
	}
	conv.state = state
	e.saveState(ctx, conv)

	e.logger.Info("conversation opened", "conversation_id", id, "resumed", found)
	return e.infoLocked(conv), nil
}

// SubmitUtterance runs one user message through the crisis pipeline.
func (e *Engine) SubmitUtterance(ctx context.Context, conversationID, text string, source Source) (*Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyUtterance
	}
	conv, err := e.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	return e.process(ctx, conv, text, source, nil)
}

// SubmitPredefined runs a tapped predefined or custom question through the same
// pipeline as typed text. Without an activation the question's own answer is used.
func (e *Engine) SubmitPredefined(ctx context.Context, conversationID, questionID string) (*Outcome, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return nil, err
	}

	q, ok := e.resolver.Bank().Get(questionID)
	if !ok && e.custom != nil {
		conv.mu.Lock()
		userID := conv.profile.UserID
		conv.mu.Unlock()
		if userID != "" {
			custom, err := e.custom.List(ctx, userID)
			if err != nil {
				return nil, err
			}
			for _, c := range custom {
				if c.ID == questionID {
					q, ok = c, true
					q.Source = answers.SourceCustom
					break
				}
			}
		}
	}
	if !ok {
		return nil, answers.ErrQuestionNotFound
	}
	return e.process(ctx, conv, q.Question, SourcePredefined, &q)
}

func (e *Engine) process(ctx context.Context, conv *conversation, text string, source Source, preset *answers.Answer) (*Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.submit_utterance")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conv.id),
		attribute.String("utterance.source", string(source)),
	)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.closed {
		return nil, ErrUnknownConversation
	}

	wasActive := conv.state.EmergencyActive
	lex := e.lexicons.Get(conv.profile.Language)
	verdict := crisis.NewClassifier(lex, e.maxRunes).Classify(text)
	e.metrics.ObserveVerdict(string(verdict.Tier))

	next, decision := crisis.Transition(conv.state, verdict, text, e.policy)
	e.metrics.ObserveDecision(string(decision))
	span.SetAttributes(
		attribute.String("crisis.tier", string(verdict.Tier)),
		attribute.String("crisis.decision", string(decision)),
	)
	e.logger.Debug("utterance classified",
		"conversation_id", conv.id,
		"tier", string(verdict.Tier),
		"matched_phrase", verdict.MatchedPhrase,
		"decision", string(decision),
	)

	out := &Outcome{ConversationID: conv.id, Verdict: verdict, Decision: decision}

	if decision == crisis.DecisionActivateEmergency {
		if conv.session != nil {
			e.violation(InvariantDoubleActivation, conv.id)
		} else {
			conv.state = next
			conv.session = e.newSession(conv, next.TriggerReason, source)
			conv.session.Start(ctx)
			e.logger.Warn("emergency protocol activated",
				"conversation_id", conv.id,
				"tier", string(verdict.Tier),
				"consecutive_general_crisis_count", next.ConsecutiveGeneralCrisisCount,
			)
		}
	} else {
		conv.state = next
	}
	e.saveState(ctx, conv)
	e.host.OnEscalationDecision(conv.id, decision, conv.state)

	switch {
	case wasActive:
		// The running session owns the only call; answers and the shortcut stay off.
		out.Reply = e.fallback.CrisisReply()
	case decision == crisis.DecisionActivateEmergency:
		out.Reply = e.fallback.Reply(text, verdict.Tier)
	case verdict.Tier == crisis.TierNone:
		if preset != nil && preset.Action != answers.ActionPlaceCall {
			out.Answer = preset
		} else if a, ok := e.resolver.Resolve(ctx, conv.profile.UserID, text); ok {
			out.Answer = a
		}
		if out.Answer != nil {
			out.Reply = out.Answer.Answer
		} else {
			out.Reply = e.fallback.Reply(text, verdict.Tier)
		}
	default:
		out.Reply = e.fallback.Reply(text, verdict.Tier)
	}

	if out.Answer != nil && out.Answer.Action == answers.ActionPlaceCall {
		out.PlaceCall = true
		if err := e.placeShortcutCall(ctx, conv.id); err != nil {
			out.CallError = err.Error()
			span.SetStatus(codes.Error, "shortcut call failed")
		}
	}

	out.State = conv.state
	if conv.session != nil {
		snap := conv.session.Snapshot()
		out.Emergency = &snap
	}
	return out, nil
}

// ConnectNow skips the countdown and places the call.
func (e *Engine) ConnectNow(ctx context.Context, conversationID string) (*emergency.Snapshot, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.session == nil {
		return nil, ErrNoActiveEmergency
	}

	err = conv.session.ConnectNow(ctx)
	snap := conv.session.Snapshot()
	if err != nil && !errors.Is(err, emergency.ErrCallFailed) {
		return &snap, err
	}
	return &snap, nil
}

// Cancel dismisses the emergency and returns the conversation to idle.
func (e *Engine) Cancel(ctx context.Context, conversationID string) (crisis.State, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return crisis.State{}, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.session == nil {
		return conv.state, ErrNoActiveEmergency
	}

	if err := conv.session.Cancel(); err != nil && !errors.Is(err, emergency.ErrSessionTerminated) {
		return conv.state, err
	}
	conv.session = nil
	conv.state = conv.state.Deactivate()
	e.saveState(ctx, conv)
	e.host.OnEscalationDecision(conv.id, crisis.DecisionNoOp, conv.state)
	return conv.state, nil
}

// Emergency returns the live session view.
func (e *Engine) Emergency(conversationID string) (*emergency.Snapshot, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.session == nil {
		return nil, ErrNoActiveEmergency
	}
	snap := conv.session.Snapshot()
	return &snap, nil
}

// State returns the escalation state.
func (e *Engine) State(conversationID string) (crisis.State, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return crisis.State{}, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.state, nil
}

// Info describes an open conversation.
func (e *Engine) Info(conversationID string) (*Info, error) {
	conv, err := e.lookup(conversationID)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return e.infoLocked(conv), nil
}

// Close ends a conversation. A running countdown is torn down without a call.
func (e *Engine) Close(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	conv, ok := e.convs[conversationID]
	delete(e.convs, conversationID)
	e.mu.Unlock()
	if !ok {
		return ErrUnknownConversation
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	e.teardownLocked(conv)
	if err := e.states.Delete(ctx, conv.id); err != nil {
		e.logger.Warn("failed to delete conversation state", "conversation_id", conv.id, "error", err)
	}
	e.logger.Info("conversation closed", "conversation_id", conv.id)
	return nil
}

// Shutdown tears down every conversation. Persisted state is kept.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	convs := e.convs
	e.convs = make(map[string]*conversation)
	e.mu.Unlock()

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return err
		}
		conv.mu.Lock()
		e.teardownLocked(conv)
		conv.mu.Unlock()
	}
	e.logger.Info("conversation engine stopped", "conversations", len(convs))
	return nil
}

func (e *Engine) teardownLocked(conv *conversation) {
	conv.closed = true
	if conv.session != nil {
		conv.session.Close()
		conv.session = nil
	}
}

func (e *Engine) lookup(id string) (*conversation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conv, ok := e.convs[id]
	if !ok {
		return nil, ErrUnknownConversation
	}
	return conv, nil
}

func (e *Engine) newSession(conv *conversation, reason string, source Source) *emergency.Session {
	id := conv.id
	return emergency.New(emergency.Options{
		ConversationID: id,
		Reason:         reason,
		Source:         string(source),
		Reporter: emergency.Reporter{
			UserID: conv.profile.UserID,
			Name:   conv.profile.Name,
			Email:  conv.profile.Email,
		},
		Contact:  conv.profile.Contact,
		Settings: e.settings,
		Clock:    e.clock,
		Dialer:   e.dialer,
		Recorder: e.recorder,
		Metrics:  e.metrics,
		Logger:   e.logger,
		OnUpdate: func(s emergency.Snapshot) { e.host.OnEmergencyUpdate(id, s) },
	})
}

func (e *Engine) placeShortcutCall(ctx context.Context, conversationID string) error {
	number := e.settings.EmergencyNumber
	if number == "" {
		number = emergency.DefaultEmergencyNumber
	}
	err := e.dialer.PlaceEmergencyCall(emergency.WithConversationID(ctx, conversationID), number)
	e.metrics.ObserveCallAttempt(string(emergency.TriggerShortcut), err)
	if err != nil {
		e.logger.Error("shortcut call placement failed", "conversation_id", conversationID, "error", err)
		return err
	}
	e.logger.Warn("shortcut call placed", "conversation_id", conversationID, "number", number)
	return nil
}

func (e *Engine) saveState(ctx context.Context, conv *conversation) {
	if err := e.states.Save(ctx, conv.id, conv.state); err != nil {
		e.logger.Warn("failed to persist conversation state", "conversation_id", conv.id, "error", err)
	}
}

func (e *Engine) infoLocked(conv *conversation) *Info {
	lex := e.lexicons.Get(conv.profile.Language)
	return &Info{
		ConversationID: conv.id,
		Language:       lex.Language(),
		LexiconVersion: lex.Version(),
		State:          conv.state,
		Hotlines:       emergency.Hotlines(e.settings, conv.profile.Contact),
	}
}

func (e *Engine) logViolation(kind, conversationID string) {
	e.metrics.ObserveInvariantViolation(kind)
	e.logger.Error("crisis engine invariant violated", "kind", kind, "conversation_id", conversationID)
}

func mergeProfile(current, update Profile) Profile {
	if update.UserID != "" {
		current.UserID = update.UserID
	}
	if update.Name != "" {
		current.Name = update.Name
	}
	if update.Email != "" {
		current.Email = update.Email
	}
	if update.Language != "" {
		current.Language = update.Language
	}
	if update.Contact.Name != "" || update.Contact.Phone != "" {
		current.Contact = update.Contact
	}
	return current
}
