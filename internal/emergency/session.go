package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/observability/metrics"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

var (
	// ErrSessionTerminated is returned for commands issued after cancel or close.
	ErrSessionTerminated = errors.New("emergency: session terminated")
	// ErrAlreadyConnected is returned by ConnectNow once a call was attempted.
	ErrAlreadyConnected = errors.New("emergency: call already attempted")
	// ErrCallFailed wraps a dialer failure. The session stays in ConnectAttempted.
	ErrCallFailed = errors.New("emergency: call placement failed")
)

// Recorder accepts audit entries without blocking.
type Recorder interface {
	Record(entry audit.Entry) audit.Entry
}

// Reporter identifies the user the session was opened for. All fields are optional.
type Reporter struct {
	UserID string
	Name   string
	Email  string
}

// Options configures a Session.
type Options struct {
	ConversationID string
	Reason         string
	// Source is how the triggering utterance arrived (typed, voice, predefined).
	Source   string
	Reporter Reporter
	Contact  Contact
	Settings Settings

	Clock    Clock
	Dialer   Dialer
	Recorder Recorder
	Metrics  *metrics.CrisisMetrics
	Logger   *logging.Logger

	// OnUpdate receives a snapshot after every tick and transition.
	OnUpdate func(Snapshot)
	// OnCancelled runs once when the user cancels.
	OnCancelled func()
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	SessionID                 string      `json:"session_id"`
	ConversationID            string      `json:"conversation_id"`
	Phase                     Phase       `json:"phase"`
	Reason                    string      `json:"reason"`
	CountdownSecondsRemaining int         `json:"countdown_seconds_remaining"`
	CountdownTotalSeconds     int         `json:"countdown_total_seconds"`
	Progress                  float64     `json:"progress"`
	CallTrigger               CallTrigger `json:"call_trigger,omitempty"`
	CallError                 string      `json:"call_error,omitempty"`
	AuditID                   string      `json:"audit_id,omitempty"`
	StartedAt                 time.Time   `json:"started_at"`
	Hotlines                  []Hotline   `json:"hotlines"`
}

// Session is one emergency protocol activation. The countdown timer is owned by the
// session and released on every transition out of CountingDown; a generation token
// makes any callback that was already in flight a no-op.
type Session struct {
	id       string
	opts     Options
	settings Settings
	clock    Clock
	logger   *logging.Logger

	mu        sync.Mutex
	phase     Phase
	started   bool
	closed    bool
	startedAt time.Time
	deadline  time.Time
	timer     Timer
	token     uint64
	baseCtx   context.Context
	logged    bool
	auditID   string
	trigger   CallTrigger
	callErr   error
}

// New creates a session in CountingDown. The countdown begins on Start.
func New(opts Options) *Session {
	if opts.Dialer == nil {
		panic("emergency: dialer cannot be nil")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NewRecorder(nil, opts.Logger, opts.Metrics)
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		opts:     opts,
		settings: opts.Settings.withDefaults(),
		clock:    opts.Clock,
		logger:   opts.Logger.With("conversation_id", opts.ConversationID, "emergency_session_id", id),
		phase:    PhaseCountingDown,
		baseCtx:  context.Background(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start arms the countdown and writes the activation audit entry. Calling Start
// again is a no-op. ctx supplies values for the expiry call; its cancellation is ignored.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.phase != PhaseCountingDown {
		s.mu.Unlock()
		return
	}
	s.started = true
	if ctx != nil {
		s.baseCtx = context.WithoutCancel(ctx)
	}
	s.startedAt = s.clock.Now()
	s.deadline = s.startedAt.Add(s.settings.Countdown)
	s.armLocked(s.settings.TickInterval)
	s.mu.Unlock()

	s.opts.Metrics.ObserveSession("started")
	s.logger.Warn("emergency protocol started",
		"countdown_seconds", int(s.settings.Countdown/time.Second),
	)
	s.LogActivation()
	s.emit()
}

// LogActivation writes the audit entry for this activation once. Later calls return
// the same audit id without writing.
func (s *Session) LogActivation() string {
	s.mu.Lock()
	if s.logged {
		id := s.auditID
		s.mu.Unlock()
		return id
	}
	s.logged = true
	entry := audit.Entry{
		ID:                    uuid.NewString(),
		ConversationID:        s.opts.ConversationID,
		SessionID:             s.id,
		UserID:                s.opts.Reporter.UserID,
		UserName:              s.opts.Reporter.Name,
		UserEmail:             s.opts.Reporter.Email,
		EmergencyContactName:  s.opts.Contact.Name,
		EmergencyContactPhone: s.opts.Contact.Phone,
		TriggerReason:         s.opts.Reason,
		Source:                s.opts.Source,
		ActivatedAt:           s.clock.Now().UTC(),
	}
	s.auditID = entry.ID
	s.mu.Unlock()

	s.opts.Recorder.Record(entry)
	return entry.ID
}

// ConnectNow places the call immediately. A dialer failure is returned wrapped in
// ErrCallFailed; the attempt is not retried.
func (s *Session) ConnectNow(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed || s.phase == PhaseCancelled:
		s.mu.Unlock()
		return ErrSessionTerminated
	case s.phase == PhaseConnectAttempted:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.stopLocked()
	unstarted := !s.started
	if unstarted {
		s.started = true
		s.startedAt = s.clock.Now()
		s.deadline = s.startedAt
		if ctx != nil {
			s.baseCtx = context.WithoutCancel(ctx)
		}
	}
	s.phase = PhaseConnectAttempted
	s.trigger = TriggerConnectNow
	s.mu.Unlock()

	// Connecting before Start still counts as the activation.
	if unstarted {
		s.opts.Metrics.ObserveSession("started")
		s.LogActivation()
	}
	if ctx == nil {
		ctx = s.baseCtx
	}
	err := s.dial(ctx, TriggerConnectNow)
	s.emit()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallFailed, err)
	}
	return nil
}

// Cancel dismisses the session. It stops the countdown if still running; a call
// that was already attempted is not retracted.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.closed || s.phase == PhaseCancelled {
		s.mu.Unlock()
		return ErrSessionTerminated
	}
	s.stopLocked()
	from := s.phase
	s.phase = PhaseCancelled
	s.mu.Unlock()

	s.opts.Metrics.ObserveSession("cancelled")
	s.logger.Info("emergency protocol cancelled by user", "from_phase", string(from))
	if s.opts.OnCancelled != nil {
		s.opts.OnCancelled()
	}
	s.emit()
	return nil
}

// Close tears the session down without placing a call or notifying callbacks.
// It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopLocked()
	if s.phase == PhaseCountingDown {
		s.phase = PhaseCancelled
		s.opts.Metrics.ObserveSession("closed")
	}
}

// Snapshot returns the current view. It has no side effects.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.clock.Now())
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	total := int(s.settings.Countdown / time.Second)
	remaining := total
	switch {
	case s.phase == PhaseConnectAttempted:
		remaining = 0
	case s.started:
		remaining = s.remainingLocked(now)
	}

	progress := 0.0
	if total > 0 {
		progress = float64(total-remaining) / float64(total) * 100
	}

	snap := Snapshot{
		SessionID:                 s.id,
		ConversationID:            s.opts.ConversationID,
		Phase:                     s.phase,
		Reason:                    s.opts.Reason,
		CountdownSecondsRemaining: remaining,
		CountdownTotalSeconds:     total,
		Progress:                  progress,
		CallTrigger:               s.trigger,
		AuditID:                   s.auditID,
		StartedAt:                 s.startedAt,
		Hotlines:                  Hotlines(s.settings, s.opts.Contact),
	}
	if s.callErr != nil {
		snap.CallError = s.callErr.Error()
	}
	return snap
}

// remainingLocked rounds up so the display reads 1 until the deadline passes.
func (s *Session) remainingLocked(now time.Time) int {
	left := s.deadline.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (s *Session) armLocked(d time.Duration) {
	s.token++
	token := s.token
	s.timer = s.clock.AfterFunc(d, func() { s.tick(token) })
}

func (s *Session) stopLocked() {
	s.token++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// tick recomputes the countdown from the deadline, so late or missed ticks never
// leave it stuck above zero.
func (s *Session) tick(token uint64) {
	s.mu.Lock()
	if token != s.token || s.closed || s.phase != PhaseCountingDown {
		s.mu.Unlock()
		return
	}
	s.timer = nil

	now := s.clock.Now()
	left := s.deadline.Sub(now)
	if left > 0 {
		next := s.settings.TickInterval
		if left < next {
			next = left
		}
		s.armLocked(next)
		s.mu.Unlock()
		s.emit()
		return
	}

	s.token++
	s.phase = PhaseConnectAttempted
	s.trigger = TriggerCountdown
	ctx := s.baseCtx
	s.mu.Unlock()

	s.logger.Warn("emergency countdown expired, placing call")
	_ = s.dial(ctx, TriggerCountdown)
	s.emit()
}

func (s *Session) dial(ctx context.Context, trigger CallTrigger) error {
	ctx, cancel := context.WithTimeout(WithConversationID(ctx, s.opts.ConversationID), dialTimeout)
	defer cancel()

	number := s.settings.EmergencyNumber
	err := s.opts.Dialer.PlaceEmergencyCall(ctx, number)
	s.opts.Metrics.ObserveCallAttempt(string(trigger), err)
	s.opts.Metrics.ObserveSession("connect_attempted")

	s.mu.Lock()
	s.callErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("emergency call placement failed",
			"trigger", string(trigger),
			"number", number,
			"error", err,
		)
		return err
	}
	s.logger.Warn("emergency call placed", "trigger", string(trigger), "number", number)
	return nil
}

func (s *Session) emit() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.opts.OnUpdate(s.Snapshot())
}
