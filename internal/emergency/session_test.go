package emergency_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/audit"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency"
	"github.com/wolfman30/mentalcare-crisis-engine/internal/emergency/emergencytest"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

type fakeDialer struct {
	mu      sync.Mutex
	numbers []string
	err     error
	called  chan struct{}
}

func (d *fakeDialer) PlaceEmergencyCall(_ context.Context, number string) error {
	d.mu.Lock()
	d.numbers = append(d.numbers, number)
	d.mu.Unlock()
	if d.called != nil {
		d.called <- struct{}{}
	}
	return d.err
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.numbers)
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *fakeRecorder) Record(entry audit.Entry) audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return entry
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type sessionHarness struct {
	clock     *emergencytest.Clock
	dialer    *fakeDialer
	recorder  *fakeRecorder
	cancelled int
	updates   []emergency.Snapshot
	session   *emergency.Session
}

func newHarness(t *testing.T, mutate func(*emergency.Options)) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		clock:    emergencytest.NewClock(time.Time{}),
		dialer:   &fakeDialer{},
		recorder: &fakeRecorder{},
	}
	opts := emergency.Options{
		ConversationID: "conv-1",
		Reason:         `Direct statement: "Quiero morir"`,
		Source:         "typed",
		Settings:       emergency.DefaultSettings(),
		Clock:          h.clock,
		Dialer:         h.dialer,
		Recorder:       h.recorder,
		Logger:         logging.Discard(),
		OnUpdate:       func(s emergency.Snapshot) { h.updates = append(h.updates, s) },
		OnCancelled:    func() { h.cancelled++ },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.session = emergency.New(opts)
	return h
}

func (h *sessionHarness) tick(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(time.Second)
	}
}

func TestSessionCountdownExpiryPlacesCallOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())

	snap := h.session.Snapshot()
	assert.Equal(t, emergency.PhaseCountingDown, snap.Phase)
	assert.Equal(t, 60, snap.CountdownSecondsRemaining)

	h.tick(59)
	snap = h.session.Snapshot()
	assert.Equal(t, emergency.PhaseCountingDown, snap.Phase)
	assert.Equal(t, 1, snap.CountdownSecondsRemaining)
	assert.Equal(t, 0, h.dialer.calls())

	h.tick(1)
	snap = h.session.Snapshot()
	assert.Equal(t, emergency.PhaseConnectAttempted, snap.Phase)
	assert.Equal(t, emergency.TriggerCountdown, snap.CallTrigger)
	assert.Equal(t, 0, snap.CountdownSecondsRemaining)
	assert.Equal(t, []string{"911"}, h.dialer.numbers)
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, h.dialer.calls())
	assert.Equal(t, emergency.PhaseConnectAttempted, h.session.Snapshot().Phase)
}

func TestSessionCancelAtTickTen(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	h.tick(10)

	require.NoError(t, h.session.Cancel())
	assert.Equal(t, emergency.PhaseCancelled, h.session.Snapshot().Phase)
	assert.Equal(t, 1, h.cancelled)
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(5 * time.Minute)
	assert.Equal(t, 0, h.dialer.calls())
	assert.Equal(t, emergency.PhaseCancelled, h.session.Snapshot().Phase)
}

func TestSessionConnectNowStopsCountdown(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	h.tick(5)

	require.NoError(t, h.session.ConnectNow(context.Background()))
	snap := h.session.Snapshot()
	assert.Equal(t, emergency.PhaseConnectAttempted, snap.Phase)
	assert.Equal(t, emergency.TriggerConnectNow, snap.CallTrigger)
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.dialer.calls())

	assert.ErrorIs(t, h.session.ConnectNow(context.Background()), emergency.ErrAlreadyConnected)
	assert.Equal(t, 1, h.dialer.calls())
}

func TestSessionConnectNowBeforeStartLogsActivation(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.session.ConnectNow(context.Background()))
	assert.Equal(t, 1, h.recorder.count())
	assert.Equal(t, 1, h.dialer.calls())

	snap := h.session.Snapshot()
	assert.Equal(t, emergency.PhaseConnectAttempted, snap.Phase)
	assert.NotEmpty(t, snap.AuditID)
	assert.Equal(t, h.clock.Now(), snap.StartedAt)

	h.session.Start(context.Background())
	assert.Zero(t, h.clock.Pending(), "a late Start does not arm a countdown")
	assert.Equal(t, 1, h.recorder.count())
	assert.Equal(t, 1, h.dialer.calls())
}

func TestSessionCancelAfterConnectDismisses(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	require.NoError(t, h.session.ConnectNow(context.Background()))

	require.NoError(t, h.session.Cancel())
	assert.Equal(t, emergency.PhaseCancelled, h.session.Snapshot().Phase)
	assert.Equal(t, 1, h.dialer.calls(), "cancel does not retract the call")

	assert.ErrorIs(t, h.session.Cancel(), emergency.ErrSessionTerminated)
	assert.ErrorIs(t, h.session.ConnectNow(context.Background()), emergency.ErrSessionTerminated)
	assert.Equal(t, 1, h.cancelled)
}

func TestSessionStaleCallbackIsIgnored(t *testing.T) {
	capture := &capturingClock{Clock: emergencytest.NewClock(time.Time{})}
	h := newHarness(t, func(o *emergency.Options) { o.Clock = capture })
	h.session.Start(context.Background())
	require.Len(t, capture.callbacks, 1)

	require.NoError(t, h.session.Cancel())

	capture.Clock.Advance(2 * time.Minute)
	for _, f := range capture.callbacks {
		f()
	}
	assert.Equal(t, emergency.PhaseCancelled, h.session.Snapshot().Phase)
	assert.Equal(t, 0, h.dialer.calls())
}

func TestSessionLateTicksStillReachZero(t *testing.T) {
	lagging := &laggingClock{Clock: emergencytest.NewClock(time.Time{}), lag: 2 * time.Second}
	h := newHarness(t, func(o *emergency.Options) { o.Clock = lagging })
	h.session.Start(context.Background())

	lagging.Clock.Advance(61 * time.Second)
	assert.Equal(t, emergency.PhaseConnectAttempted, h.session.Snapshot().Phase)
	assert.Equal(t, 1, h.dialer.calls())
}

func TestSessionLogsActivationExactlyOnce(t *testing.T) {
	h := newHarness(t, func(o *emergency.Options) {
		o.Reporter = emergency.Reporter{UserID: "user-1", Name: "Ana", Email: "ana@example.com"}
		o.Contact = emergency.Contact{Name: "Luis", Phone: "+525555555555"}
	})

	h.session.Start(context.Background())
	h.session.Start(context.Background())
	first := h.session.LogActivation()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, h.session.LogActivation())
		_ = h.session.Snapshot()
	}

	require.Equal(t, 1, h.recorder.count())
	entry := h.recorder.entries[0]
	assert.Equal(t, first, entry.ID)
	assert.Equal(t, "conv-1", entry.ConversationID)
	assert.Equal(t, h.session.ID(), entry.SessionID)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, "Luis", entry.EmergencyContactName)
	assert.Equal(t, `Direct statement: "Quiero morir"`, entry.TriggerReason)
	assert.Equal(t, "typed", entry.Source)
	assert.Equal(t, h.clock.Now(), entry.ActivatedAt)
	assert.Equal(t, first, h.session.Snapshot().AuditID)
}

func TestSessionFailingAuditSinkDoesNotBlockCall(t *testing.T) {
	rec := audit.NewRecorder(failingSink{}, logging.Discard(), nil)
	h := newHarness(t, func(o *emergency.Options) { o.Recorder = rec })

	h.session.Start(context.Background())
	h.tick(60)

	assert.Equal(t, 1, h.dialer.calls())
	assert.Equal(t, emergency.PhaseConnectAttempted, h.session.Snapshot().Phase)
	require.NoError(t, rec.Drain(context.Background()))
}

func TestSessionDialerFailureIsReportedNotRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.err = errors.New("dial refused")
	h.session.Start(context.Background())

	err := h.session.ConnectNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, emergency.ErrCallFailed)

	snap := h.session.Snapshot()
	assert.Equal(t, emergency.PhaseConnectAttempted, snap.Phase)
	assert.Equal(t, "dial refused", snap.CallError)
	assert.Len(t, snap.Hotlines, 2, "numbers stay visible for manual dialing")

	h.clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, h.dialer.calls())
}

func TestSessionSnapshotProgress(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	h.tick(15)

	snap := h.session.Snapshot()
	assert.Equal(t, 45, snap.CountdownSecondsRemaining)
	assert.Equal(t, 60, snap.CountdownTotalSeconds)
	assert.InDelta(t, 25.0, snap.Progress, 0.001)
	assert.Equal(t, "conv-1", snap.ConversationID)
}

func TestSessionEmitsUpdates(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	h.tick(3)
	require.NoError(t, h.session.Cancel())

	require.Len(t, h.updates, 5)
	assert.Equal(t, 60, h.updates[0].CountdownSecondsRemaining)
	assert.Equal(t, 57, h.updates[3].CountdownSecondsRemaining)
	assert.Equal(t, emergency.PhaseCancelled, h.updates[4].Phase)
}

func TestSessionCloseTearsDownSilently(t *testing.T) {
	h := newHarness(t, nil)
	h.session.Start(context.Background())
	h.tick(30)

	h.session.Close()
	h.session.Close()
	assert.Zero(t, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 0, h.dialer.calls())
	assert.Equal(t, 0, h.cancelled)
	assert.ErrorIs(t, h.session.Cancel(), emergency.ErrSessionTerminated)
	assert.ErrorIs(t, h.session.ConnectNow(context.Background()), emergency.ErrSessionTerminated)
}

func TestSessionCustomCountdown(t *testing.T) {
	h := newHarness(t, func(o *emergency.Options) {
		o.Settings = emergency.Settings{Countdown: 10 * time.Second, EmergencyNumber: "112"}
	})
	h.session.Start(context.Background())
	h.tick(10)
	assert.Equal(t, []string{"112"}, h.dialer.numbers)
}

func TestSessionWithSystemClock(t *testing.T) {
	dialer := &fakeDialer{called: make(chan struct{}, 1)}
	s := emergency.New(emergency.Options{
		ConversationID: "conv-real",
		Settings:       emergency.Settings{Countdown: 50 * time.Millisecond, TickInterval: 10 * time.Millisecond},
		Dialer:         dialer,
		Recorder:       &fakeRecorder{},
		Logger:         logging.Discard(),
	})
	s.Start(context.Background())

	select {
	case <-dialer.called:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never placed the call")
	}
	assert.Eventually(t, func() bool {
		return s.Snapshot().Phase == emergency.PhaseConnectAttempted
	}, time.Second, 5*time.Millisecond)
}

func TestNewRequiresDialer(t *testing.T) {
	assert.Panics(t, func() { emergency.New(emergency.Options{}) })
}

func TestDialerFunc(t *testing.T) {
	var got string
	d := emergency.DialerFunc(func(_ context.Context, number string) error {
		got = number
		return nil
	})
	require.NoError(t, d.PlaceEmergencyCall(context.Background(), "911"))
	assert.Equal(t, "911", got)
}

type failingSink struct{}

func (failingSink) RecordEmergencyActivation(context.Context, audit.Entry) error {
	return errors.New("database unavailable")
}

// capturingClock keeps every callback so a test can fire it after Stop.
type capturingClock struct {
	*emergencytest.Clock
	callbacks []func()
}

func (c *capturingClock) AfterFunc(d time.Duration, f func()) emergency.Timer {
	c.callbacks = append(c.callbacks, f)
	return c.Clock.AfterFunc(d, f)
}

// laggingClock delivers every callback late.
type laggingClock struct {
	*emergencytest.Clock
	lag time.Duration
}

func (c *laggingClock) AfterFunc(d time.Duration, f func()) emergency.Timer {
	return c.Clock.AfterFunc(d+c.lag, f)
}

func TestSessionDialCarriesConversationID(t *testing.T) {
	var got string
	h := newHarness(t, func(o *emergency.Options) {
		o.Dialer = emergency.DialerFunc(func(ctx context.Context, _ string) error {
			got, _ = emergency.ConversationIDFrom(ctx)
			return nil
		})
	})
	h.session.Start(context.Background())
	require.NoError(t, h.session.ConnectNow(context.Background()))
	assert.Equal(t, "conv-1", got)
}
