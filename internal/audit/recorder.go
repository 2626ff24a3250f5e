package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/observability/metrics"
	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// Recorder performs fire-and-forget writes to a Sink. Record never blocks on I/O and
// never reports failure to the caller; outcomes are logged and counted.
type Recorder struct {
	sink    Sink
	logger  *logging.Logger
	metrics *metrics.CrisisMetrics
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewRecorder creates a recorder. A nil sink degrades to logging the entry.
func NewRecorder(sink Sink, logger *logging.Logger, m *metrics.CrisisMetrics) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	if sink == nil {
		sink = &LogSink{logger: logger}
	}
	return &Recorder{
		sink:    sink,
		logger:  logger,
		metrics: m,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

// WithTimeout bounds each write.
func (r *Recorder) WithTimeout(d time.Duration) *Recorder {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Record schedules a write and returns immediately with the entry as it will be stored.
func (r *Recorder) Record(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ActivatedAt.IsZero() {
		entry.ActivatedAt = r.now().UTC()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(entry)
	}()
	return entry
}

func (r *Recorder) write(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	err := r.sink.RecordEmergencyActivation(ctx, entry)
	elapsed := time.Since(start).Seconds()

	switch {
	case err == nil:
		r.metrics.ObserveAuditWrite("ok", elapsed)
		r.logger.Info("emergency activation logged",
			"audit_id", entry.ID,
			"conversation_id", entry.ConversationID,
			"anonymous", entry.Anonymous(),
		)
	case errors.Is(err, ErrStoredInFallback):
		r.metrics.ObserveAuditWrite("fallback", elapsed)
		r.logger.Warn("emergency activation logged to fallback",
			"audit_id", entry.ID,
			"conversation_id", entry.ConversationID,
			"error", err,
		)
	default:
		r.metrics.ObserveAuditWrite("failed", elapsed)
		r.logger.Error("emergency activation log failed",
			"audit_id", entry.ID,
			"conversation_id", entry.ConversationID,
			"error", err,
		)
	}
}

// Drain waits for in-flight writes or until ctx is done.
func (r *Recorder) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes entries to the structured log. Used when no store is configured.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink backed by logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordEmergencyActivation(_ context.Context, entry Entry) error {
	s.logger.Warn("emergency activation (no audit store configured)",
		"audit_id", entry.ID,
		"conversation_id", entry.ConversationID,
		"user_id", entry.UserID,
		"trigger_reason", entry.TriggerReason,
		"activated_at", entry.ActivatedAt,
	)
	return nil
}
