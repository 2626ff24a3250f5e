package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const fallbackTimeout = 2 * time.Second

// FallbackSink writes to primary and, when that fails for any reason, to fallback.
type FallbackSink struct {
	primary  Sink
	fallback Sink
}

// NewFallbackSink chains two sinks. fallback may be nil.
func NewFallbackSink(primary, fallback Sink) *FallbackSink {
	if primary == nil {
		panic("audit: primary sink required")
	}
	return &FallbackSink{primary: primary, fallback: fallback}
}

func (s *FallbackSink) RecordEmergencyActivation(ctx context.Context, entry Entry) error {
	err := s.primary.RecordEmergencyActivation(ctx, entry)
	if err == nil {
		return nil
	}
	if s.fallback == nil {
		return err
	}
	// The primary may have used up the caller's deadline.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
	defer cancel()
	if ferr := s.fallback.RecordEmergencyActivation(fctx, entry); ferr != nil {
		return errors.Join(err, ferr)
	}
	return fmt.Errorf("%w: primary: %v", ErrStoredInFallback, err)
}
