// Package emergency owns the emergency protocol session: the countdown, the
// call placement and the one audit entry written per activation.
package emergency

import "time"

const (
	DefaultCountdown       = 60 * time.Second
	DefaultTickInterval    = time.Second
	DefaultEmergencyNumber = "911"
	DefaultSuicideHotline  = "988"

	dialTimeout = 10 * time.Second
)

// Settings are the tunable session parameters.
type Settings struct {
	Countdown       time.Duration
	TickInterval    time.Duration
	EmergencyNumber string
	SuicideHotline  string
}

// DefaultSettings returns the product defaults.
func DefaultSettings() Settings {
	return Settings{
		Countdown:       DefaultCountdown,
		TickInterval:    DefaultTickInterval,
		EmergencyNumber: DefaultEmergencyNumber,
		SuicideHotline:  DefaultSuicideHotline,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Countdown <= 0 {
		s.Countdown = DefaultCountdown
	}
	if s.TickInterval <= 0 {
		s.TickInterval = DefaultTickInterval
	}
	if s.TickInterval > s.Countdown {
		s.TickInterval = s.Countdown
	}
	if s.EmergencyNumber == "" {
		s.EmergencyNumber = DefaultEmergencyNumber
	}
	if s.SuicideHotline == "" {
		s.SuicideHotline = DefaultSuicideHotline
	}
	return s
}

// Phase is the session lifecycle position.
type Phase string

const (
	PhaseCountingDown     Phase = "counting_down"
	PhaseConnectAttempted Phase = "connect_attempted"
	PhaseCancelled        Phase = "cancelled"
)

// Terminal reports whether the countdown is over.
func (p Phase) Terminal() bool {
	return p == PhaseConnectAttempted || p == PhaseCancelled
}

// CallTrigger records what caused a call placement.
type CallTrigger string

const (
	TriggerCountdown  CallTrigger = "countdown"
	TriggerConnectNow CallTrigger = "connect_now"
	TriggerShortcut   CallTrigger = "shortcut"
)
