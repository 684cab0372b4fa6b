package domain

import "time"

// SignalStatus tracks the signal lifecycle. Legal transitions:
//
//	DETECTED -> VERIFIED | EXPIRED | REJECTED
//	VERIFIED -> EXECUTED | EXPIRED
//
// All other states are terminal. A signal never reaches EXECUTED without
// passing through VERIFIED.
type SignalStatus string

const (
	SignalDetected SignalStatus = "detected"
	SignalVerified SignalStatus = "verified"
	SignalExecuted SignalStatus = "executed"
	SignalExpired  SignalStatus = "expired"
	SignalRejected SignalStatus = "rejected"
)

// signalTransitions enumerates the legal signal state machine edges.
var signalTransitions = map[SignalStatus][]SignalStatus{
	SignalDetected: {SignalVerified, SignalExpired, SignalRejected},
	SignalVerified: {SignalExecuted, SignalExpired},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SignalStatus) CanTransitionTo(next SignalStatus) bool {
	for _, t := range signalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing edges.
func (s SignalStatus) Terminal() bool {
	return len(signalTransitions[s]) == 0
}

// Signal is a detected mispricing opportunity and its record through
// verification and execution. Terminal signals are immutable history.
type Signal struct {
	ID       string
	AgentID  string
	MarketID string

	PredictedOutcome Outcome
	EntryPrice       float64 // (0,1)
	ExpectedPayout   float64 // 1.0 for binary markets
	ProfitMargin     float64 // (ExpectedPayout - EntryPrice) / EntryPrice

	Confidence         float64 // [0,1], set by verification
	VerificationSource string
	Reasoning          string

	Status     SignalStatus
	DetectedAt time.Time
	ExecutedAt *time.Time
	ExpiredAt  *time.Time
}

// Transition moves the signal to next, stamping the matching timestamp.
// It returns ErrInvalidTransition if the edge is not legal.
func (s *Signal) Transition(next SignalStatus, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	s.Status = next
	switch next {
	case SignalExecuted:
		t := now
		s.ExecutedAt = &t
	case SignalExpired, SignalRejected:
		t := now
		s.ExpiredAt = &t
	}
	return nil
}
