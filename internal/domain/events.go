package domain

import (
	"context"
	"time"
)

// EventType names a pipeline occurrence published on the event bus.
type EventType string

const (
	EventAgentStarted   EventType = "agent.started"
	EventAgentPaused    EventType = "agent.paused"
	EventAgentResumed   EventType = "agent.resumed"
	EventAgentStopped   EventType = "agent.stopped"
	EventAgentError     EventType = "agent.error"
	EventSignalDetected EventType = "signal.detected"
	EventSignalVerified EventType = "signal.verified"
	EventSignalExpired  EventType = "signal.expired"
	EventSignalRejected EventType = "signal.rejected"
	EventOrderSubmitted EventType = "order.submitted"
	EventOrderFilled    EventType = "order.filled"
	EventOrderFailed    EventType = "order.failed"
	EventOrderCancelled EventType = "order.cancelled"
)

// Event is a pipeline notification. Payload keys are small and flat so the
// bus can serialise them into stream fields.
type Event struct {
	Type      EventType         `json:"type"`
	AgentID   string            `json:"agent_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]string `json:"payload,omitempty"`
}

func NewEvent(t EventType, agentID string, payload map[string]string) Event {
	return Event{Type: t, AgentID: agentID, Timestamp: time.Now().UTC(), Payload: payload}
}

// EventBus fans events out to interested consumers. Publish must not block
// the pipeline; bus failures are logged, never fatal.
type EventBus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, types ...EventType) (<-chan Event, error)
	Close() error
}
