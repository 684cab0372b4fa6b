package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Relay subscribes to the event bus and turns pipeline events into operator
// alerts. It is the only bridge between the bus and the notification
// channels; the trading pipeline never talks to senders directly.
type Relay struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRelay creates a Relay forwarding bus events through the notifier.
func NewRelay(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Relay {
	return &Relay{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_relay")),
	}
}

// Run consumes events until ctx is done. It blocks; run it in its own
// goroutine.
func (r *Relay) Run(ctx context.Context) error {
	events, err := r.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if !r.notifier.Wants(e.Type) {
				continue
			}
			if err := r.notifier.Notify(ctx, e.Type, formatEvent(e)); err != nil {
				r.logger.WarnContext(ctx, "notification failed",
					slog.String("event", string(e.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// eventTitles maps event types to operator-facing headlines.
var eventTitles = map[domain.EventType]string{
	domain.EventAgentStarted:   "Agent started",
	domain.EventAgentPaused:    "Agent paused",
	domain.EventAgentResumed:   "Agent resumed",
	domain.EventAgentStopped:   "Agent stopped",
	domain.EventAgentError:     "Agent error",
	domain.EventSignalDetected: "Signal detected",
	domain.EventSignalVerified: "Signal verified",
	domain.EventSignalExpired:  "Signal expired",
	domain.EventSignalRejected: "Signal rejected",
	domain.EventOrderSubmitted: "Order submitted",
	domain.EventOrderFilled:    "Order filled",
	domain.EventOrderFailed:    "Order failed",
	domain.EventOrderCancelled: "Order cancelled",
}

// eventSeverities grades the event types that are not routine flow. Anything
// absent is informational.
var eventSeverities = map[domain.EventType]Severity{
	domain.EventAgentError:     SeverityError,
	domain.EventOrderFailed:    SeverityError,
	domain.EventSignalExpired:  SeverityWarn,
	domain.EventSignalRejected: SeverityWarn,
	domain.EventOrderCancelled: SeverityWarn,
}

// formatEvent renders an event into an alert with key/value body lines.
func formatEvent(e domain.Event) Alert {
	title, ok := eventTitles[e.Type]
	if !ok {
		title = string(e.Type)
	}

	lines := make([]string, 0, len(e.Payload)+1)
	if e.AgentID != "" {
		lines = append(lines, "agent: "+e.AgentID)
	}
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+e.Payload[k])
	}
	return Alert{
		Title:    title,
		Body:     strings.Join(lines, "\n"),
		Severity: eventSeverities[e.Type],
	}
}
