// Package notify delivers operator alerts over Telegram and Discord.
// Notifications fan out to every configured sender and are filtered by
// pipeline event type so operators only see the alerts they asked for.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Severity grades an alert so each channel can render it appropriately:
// Discord colours its embeds, Telegram prefixes a status marker.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

// Alert is one operator notification.
type Alert struct {
	Title    string
	Body     string
	Severity Severity
}

// Sender is one notification channel.
type Sender interface {
	// Send delivers the alert over the channel.
	Send(ctx context.Context, a Alert) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier dispatches alerts to its senders, forwarding only events whose
// type is in the allowed set. An empty set allows everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. With an
// empty events list every event type passes the filter.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether the event type passes the configured filter.
func (n *Notifier) Wants(t domain.EventType) bool {
	return len(n.allowed) == 0 || n.allowed[t]
}

// Notify sends the alert to all senders when the event type passes the
// filter.
func (n *Notifier) Notify(ctx context.Context, t domain.EventType, a Alert) error {
	if !n.Wants(t) {
		return nil
	}
	return n.dispatch(ctx, a)
}

// NotifyAll sends to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, a Alert) error {
	return n.dispatch(ctx, a)
}

// dispatch delivers to every sender. One sender failing does not stop
// delivery to the rest; failures are combined into the returned error.
func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
