// Package notify delivers alert notifications over external channels.
// Delivery is best effort: a channel failure is logged and never propagates
// into the pipeline that raised the alert.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chinda73971177/soc/internal/gate"
	"github.com/chinda73971177/soc/internal/model"
)

// Channel is one delivery target. Implementations must be safe for
// concurrent use.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert model.Alert) error
}

// SendTimeout bounds one delivery attempt.
const SendTimeout = 10 * time.Second

// Dispatcher fans an alert out to every configured channel the gate admits.
type Dispatcher struct {
	channels map[string]Channel
	gate     *gate.Gate
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given channels. Nil channels
// are skipped, so callers can pass constructors that return nil when
// credentials are absent.
func NewDispatcher(g *gate.Gate, logger *slog.Logger, channels ...Channel) *Dispatcher {
	byName := make(map[string]Channel)
	for _, ch := range channels {
		if ch == nil {
			continue
		}
		byName[ch.Name()] = ch
	}
	return &Dispatcher{channels: byName, gate: g, logger: logger}
}

// Channels returns the names of the configured channels.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for name := range d.channels {
		names = append(names, name)
	}
	return names
}

// Dispatch sends the alert to every channel the gate admits for it and
// returns the names of the channels that accepted delivery. Gate bookkeeping
// happens before delivery, so a failed send is not retried for the same
// alert identity.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) []string {
	identity := gate.Identity(alert)
	var delivered []string
	for _, name := range d.gate.Eligible(identity, alert.Severity) {
		ch, ok := d.channels[name]
		if !ok {
			continue
		}
		sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
		err := ch.Send(sendCtx, alert)
		cancel()
		if err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", name, "alert_id", alert.ID, "error", err)
			continue
		}
		delivered = append(delivered, name)
	}
	return delivered
}

// TestChannel sends a synthetic test alert to one named channel, bypassing
// the gate. Used by the channel-test endpoints.
func (d *Dispatcher) TestChannel(ctx context.Context, name string) error {
	ch, ok := d.channels[name]
	if !ok {
		return fmt.Errorf("channel %q is not configured", name)
	}
	now := time.Now().UTC()
	alert := model.Alert{
		ID:          "test",
		AlertType:   string(model.AlertAnomaly),
		Severity:    model.SeverityInfo,
		Title:       "Notification Channel Test",
		Description: "This is a test notification.",
		Status:      model.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sendCtx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()
	return ch.Send(sendCtx, alert)
}

// formatAlert renders the shared notification text.
func formatAlert(alert model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(alert.Severity)), alert.Title)
	if alert.Description != "" {
		b.WriteString(alert.Description)
		b.WriteByte('\n')
	}
	if alert.SrcIP != "" {
		fmt.Fprintf(&b, "Source: %s\n", alert.SrcIP)
	}
	if alert.DstIP != "" {
		if alert.DstPort > 0 {
			fmt.Fprintf(&b, "Destination: %s:%d\n", alert.DstIP, alert.DstPort)
		} else {
			fmt.Fprintf(&b, "Destination: %s\n", alert.DstIP)
		}
	}
	if alert.RuleID != "" {
		fmt.Fprintf(&b, "Rule: %s\n", alert.RuleID)
	}
	fmt.Fprintf(&b, "Time: %s", alert.CreatedAt.Format(time.RFC3339))
	return b.String()
}
