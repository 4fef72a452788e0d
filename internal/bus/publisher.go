// Package bus publishes pipeline alerts to NATS so other systems can
// subscribe to the alert stream.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chinda73971177/soc/internal/model"
)

const (
	// DefaultSubject for published alerts
	DefaultSubject = "alerts.created"
	// ConnectTimeout for the initial connection
	ConnectTimeout = 10 * time.Second
)

// Publisher publishes alerts to NATS. Publication is best effort: the
// pipeline never blocks or fails on a bus outage, and the client reconnects
// on its own.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewPublisher connects to NATS. An empty subject uses DefaultSubject.
func NewPublisher(natsURL, subject string, logger *slog.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(natsURL,
		nats.Timeout(ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL, "subject", subject)
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// PublishAlert publishes one alert. Failures are logged, not returned, so
// callers treat the bus as fire-and-forget.
func (p *Publisher) PublishAlert(alert model.Alert) {
	data, err := json.Marshal(alert)
	if err != nil {
		p.logger.Error("failed to marshal alert", "alert_id", alert.ID, "error", err)
		return
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("x-alert-id", alert.ID)
	msg.Header.Set("x-severity", string(alert.Severity))
	msg.Header.Set("x-alert-type", alert.AlertType)

	if err := p.conn.PublishMsg(msg); err != nil {
		p.logger.Error("failed to publish alert", "alert_id", alert.ID, "error", err)
		return
	}
	p.logger.Debug("alert published", "alert_id", alert.ID, "subject", p.subject)
}

// IsReady reports whether the connection is currently up.
func (p *Publisher) IsReady() bool {
	return p.conn != nil && p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.logger.Info("NATS publisher closed")
}
