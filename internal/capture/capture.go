// Package capture runs the live detection loop: packets from a source are
// matched against the rule table and matching packets become alerts.
package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/rules"
)

// PacketSource produces packet metadata until the context is cancelled.
// Implementations close the returned channel when they stop.
type PacketSource interface {
	Packets(ctx context.Context) (<-chan model.PacketInfo, error)
}

// Sink handles one alert produced by the loop: persist it, gate it,
// dispatch notifications.
type Sink func(ctx context.Context, alert model.Alert)

// DefaultQueueSize bounds the alert queue between the match loop and the
// sink worker.
const DefaultQueueSize = 256

// Engine couples a packet source to the rule matcher. The queue between
// matching and the sink is bounded; when the sink falls behind, the match
// loop blocks rather than dropping or buffering without limit.
type Engine struct {
	source  PacketSource
	matcher *rules.Matcher
	sink    Sink
	queue   chan model.Alert
	logger  *slog.Logger
}

// NewEngine creates a capture engine. A non-positive queueSize uses
// DefaultQueueSize.
func NewEngine(source PacketSource, matcher *rules.Matcher, sink Sink, queueSize int, logger *slog.Logger) *Engine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Engine{
		source:  source,
		matcher: matcher,
		sink:    sink,
		queue:   make(chan model.Alert, queueSize),
		logger:  logger,
	}
}

// Run processes packets until ctx is cancelled, then drains the queue and
// returns. The packet being evaluated when cancellation arrives is always
// finished first.
func (e *Engine) Run(ctx context.Context) error {
	packets, err := e.source.Packets(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// The sink keeps draining after cancellation so queued alerts
		// are never lost on shutdown.
		for alert := range e.queue {
			e.sink(context.WithoutCancel(ctx), alert)
		}
	}()

	e.logger.Info("capture engine started", "rules", len(e.matcher.Rules()))
	for pkt := range packets {
		e.handlePacket(ctx, pkt)
	}
	close(e.queue)
	wg.Wait()
	e.logger.Info("capture engine stopped")
	return nil
}

func (e *Engine) handlePacket(ctx context.Context, pkt model.PacketInfo) {
	for _, rule := range e.matcher.Match(pkt) {
		alert := rules.BuildAlert(rule, pkt)
		select {
		case e.queue <- alert:
		default:
			// Queue full: block for back-pressure, but give up if
			// shutdown arrives while waiting.
			select {
			case e.queue <- alert:
			case <-ctx.Done():
				e.logger.Warn("dropping alert on shutdown", "rule_id", rule.ID)
			}
		}
	}
}
