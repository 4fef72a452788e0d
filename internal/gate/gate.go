// Package gate decides notification fan-out: it suppresses repeat
// notifications for the same alert identity and enforces per-channel
// minimum-severity thresholds.
package gate

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chinda73971177/soc/internal/model"
)

// DefaultNotifiedCap bounds the notified-identity set. Eviction is exact
// bounded recency: once the cap is reached the least recently inserted
// identities are dropped first.
const DefaultNotifiedCap = 10000

// ChannelThresholds maps channel name to the minimum severity an alert must
// reach to be eligible on that channel.
type ChannelThresholds map[string]model.Severity

// Gate is the process-wide dedup and threshold filter. It is shared by the
// capture loop and the polling tasks; all methods are safe for concurrent
// use and none of them block on I/O.
type Gate struct {
	mu         sync.Mutex
	notified   *lru.Cache[string, time.Time]
	thresholds ChannelThresholds
}

// New creates a gate with the given per-channel thresholds and notified-set
// capacity. A non-positive cap uses DefaultNotifiedCap.
func New(thresholds ChannelThresholds, cap int) (*Gate, error) {
	if cap <= 0 {
		cap = DefaultNotifiedCap
	}
	cache, err := lru.New[string, time.Time](cap)
	if err != nil {
		return nil, fmt.Errorf("failed to create notified set: %w", err)
	}
	return &Gate{notified: cache, thresholds: thresholds}, nil
}

// Eligible returns the channels an alert with the given identity and
// severity may be dispatched to. An identity already in the notified set is
// suppressed on every channel. When at least one channel is eligible the
// identity is recorded, so later calls for the same identity return nothing.
func (g *Gate) Eligible(identity string, severity model.Severity) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, seen := g.notified.Get(identity); seen {
		return nil
	}

	var channels []string
	for name, threshold := range g.thresholds {
		if severity.AtLeast(threshold) {
			channels = append(channels, name)
		}
	}
	if len(channels) > 0 {
		g.notified.Add(identity, time.Now().UTC())
	}
	return channels
}

// EligibleOn reports whether the alert clears the threshold of one specific
// channel, with the same dedup and recording behavior as Eligible.
func (g *Gate) EligibleOn(channel, identity string, severity model.Severity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	threshold, ok := g.thresholds[channel]
	if !ok {
		return false
	}
	if _, seen := g.notified.Get(identity); seen {
		return false
	}
	if !severity.AtLeast(threshold) {
		return false
	}
	g.notified.Add(identity, time.Now().UTC())
	return true
}

// Seen reports whether the identity is currently in the notified set.
func (g *Gate) Seen(identity string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, seen := g.notified.Get(identity)
	return seen
}

// Len returns the current cardinality of the notified set.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notified.Len()
}

// Identity derives the dedup identity for an alert: the rule and flow that
// produced it, independent of the stored alert row id.
func Identity(a model.Alert) string {
	return fmt.Sprintf("%s:%s:%s:%d", a.RuleID, a.SrcIP, a.DstIP, a.DstPort)
}
