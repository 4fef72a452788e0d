package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chinda73971177/soc/internal/model"
)

// Matcher evaluates the ordered rule set against packet metadata. The set
// is loaded once and may only grow afterwards; Add appends to the active
// set without restart.
type Matcher struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewMatcher creates a matcher over the given ordered rule set.
func NewMatcher(rules []Rule) *Matcher {
	set := make([]Rule, len(rules))
	copy(set, rules)
	return &Matcher{rules: set}
}

// Match returns all rules whose predicate matches the packet, in table
// order. A single packet can trigger several rules; over-triggering is
// intentional and favors recall.
func (m *Matcher) Match(pkt model.PacketInfo) []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var triggered []Rule
	for _, rule := range m.rules {
		if rule.Protocol != "" && rule.Protocol != pkt.Protocol {
			continue
		}
		if rule.DstPort != 0 && rule.DstPort != pkt.DstPort {
			continue
		}
		if rule.Flags != "" && !strings.Contains(pkt.Flags, rule.Flags) {
			continue
		}
		triggered = append(triggered, rule)
	}
	return triggered
}

// Add appends a rule to the active set.
func (m *Matcher) Add(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, rule)
	return nil
}

// Rules returns a copy of the active rule set.
func (m *Matcher) Rules() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// BuildAlert synthesizes an alert for a rule that matched a packet. Title
// is the rule name, description is templated from the packet 5-tuple.
func BuildAlert(rule Rule, pkt model.PacketInfo) model.Alert {
	now := time.Now().UTC()
	return model.Alert{
		ID:          uuid.NewString(),
		AlertType:   rule.Category,
		Severity:    rule.Severity,
		Title:       rule.Name,
		Description: fmt.Sprintf("%s from %s to %s:%d", rule.Name, pkt.SrcIP, pkt.DstIP, pkt.DstPort),
		SrcIP:       pkt.SrcIP,
		DstIP:       pkt.DstIP,
		SrcPort:     pkt.SrcPort,
		DstPort:     pkt.DstPort,
		Protocol:    pkt.Protocol,
		RuleID:      rule.ID,
		Status:      model.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
