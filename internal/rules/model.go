package rules

import (
	"fmt"

	"github.com/chinda73971177/soc/internal/model"
)

// Rule is a static predicate over packet metadata. Empty Protocol matches
// any protocol, zero DstPort matches any destination port, empty Flags
// matches any flag set; a non-empty Flags value matches when it is a
// substring of the packet's flag string.
type Rule struct {
	ID       string         `yaml:"id" json:"id"`
	Name     string         `yaml:"name" json:"name"`
	Protocol string         `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	DstPort  int            `yaml:"dst_port,omitempty" json:"dst_port,omitempty"`
	Flags    string         `yaml:"flags,omitempty" json:"flags,omitempty"`
	Severity model.Severity `yaml:"severity" json:"severity"`
	Category string         `yaml:"category" json:"category"`
}

// Validate checks the fields a rule must carry to be usable.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule %s: name is required", r.ID)
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.DstPort < 0 || r.DstPort > 65535 {
		return fmt.Errorf("rule %s: destination port %d out of range", r.ID, r.DstPort)
	}
	return nil
}
