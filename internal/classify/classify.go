// Package classify maps raw severity indicators and free-text signatures
// onto the canonical severity scale and alert-type categories.
package classify

import (
	"strings"

	"github.com/chinda73971177/soc/internal/model"
)

// severityCodes maps engine-specific numeric severity codes (1 = highest)
// onto the canonical scale.
var severityCodes = map[int]model.Severity{
	1: model.SeverityCritical,
	2: model.SeverityHigh,
	3: model.SeverityMedium,
	4: model.SeverityLow,
}

// keywordEntry pairs a severity level with the keywords that imply it.
// Order matters: critical keywords are checked before high, high before
// medium, and so on. First match wins.
type keywordEntry struct {
	level    model.Severity
	keywords []string
}

var severityKeywords = []keywordEntry{
	{model.SeverityCritical, []string{"critical", "emerg", "panic"}},
	{model.SeverityHigh, []string{"error", "err", "crit", "alert"}},
	{model.SeverityMedium, []string{"warn", "warning"}},
	{model.SeverityLow, []string{"notice"}},
	{model.SeverityInfo, []string{"info", "debug"}},
}

// SeverityFromCode maps a numeric engine severity code to a canonical level.
// Unmapped codes classify as info.
func SeverityFromCode(code int) model.Severity {
	if level, ok := severityCodes[code]; ok {
		return level
	}
	return model.SeverityInfo
}

// SeverityFromText scans text case-insensitively against the ordered keyword
// table. No match classifies as info.
func SeverityFromText(text string) model.Severity {
	lower := strings.ToLower(text)
	for _, entry := range severityKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.level
			}
		}
	}
	return model.SeverityInfo
}

// AlertType classifies a signature into an alert-type category via ordered
// substring checks. A signature containing both "scan" and "malware"
// classifies as port_scan because scan is checked first.
func AlertType(signature string) model.AlertType {
	sig := strings.ToLower(signature)
	switch {
	case strings.Contains(sig, "scan"):
		return model.AlertPortScan
	case strings.Contains(sig, "brute"):
		return model.AlertBruteForce
	case strings.Contains(sig, "flood"), strings.Contains(sig, "dos"):
		return model.AlertDoS
	case strings.Contains(sig, "sql"), strings.Contains(sig, "injection"):
		return model.AlertWebAttack
	case strings.Contains(sig, "malware"), strings.Contains(sig, "trojan"):
		return model.AlertMalware
	}
	return model.AlertAnomaly
}
