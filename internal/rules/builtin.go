package rules

import "github.com/chinda73971177/soc/internal/model"

// builtinRules is the fixed detection table evaluated against live packet
// metadata. Order is preserved in match results.
var builtinRules = []Rule{
	{ID: "R001", Name: "Port Scan Detected", Flags: "S", Severity: model.SeverityHigh, Category: "reconnaissance"},
	{ID: "R002", Name: "SSH Brute Force", Protocol: "TCP", DstPort: 22, Severity: model.SeverityHigh, Category: "brute-force"},
	{ID: "R003", Name: "Telnet Access", Protocol: "TCP", DstPort: 23, Severity: model.SeverityMedium, Category: "suspicious"},
	{ID: "R004", Name: "HTTP Traffic", Protocol: "TCP", DstPort: 80, Severity: model.SeverityInfo, Category: "network"},
	{ID: "R005", Name: "HTTPS Traffic", Protocol: "TCP", DstPort: 443, Severity: model.SeverityInfo, Category: "network"},
	{ID: "R006", Name: "DNS Query", Protocol: "UDP", DstPort: 53, Severity: model.SeverityInfo, Category: "network"},
	{ID: "R007", Name: "FTP Access", Protocol: "TCP", DstPort: 21, Severity: model.SeverityMedium, Category: "suspicious"},
	{ID: "R008", Name: "SMB Traffic", Protocol: "TCP", DstPort: 445, Severity: model.SeverityMedium, Category: "lateral-movement"},
	{ID: "R009", Name: "RDP Access", Protocol: "TCP", DstPort: 3389, Severity: model.SeverityMedium, Category: "remote-access"},
	{ID: "R010", Name: "ICMP Flood Detected", Protocol: "ICMP", Severity: model.SeverityMedium, Category: "dos"},
}

// Builtin returns a copy of the built-in rule table.
func Builtin() []Rule {
	out := make([]Rule, len(builtinRules))
	copy(out, builtinRules)
	return out
}
