package model

import (
	"encoding/json"
	"time"
)

// Severity is the canonical 5-level alert severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Rank returns the ordering value of the severity. Unknown severities rank
// as info.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s ranks at or above threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

// Valid reports whether s is one of the five canonical levels.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// AlertType categorizes an alert by the kind of activity it reflects.
type AlertType string

const (
	AlertPortScan   AlertType = "port_scan"
	AlertBruteForce AlertType = "brute_force"
	AlertDoS        AlertType = "dos"
	AlertWebAttack  AlertType = "web_attack"
	AlertMalware    AlertType = "malware"
	AlertAnomaly    AlertType = "anomaly"
)

// Alert lifecycle statuses. Transitions are explicit status updates only;
// any of the four values may be written over any other.
const (
	StatusOpen          = "open"
	StatusInvestigating = "investigating"
	StatusResolved      = "resolved"
	StatusFalsePositive = "false_positive"
)

// ValidStatus reports whether s is an allowed alert status value.
func ValidStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Event is the canonical normalized record produced from any raw telemetry
// source. Events are immutable once created.
type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message"`
	HostName  string          `json:"host_name,omitempty"`
	Program   string          `json:"program,omitempty"`
	LogSource string          `json:"log_source,omitempty"`
	LogType   string          `json:"log_type,omitempty"`
	Severity  Severity        `json:"severity"`
	SrcIP     string          `json:"src_ip,omitempty"`
	DstIP     string          `json:"dst_ip,omitempty"`
	SrcPort   int             `json:"src_port,omitempty"`
	DstPort   int             `json:"dst_port,omitempty"`
	Protocol  string          `json:"protocol,omitempty"`
	Service   string          `json:"service,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// Alert is a persisted, user-actionable security finding.
type Alert struct {
	ID          string    `json:"id"`
	AlertType   string    `json:"alert_type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SrcIP       string    `json:"src_ip,omitempty"`
	DstIP       string    `json:"dst_ip,omitempty"`
	SrcPort     int       `json:"src_port,omitempty"`
	DstPort     int       `json:"dst_port,omitempty"`
	Protocol    string    `json:"protocol,omitempty"`
	Service     string    `json:"service,omitempty"`
	RuleID      string    `json:"rule_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PacketInfo is the metadata the capture source reports per packet.
type PacketInfo struct {
	Timestamp time.Time `json:"timestamp"`
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	SrcPort   int       `json:"src_port"`
	DstPort   int       `json:"dst_port"`
	Protocol  string    `json:"protocol"`
	Length    int       `json:"length"`
	Flags     string    `json:"flags,omitempty"`
}

// Port is one observed service port on an asset, keyed by (asset, port,
// protocol).
type Port struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Service  string `json:"service,omitempty"`
	Version  string `json:"version,omitempty"`
	State    string `json:"state,omitempty"`
}

// Asset is a discovered network host, keyed by IP address.
type Asset struct {
	ID          string    `json:"id"`
	IPAddress   string    `json:"ip_address"`
	Hostname    string    `json:"hostname,omitempty"`
	MACAddress  string    `json:"mac_address,omitempty"`
	OSType      string    `json:"os_type,omitempty"`
	AssetType   string    `json:"asset_type,omitempty"`
	Criticality string    `json:"criticality"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IsActive    bool      `json:"is_active"`
	Ports       []Port    `json:"ports,omitempty"`
}

// Asset criticality levels.
const (
	CriticalityLow      = "low"
	CriticalityMedium   = "medium"
	CriticalityHigh     = "high"
	CriticalityCritical = "critical"
)

// Network change types recorded by the reconciler.
const (
	ChangeNewHost     = "new_host"
	ChangePortAdded   = "port_added"
	ChangePortRemoved = "port_removed"
)

// NetworkChange is a recorded delta in the asset inventory. Acknowledgment
// is a one-way flip.
type NetworkChange struct {
	ID           string          `json:"id"`
	AssetID      string          `json:"asset_id"`
	ChangeType   string          `json:"change_type"`
	Previous     json.RawMessage `json:"previous,omitempty"`
	Current      json.RawMessage `json:"current,omitempty"`
	DetectedAt   time.Time       `json:"detected_at"`
	Acknowledged bool            `json:"acknowledged"`
}

// ScanRun statuses. Completed and failed are terminal.
const (
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// ScanRun is one execution instance of a network discovery scan.
type ScanRun struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	ScanType    string     `json:"scan_type"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	HostsFound  int        `json:"hosts_found"`
}

// ScanHost is one discovered host in a scan result.
type ScanHost struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	State    string `json:"state,omitempty"`
	OS       string `json:"os,omitempty"`
	Ports    []Port `json:"ports,omitempty"`
}

// ScanResult is the output of one scan execution, consumed by the asset
// reconciler.
type ScanResult struct {
	Target   string     `json:"target"`
	ScanType string     `json:"scan_type"`
	Hosts    []ScanHost `json:"hosts"`
	ScanTime time.Time  `json:"scan_time"`
}
