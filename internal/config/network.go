package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// NetworkConfig is the operator-editable settings document. It survives
// restarts as a JSON file; keys missing from the file keep their defaults.
type NetworkConfig struct {
	NetworkRange        string `json:"network_range"`
	ScanType            string `json:"scan_type"`
	ScanIntervalMinutes int    `json:"scan_interval_minutes"`
	AutoScanEnabled     bool   `json:"auto_scan_enabled"`
	Interface           string `json:"interface"`
	HomeNet             string `json:"home_net"`
	IDSMode             string `json:"ids_mode"`
	AlertOnNewHost      bool   `json:"alert_on_new_host"`
	AlertOnPortChange   bool   `json:"alert_on_port_change"`
}

// DefaultNetworkConfig returns the settings a fresh deployment starts with.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		NetworkRange:        "192.168.1.0/24",
		ScanType:            "standard",
		ScanIntervalMinutes: 15,
		AutoScanEnabled:     false,
		Interface:           "eth0",
		HomeNet:             "192.168.1.0/24",
		IDSMode:             "ids",
		AlertOnNewHost:      true,
		AlertOnPortChange:   true,
	}
}

// Validate checks the document's value constraints.
func (n NetworkConfig) Validate() error {
	if n.NetworkRange == "" {
		return fmt.Errorf("network_range cannot be empty")
	}
	if n.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("scan_interval_minutes must be positive")
	}
	switch n.ScanType {
	case "quick", "standard", "full", "vuln":
	default:
		return fmt.Errorf("scan_type %q must be one of quick, standard, full, vuln", n.ScanType)
	}
	switch n.IDSMode {
	case "ids", "ips", "off":
	default:
		return fmt.Errorf("ids_mode %q must be one of ids, ips, off", n.IDSMode)
	}
	return nil
}

// NetworkStore persists the network settings document. All methods are safe
// for concurrent use.
type NetworkStore struct {
	mu      sync.RWMutex
	path    string
	current NetworkConfig
}

// NewNetworkStore loads the document at path, merging defaults for any keys
// the file does not carry. A missing file starts from defaults without
// writing anything.
func NewNetworkStore(path string) (*NetworkStore, error) {
	s := &NetworkStore{path: path, current: DefaultNetworkConfig()}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read network config: %w", err)
	}
	// Unmarshal over the defaults: absent keys keep their default values.
	if err := json.Unmarshal(data, &s.current); err != nil {
		return nil, fmt.Errorf("failed to parse network config: %w", err)
	}
	if err := s.current.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network config on disk: %w", err)
	}
	return s, nil
}

// Get returns the current document.
func (s *NetworkStore) Get() NetworkConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies a partial JSON patch over the current document, validates
// the result, and persists it. Fields absent from the patch are unchanged.
func (s *NetworkStore) Update(patch []byte) (NetworkConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if err := json.Unmarshal(patch, &next); err != nil {
		return NetworkConfig{}, fmt.Errorf("failed to parse network config update: %w", err)
	}
	if err := next.Validate(); err != nil {
		return NetworkConfig{}, err
	}
	if err := s.write(next); err != nil {
		return NetworkConfig{}, err
	}
	s.current = next
	return next, nil
}

// write persists the document atomically: full write to a temp file in the
// same directory, then rename.
func (s *NetworkStore) write(cfg NetworkConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode network config: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".network_config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write network config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close network config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace network config: %w", err)
	}
	return nil
}
