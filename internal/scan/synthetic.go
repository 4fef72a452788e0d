package scan

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

// SyntheticScanner fabricates a plausible discovery result for demo
// deployments where probing the network is not possible or not wanted.
type SyntheticScanner struct{}

// NewSyntheticScanner creates a synthetic scanner.
func NewSyntheticScanner() *SyntheticScanner {
	return &SyntheticScanner{}
}

var syntheticHosts = []model.ScanHost{
	{Hostname: "gateway", OS: "linux", Ports: []model.Port{
		{Port: 53, Protocol: "tcp", Service: "dns", State: "open"},
		{Port: 80, Protocol: "tcp", Service: "http", State: "open"},
	}},
	{Hostname: "web-01", OS: "linux", Ports: []model.Port{
		{Port: 22, Protocol: "tcp", Service: "ssh", State: "open"},
		{Port: 80, Protocol: "tcp", Service: "http", State: "open"},
		{Port: 443, Protocol: "tcp", Service: "https", State: "open"},
	}},
	{Hostname: "db-01", OS: "linux", Ports: []model.Port{
		{Port: 22, Protocol: "tcp", Service: "ssh", State: "open"},
		{Port: 5432, Protocol: "tcp", Service: "postgresql", State: "open"},
	}},
	{Hostname: "files", OS: "windows", Ports: []model.Port{
		{Port: 139, Protocol: "tcp", Service: "netbios", State: "open"},
		{Port: 445, Protocol: "tcp", Service: "smb", State: "open"},
		{Port: 3389, Protocol: "tcp", Service: "rdp", State: "open"},
	}},
	{Hostname: "printer", OS: "", Ports: []model.Port{
		{Port: 9100, Protocol: "tcp", Service: "jetdirect", State: "open"},
	}},
}

// Scan returns a fixed host set addressed inside the target range.
func (s *SyntheticScanner) Scan(_ context.Context, target, scanType string) (*model.ScanResult, error) {
	base := "192.168.1."
	if prefix, err := netip.ParsePrefix(target); err == nil {
		addr := prefix.Masked().Addr()
		if addr.Is4() {
			b := addr.As4()
			base = fmt.Sprintf("%d.%d.%d.", b[0], b[1], b[2])
		}
	}

	result := &model.ScanResult{
		Target:   target,
		ScanType: scanType,
		ScanTime: time.Now().UTC(),
	}
	for i, h := range syntheticHosts {
		host := h
		host.IP = fmt.Sprintf("%s%d", base, i+1)
		host.State = "up"
		result.Hosts = append(result.Hosts, host)
	}
	return result, nil
}
