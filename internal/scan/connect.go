package scan

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

// quickPorts is the port set probed by quick scans, service names included
// so the inventory carries something useful without banner grabbing.
var quickPorts = []model.Port{
	{Port: 21, Protocol: "tcp", Service: "ftp"},
	{Port: 22, Protocol: "tcp", Service: "ssh"},
	{Port: 23, Protocol: "tcp", Service: "telnet"},
	{Port: 25, Protocol: "tcp", Service: "smtp"},
	{Port: 53, Protocol: "tcp", Service: "dns"},
	{Port: 80, Protocol: "tcp", Service: "http"},
	{Port: 110, Protocol: "tcp", Service: "pop3"},
	{Port: 139, Protocol: "tcp", Service: "netbios"},
	{Port: 143, Protocol: "tcp", Service: "imap"},
	{Port: 443, Protocol: "tcp", Service: "https"},
	{Port: 445, Protocol: "tcp", Service: "smb"},
	{Port: 3306, Protocol: "tcp", Service: "mysql"},
	{Port: 3389, Protocol: "tcp", Service: "rdp"},
	{Port: 5432, Protocol: "tcp", Service: "postgresql"},
	{Port: 8080, Protocol: "tcp", Service: "http-proxy"},
}

// standardExtra widens the quick set for standard scans.
var standardExtra = []model.Port{
	{Port: 111, Protocol: "tcp", Service: "rpcbind"},
	{Port: 135, Protocol: "tcp", Service: "msrpc"},
	{Port: 993, Protocol: "tcp", Service: "imaps"},
	{Port: 995, Protocol: "tcp", Service: "pop3s"},
	{Port: 1433, Protocol: "tcp", Service: "ms-sql"},
	{Port: 5900, Protocol: "tcp", Service: "vnc"},
	{Port: 6379, Protocol: "tcp", Service: "redis"},
	{Port: 8000, Protocol: "tcp", Service: "http-alt"},
	{Port: 8443, Protocol: "tcp", Service: "https-alt"},
	{Port: 27017, Protocol: "tcp", Service: "mongodb"},
}

// fullExtra widens the standard set for full and vuln scans.
var fullExtra = []model.Port{
	{Port: 20, Protocol: "tcp", Service: "ftp-data"},
	{Port: 88, Protocol: "tcp", Service: "kerberos"},
	{Port: 389, Protocol: "tcp", Service: "ldap"},
	{Port: 465, Protocol: "tcp", Service: "smtps"},
	{Port: 587, Protocol: "tcp", Service: "submission"},
	{Port: 636, Protocol: "tcp", Service: "ldaps"},
	{Port: 2049, Protocol: "tcp", Service: "nfs"},
	{Port: 5672, Protocol: "tcp", Service: "amqp"},
	{Port: 9200, Protocol: "tcp", Service: "elasticsearch"},
	{Port: 11211, Protocol: "tcp", Service: "memcached"},
}

// portsFor maps a scan profile to its probe set. Unknown profiles probe the
// standard set; vuln probes the same ports as full.
func portsFor(scanType string) []model.Port {
	ports := make([]model.Port, 0, len(quickPorts)+len(standardExtra)+len(fullExtra))
	ports = append(ports, quickPorts...)
	if scanType == "quick" {
		return ports
	}
	ports = append(ports, standardExtra...)
	if scanType == "full" || scanType == "vuln" {
		ports = append(ports, fullExtra...)
	}
	return ports
}

// ConnectScanner discovers hosts with plain TCP connect probes. It needs no
// raw sockets or external tooling, so it runs unprivileged anywhere.
type ConnectScanner struct {
	timeout     time.Duration
	concurrency int
	dialer      *net.Dialer
}

// NewConnectScanner creates a connect scanner. Non-positive arguments fall
// back to a 500ms probe timeout and 64 parallel probes.
func NewConnectScanner(timeout time.Duration, concurrency int) *ConnectScanner {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	if concurrency <= 0 {
		concurrency = 64
	}
	return &ConnectScanner{
		timeout:     timeout,
		concurrency: concurrency,
		dialer:      &net.Dialer{Timeout: timeout},
	}
}

// Scan probes every address in the target CIDR (or single IP) on the port
// set of the requested profile. A host with at least one open port is
// reported.
func (s *ConnectScanner) Scan(ctx context.Context, target, scanType string) (*model.ScanResult, error) {
	ips, err := expandTarget(target)
	if err != nil {
		return nil, err
	}
	portSet := portsFor(scanType)

	type probe struct {
		ip   string
		port model.Port
	}
	type hit struct {
		ip   string
		port model.Port
	}

	probes := make(chan probe)
	hits := make(chan hit)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range probes {
				addr := net.JoinHostPort(p.ip, strconv.Itoa(p.port.Port))
				conn, err := s.dialer.DialContext(ctx, "tcp", addr)
				if err != nil {
					continue
				}
				conn.Close()
				port := p.port
				port.State = "open"
				hits <- hit{ip: p.ip, port: port}
			}
		}()
	}

	go func() {
		defer close(probes)
		for _, ip := range ips {
			for _, port := range portSet {
				select {
				case probes <- probe{ip: ip, port: port}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(hits)
	}()

	open := map[string][]model.Port{}
	for h := range hits {
		open[h.ip] = append(open[h.ip], h.port)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &model.ScanResult{
		Target:   target,
		ScanType: scanType,
		ScanTime: time.Now().UTC(),
	}
	for _, ip := range ips {
		ports, up := open[ip]
		if !up {
			continue
		}
		host := model.ScanHost{IP: ip, State: "up", Ports: ports}
		if names, err := net.LookupAddr(ip); err == nil && len(names) > 0 {
			host.Hostname = names[0]
		}
		result.Hosts = append(result.Hosts, host)
	}
	return result, nil
}

// expandTarget turns a CIDR or single address into the list of host IPs.
// Network and broadcast addresses of /30 and wider ranges are skipped.
func expandTarget(target string) ([]string, error) {
	if addr, err := netip.ParseAddr(target); err == nil {
		return []string{addr.String()}, nil
	}

	prefix, err := netip.ParsePrefix(target)
	if err != nil {
		return nil, fmt.Errorf("invalid scan target %q: %w", target, err)
	}
	prefix = prefix.Masked()

	var ips []string
	skipEdges := prefix.Addr().Is4() && prefix.Bits() <= 30
	first := prefix.Addr()
	for addr := first; prefix.Contains(addr); addr = addr.Next() {
		ips = append(ips, addr.String())
	}
	if skipEdges && len(ips) > 2 {
		ips = ips[1 : len(ips)-1]
	}
	return ips, nil
}
