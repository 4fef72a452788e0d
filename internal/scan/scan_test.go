package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinda73971177/soc/internal/assets"
	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeScanner struct {
	result *model.ScanResult
	err    error
}

func (f *fakeScanner) Scan(_ context.Context, target, scanType string) (*model.ScanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.Target = target
	res.ScanType = scanType
	return &res, nil
}

func newRunner(t *testing.T, scanner Scanner) (*Runner, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(0)
	rec := assets.NewReconciler(mem, mem, nil, assets.Options{}, testLogger())
	return NewRunner(scanner, mem, rec, testLogger()), mem
}

func TestRunnerCompletesScan(t *testing.T) {
	ctx := context.Background()
	scanner := &fakeScanner{result: &model.ScanResult{
		Hosts: []model.ScanHost{
			{IP: "192.168.1.10", Ports: []model.Port{{Port: 22, Protocol: "tcp"}}},
			{IP: "192.168.1.11"},
		},
		ScanTime: time.Now().UTC(),
	}}
	r, mem := newRunner(t, scanner)

	run, err := r.Start(ctx, "192.168.1.0/24", "quick")
	require.NoError(t, err)
	assert.Equal(t, model.ScanRunning, run.Status)
	r.Wait()

	final, err := mem.GetScan(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanCompleted, final.Status)
	assert.Equal(t, 2, final.HostsFound)
	require.NotNil(t, final.CompletedAt)

	// The result was reconciled into the inventory.
	asset, err := mem.GetAssetByIP(ctx, "192.168.1.10")
	require.NoError(t, err)
	assert.Len(t, asset.Ports, 1)
}

func TestRunnerMarksFailure(t *testing.T) {
	ctx := context.Background()
	r, mem := newRunner(t, &fakeScanner{err: errors.New("probe refused")})

	run, err := r.Start(ctx, "192.168.1.0/24", "quick")
	require.NoError(t, err)
	r.Wait()

	final, err := mem.GetScan(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ScanFailed, final.Status)
	require.NotNil(t, final.CompletedAt)
	assert.Zero(t, final.HostsFound)
}

func TestRunnerRejectsEmptyTarget(t *testing.T) {
	r, _ := newRunner(t, &fakeScanner{result: &model.ScanResult{}})
	_, err := r.Start(context.Background(), "", "quick")
	assert.Error(t, err)
}

func TestRunnerRunSynchronous(t *testing.T) {
	ctx := context.Background()
	scanner := &fakeScanner{result: &model.ScanResult{
		Hosts:    []model.ScanHost{{IP: "192.168.1.20"}},
		ScanTime: time.Now().UTC(),
	}}
	r, mem := newRunner(t, scanner)

	require.NoError(t, r.Run(ctx, "192.168.1.0/24", ""))

	runs, err := mem.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.ScanCompleted, runs[0].Status)
	assert.Equal(t, "standard", runs[0].ScanType)
}

func TestRunnerRunReportsFailure(t *testing.T) {
	r, _ := newRunner(t, &fakeScanner{err: errors.New("down")})
	assert.Error(t, r.Run(context.Background(), "192.168.1.0/24", "quick"))
}

func TestExpandTarget(t *testing.T) {
	single, err := expandTarget("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, single)

	subnet, err := expandTarget("192.168.1.0/30")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.1", "192.168.1.2"}, subnet)

	slash24, err := expandTarget("192.168.1.0/24")
	require.NoError(t, err)
	assert.Len(t, slash24, 254)
	assert.Equal(t, "192.168.1.1", slash24[0])
	assert.Equal(t, "192.168.1.254", slash24[253])

	_, err = expandTarget("not-a-range")
	assert.Error(t, err)
}

func TestPortsForProfiles(t *testing.T) {
	quick := portsFor("quick")
	standard := portsFor("standard")
	full := portsFor("full")

	assert.Len(t, quick, len(quickPorts))
	assert.Greater(t, len(standard), len(quick))
	assert.Greater(t, len(full), len(standard))

	// vuln probes the same ports as full; unknown profiles get standard.
	assert.Equal(t, full, portsFor("vuln"))
	assert.Equal(t, standard, portsFor("stealth"))

	// Every wider profile keeps the narrower profile's ports.
	for _, p := range quick {
		assert.Contains(t, standard, p)
	}
	for _, p := range standard {
		assert.Contains(t, full, p)
	}
}

func TestSyntheticScannerAddressesInTarget(t *testing.T) {
	s := NewSyntheticScanner()
	res, err := s.Scan(context.Background(), "10.1.2.0/24", "quick")
	require.NoError(t, err)
	require.NotEmpty(t, res.Hosts)
	for _, h := range res.Hosts {
		assert.Contains(t, h.IP, "10.1.2.")
		assert.Equal(t, "up", h.State)
	}
}
