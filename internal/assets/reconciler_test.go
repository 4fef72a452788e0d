package assets

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scanResult(hosts ...model.ScanHost) model.ScanResult {
	return model.ScanResult{
		Target:   "192.168.1.0/24",
		ScanType: "quick",
		Hosts:    hosts,
		ScanTime: time.Now().UTC(),
	}
}

func TestReconcileNewHost(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	var alerts []model.Alert
	sink := func(_ context.Context, a model.Alert) { alerts = append(alerts, a) }

	r := NewReconciler(mem, mem, sink, Options{AlertOnNewHost: true, AlertOnPortChange: true}, testLogger())

	host := model.ScanHost{
		IP:       "192.168.1.10",
		Hostname: "web-01",
		Ports: []model.Port{
			{Port: 22, Protocol: "tcp", Service: "ssh"},
			{Port: 80, Protocol: "tcp", Service: "http"},
		},
	}
	seen, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	asset, err := mem.GetAssetByIP(ctx, "192.168.1.10")
	require.NoError(t, err)
	assert.Equal(t, "web-01", asset.Hostname)
	assert.Equal(t, model.CriticalityMedium, asset.Criticality)
	assert.Len(t, asset.Ports, 2)

	// One new_host change; the initial port set does not produce
	// port_added changes of its own.
	changes, err := mem.ListChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ChangeNewHost, changes[0].ChangeType)
	assert.Equal(t, asset.ID, changes[0].AssetID)

	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityMedium, alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "192.168.1.10")
}

func TestReconcileKnownHostNewPort(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	var alerts []model.Alert
	sink := func(_ context.Context, a model.Alert) { alerts = append(alerts, a) }

	r := NewReconciler(mem, mem, sink, Options{AlertOnNewHost: true, AlertOnPortChange: true}, testLogger())

	host := model.ScanHost{IP: "192.168.1.20", Ports: []model.Port{{Port: 22, Protocol: "tcp"}}}
	_, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)
	alerts = nil

	// Second scan of the same host with one extra port.
	host.Ports = append(host.Ports, model.Port{Port: 3306, Protocol: "tcp", Service: "mysql"})
	seen, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	changes, err := mem.ListChanges(ctx, 0)
	require.NoError(t, err)
	var portAdded int
	for _, c := range changes {
		if c.ChangeType == model.ChangePortAdded {
			portAdded++
		}
	}
	assert.Equal(t, 1, portAdded)

	require.Len(t, alerts, 1)
	assert.Equal(t, model.SeverityLow, alerts[0].Severity)
	assert.Contains(t, alerts[0].Title, "3306/tcp")
}

func TestReconcileIdempotentRescan(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	var alerts []model.Alert
	sink := func(_ context.Context, a model.Alert) { alerts = append(alerts, a) }

	r := NewReconciler(mem, mem, sink, Options{AlertOnNewHost: true, AlertOnPortChange: true}, testLogger())

	host := model.ScanHost{IP: "192.168.1.30", Ports: []model.Port{{Port: 443, Protocol: "tcp"}}}
	_, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)

	// Scanning the identical host again changes nothing.
	_, err = r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)

	changes, err := mem.ListChanges(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Len(t, alerts, 1)

	assets, err := mem.ListAssets(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestReconcileAlertingDisabled(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	var alerts []model.Alert
	sink := func(_ context.Context, a model.Alert) { alerts = append(alerts, a) }

	r := NewReconciler(mem, mem, sink, Options{}, testLogger())

	host := model.ScanHost{IP: "192.168.1.40", Ports: []model.Port{{Port: 22, Protocol: "tcp"}}}
	_, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)

	// Changes are still recorded even when alerting is off.
	changes, err := mem.ListChanges(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
	assert.Empty(t, alerts)
}

// staleLookupStore misses the first GetAssetByIP, the way a concurrent scan
// does when another run registers the host between lookup and create.
type staleLookupStore struct {
	*store.MemoryStore
	missed bool
}

func (s *staleLookupStore) GetAssetByIP(ctx context.Context, ip string) (*model.Asset, error) {
	if !s.missed {
		s.missed = true
		return nil, store.ErrNotFound
	}
	return s.MemoryStore.GetAssetByIP(ctx, ip)
}

func TestReconcileConcurrentDiscoverySameIP(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	stale := &staleLookupStore{MemoryStore: mem}

	// Another scan already registered the host.
	winner := &model.Asset{
		ID:          "asset-winner",
		IPAddress:   "192.168.1.60",
		Criticality: model.CriticalityMedium,
		FirstSeen:   time.Now().UTC().Add(-time.Minute),
		LastSeen:    time.Now().UTC().Add(-time.Minute),
		IsActive:    true,
	}
	require.NoError(t, mem.CreateAsset(ctx, winner))

	r := NewReconciler(stale, mem, nil, Options{}, testLogger())

	host := model.ScanHost{IP: "192.168.1.60", Ports: []model.Port{{Port: 22, Protocol: "tcp"}}}
	seen, err := r.Reconcile(ctx, scanResult(host))
	require.NoError(t, err)
	assert.Equal(t, 1, seen)

	// Still exactly one asset, and the port landed on it.
	assets, err := mem.ListAssets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "asset-winner", assets[0].ID)
	assert.Len(t, assets[0].Ports, 1)

	// The recorded change points at the surviving asset, never at the id
	// the losing create generated.
	changes, err := mem.ListChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "asset-winner", changes[0].AssetID)
}

func TestReconcileSkipsEmptyIP(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore(0)
	r := NewReconciler(mem, mem, nil, Options{}, testLogger())

	seen, err := r.Reconcile(ctx, scanResult(
		model.ScanHost{IP: ""},
		model.ScanHost{IP: "192.168.1.50"},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, seen)
}
