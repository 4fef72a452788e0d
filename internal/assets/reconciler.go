// Package assets reconciles scan results into the asset inventory and
// records the network changes the reconciliation uncovers.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/store"
)

// AlertSink receives alerts raised for notable inventory changes. The
// pipeline wires it to the alert store and notification gate.
type AlertSink func(ctx context.Context, alert model.Alert)

// Options controls which inventory changes also raise alerts.
type Options struct {
	AlertOnNewHost    bool
	AlertOnPortChange bool
}

// Reconciler folds scan results into the inventory. Upserts are idempotent
// per (ip) and (asset, port, protocol), so overlapping scans of the same
// range only cause redundant writes, never duplicate rows or changes.
type Reconciler struct {
	assets  store.AssetStore
	changes store.ChangeStore
	sink    AlertSink
	opts    Options
	logger  *slog.Logger
}

// NewReconciler creates a reconciler. sink may be nil when change alerting
// is disabled entirely.
func NewReconciler(assets store.AssetStore, changes store.ChangeStore, sink AlertSink, opts Options, logger *slog.Logger) *Reconciler {
	return &Reconciler{assets: assets, changes: changes, sink: sink, opts: opts, logger: logger}
}

// Reconcile processes every host in the scan result and returns how many
// hosts were handled. A failure on one host is logged and skipped; it never
// aborts the rest of the result.
func (r *Reconciler) Reconcile(ctx context.Context, result model.ScanResult) (int, error) {
	seen := 0
	for _, host := range result.Hosts {
		if host.IP == "" {
			continue
		}
		if err := r.reconcileHost(ctx, host, result.ScanTime); err != nil {
			r.logger.Warn("failed to reconcile host", "ip", host.IP, "error", err)
			continue
		}
		seen++
	}
	return seen, nil
}

func (r *Reconciler) reconcileHost(ctx context.Context, host model.ScanHost, scanTime time.Time) error {
	if scanTime.IsZero() {
		scanTime = time.Now().UTC()
	}

	existing, err := r.assets.GetAssetByIP(ctx, host.IP)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return r.addHost(ctx, host, scanTime)
	case err != nil:
		return fmt.Errorf("failed to look up asset: %w", err)
	}
	return r.updateHost(ctx, existing, host, scanTime)
}

// addHost registers a never-before-seen host. The new_host change carries
// the full asset snapshot, so the initial port set does not also produce
// port_added changes.
func (r *Reconciler) addHost(ctx context.Context, host model.ScanHost, scanTime time.Time) error {
	asset := &model.Asset{
		ID:          uuid.NewString(),
		IPAddress:   host.IP,
		Hostname:    host.Hostname,
		OSType:      host.OS,
		Criticality: model.CriticalityMedium,
		FirstSeen:   scanTime,
		LastSeen:    scanTime,
		IsActive:    true,
	}
	if err := r.assets.CreateAsset(ctx, asset); err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}

	for _, port := range host.Ports {
		if _, err := r.assets.AddPort(ctx, asset.ID, port); err != nil {
			r.logger.Warn("failed to record port", "ip", host.IP, "port", port.Port, "error", err)
		}
	}
	asset.Ports = host.Ports

	if err := r.recordChange(ctx, asset.ID, model.ChangeNewHost, nil, asset, scanTime); err != nil {
		return err
	}

	if r.opts.AlertOnNewHost && r.sink != nil {
		r.sink(ctx, changeAlert(model.SeverityMedium,
			fmt.Sprintf("New Host Discovered: %s", host.IP),
			fmt.Sprintf("Host %s appeared on the network with %d open ports", host.IP, len(host.Ports)),
			host.IP, scanTime))
	}
	return nil
}

// updateHost advances last_seen and records a port_added change for every
// port not previously on record.
func (r *Reconciler) updateHost(ctx context.Context, asset *model.Asset, host model.ScanHost, scanTime time.Time) error {
	if err := r.assets.TouchAsset(ctx, asset.ID, scanTime); err != nil {
		return fmt.Errorf("failed to touch asset: %w", err)
	}

	for _, port := range host.Ports {
		added, err := r.assets.AddPort(ctx, asset.ID, port)
		if err != nil {
			r.logger.Warn("failed to record port", "ip", host.IP, "port", port.Port, "error", err)
			continue
		}
		if !added {
			continue
		}
		if err := r.recordChange(ctx, asset.ID, model.ChangePortAdded, nil, port, scanTime); err != nil {
			r.logger.Warn("failed to record port change", "ip", host.IP, "port", port.Port, "error", err)
			continue
		}
		if r.opts.AlertOnPortChange && r.sink != nil {
			r.sink(ctx, changeAlert(model.SeverityLow,
				fmt.Sprintf("New Open Port on %s: %d/%s", host.IP, port.Port, port.Protocol),
				fmt.Sprintf("Port %d/%s (%s) opened on known host %s", port.Port, port.Protocol, port.Service, host.IP),
				host.IP, scanTime))
		}
	}
	return nil
}

func (r *Reconciler) recordChange(ctx context.Context, assetID, changeType string, previous, current any, detectedAt time.Time) error {
	change := &model.NetworkChange{
		ID:         uuid.NewString(),
		AssetID:    assetID,
		ChangeType: changeType,
		DetectedAt: detectedAt,
	}
	if previous != nil {
		change.Previous = mustJSON(previous)
	}
	if current != nil {
		change.Current = mustJSON(current)
	}
	if err := r.changes.RecordChange(ctx, change); err != nil {
		return fmt.Errorf("failed to record network change: %w", err)
	}
	return nil
}

func changeAlert(severity model.Severity, title, description, ip string, at time.Time) model.Alert {
	return model.Alert{
		ID:          uuid.NewString(),
		AlertType:   string(model.AlertAnomaly),
		Severity:    severity,
		Title:       title,
		Description: description,
		SrcIP:       ip,
		Status:      model.StatusOpen,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return b
}
