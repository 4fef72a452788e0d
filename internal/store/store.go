// Package store holds the persistence contracts of the pipeline and their
// Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit bounds listings when the caller supplies none.
const DefaultListLimit = 100

// AlertFilter narrows alert listings. Zero values mean no constraint.
type AlertFilter struct {
	Severity model.Severity
	Status   string
	Limit    int
}

// AlertStats summarizes the alert table.
type AlertStats struct {
	Total      int            `json:"total"`
	Open       int            `json:"open"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
}

// AssetStats summarizes the asset inventory.
type AssetStats struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// AlertStore owns the alert lifecycle. Status values must be one of the
// four canonical statuses; UpdateStatus writes the status and updated_at
// and nothing else.
type AlertStore interface {
	CreateAlert(ctx context.Context, alert *model.Alert) error
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	UpdateAlertStatus(ctx context.Context, id, status string) error
	AlertStats(ctx context.Context) (*AlertStats, error)
}

// EventStore persists normalized events. InsertEvents reports how many
// records were indexed and how many failed; per-record failures never abort
// the batch.
type EventStore interface {
	InsertEvents(ctx context.Context, events []model.Event) (indexed, failed int, err error)
}

// AssetStore owns the asset inventory. One asset per IP; the port set is
// keyed by (asset, port, protocol) and AddPort reports whether the triple
// was new. Upserts must stay idempotent and commutative so concurrent scans
// only cause benign redundant writes. When CreateAsset loses the per-IP
// race it rewrites asset.ID to the winning row's id, so ports and changes
// recorded afterwards attach to the canonical asset.
type AssetStore interface {
	GetAssetByIP(ctx context.Context, ip string) (*model.Asset, error)
	CreateAsset(ctx context.Context, asset *model.Asset) error
	TouchAsset(ctx context.Context, id string, lastSeen time.Time) error
	AddPort(ctx context.Context, assetID string, port model.Port) (bool, error)
	GetAsset(ctx context.Context, id string) (*model.Asset, error)
	ListAssets(ctx context.Context, limit int) ([]model.Asset, error)
	DeleteAsset(ctx context.Context, ip string) error
	AssetStats(ctx context.Context) (*AssetStats, error)
}

// ChangeStore records network inventory deltas. Acknowledgment is a
// one-way flip.
type ChangeStore interface {
	RecordChange(ctx context.Context, change *model.NetworkChange) error
	ListChanges(ctx context.Context, limit int) ([]model.NetworkChange, error)
	AcknowledgeChange(ctx context.Context, id string) error
}

// ScanStore tracks scan run lifecycles. Completed and failed are terminal.
type ScanStore interface {
	CreateScan(ctx context.Context, run *model.ScanRun) error
	GetScan(ctx context.Context, id string) (*model.ScanRun, error)
	CompleteScan(ctx context.Context, id string, hostsFound int) error
	FailScan(ctx context.Context, id string) error
	ListScans(ctx context.Context, limit int) ([]model.ScanRun, error)
}

// Store aggregates every persistence contract the pipeline needs.
type Store interface {
	AlertStore
	EventStore
	AssetStore
	ChangeStore
	ScanStore
}
