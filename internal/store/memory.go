package store

import (
	"container/ring"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chinda73971177/soc/internal/model"
)

type portKey struct {
	assetID  string
	port     int
	protocol string
}

// MemoryStore implements every store contract in memory. It backs tests and
// the degraded mode where no database is configured; events are kept in a
// bounded ring buffer so an unattended process cannot grow without limit.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    map[string]*model.Alert
	events    *ring.Ring
	maxEvents int
	assets    map[string]*model.Asset // by id
	assetByIP map[string]string       // ip -> id
	ports     map[portKey]model.Port
	changes   map[string]*model.NetworkChange
	scans     map[string]*model.ScanRun
}

// NewMemoryStore creates a memory store keeping at most maxEvents events.
func NewMemoryStore(maxEvents int) *MemoryStore {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &MemoryStore{
		alerts:    make(map[string]*model.Alert),
		events:    ring.New(maxEvents),
		maxEvents: maxEvents,
		assets:    make(map[string]*model.Asset),
		assetByIP: make(map[string]string),
		ports:     make(map[portKey]model.Port),
		changes:   make(map[string]*model.NetworkChange),
		scans:     make(map[string]*model.ScanRun),
	}
}

// --- alerts ---

func (s *MemoryStore) CreateAlert(_ context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	a := *alert
	s.alerts[alert.ID] = &a
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *alert
	return &a, nil
}

func (s *MemoryStore) ListAlerts(_ context.Context, filter AlertFilter) ([]model.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	var alerts []model.Alert
	for _, a := range s.alerts {
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		alerts = append(alerts, *a)
	}
	s.mu.RUnlock()

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *MemoryStore) UpdateAlertStatus(_ context.Context, id, status string) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("invalid alert status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return ErrNotFound
	}
	alert.Status = status
	alert.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AlertStats(_ context.Context) (*AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &AlertStats{BySeverity: map[string]int{}, ByCategory: map[string]int{}}
	for _, a := range s.alerts {
		stats.Total++
		if a.Status == model.StatusOpen {
			stats.Open++
		}
		stats.BySeverity[string(a.Severity)]++
		stats.ByCategory[a.AlertType]++
	}
	return stats, nil
}

// --- events ---

func (s *MemoryStore) InsertEvents(_ context.Context, events []model.Event) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		s.events.Value = events[i]
		s.events = s.events.Next()
	}
	return len(events), 0, nil
}

// Events returns the buffered events, oldest first.
func (s *MemoryStore) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	s.events.Do(func(v any) {
		if ev, ok := v.(model.Event); ok {
			out = append(out, ev)
		}
	})
	return out
}

// --- assets ---

func (s *MemoryStore) GetAssetByIP(_ context.Context, ip string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.assetByIP[ip]
	if !ok {
		return nil, ErrNotFound
	}
	return s.assetWithPorts(id), nil
}

func (s *MemoryStore) GetAsset(_ context.Context, id string) (*model.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.assets[id]; !ok {
		return nil, ErrNotFound
	}
	return s.assetWithPorts(id), nil
}

// assetWithPorts copies an asset and attaches its port records. Caller
// holds the lock.
func (s *MemoryStore) assetWithPorts(id string) *model.Asset {
	a := *s.assets[id]
	for key, p := range s.ports {
		if key.assetID == id {
			a.Ports = append(a.Ports, p)
		}
	}
	sort.Slice(a.Ports, func(i, j int) bool {
		if a.Ports[i].Port != a.Ports[j].Port {
			return a.Ports[i].Port < a.Ports[j].Port
		}
		return a.Ports[i].Protocol < a.Ports[j].Protocol
	})
	return &a
}

func (s *MemoryStore) CreateAsset(_ context.Context, asset *model.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.assetByIP[asset.IPAddress]; exists {
		// Idempotent per IP: a concurrent create only advances last_seen,
		// and the caller gets the canonical id back.
		s.assets[id].LastSeen = asset.LastSeen
		asset.ID = id
		return nil
	}
	a := *asset
	a.Ports = nil
	s.assets[asset.ID] = &a
	s.assetByIP[asset.IPAddress] = asset.ID
	return nil
}

func (s *MemoryStore) TouchAsset(_ context.Context, id string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[id]
	if !ok {
		return ErrNotFound
	}
	asset.LastSeen = lastSeen
	asset.IsActive = true
	return nil
}

func (s *MemoryStore) AddPort(_ context.Context, assetID string, port model.Port) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[assetID]; !ok {
		return false, ErrNotFound
	}
	key := portKey{assetID: assetID, port: port.Port, protocol: port.Protocol}
	if _, exists := s.ports[key]; exists {
		return false, nil
	}
	s.ports[key] = port
	return true, nil
}

func (s *MemoryStore) ListAssets(_ context.Context, limit int) ([]model.Asset, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	var assets []model.Asset
	for id := range s.assets {
		assets = append(assets, *s.assetWithPorts(id))
	}
	s.mu.RUnlock()

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].LastSeen.After(assets[j].LastSeen)
	})
	if len(assets) > limit {
		assets = assets[:limit]
	}
	return assets, nil
}

func (s *MemoryStore) DeleteAsset(_ context.Context, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.assetByIP[ip]
	if !ok {
		return ErrNotFound
	}
	delete(s.assets, id)
	delete(s.assetByIP, ip)
	for key := range s.ports {
		if key.assetID == id {
			delete(s.ports, key)
		}
	}
	return nil
}

func (s *MemoryStore) AssetStats(_ context.Context) (*AssetStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &AssetStats{}
	for _, a := range s.assets {
		stats.Total++
		if a.IsActive {
			stats.Active++
		}
	}
	return stats, nil
}

// --- network changes ---

func (s *MemoryStore) RecordChange(_ context.Context, change *model.NetworkChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *change
	s.changes[change.ID] = &c
	return nil
}

func (s *MemoryStore) ListChanges(_ context.Context, limit int) ([]model.NetworkChange, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	var changes []model.NetworkChange
	for _, c := range s.changes {
		changes = append(changes, *c)
	}
	s.mu.RUnlock()

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].DetectedAt.After(changes[j].DetectedAt)
	})
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func (s *MemoryStore) AcknowledgeChange(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	change, ok := s.changes[id]
	if !ok {
		return ErrNotFound
	}
	change.Acknowledged = true
	return nil
}

// --- scan runs ---

func (s *MemoryStore) CreateScan(_ context.Context, run *model.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *run
	s.scans[run.ID] = &r
	return nil
}

func (s *MemoryStore) GetScan(_ context.Context, id string) (*model.ScanRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	r := *run
	return &r, nil
}

func (s *MemoryStore) CompleteScan(_ context.Context, id string, hostsFound int) error {
	return s.finishScan(id, model.ScanCompleted, hostsFound)
}

func (s *MemoryStore) FailScan(_ context.Context, id string) error {
	return s.finishScan(id, model.ScanFailed, 0)
}

func (s *MemoryStore) finishScan(id, status string, hostsFound int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.scans[id]
	if !ok {
		return ErrNotFound
	}
	if run.Status != model.ScanRunning {
		// Terminal states are final.
		return nil
	}
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if status == model.ScanCompleted {
		run.HostsFound = hostsFound
	}
	return nil
}

func (s *MemoryStore) ListScans(_ context.Context, limit int) ([]model.ScanRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	s.mu.RLock()
	var runs []model.ScanRun
	for _, r := range s.scans {
		runs = append(runs, *r)
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
