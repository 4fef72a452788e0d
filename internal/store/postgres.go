package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq"

	"github.com/chinda73971177/soc/internal/model"
)

// PostgresStore implements every store contract on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens a connection pool for dsn, retrying the initial
// ping with exponential backoff for up to maxWait.
func NewPostgresStore(dsn string, maxWait time.Duration, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxWait

	err = backoff.RetryNotify(db.Ping, bo, func(err error, next time.Duration) {
		logger.Warn("database not reachable, retrying", "error", err, "next_attempt_in", next)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger}, nil
}

// NewPostgresStoreFromDB wraps an existing database handle. Used by tests.
func NewPostgresStoreFromDB(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Health checks if the database is accessible.
func (s *PostgresStore) Health() error {
	return s.db.Ping()
}

// --- alerts ---

// CreateAlert inserts one alert row.
func (s *PostgresStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	query := `
		INSERT INTO security_alerts
			(id, alert_type, severity, title, description, src_ip, dst_ip,
			 src_port, dst_port, protocol, service, rule_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), NULLIF($7,''), $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.AlertType, alert.Severity, alert.Title, alert.Description,
		alert.SrcIP, alert.DstIP, alert.SrcPort, alert.DstPort, alert.Protocol,
		alert.Service, alert.RuleID, alert.Status, alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

const alertColumns = `id, alert_type, severity, title, description,
	COALESCE(src_ip::text,''), COALESCE(dst_ip::text,''), COALESCE(src_port,0), COALESCE(dst_port,0),
	COALESCE(protocol,''), COALESCE(service,''), COALESCE(rule_id,''), status, created_at, updated_at`

func scanAlert(row interface{ Scan(...any) error }) (*model.Alert, error) {
	var a model.Alert
	err := row.Scan(&a.ID, &a.AlertType, &a.Severity, &a.Title, &a.Description,
		&a.SrcIP, &a.DstIP, &a.SrcPort, &a.DstPort, &a.Protocol, &a.Service,
		&a.RuleID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAlert fetches one alert by id.
func (s *PostgresStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM security_alerts WHERE id = $1`, alertColumns)
	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts ordered by creation time descending, optionally
// filtered by severity and status, bounded by the filter limit.
func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var conditions []string
	var params []any
	if filter.Severity != "" {
		params = append(params, filter.Severity)
		conditions = append(conditions, "severity = $"+strconv.Itoa(len(params)))
	}
	if filter.Status != "" {
		params = append(params, filter.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(params)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	params = append(params, limit)

	query := fmt.Sprintf(`SELECT %s FROM security_alerts %s ORDER BY created_at DESC LIMIT $%d`,
		alertColumns, where, len(params))

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// UpdateAlertStatus writes status and updated_at for one alert. The status
// must be one of the four canonical values; no ordering between states is
// enforced beyond that.
func (s *PostgresStore) UpdateAlertStatus(ctx context.Context, id, status string) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("invalid alert status %q", status)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE security_alerts SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AlertStats aggregates totals, open count and per-severity/category counts.
func (s *PostgresStore) AlertStats(ctx context.Context) (*AlertStats, error) {
	stats := &AlertStats{BySeverity: map[string]int{}, ByCategory: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'open') FROM security_alerts`).
		Scan(&stats.Total, &stats.Open)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, alert_type, COUNT(*) FROM security_alerts GROUP BY severity, alert_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity, category string
		var count int
		if err := rows.Scan(&severity, &category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan alert aggregate: %w", err)
		}
		stats.BySeverity[severity] += count
		stats.ByCategory[category] += count
	}
	return stats, rows.Err()
}

// --- events ---

// InsertEvents persists normalized events one by one. A failed row is
// counted and skipped, it never aborts the batch.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []model.Event) (int, int, error) {
	query := `
		INSERT INTO logs
			(timestamp, message, host_name, program, log_source, log_type, severity,
			 src_ip, dst_ip, src_port, dst_port, protocol, service, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''), NULLIF($9,''), $10, $11, $12, $13, $14)
	`
	indexed, failed := 0, 0
	for _, ev := range events {
		_, err := s.db.ExecContext(ctx, query,
			ev.Timestamp, ev.Message, ev.HostName, ev.Program, ev.LogSource, ev.LogType,
			ev.Severity, ev.SrcIP, ev.DstIP, ev.SrcPort, ev.DstPort, ev.Protocol,
			ev.Service, []byte(ev.Raw))
		if err != nil {
			s.logger.Warn("failed to index event", "source", ev.LogSource, "error", err)
			failed++
			continue
		}
		indexed++
	}
	return indexed, failed, nil
}

// --- assets ---

// GetAssetByIP fetches the asset for one IP, or ErrNotFound.
func (s *PostgresStore) GetAssetByIP(ctx context.Context, ip string) (*model.Asset, error) {
	return s.getAsset(ctx, `WHERE ip_address = $1`, ip)
}

// GetAsset fetches one asset by id, including its port records.
func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	return s.getAsset(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) getAsset(ctx context.Context, where string, arg any) (*model.Asset, error) {
	query := `SELECT id, ip_address::text, COALESCE(hostname,''), COALESCE(mac_address,''),
			COALESCE(os_type,''), COALESCE(asset_type,''), criticality, first_seen, last_seen, is_active
		FROM assets ` + where

	var a model.Asset
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&a.ID, &a.IPAddress, &a.Hostname, &a.MACAddress, &a.OSType, &a.AssetType,
		&a.Criticality, &a.FirstSeen, &a.LastSeen, &a.IsActive)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT port, protocol, COALESCE(service,''), COALESCE(version,''), COALESCE(state,'')
		 FROM asset_ports WHERE asset_id = $1 ORDER BY port, protocol`, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query asset ports: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Port
		if err := rows.Scan(&p.Port, &p.Protocol, &p.Service, &p.Version, &p.State); err != nil {
			return nil, fmt.Errorf("failed to scan port: %w", err)
		}
		a.Ports = append(a.Ports, p)
	}
	return &a, rows.Err()
}

// CreateAsset inserts a new asset row. The insert is idempotent per IP: a
// concurrent create of the same IP leaves exactly one row, only advances
// last_seen, and rewrites asset.ID to the id of the row that won, so the
// caller always holds the canonical id.
func (s *PostgresStore) CreateAsset(ctx context.Context, asset *model.Asset) error {
	query := `
		INSERT INTO assets
			(id, ip_address, hostname, mac_address, os_type, asset_type,
			 criticality, first_seen, last_seen, is_active)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7, $8, $9, $10)
		ON CONFLICT (ip_address) DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		asset.ID, asset.IPAddress, asset.Hostname, asset.MACAddress, asset.OSType,
		asset.AssetType, asset.Criticality, asset.FirstSeen, asset.LastSeen, asset.IsActive).
		Scan(&asset.ID)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

// TouchAsset advances last_seen for one asset.
func (s *PostgresStore) TouchAsset(ctx context.Context, id string, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE assets SET last_seen = $1, is_active = TRUE WHERE id = $2`, lastSeen, id)
	if err != nil {
		return fmt.Errorf("failed to touch asset: %w", err)
	}
	return nil
}

// AddPort inserts a port record when the (asset, port, protocol) triple is
// new and reports whether a row was inserted. Re-observing an existing port
// is a no-op.
func (s *PostgresStore) AddPort(ctx context.Context, assetID string, port model.Port) (bool, error) {
	query := `
		INSERT INTO asset_ports (asset_id, port, protocol, service, version, state)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''), NULLIF($6,''))
		ON CONFLICT (asset_id, port, protocol) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query,
		assetID, port.Port, port.Protocol, port.Service, port.Version, port.State)
	if err != nil {
		return false, fmt.Errorf("failed to insert port: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListAssets returns assets ordered by last_seen descending.
func (s *PostgresStore) ListAssets(ctx context.Context, limit int) ([]model.Asset, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query := `SELECT id, ip_address::text, COALESCE(hostname,''), COALESCE(mac_address,''),
			COALESCE(os_type,''), COALESCE(asset_type,''), criticality, first_seen, last_seen, is_active
		FROM assets ORDER BY last_seen DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []model.Asset
	for rows.Next() {
		var a model.Asset
		err := rows.Scan(&a.ID, &a.IPAddress, &a.Hostname, &a.MACAddress, &a.OSType,
			&a.AssetType, &a.Criticality, &a.FirstSeen, &a.LastSeen, &a.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// DeleteAsset removes an asset by IP together with its port records.
func (s *PostgresStore) DeleteAsset(ctx context.Context, ip string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE ip_address = $1`, ip)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AssetStats aggregates the asset inventory.
func (s *PostgresStore) AssetStats(ctx context.Context) (*AssetStats, error) {
	var stats AssetStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM assets`).
		Scan(&stats.Total, &stats.Active)
	if err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	return &stats, nil
}

// --- network changes ---

// RecordChange inserts one network change row.
func (s *PostgresStore) RecordChange(ctx context.Context, change *model.NetworkChange) error {
	query := `
		INSERT INTO network_changes (id, asset_id, change_type, previous, current, detected_at, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		change.ID, change.AssetID, change.ChangeType,
		[]byte(change.Previous), []byte(change.Current), change.DetectedAt, change.Acknowledged)
	if err != nil {
		return fmt.Errorf("failed to insert network change: %w", err)
	}
	return nil
}

// ListChanges returns changes ordered by detection time descending.
func (s *PostgresStore) ListChanges(ctx context.Context, limit int) ([]model.NetworkChange, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, asset_id, change_type, COALESCE(previous,'null'), COALESCE(current,'null'), detected_at, acknowledged
		 FROM network_changes ORDER BY detected_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query network changes: %w", err)
	}
	defer rows.Close()

	var changes []model.NetworkChange
	for rows.Next() {
		var c model.NetworkChange
		var prev, cur []byte
		if err := rows.Scan(&c.ID, &c.AssetID, &c.ChangeType, &prev, &cur, &c.DetectedAt, &c.Acknowledged); err != nil {
			return nil, fmt.Errorf("failed to scan network change: %w", err)
		}
		c.Previous, c.Current = prev, cur
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// AcknowledgeChange flips the acknowledged flag. The flip is one-way.
func (s *PostgresStore) AcknowledgeChange(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE network_changes SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge change: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- scan runs ---

// CreateScan inserts a scan run in running state.
func (s *PostgresStore) CreateScan(ctx context.Context, run *model.ScanRun) error {
	query := `
		INSERT INTO network_scans (id, target, scan_type, status, started_at, hosts_found)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Target, run.ScanType, run.Status, run.StartedAt, run.HostsFound)
	if err != nil {
		return fmt.Errorf("failed to insert scan run: %w", err)
	}
	return nil
}

// GetScan fetches one scan run by id.
func (s *PostgresStore) GetScan(ctx context.Context, id string) (*model.ScanRun, error) {
	var run model.ScanRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, target, scan_type, status, started_at, completed_at, hosts_found
		 FROM network_scans WHERE id = $1`, id).
		Scan(&run.ID, &run.Target, &run.ScanType, &run.Status, &run.StartedAt,
			&run.CompletedAt, &run.HostsFound)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scan run: %w", err)
	}
	return &run, nil
}

// CompleteScan marks a running scan completed. Terminal states are final:
// the update only applies while the run is still running.
func (s *PostgresStore) CompleteScan(ctx context.Context, id string, hostsFound int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE network_scans SET status = 'completed', completed_at = NOW(), hosts_found = $1
		 WHERE id = $2 AND status = 'running'`, hostsFound, id)
	if err != nil {
		return fmt.Errorf("failed to complete scan run: %w", err)
	}
	return nil
}

// FailScan marks a running scan failed.
func (s *PostgresStore) FailScan(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE network_scans SET status = 'failed', completed_at = NOW()
		 WHERE id = $1 AND status = 'running'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark scan run failed: %w", err)
	}
	return nil
}

// ListScans returns scan runs ordered by start time descending.
func (s *PostgresStore) ListScans(ctx context.Context, limit int) ([]model.ScanRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target, scan_type, status, started_at, completed_at, hosts_found
		 FROM network_scans ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan runs: %w", err)
	}
	defer rows.Close()

	var runs []model.ScanRun
	for rows.Next() {
		var run model.ScanRun
		err := rows.Scan(&run.ID, &run.Target, &run.ScanType, &run.Status,
			&run.StartedAt, &run.CompletedAt, &run.HostsFound)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
