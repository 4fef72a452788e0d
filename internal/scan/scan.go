// Package scan runs network discovery scans and feeds their results to the
// asset reconciler, tracking each execution as a scan run record.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chinda73971177/soc/internal/assets"
	"github.com/chinda73971177/soc/internal/model"
	"github.com/chinda73971177/soc/internal/store"
)

// Scanner produces a discovery result for one target range.
type Scanner interface {
	Scan(ctx context.Context, target, scanType string) (*model.ScanResult, error)
}

// Runner executes scans asynchronously. Every execution leaves a scan run
// row: running while in flight, completed or failed afterwards, never
// anything else.
type Runner struct {
	scanner    Scanner
	scans      store.ScanStore
	reconciler *assets.Reconciler
	logger     *slog.Logger
	wg         sync.WaitGroup

	// OnFinish, when set, observes the terminal status of every run.
	OnFinish func(status string)
}

// NewRunner creates a scan runner.
func NewRunner(scanner Scanner, scans store.ScanStore, reconciler *assets.Reconciler, logger *slog.Logger) *Runner {
	return &Runner{scanner: scanner, scans: scans, reconciler: reconciler, logger: logger}
}

// Start records a running scan and launches the execution in the
// background. It returns the run record immediately.
func (r *Runner) Start(ctx context.Context, target, scanType string) (*model.ScanRun, error) {
	run, err := r.begin(ctx, target, scanType)
	if err != nil {
		return nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// The run outlives the request that started it.
		r.execute(context.WithoutCancel(ctx), run)
	}()

	out := *run
	return &out, nil
}

// Run executes a scan synchronously. Used by the scheduler.
func (r *Runner) Run(ctx context.Context, target, scanType string) error {
	run, err := r.begin(ctx, target, scanType)
	if err != nil {
		return err
	}
	r.execute(ctx, run)
	final, err := r.scans.GetScan(ctx, run.ID)
	if err != nil {
		return err
	}
	if final.Status == model.ScanFailed {
		return fmt.Errorf("scan %s failed", run.ID)
	}
	return nil
}

func (r *Runner) begin(ctx context.Context, target, scanType string) (*model.ScanRun, error) {
	if target == "" {
		return nil, fmt.Errorf("scan target is required")
	}
	if scanType == "" {
		scanType = "standard"
	}

	run := &model.ScanRun{
		ID:        uuid.NewString(),
		Target:    target,
		ScanType:  scanType,
		Status:    model.ScanRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.scans.CreateScan(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record scan run: %w", err)
	}
	return run, nil
}

// Wait blocks until all in-flight scans have finished. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, run *model.ScanRun) {
	r.logger.Info("scan started", "scan_id", run.ID, "target", run.Target, "scan_type", run.ScanType)

	result, err := r.scanner.Scan(ctx, run.Target, run.ScanType)
	if err != nil {
		r.fail(ctx, run, err)
		return
	}

	hosts, err := r.reconciler.Reconcile(ctx, *result)
	if err != nil {
		r.fail(ctx, run, err)
		return
	}

	if err := r.scans.CompleteScan(ctx, run.ID, hosts); err != nil {
		r.logger.Error("failed to mark scan completed", "scan_id", run.ID, "error", err)
		return
	}
	if r.OnFinish != nil {
		r.OnFinish(model.ScanCompleted)
	}
	r.logger.Info("scan completed", "scan_id", run.ID, "hosts_found", hosts)
}

func (r *Runner) fail(ctx context.Context, run *model.ScanRun, cause error) {
	r.logger.Error("scan failed", "scan_id", run.ID, "error", cause)
	if err := r.scans.FailScan(ctx, run.ID); err != nil {
		r.logger.Error("failed to mark scan failed", "scan_id", run.ID, "error", err)
		return
	}
	if r.OnFinish != nil {
		r.OnFinish(model.ScanFailed)
	}
}
