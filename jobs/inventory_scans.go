package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-bakery/internal/jobs"
	"github.com/odyssey-erp/odyssey-bakery/internal/notifications"
	"github.com/odyssey-erp/odyssey-bakery/internal/reconciliation"
	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// Scanner runs a reconciliation scan.
type Scanner interface {
	Scan(ctx context.Context, scope shared.Scope, branchID int64) (reconciliation.Report, error)
}

// ReconcileScanJob scans stock and reports discrepancies through logs,
// metrics and branch notifications. It never fixes anything; fixes are an
// explicit user action.
type ReconcileScanJob struct {
	Scanner Scanner
	Alerts  AlertSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileScanJob initialises the handler. alerts may be nil.
func NewReconcileScanJob(scanner Scanner, alerts AlertSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileScanJob {
	return &ReconcileScanJob{Scanner: scanner, Alerts: alerts, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *ReconcileScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Scanner == nil {
		return errors.New("reconcile scan: handler not configured")
	}
	var payload ReconcileScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reconcile scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReconcileScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := loggerOr(j.Logger).With(slog.Int64("branch_id", payload.BranchID))
	start := time.Now()
	report, err := j.Scanner.Scan(ctx, shared.SystemScope(), payload.BranchID)
	if err != nil {
		logger.Error("reconcile scan failed", slog.Any("error", err))
		return err
	}

	counts := map[reconciliation.Kind]int{}
	alerted := 0
	for _, d := range report.Discrepancies {
		counts[d.Kind]++
		if d.Severity != reconciliation.SeverityCritical {
			continue
		}
		logger.Warn("stock discrepancy",
			slog.String("kind", string(d.Kind)),
			slog.Int64("product_id", d.ProductID),
			slog.Int64("discrepancy_branch_id", d.BranchID),
			slog.Int64("current_stock", d.CurrentStock),
			slog.Int64("calculated_stock", d.CalculatedStock),
		)
		// Product-level findings have no branch to address.
		if j.Alerts == nil || d.BranchID == 0 {
			continue
		}
		wrote, err := j.Alerts.NotifyOnce(ctx, d.BranchID, notifications.KindStockDiscrepancy,
			fmt.Sprintf("reconcile:%s:%d:%d", d.Kind, d.BranchID, d.ProductID),
			fmt.Sprintf("Stock discrepancy: %s", d.ProductName),
			d.Suggestion)
		if err != nil {
			return fmt.Errorf("reconcile scan: notify branch %d: %w", d.BranchID, err)
		}
		if wrote {
			alerted++
		}
	}
	j.Metrics.AddAlerts(notifications.KindStockDiscrepancy, alerted)
	for _, kind := range []reconciliation.Kind{
		reconciliation.KindNegativeStock, reconciliation.KindDuplicateSKU,
		reconciliation.KindMissingUoM, reconciliation.KindMovementDrift,
	} {
		j.Metrics.SetDiscrepancies(payload.BranchID, string(kind), string(kind.Severity()), counts[kind])
	}
	logger.Info("completed reconcile scan",
		slog.Int("critical", report.Critical),
		slog.Int("warning", report.Warning),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// LowStockLister lists records at or below their reorder point.
type LowStockLister interface {
	ListLowStock(ctx context.Context, scope shared.Scope, branchID int64) ([]inventory.Record, error)
}

// AlertSink writes deduplicated notifications.
type AlertSink interface {
	NotifyOnce(ctx context.Context, branchID int64, kind, dedupKey, title, message string) (bool, error)
}

// LowStockScanJob notifies each branch of its low stock records once per
// unread alert.
type LowStockScanJob struct {
	Inventory LowStockLister
	Alerts    AlertSink
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the handler.
func NewLowStockScanJob(inv LowStockLister, alerts AlertSink, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Inventory: inv, Alerts: alerts, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Inventory == nil || j.Alerts == nil {
		return errors.New("low stock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock scan: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	records, err := j.Inventory.ListLowStock(ctx, shared.SystemScope(), payload.BranchID)
	if err != nil {
		return err
	}
	created := 0
	for _, rec := range records {
		name := rec.ProductName
		if name == "" {
			name = fmt.Sprintf("product %d", rec.ProductID)
		}
		wrote, err := j.Alerts.NotifyOnce(ctx, rec.BranchID, notifications.KindLowStock,
			fmt.Sprintf("low_stock:%d:%d", rec.BranchID, rec.ProductID),
			"Low stock: "+name,
			fmt.Sprintf("%s has %d left (reorder point %d)", name, rec.Quantity, rec.ReorderPoint))
		if err != nil {
			return fmt.Errorf("low stock scan: notify branch %d: %w", rec.BranchID, err)
		}
		if wrote {
			created++
		}
	}
	j.Metrics.AddAlerts(notifications.KindLowStock, created)
	loggerOr(j.Logger).Info("completed low stock scan", slog.Int("low", len(records)), slog.Int("notified", created))
	return nil
}

// KeyPruner deletes idempotency keys older than a retention window.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes old idempotency keys.
type IdempotencyCleanupJob struct {
	Store   KeyPruner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the handler.
func NewIdempotencyCleanupJob(store KeyPruner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// DefaultKeyRetention is used when the payload carries no retention.
const DefaultKeyRetention = 7 * 24 * time.Hour

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultKeyRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	defer func() { resultErr = tracker.End(resultErr) }()

	removed, err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		return err
	}
	loggerOr(j.Logger).Info("pruned idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", payload.Retention))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
