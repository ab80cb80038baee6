package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskReconcileScan scans stock for discrepancies.
	TaskReconcileScan = "inventory:reconcile_scan"
	// TaskLowStockScan notifies branches about records at or below reorder point.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// ReconcileScanPayload narrows a scan to one branch; zero scans all.
type ReconcileScanPayload struct {
	BranchID int64 `json:"branch_id"`
}

// LowStockScanPayload narrows a low stock scan to one branch; zero scans all.
type LowStockScanPayload struct {
	BranchID int64 `json:"branch_id"`
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewReconcileScanTask constructs an Asynq task.
func NewReconcileScanTask(branchID int64) (*asynq.Task, error) {
	return newTask(TaskReconcileScan, ReconcileScanPayload{BranchID: branchID})
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask(branchID int64) (*asynq.Task, error) {
	return newTask(TaskLowStockScan, LowStockScanPayload{BranchID: branchID})
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, IdempotencyCleanupPayload{Retention: retention})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}
