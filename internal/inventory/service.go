package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	audit     shared.AuditPort
	metrics   *Metrics
	logger    *slog.Logger
	chunkSize int
	pageSize  int
	now       func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	BatchChunkSize int
	ListPageSize   int
	Metrics        *Metrics
	Logger         *slog.Logger
}

// DefaultBatchChunkSize bounds the number of concurrent writes of a batch.
const DefaultBatchChunkSize = 50

// DefaultListPageSize is the page size used when a listing reads every row.
const DefaultListPageSize = 500

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, cfg ServiceConfig) *Service {
	chunk := cfg.BatchChunkSize
	if chunk <= 0 {
		chunk = DefaultBatchChunkSize
	}
	pageSize := cfg.ListPageSize
	if pageSize <= 0 {
		pageSize = DefaultListPageSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		metrics:   cfg.Metrics,
		logger:    logger,
		chunkSize: chunk,
		pageSize:  pageSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// QuickAdjust applies a single-record operation and logs its movement in the
// same transaction.
func (s *Service) QuickAdjust(ctx context.Context, scope shared.Scope, input AdjustInput) (AdjustResult, error) {
	if err := validateAdjust(input); err != nil {
		return AdjustResult{}, err
	}
	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.AdjustInTx(ctx, tx, scope, input)
		return err
	})
	s.metrics.observeAdjust(input.Operation, err)
	if err != nil {
		return AdjustResult{}, err
	}
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID:  scope.UserID,
		BranchID: result.Record.BranchID,
		Action:   "inventory:" + string(input.Operation),
		Entity:   "inventory",
		EntityID: strconv.FormatInt(result.Record.ID, 10),
		Meta: map[string]any{
			"product_id": result.Record.ProductID,
			"before":     result.Before,
			"after":      result.After,
			"note":       input.Note,
		},
	})
	return result, nil
}

// AdjustInTx runs the adjustment inside a transaction owned by the caller.
// Sales and returns use it so their document and the stock change commit
// together.
func (s *Service) AdjustInTx(ctx context.Context, tx TxRepository, scope shared.Scope, input AdjustInput) (AdjustResult, error) {
	if err := validateAdjust(input); err != nil {
		return AdjustResult{}, err
	}
	if input.RecordID == 0 {
		if err := scope.RequireBranch(input.BranchID); err != nil {
			return AdjustResult{}, err
		}
	}

	current, created, err := s.lockOrCreate(ctx, tx, input)
	if err != nil {
		return AdjustResult{}, err
	}
	if err := scope.RequireBranch(current.BranchID); err != nil {
		return AdjustResult{}, err
	}

	var updated Record
	switch input.Operation {
	case OpAdd:
		updated, _, err = tx.Increment(ctx, current.ProductID, current.BranchID, input.Quantity)
	case OpSubtract:
		updated, err = tx.Decrement(ctx, current.ID, input.Quantity)
	case OpSet:
		updated, _, err = tx.Assign(ctx, current.ProductID, current.BranchID, input.Quantity)
	case OpReset:
		updated, _, err = tx.Assign(ctx, current.ProductID, current.BranchID, 0)
	}
	if err != nil {
		return AdjustResult{}, fmt.Errorf("inventory: %s stock: %w", input.Operation, err)
	}

	before := current.Quantity
	result := AdjustResult{Record: updated, Before: before, After: updated.Quantity, Created: created}
	if change := updated.Quantity - before; change != 0 {
		movement := Movement{
			ProductID:      updated.ProductID,
			BranchID:       updated.BranchID,
			QuantityChange: change,
			QuantityBefore: before,
			QuantityAfter:  updated.Quantity,
			Type:           movementTypeFor(input),
			ReferenceType:  input.ReferenceType,
			ReferenceID:    input.ReferenceID,
			PerformedBy:    scope.UserID,
			Note:           input.Note,
			CreatedAt:      s.now(),
		}
		if movement.ReferenceType == "" {
			movement.ReferenceType = RefAdjustment
		}
		if err := tx.InsertMovements(ctx, []Movement{movement}); err != nil {
			return AdjustResult{}, fmt.Errorf("inventory: log movement: %w", err)
		}
		result.Movement = &movement
	}
	return result, nil
}

// lockOrCreate locks the target record. A missing record is created empty
// for add and set, then locked, so the quantity before the change is always
// read under the row lock even when a concurrent insert wins the race.
func (s *Service) lockOrCreate(ctx context.Context, tx TxRepository, input AdjustInput) (Record, bool, error) {
	current, err := s.lockTarget(ctx, tx, input)
	if err == nil || !errors.Is(err, ErrRecordNotFound) {
		return current, false, err
	}
	if input.RecordID != 0 || input.Operation == OpSubtract || input.Operation == OpReset {
		return Record{}, false, ErrRecordNotFound
	}
	created, err := tx.EnsureRecord(ctx, input.ProductID, input.BranchID)
	if err != nil {
		return Record{}, false, fmt.Errorf("inventory: create record: %w", err)
	}
	current, err = tx.LockRecordByKey(ctx, input.ProductID, input.BranchID)
	return current, created, err
}

func (s *Service) lockTarget(ctx context.Context, tx TxRepository, input AdjustInput) (Record, error) {
	if input.RecordID != 0 {
		return tx.LockRecord(ctx, input.RecordID)
	}
	return tx.LockRecordByKey(ctx, input.ProductID, input.BranchID)
}

func validateAdjust(input AdjustInput) error {
	if !input.Operation.IsValid() {
		return ErrInvalidOperation
	}
	if input.RecordID == 0 && (input.ProductID <= 0 || input.BranchID <= 0) {
		return ErrTargetRequired
	}
	// The resulting value is recomputed from the locked row; this only
	// checks the operand.
	if _, err := ApplyOperation(input.Operation, 0, input.Quantity); err != nil {
		return err
	}
	if input.MovementType != "" && !input.MovementType.IsValid() {
		return fmt.Errorf("inventory: unknown movement type %q: %w", input.MovementType, ErrInvalidOperation)
	}
	return nil
}

func movementTypeFor(input AdjustInput) MovementType {
	if input.MovementType != "" {
		return input.MovementType
	}
	switch input.Operation {
	case OpAdd:
		return MovementIn
	case OpSubtract:
		return MovementOut
	default:
		return MovementAdjustment
	}
}

// GetRecord loads a record visible to the scope.
func (s *Service) GetRecord(ctx context.Context, scope shared.Scope, id int64) (Record, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := scope.RequireBranch(rec.BranchID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListRecords lists records in the branches visible to the scope.
func (s *Service) ListRecords(ctx context.Context, scope shared.Scope, branchID int64, filter RecordFilter) ([]Record, int, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.repo.ListRecords(ctx, filter)
}

// ListLowStock lists every record at or below its reorder point, reading
// the store page by page.
func (s *Service) ListLowStock(ctx context.Context, scope shared.Scope, branchID int64) ([]Record, error) {
	out := []Record{}
	for {
		page, total, err := s.ListRecords(ctx, scope, branchID, RecordFilter{LowOnly: true, Limit: s.pageSize, Offset: len(out)})
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.pageSize || len(out) >= total {
			return out, nil
		}
	}
}

// ListMovements returns the stock card visible to the scope.
func (s *Service) ListMovements(ctx context.Context, scope shared.Scope, branchID int64, filter MovementFilter) ([]Movement, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, err
	}
	filter.BranchIDs = branches
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("inventory: %w", ErrInvalidRange)
	}
	return s.repo.ListMovements(ctx, filter)
}
