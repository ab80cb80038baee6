package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

type batchKey struct {
	productID int64
	branchID  int64
}

type batchOutcome struct {
	inserted bool
	err      error
}

// BatchAdd adds stock for many (product, branch) pairs. Items sharing a key
// are merged before any write. Each key commits its record change and its
// movement entry on its own, so one failing key never aborts the rest.
func (s *Service) BatchAdd(ctx context.Context, scope shared.Scope, items []BatchItem) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	result := BatchResult{BatchID: uuid.NewString(), Errors: []string{}}

	totals := make(map[batchKey]int64, len(items))
	keys := make([]batchKey, 0, len(items))
	for i, item := range items {
		if err := validateBatchItem(scope, item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: %v", i+1, err))
			continue
		}
		key := batchKey{productID: item.ProductID, branchID: item.BranchID}
		if totals[key] > MaxQuantity-item.Quantity {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d: merged %v", i+1, ErrQuantityTooLarge))
			continue
		}
		if _, seen := totals[key]; seen {
			result.Merged++
		} else {
			keys = append(keys, key)
		}
		totals[key] += item.Quantity
	}

	for start := 0; start < len(keys); start += s.chunkSize {
		end := min(start+s.chunkSize, len(keys))
		chunk := keys[start:end]
		if err := ctx.Err(); err != nil {
			for _, key := range keys[start:] {
				result.Errors = append(result.Errors, keyError(key, err))
			}
			break
		}

		outcomes := make([]batchOutcome, len(chunk))
		var g errgroup.Group
		g.SetLimit(s.chunkSize)
		for i, key := range chunk {
			g.Go(func() error {
				inserted, err := s.addKey(ctx, scope, result.BatchID, key, totals[key])
				outcomes[i] = batchOutcome{inserted: inserted, err: err}
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		for i, outcome := range outcomes {
			switch {
			case outcome.err != nil:
				failed++
				result.Errors = append(result.Errors, keyError(chunk[i], outcome.err))
			case outcome.inserted:
				result.TotalInserted++
			default:
				result.TotalUpdated++
			}
		}
		s.logger.InfoContext(ctx, "inventory batch chunk applied",
			slog.String("batch_id", result.BatchID),
			slog.Int("chunk_start", start),
			slog.Int("keys", len(chunk)),
			slog.Int("failed", failed),
		)
	}

	result.Success = len(result.Errors) == 0 && result.TotalUpdated+result.TotalInserted > 0
	s.metrics.observeBatch(result)
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID:  scope.UserID,
		Action:   "inventory:batch_add",
		Entity:   "inventory_batch",
		EntityID: result.BatchID,
		Meta: map[string]any{
			"items":    len(items),
			"updated":  result.TotalUpdated,
			"inserted": result.TotalInserted,
			"merged":   result.Merged,
			"errors":   len(result.Errors),
		},
	})
	return result, nil
}

func (s *Service) addKey(ctx context.Context, scope shared.Scope, batchID string, key batchKey, delta int64) (bool, error) {
	var inserted bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rec, created, err := tx.Increment(ctx, key.productID, key.branchID, delta)
		if err != nil {
			return err
		}
		inserted = created
		return tx.InsertMovements(ctx, []Movement{{
			ProductID:      rec.ProductID,
			BranchID:       rec.BranchID,
			QuantityChange: delta,
			QuantityBefore: rec.Quantity - delta,
			QuantityAfter:  rec.Quantity,
			Type:           MovementIn,
			ReferenceType:  RefBatchAdd,
			ReferenceID:    batchID,
			PerformedBy:    scope.UserID,
			CreatedAt:      s.now(),
		}})
	})
	return inserted, err
}

func validateBatchItem(scope shared.Scope, item BatchItem) error {
	if item.ProductID <= 0 || item.BranchID <= 0 {
		return ErrTargetRequired
	}
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if item.Quantity > MaxQuantity {
		return ErrQuantityTooLarge
	}
	return scope.RequireBranch(item.BranchID)
}

func keyError(key batchKey, err error) string {
	return "product " + strconv.FormatInt(key.productID, 10) + " branch " + strconv.FormatInt(key.branchID, 10) + ": " + err.Error()
}
