package production

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-bakery/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRequest(ctx context.Context, id int64) (Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, int, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)
}

// Notifier tells a branch about progress on its requests.
type Notifier interface {
	Notify(ctx context.Context, branchID int64, kind, title, message string) error
}

// Service manages production requests and batches. It never touches
// inventory; finished goods reach branches through orders or batch adds.
type Service struct {
	repo     RepositoryPort
	audit    shared.AuditPort
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRequest opens a pending request for a branch in the scope.
func (s *Service) CreateRequest(ctx context.Context, scope shared.Scope, input RequestInput) (Request, error) {
	if input.Quantity <= 0 {
		return Request{}, ErrInvalidQuantity
	}
	if err := scope.RequireBranch(input.BranchID); err != nil {
		return Request{}, err
	}
	req := Request{
		RequestNumber: code("PRQ", s.now()),
		BranchID:      input.BranchID,
		ProductID:     input.ProductID,
		Quantity:      input.Quantity,
		NeededBy:      input.NeededBy,
		Status:        StatusPending,
		Notes:         strings.TrimSpace(input.Notes),
		RequestedBy:   scope.UserID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.InsertRequest(ctx, req)
		return err
	})
	if err != nil {
		return Request{}, err
	}
	s.record(ctx, scope, req.BranchID, "production:request", "production_request", req.ID, map[string]any{"quantity": req.Quantity})
	return req, nil
}

// UpdateStatus moves a request along pending -> approved|rejected ->
// in_production -> completed.
func (s *Service) UpdateStatus(ctx context.Context, scope shared.Scope, id int64, input StatusInput) (Request, error) {
	var req Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if err := scope.RequireBranch(req.BranchID); err != nil {
			return err
		}
		if !CanTransition(req.Status, input.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, input.Status)
		}
		if err := tx.UpdateStatus(ctx, id, input.Status, scope.UserID, strings.TrimSpace(input.Notes)); err != nil {
			return err
		}
		req.Status, req.UpdatedBy, req.UpdatedAt = input.Status, scope.UserID, s.now()
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.record(ctx, scope, req.BranchID, "production:"+string(input.Status), "production_request", req.ID, nil)
	if s.notifier != nil && (input.Status == StatusCompleted || input.Status == StatusRejected) {
		title := "Production request " + req.RequestNumber + " " + strings.ReplaceAll(string(input.Status), "_", " ")
		msg := fmt.Sprintf("%d of %d units produced", req.Produced, req.Quantity)
		if err := s.notifier.Notify(ctx, req.BranchID, "production_"+string(input.Status), title, msg); err != nil {
			s.logger.Warn("production notification failed", slog.Int64("request_id", req.ID), slog.Any("error", err))
		}
	}
	return req, nil
}

// RecordBatch logs a produced batch against a request that is in production.
func (s *Service) RecordBatch(ctx context.Context, scope shared.Scope, input BatchInput) (Batch, error) {
	if input.Quantity <= 0 {
		return Batch{}, ErrInvalidQuantity
	}
	batch := Batch{
		BatchCode:  strings.TrimSpace(input.BatchCode),
		RequestID:  input.RequestID,
		ProductID:  input.ProductID,
		Quantity:   input.Quantity,
		ProducedAt: input.ProducedAt,
		CreatedBy:  scope.UserID,
		Notes:      strings.TrimSpace(input.Notes),
	}
	if batch.BatchCode == "" {
		batch.BatchCode = code("BATCH", s.now())
	}
	if batch.ProducedAt.IsZero() {
		batch.ProducedAt = s.now()
	}
	var branchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		req, err := tx.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if err := scope.RequireBranch(req.BranchID); err != nil {
			return err
		}
		if req.Status != StatusInProduction {
			return ErrNotInProduction
		}
		if req.ProductID != input.ProductID {
			return ErrProductMismatch
		}
		branchID = req.BranchID
		batch, err = tx.InsertBatch(ctx, batch)
		return err
	})
	if err != nil {
		return Batch{}, err
	}
	s.record(ctx, scope, branchID, "production:batch", "production_batch", batch.ID, map[string]any{
		"request_id": batch.RequestID, "quantity": batch.Quantity, "batch_code": batch.BatchCode,
	})
	return batch, nil
}

// GetRequest returns a request visible to the scope.
func (s *Service) GetRequest(ctx context.Context, scope shared.Scope, id int64) (Request, error) {
	req, err := s.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if err := scope.RequireBranch(req.BranchID); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ListRequests returns requests visible to the scope.
func (s *Service) ListRequests(ctx context.Context, scope shared.Scope, branchID int64, filter RequestFilter) ([]Request, int, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, 0, err
	}
	filter.BranchIDs = branches
	return s.repo.ListRequests(ctx, filter)
}

// ListBatches returns batches for requests visible to the scope.
func (s *Service) ListBatches(ctx context.Context, scope shared.Scope, branchID int64, filter BatchFilter) ([]Batch, error) {
	branches, err := scope.FilterBranch(branchID)
	if err != nil {
		return nil, err
	}
	filter.BranchIDs = branches
	return s.repo.ListBatches(ctx, filter)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, branchID int64, action, entity string, id int64, meta map[string]any) {
	shared.RecordBestEffort(ctx, s.audit, shared.AuditLog{
		ActorID:  scope.UserID,
		BranchID: branchID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}

func code(prefix string, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return prefix + "-" + now.Format("20060102") + "-" + suffix
}
