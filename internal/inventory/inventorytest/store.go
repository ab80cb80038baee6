// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-bakery/internal/inventory"
)

type key struct {
	productID int64
	branchID  int64
}

// Store keeps records and movements in memory. WithTx serialises units of
// work and restores the previous state when the callback fails.
type Store struct {
	mu           sync.Mutex
	records      map[int64]inventory.Record
	byKey        map[key]int64
	movements    []inventory.Movement
	nextRecord   int64
	nextMovement int64

	// FailMovements makes InsertMovements return the error.
	FailMovements error
	// FailIncrement makes Increment fail for the listed product ids.
	FailIncrement map[int64]error
	// RacingInsert stores a record with the given quantity the first time
	// LockRecordByKey misses a listed product id, as if another transaction
	// had committed it after the lookup. The lookup still reports a miss.
	RacingInsert map[int64]int64
}

// New returns an empty store.
func New() *Store {
	return &Store{records: map[int64]inventory.Record{}, byKey: map[key]int64{}}
}

// Seed stores a record directly, bypassing the movement log. Negative
// quantities are accepted to simulate legacy data.
func (s *Store) Seed(productID, branchID, quantity int64) inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(productID, branchID, quantity)
}

// SeedMovement appends a movement directly.
func (s *Store) SeedMovement(m inventory.Movement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMovement++
	m.ID = s.nextMovement
	s.movements = append(s.movements, m)
}

// Quantity returns the stored quantity for a key.
func (s *Store) Quantity(productID, branchID int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key{productID, branchID}]
	if !ok {
		return 0, false
	}
	return s.records[id].Quantity, true
}

// Movements returns a copy of the movement log.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.movements)
}

// Records returns every record ordered by id.
func (s *Store) Records() []inventory.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]inventory.Record, 0, len(s.records))
	for _, id := range slices.Sorted(maps.Keys(s.records)) {
		out = append(out, s.records[id])
	}
	return out
}

func (s *Store) put(productID, branchID, quantity int64) inventory.Record {
	k := key{productID, branchID}
	id, ok := s.byKey[k]
	if !ok {
		s.nextRecord++
		id = s.nextRecord
		s.byKey[k] = id
	}
	rec := inventory.Record{ID: id, ProductID: productID, BranchID: branchID, Quantity: quantity, LastUpdated: time.Now().UTC()}
	rec.ReorderPoint = s.records[id].ReorderPoint
	s.records[id] = rec
	return rec
}

// SetReorderPoint sets the reorder point of a stored record.
func (s *Store) SetReorderPoint(productID, branchID, point int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key{productID, branchID}]
	if !ok {
		return
	}
	rec := s.records[id]
	rec.ReorderPoint = point
	s.records[id] = rec
}

// WithTx runs fn as one unit of work.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Atomic(ctx, fn)
}

// Atomic runs fn with rollback on error. The caller must hold the store for
// the duration; fakes of other modules use it inside their own WithTx.
func (s *Store) Atomic(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	records := maps.Clone(s.records)
	byKey := maps.Clone(s.byKey)
	movements := len(s.movements)
	nextRecord, nextMovement := s.nextRecord, s.nextMovement
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.records, s.byKey, s.movements = records, byKey, s.movements[:movements]
		s.nextRecord, s.nextMovement = nextRecord, nextMovement
		return err
	}
	return nil
}

// Lock and Unlock let other fakes compose a wider unit of work with Atomic.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// GetRecord implements inventory.RepositoryPort.
func (s *Store) GetRecord(ctx context.Context, id int64) (inventory.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

// ListRecords implements inventory.RepositoryPort.
func (s *Store) ListRecords(ctx context.Context, filter inventory.RecordFilter) ([]inventory.Record, int, error) {
	out := []inventory.Record{}
	for _, rec := range s.Records() {
		if len(filter.BranchIDs) > 0 && !slices.Contains(filter.BranchIDs, rec.BranchID) {
			continue
		}
		if filter.ProductID != 0 && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.LowOnly && !rec.IsLow() {
			continue
		}
		out = append(out, rec)
	}
	total := len(out)
	out = out[min(filter.Offset, total):]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// ListMovements implements inventory.RepositoryPort.
func (s *Store) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	out := []inventory.Movement{}
	for _, m := range s.Movements() {
		if len(filter.BranchIDs) > 0 && !slices.Contains(filter.BranchIDs, m.BranchID) {
			continue
		}
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.ReferenceType != "" && m.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != "" && m.ReferenceID != filter.ReferenceID {
			continue
		}
		out = append(out, m)
	}
	slices.Reverse(out)
	return out, nil
}

type tx struct {
	s *Store
}

func (t *tx) LockRecord(ctx context.Context, id int64) (inventory.Record, error) {
	rec, ok := t.s.records[id]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return rec, nil
}

func (t *tx) LockRecordByKey(ctx context.Context, productID, branchID int64) (inventory.Record, error) {
	id, ok := t.s.byKey[key{productID, branchID}]
	if !ok {
		if qty, racing := t.s.RacingInsert[productID]; racing {
			delete(t.s.RacingInsert, productID)
			t.s.put(productID, branchID, qty)
		}
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return t.s.records[id], nil
}

func (t *tx) EnsureRecord(ctx context.Context, productID, branchID int64) (bool, error) {
	if _, ok := t.s.byKey[key{productID, branchID}]; ok {
		return false, nil
	}
	t.s.put(productID, branchID, 0)
	return true, nil
}

func (t *tx) Increment(ctx context.Context, productID, branchID, delta int64) (inventory.Record, bool, error) {
	if err := t.s.FailIncrement[productID]; err != nil {
		return inventory.Record{}, false, err
	}
	id, ok := t.s.byKey[key{productID, branchID}]
	if !ok {
		return t.s.put(productID, branchID, delta), true, nil
	}
	return t.s.put(productID, branchID, t.s.records[id].Quantity+delta), false, nil
}

func (t *tx) Decrement(ctx context.Context, id, delta int64) (inventory.Record, error) {
	rec, ok := t.s.records[id]
	if !ok {
		return inventory.Record{}, inventory.ErrRecordNotFound
	}
	return t.s.put(rec.ProductID, rec.BranchID, max(rec.Quantity-delta, 0)), nil
}

func (t *tx) Assign(ctx context.Context, productID, branchID, quantity int64) (inventory.Record, bool, error) {
	_, exists := t.s.byKey[key{productID, branchID}]
	return t.s.put(productID, branchID, quantity), !exists, nil
}

func (t *tx) InsertMovements(ctx context.Context, movements []inventory.Movement) error {
	if t.s.FailMovements != nil {
		return t.s.FailMovements
	}
	for _, m := range movements {
		t.s.nextMovement++
		m.ID = t.s.nextMovement
		t.s.movements = append(t.s.movements, m)
	}
	return nil
}
