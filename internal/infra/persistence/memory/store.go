// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"maps"
	"sync"

	"pharmacore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type sequences struct {
	pharmacy     int64
	drug         int64
	contract     int64
	prescription int64
}

type memoryState struct {
	doctors       map[string]domain.Doctor
	patients      map[string]domain.Patient
	manufacturers map[string]domain.Manufacturer
	pharmacies    map[int64]domain.Pharmacy
	drugs         map[int64]domain.Drug
	contracts     map[int64]domain.Contract
	inventory     map[domain.InventoryKey]domain.InventoryItem
	prescriptions map[int64]domain.Prescription
	lines         map[domain.LineKey]domain.PrescriptionLine
	seq           sequences
}

func newMemoryState() memoryState {
	return memoryState{
		doctors:       make(map[string]domain.Doctor),
		patients:      make(map[string]domain.Patient),
		manufacturers: make(map[string]domain.Manufacturer),
		pharmacies:    make(map[int64]domain.Pharmacy),
		drugs:         make(map[int64]domain.Drug),
		contracts:     make(map[int64]domain.Contract),
		inventory:     make(map[domain.InventoryKey]domain.InventoryItem),
		prescriptions: make(map[int64]domain.Prescription),
		lines:         make(map[domain.LineKey]domain.PrescriptionLine),
	}
}

// Entities are plain values, so a shallow map copy isolates transactions.
func (s memoryState) clone() memoryState {
	return memoryState{
		doctors:       maps.Clone(s.doctors),
		patients:      maps.Clone(s.patients),
		manufacturers: maps.Clone(s.manufacturers),
		pharmacies:    maps.Clone(s.pharmacies),
		drugs:         maps.Clone(s.drugs),
		contracts:     maps.Clone(s.contracts),
		inventory:     maps.Clone(s.inventory),
		prescriptions: maps.Clone(s.prescriptions),
		lines:         maps.Clone(s.lines),
		seq:           s.seq,
	}
}

func memoryStateFromSnapshot(snapshot domain.Snapshot) memoryState {
	state := newMemoryState()
	for _, d := range snapshot.Doctors {
		state.doctors[d.NationalID] = d
	}
	for _, p := range snapshot.Patients {
		state.patients[p.NationalID] = p
	}
	for _, m := range snapshot.Manufacturers {
		state.manufacturers[m.Name] = m
	}
	for _, p := range snapshot.Pharmacies {
		state.pharmacies[p.ID] = p
		state.seq.pharmacy = max(state.seq.pharmacy, p.ID)
	}
	for _, d := range snapshot.Drugs {
		state.drugs[d.ID] = d
		state.seq.drug = max(state.seq.drug, d.ID)
	}
	for _, c := range snapshot.Contracts {
		c.StartDate = domain.CalendarDate(c.StartDate)
		c.EndDate = domain.CalendarDate(c.EndDate)
		state.contracts[c.ID] = c
		state.seq.contract = max(state.seq.contract, c.ID)
	}
	for _, item := range snapshot.Inventory {
		state.inventory[item.Key()] = item
	}
	for _, p := range snapshot.Prescriptions {
		p.Date = domain.CalendarDate(p.Date)
		state.prescriptions[p.ID] = p
		state.seq.prescription = max(state.seq.prescription, p.ID)
	}
	for _, l := range snapshot.PrescriptionLines {
		state.lines[l.Key()] = l
	}
	return state
}

// Store provides an in-memory transactional store for the pharmacy domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return domain.SnapshotOf(newTransactionView(&snapshot))
}

// ImportState replaces the store state with the provided snapshot. Surrogate
// key sequences continue after the highest imported identifier.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule
// violation is reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
