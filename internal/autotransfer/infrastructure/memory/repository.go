package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
)

// ContractRepository is an in-memory repository for demo/testing.
type ContractRepository struct {
	mu   sync.RWMutex
	data map[string]*autotransfer.Contract
}

// NewContractRepository constructs a repository.
func NewContractRepository() *ContractRepository {
	return &ContractRepository{data: make(map[string]*autotransfer.Contract)}
}

// FindByID loads a contract, nil when absent.
func (r *ContractRepository) FindByID(ctx context.Context, id string) (*autotransfer.Contract, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[id].Clone(), nil
}

// ListByOwner returns an owner's contracts ordered by creation time.
func (r *ContractRepository) ListByOwner(ctx context.Context, ownerID string) ([]autotransfer.Contract, error) {
	return r.list(ctx, func(c *autotransfer.Contract) bool { return c.OwnerID == ownerID })
}

// ListDue returns ACTIVE contracts due on or before day.
func (r *ContractRepository) ListDue(ctx context.Context, day time.Time) ([]autotransfer.Contract, error) {
	return r.list(ctx, func(c *autotransfer.Contract) bool { return c.CanExecute(day) })
}

// FindOpenByAccount returns the owner's ACTIVE or SUSPENDED contract on a source account.
func (r *ContractRepository) FindOpenByAccount(ctx context.Context, ownerID, fromAccount string) (*autotransfer.Contract, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.data {
		if c.OwnerID == ownerID && c.FromAccount == fromAccount && c.Status.Open() {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

// Save upserts a contract.
func (r *ContractRepository) Save(ctx context.Context, contract *autotransfer.Contract) error {
	_ = ctx
	if contract == nil {
		return autotransfer.ErrNilContract
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if contract.Status.Open() {
		for id, c := range r.data {
			if id != contract.ID && c.Status.Open() && c.OwnerID == contract.OwnerID && c.FromAccount == contract.FromAccount {
				return autotransfer.ErrDuplicateContract
			}
		}
	}
	r.data[contract.ID] = contract.Clone()
	return nil
}

func (r *ContractRepository) list(ctx context.Context, keep func(*autotransfer.Contract) bool) ([]autotransfer.Contract, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]autotransfer.Contract, 0)
	for _, c := range r.data {
		if keep(c) {
			result = append(result, *c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ExecutionRepository is an in-memory execution store keyed by obligation.
type ExecutionRepository struct {
	mu    sync.RWMutex
	byKey map[string]*autotransfer.ExecutionRecord
}

// NewExecutionRepository constructs a repository.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{byKey: make(map[string]*autotransfer.ExecutionRecord)}
}

// FindByKey loads the attempt for contract+scheduled day, nil when absent.
func (r *ExecutionRepository) FindByKey(ctx context.Context, contractID string, scheduled time.Time) (*autotransfer.ExecutionRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.byKey[autotransfer.IdempotencyKey(contractID, scheduled)]
	if rec == nil {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// ListByContract returns a contract's attempts, newest scheduled first.
func (r *ExecutionRepository) ListByContract(ctx context.Context, contractID string) ([]autotransfer.ExecutionRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]autotransfer.ExecutionRecord, 0)
	for _, rec := range r.byKey {
		if rec.ContractID == contractID {
			result = append(result, *cloneRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ScheduledDate.After(result[j].ScheduledDate)
	})
	return result, nil
}

// Save upserts an attempt by its idempotency key.
func (r *ExecutionRepository) Save(ctx context.Context, record *autotransfer.ExecutionRecord) error {
	_ = ctx
	if record == nil {
		return autotransfer.ErrNilExecution
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[record.IdempotencyKey()] = cloneRecord(record)
	return nil
}

func cloneRecord(rec *autotransfer.ExecutionRecord) *autotransfer.ExecutionRecord {
	clone := *rec
	if rec.ExecutionDate != nil {
		at := *rec.ExecutionDate
		clone.ExecutionDate = &at
	}
	return &clone
}
