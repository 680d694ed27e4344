package memory

import (
	"context"
	"sort"
	"sync"

	loan "rentflow-cloud/internal/loan/domain"
)

// ApplicationRepository is an in-memory application store for demo/testing.
type ApplicationRepository struct {
	mu   sync.RWMutex
	data map[string]loan.Application
}

// NewApplicationRepository constructs a repository seeded with apps.
func NewApplicationRepository(apps ...loan.Application) *ApplicationRepository {
	repo := &ApplicationRepository{data: make(map[string]loan.Application)}
	for _, app := range apps {
		repo.Put(app)
	}
	return repo
}

// Put stores an application, replacing any previous version.
func (r *ApplicationRepository) Put(app loan.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[app.ID] = cloneApplication(app)
}

// FindByID returns an application or nil when absent.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*loan.Application, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	clone := cloneApplication(app)
	return &clone, nil
}

// ListByOwner lists an owner's applications, newest first.
func (r *ApplicationRepository) ListByOwner(ctx context.Context, ownerID string) ([]loan.Application, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]loan.Application, 0)
	for _, app := range r.data {
		if app.OwnerID == ownerID {
			result = append(result, cloneApplication(app))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// PaymentRepository is an in-memory disbursement store keyed by owner.
type PaymentRepository struct {
	mu      sync.RWMutex
	byOwner map[string][]loan.Payment
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{byOwner: make(map[string][]loan.Payment)}
}

// Add records a payment for an owner.
func (r *PaymentRepository) Add(ownerID string, payment loan.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOwner[ownerID] = append(r.byOwner[ownerID], payment)
}

// ListByOwner returns an owner's payments in insertion order.
func (r *PaymentRepository) ListByOwner(ctx context.Context, ownerID string) ([]loan.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]loan.Payment, len(r.byOwner[ownerID]))
	copy(result, r.byOwner[ownerID])
	return result, nil
}

// FlagStore keeps "contract completed" flags in process memory.
type FlagStore struct {
	mu        sync.RWMutex
	completed map[string]bool
}

// NewFlagStore constructs a flag store.
func NewFlagStore() *FlagStore {
	return &FlagStore{completed: make(map[string]bool)}
}

// IsCompleted reports whether the flag is set.
func (s *FlagStore) IsCompleted(ctx context.Context, applicationID string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.completed[applicationID], nil
}

// ListCompleted returns the set flags among applicationIDs.
func (s *FlagStore) ListCompleted(ctx context.Context, applicationIDs []string) (map[string]bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]bool, len(applicationIDs))
	for _, id := range applicationIDs {
		if s.completed[id] {
			result[id] = true
		}
	}
	return result, nil
}

// MarkCompleted sets the flag.
func (s *FlagStore) MarkCompleted(ctx context.Context, applicationID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[applicationID] = true
	return nil
}

func cloneApplication(app loan.Application) loan.Application {
	if app.LoanTerm != nil {
		term := *app.LoanTerm
		app.LoanTerm = &term
	}
	return app
}
