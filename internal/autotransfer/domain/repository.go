package autotransfer

import (
	"context"
	"time"
)

// ContractRepository persists recurring-payment contracts.
// FindByID returns nil, nil when the contract does not exist.
type ContractRepository interface {
	FindByID(ctx context.Context, id string) (*Contract, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Contract, error)
	ListDue(ctx context.Context, day time.Time) ([]Contract, error)
	FindOpenByAccount(ctx context.Context, ownerID, fromAccount string) (*Contract, error)
	Save(ctx context.Context, contract *Contract) error
}

// ExecutionRepository persists execution attempts.
// FindByKey returns nil, nil when no attempt exists for the obligation.
type ExecutionRepository interface {
	FindByKey(ctx context.Context, contractID string, scheduled time.Time) (*ExecutionRecord, error)
	ListByContract(ctx context.Context, contractID string) ([]ExecutionRecord, error)
	Save(ctx context.Context, record *ExecutionRecord) error
}
