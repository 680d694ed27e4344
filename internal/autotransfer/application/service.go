package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rentflow-cloud/internal/audit"
	"rentflow-cloud/internal/auth"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/observability/metrics"
	"rentflow-cloud/internal/reconcile"
)

const defaultLockTTL = 30 * time.Second

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time {
	if c.loc == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.loc)
}

// NewSystemClock returns a clock reporting wall time in loc.
func NewSystemClock(loc *time.Location) Clock {
	return systemClock{loc: loc}
}

// Locker serializes writers per contract. Lock returns autotransfer.ErrContractBusy
// when another holder owns the key.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RegisterRequest is the input of contract registration.
type RegisterRequest struct {
	OwnerID         string          `json:"owner_id"`
	FromAccount     string          `json:"from_account"`
	ToAccount       string          `json:"to_account"`
	ToBankCode      string          `json:"to_bank_code"`
	ToBankName      string          `json:"to_bank_name"`
	BeneficiaryName string          `json:"beneficiary_name"`
	Amount          decimal.Decimal `json:"amount"`
	BillingDay      int             `json:"billing_day"`
	Memo            string          `json:"memo"`
}

// ContractService handles contract registration, lookup and lifecycle transitions.
type ContractService struct {
	contracts  autotransfer.ContractRepository
	executions autotransfer.ExecutionRepository
	reconciler *reconcile.Reconciler
	locker     Locker
	lockTTL    time.Duration
	audit      audit.Logger
	clock      Clock
	logger     *log.Logger
	newID      func() string
}

// ServiceOption customizes the contract service.
type ServiceOption func(*ContractService)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *ContractService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLocker assigns the per-contract lock.
func WithLocker(locker Locker, ttl time.Duration) ServiceOption {
	return func(s *ContractService) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithAuditLogger assigns an audit logger.
func WithAuditLogger(logger audit.Logger) ServiceOption {
	return func(s *ContractService) {
		s.audit = logger
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *ContractService) {
		s.logger = logger
	}
}

// WithIDGenerator overrides contract id generation.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *ContractService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewContractService constructs a contract service.
func NewContractService(contracts autotransfer.ContractRepository, executions autotransfer.ExecutionRepository, reconciler *reconcile.Reconciler, opts ...ServiceOption) (*ContractService, error) {
	if contracts == nil {
		return nil, errors.New("autotransfer: nil contract repo")
	}
	if executions == nil {
		return nil, errors.New("autotransfer: nil execution repo")
	}
	if reconciler == nil {
		return nil, errors.New("autotransfer: nil reconciler")
	}
	service := &ContractService{
		contracts:  contracts,
		executions: executions,
		reconciler: reconciler,
		lockTTL:    defaultLockTTL,
		clock:      systemClock{},
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Register creates an ACTIVE contract. An owner may hold one open (ACTIVE or
// SUSPENDED) contract per source account; the check and the insert run under
// an account lock.
func (s *ContractService) Register(ctx context.Context, req RegisterRequest) (*autotransfer.Contract, error) {
	if req.OwnerID == "" {
		req.OwnerID = auth.SubjectFromContext(ctx)
	}
	if err := ensureOwner(ctx, req.OwnerID); err != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, err
	}
	now := s.clock.Now()
	contract, err := autotransfer.NewContract(s.newID(), req.OwnerID, req.FromAccount, req.ToAccount, req.BeneficiaryName, req.Amount, req.BillingDay, now)
	if err != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, err
	}
	contract.ToBankCode = req.ToBankCode
	contract.ToBankName = req.ToBankName
	contract.Memo = req.Memo

	unlock, err := s.lockOn(ctx, accountLockKey(req.OwnerID, req.FromAccount))
	if err != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, err
	}
	defer unlock()

	existing, err := s.contracts.FindOpenByAccount(ctx, req.OwnerID, req.FromAccount)
	if err != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, err
	}
	if existing != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, autotransfer.ErrDuplicateContract
	}
	if err := s.contracts.Save(ctx, contract); err != nil {
		metrics.IncContractRegister(metrics.ResultError)
		return nil, err
	}
	metrics.IncContractRegister(metrics.ResultSuccess)
	s.logAudit(ctx, audit.ActionContractRegister, contract, map[string]any{
		"billing_day":        contract.BillingDay,
		"amount":             contract.Amount.String(),
		"next_transfer_date": autotransfer.DateKey(contract.NextTransferDate),
	})
	s.logf("contract registered: contract=%s owner=%s next=%s", contract.ID, contract.OwnerID, autotransfer.DateKey(contract.NextTransferDate))
	return contract, nil
}

// Get loads a contract with counters recomputed from its execution history.
func (s *ContractService) Get(ctx context.Context, id string) (*autotransfer.Contract, error) {
	contract, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.executions.ListByContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	contract.ApplyStats(autotransfer.ComputeStats(history))
	return contract, nil
}

// List returns the contracts of an owner.
func (s *ContractService) List(ctx context.Context, ownerID string) ([]autotransfer.Contract, error) {
	owner, err := auth.OwnerScope(ctx, ownerID)
	if err != nil {
		return nil, autotransfer.ErrForbidden
	}
	if owner == "" {
		return nil, &autotransfer.ValidationError{Field: "owner_id", Message: "required"}
	}
	return s.contracts.ListByOwner(ctx, owner)
}

// History returns the reconciled execution history of a contract.
func (s *ContractService) History(ctx context.Context, id string) (*autotransfer.Contract, reconcile.Result, error) {
	contract, err := s.load(ctx, id)
	if err != nil {
		return nil, reconcile.Result{}, err
	}
	records, err := s.executions.ListByContract(ctx, contract.ID)
	if err != nil {
		return nil, reconcile.Result{}, err
	}
	contract.ApplyStats(autotransfer.ComputeStats(records))
	return contract, s.reconciler.Summarize(records), nil
}

// Suspend pauses a contract.
func (s *ContractService) Suspend(ctx context.Context, id string) (*autotransfer.Contract, error) {
	return s.transition(ctx, id, autotransfer.TransitionSuspend)
}

// Resume reactivates a contract and reschedules it.
func (s *ContractService) Resume(ctx context.Context, id string) (*autotransfer.Contract, error) {
	return s.transition(ctx, id, autotransfer.TransitionResume)
}

// Cancel terminates a contract.
func (s *ContractService) Cancel(ctx context.Context, id string) (*autotransfer.Contract, error) {
	return s.transition(ctx, id, autotransfer.TransitionCancel)
}

func (s *ContractService) transition(ctx context.Context, id string, t autotransfer.Transition) (*autotransfer.Contract, error) {
	unlock, err := s.lock(ctx, id)
	if err != nil {
		metrics.IncContractTransition(string(t), metrics.ResultError)
		return nil, err
	}
	defer unlock()

	contract, err := s.load(ctx, id)
	if err != nil {
		metrics.IncContractTransition(string(t), metrics.ResultError)
		return nil, err
	}
	from := contract.Status
	if err := contract.Apply(t, s.clock.Now()); err != nil {
		metrics.IncContractTransition(string(t), metrics.ResultError)
		return nil, err
	}
	if err := s.contracts.Save(ctx, contract); err != nil {
		metrics.IncContractTransition(string(t), metrics.ResultError)
		return nil, err
	}
	metrics.IncContractTransition(string(t), metrics.ResultSuccess)
	s.logAudit(ctx, transitionAction(t), contract, map[string]any{
		"from":               from,
		"to":                 contract.Status,
		"next_transfer_date": autotransfer.DateKey(contract.NextTransferDate),
	})
	s.logf("contract %s: contract=%s from=%s to=%s", t, contract.ID, from, contract.Status)
	return contract, nil
}

func (s *ContractService) load(ctx context.Context, id string) (*autotransfer.Contract, error) {
	if id == "" {
		return nil, &autotransfer.ValidationError{Field: "id", Message: "required"}
	}
	contract, err := s.contracts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract == nil {
		return nil, autotransfer.ErrNotFound
	}
	if err := ensureOwner(ctx, contract.OwnerID); err != nil {
		return nil, err
	}
	return contract, nil
}

func (s *ContractService) lock(ctx context.Context, id string) (func(), error) {
	return s.lockOn(ctx, lockKey(id))
}

func (s *ContractService) lockOn(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, key, s.lockTTL)
}

func (s *ContractService) logAudit(ctx context.Context, action string, contract *autotransfer.Contract, meta map[string]any) {
	if s.audit == nil || contract == nil {
		return
	}
	actor := auth.SubjectFromContext(ctx)
	if actor == "" {
		actor = "system"
	}
	entry := audit.Entry{
		OwnerID:      contract.OwnerID,
		Actor:        actor,
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: "auto_transfer_contract",
		ResourceID:   contract.ID,
		Metadata:     audit.Metadata(meta),
		CreatedAt:    s.clock.Now().UTC(),
	}
	if err := s.audit.Log(ctx, entry); err != nil {
		s.logf("audit log failed: action=%s contract=%s err=%v", action, contract.ID, err)
	}
}

func (s *ContractService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func ensureOwner(ctx context.Context, ownerID string) error {
	if err := auth.EnsureOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("%w: owner %s", autotransfer.ErrForbidden, ownerID)
	}
	return nil
}

func transitionAction(t autotransfer.Transition) string {
	switch t {
	case autotransfer.TransitionSuspend:
		return audit.ActionContractSuspend
	case autotransfer.TransitionResume:
		return audit.ActionContractResume
	default:
		return audit.ActionContractCancel
	}
}

func lockKey(contractID string) string {
	return "autotransfer:contract:" + contractID
}

func accountLockKey(ownerID, fromAccount string) string {
	return "autotransfer:account:" + ownerID + "|" + fromAccount
}
