package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"rentflow-cloud/internal/audit"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/autotransfer/notify"
	"rentflow-cloud/internal/bankgateway"
	"rentflow-cloud/internal/observability/metrics"
)

// Transferer moves funds for one obligation.
type Transferer interface {
	Transfer(ctx context.Context, req bankgateway.TransferRequest) (bankgateway.TransferResult, error)
}

// ExecutionResult describes what happened to one due contract.
type ExecutionResult struct {
	ContractID     string               `json:"contract_id"`
	ScheduledDate  string               `json:"scheduled_date"`
	ExecutionID    string               `json:"execution_id,omitempty"`
	Outcome        autotransfer.Outcome `json:"outcome,omitempty"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	RetryCount     int                  `json:"retry_count"`
	Skipped        bool                 `json:"skipped"`
	SkipReason     string               `json:"skip_reason,omitempty"`
	NextTransferAt string               `json:"next_transfer_date,omitempty"`
}

// RunSummary aggregates one executor run.
type RunSummary struct {
	RunAt     time.Time         `json:"run_at"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Results   []ExecutionResult `json:"results"`
}

const (
	skipNotDue           = "not due"
	skipLocked           = "contract busy"
	skipAlreadySucceeded = "already succeeded"
	skipInFlight         = "execution pending"
	skipRetriesExhausted = "retries exhausted"
)

// Executor runs due transfers. It is the trigger side of the schedule: it
// never decides due dates itself beyond Contract.CanExecute.
type Executor struct {
	contracts  autotransfer.ContractRepository
	executions autotransfer.ExecutionRepository
	transferer Transferer
	locker     Locker
	lockTTL    time.Duration
	audit      audit.Logger
	notifier   notify.Notifier
	clock      Clock
	logger     *log.Logger
}

// ExecutorOption customizes the executor.
type ExecutorOption func(*Executor)

// WithExecutorClock assigns a clock.
func WithExecutorClock(clock Clock) ExecutorOption {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithExecutorLocker assigns the per-contract lock.
func WithExecutorLocker(locker Locker, ttl time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.locker = locker
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithExecutorAudit assigns an audit logger.
func WithExecutorAudit(logger audit.Logger) ExecutorOption {
	return func(e *Executor) {
		e.audit = logger
	}
}

// WithExecutorNotifier alerts operators when an obligation exhausts its retries.
func WithExecutorNotifier(notifier notify.Notifier) ExecutorOption {
	return func(e *Executor) {
		e.notifier = notifier
	}
}

// WithExecutorLogger assigns a logger.
func WithExecutorLogger(logger *log.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor constructs an executor.
func NewExecutor(contracts autotransfer.ContractRepository, executions autotransfer.ExecutionRepository, transferer Transferer, opts ...ExecutorOption) (*Executor, error) {
	if contracts == nil {
		return nil, errors.New("executor: nil contract repo")
	}
	if executions == nil {
		return nil, errors.New("executor: nil execution repo")
	}
	if transferer == nil {
		return nil, errors.New("executor: nil transferer")
	}
	executor := &Executor{
		contracts:  contracts,
		executions: executions,
		transferer: transferer,
		lockTTL:    defaultLockTTL,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor, nil
}

// RunDue executes every ACTIVE contract due on or before today. A failing
// contract does not stop the run; repository errors while listing do.
func (e *Executor) RunDue(ctx context.Context) (RunSummary, error) {
	start := time.Now()
	now := e.clock.Now()
	summary := RunSummary{RunAt: now}

	due, err := e.contracts.ListDue(ctx, now)
	if err != nil {
		metrics.ObserveExecutorRun(metrics.ResultError, time.Since(start))
		return summary, err
	}
	for i := range due {
		if err := ctx.Err(); err != nil {
			metrics.ObserveExecutorRun(metrics.ResultError, time.Since(start))
			return summary, err
		}
		result, err := e.runContract(ctx, due[i].ID, now)
		if err != nil {
			e.logf("executor error: contract=%s err=%v", due[i].ID, err)
			result = ExecutionResult{ContractID: due[i].ID, Outcome: autotransfer.OutcomeFailed, FailureReason: err.Error()}
		}
		summary.Total++
		switch {
		case result.Skipped:
			summary.Skipped++
		case result.Outcome == autotransfer.OutcomeSuccess:
			summary.Succeeded++
		default:
			summary.Failed++
		}
		summary.Results = append(summary.Results, result)
	}
	metrics.ObserveExecutorRun(metrics.ResultSuccess, time.Since(start))
	e.logf("executor run: total=%d succeeded=%d failed=%d skipped=%d", summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)
	return summary, nil
}

func (e *Executor) runContract(ctx context.Context, contractID string, now time.Time) (ExecutionResult, error) {
	result := ExecutionResult{ContractID: contractID}
	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, lockKey(contractID), e.lockTTL)
		if errors.Is(err, autotransfer.ErrContractBusy) {
			return skipped(result, skipLocked), nil
		}
		if err != nil {
			return result, err
		}
		defer unlock()
	}

	contract, err := e.contracts.FindByID(ctx, contractID)
	if err != nil {
		return result, err
	}
	if contract == nil {
		return result, autotransfer.ErrNotFound
	}
	scheduled := contract.NextTransferDate
	result.ScheduledDate = autotransfer.DateKey(scheduled)
	if !contract.CanExecute(now) {
		return skipped(result, skipNotDue), nil
	}

	record, err := e.executions.FindByKey(ctx, contract.ID, scheduled)
	if err != nil {
		return result, err
	}
	switch {
	case record == nil:
		record, err = autotransfer.NewPendingExecution(uuid.NewString(), contract, scheduled, now)
		if err != nil {
			return result, err
		}
	case record.Outcome == autotransfer.OutcomeSuccess:
		if err := e.advance(ctx, contract, now); err != nil {
			return result, err
		}
		result.NextTransferAt = autotransfer.DateKey(contract.NextTransferDate)
		return skipped(result, skipAlreadySucceeded), nil
	case record.Outcome == autotransfer.OutcomePending:
		if !record.Orphaned(now, e.lockTTL) {
			return skipped(result, skipInFlight), nil
		}
		// Resent under the same idempotency key; the gateway settles duplicates.
		metrics.IncOrphanedExecution()
		e.logf("orphaned execution resent: contract=%s execution=%s scheduled=%s", contract.ID, record.ID, result.ScheduledDate)
	case record.CanRetry():
		if err := record.Retry(); err != nil {
			return result, err
		}
	default:
		if err := e.advance(ctx, contract, now); err != nil {
			return result, err
		}
		result.NextTransferAt = autotransfer.DateKey(contract.NextTransferDate)
		return skipped(result, skipRetriesExhausted), nil
	}
	if err := e.executions.Save(ctx, record); err != nil {
		return result, err
	}
	result.ExecutionID = record.ID

	transfer, err := e.transferer.Transfer(ctx, bankgateway.TransferRequest{
		IdempotencyKey:  record.IdempotencyKey(),
		FromAccount:     contract.FromAccount,
		ToAccount:       contract.ToAccount,
		ToBankCode:      contract.ToBankCode,
		BeneficiaryName: contract.BeneficiaryName,
		Amount:          record.Amount,
		Memo:            contract.Memo,
	})
	resolvedAt := e.clock.Now()
	switch {
	case err != nil:
		if err := record.MarkFailed("gateway error: "+err.Error(), resolvedAt); err != nil {
			return result, err
		}
	case transfer.Succeeded():
		if err := record.MarkSucceeded(transfer.TransactionID, resolvedAt); err != nil {
			return result, err
		}
	default:
		if err := record.MarkFailed(transfer.FailureReason, resolvedAt); err != nil {
			return result, err
		}
	}
	if err := e.executions.Save(ctx, record); err != nil {
		return result, err
	}
	metrics.IncExecutionOutcome(string(record.Outcome))

	if record.Outcome == autotransfer.OutcomeSuccess || !record.CanRetry() {
		if err := e.advance(ctx, contract, now); err != nil {
			return result, err
		}
	} else if err := e.refreshStats(ctx, contract); err != nil {
		return result, err
	}

	result.Outcome = record.Outcome
	result.TransactionID = record.TransactionID
	result.FailureReason = record.FailureReason
	result.RetryCount = record.RetryCount
	result.NextTransferAt = autotransfer.DateKey(contract.NextTransferDate)
	e.logAudit(ctx, contract, record)
	if record.Outcome == autotransfer.OutcomeFailed && !record.CanRetry() {
		e.alert(ctx, contract, record)
	}
	e.logf("transfer executed: contract=%s scheduled=%s outcome=%s retry=%d", contract.ID, result.ScheduledDate, record.Outcome, record.RetryCount)
	return result, nil
}

// advance moves the contract to its next billing date and persists counters.
func (e *Executor) advance(ctx context.Context, contract *autotransfer.Contract, now time.Time) error {
	if err := contract.Advance(now); err != nil {
		return err
	}
	return e.refreshStats(ctx, contract)
}

func (e *Executor) refreshStats(ctx context.Context, contract *autotransfer.Contract) error {
	history, err := e.executions.ListByContract(ctx, contract.ID)
	if err != nil {
		return err
	}
	contract.ApplyStats(autotransfer.ComputeStats(history))
	contract.UpdatedAt = e.clock.Now()
	return e.contracts.Save(ctx, contract)
}

func (e *Executor) logAudit(ctx context.Context, contract *autotransfer.Contract, record *autotransfer.ExecutionRecord) {
	if e.audit == nil {
		return
	}
	entry := audit.Entry{
		OwnerID:      contract.OwnerID,
		Actor:        "executor",
		Action:       audit.ActionTransferExecute,
		ResourceType: "auto_transfer_execution",
		ResourceID:   record.ID,
		Metadata: audit.Metadata(map[string]any{
			"contract_id":    contract.ID,
			"scheduled_date": autotransfer.DateKey(record.ScheduledDate),
			"outcome":        record.Outcome,
			"retry_count":    record.RetryCount,
		}),
		CreatedAt: e.clock.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logf("audit log failed: action=%s execution=%s err=%v", entry.Action, record.ID, err)
	}
}

func (e *Executor) alert(ctx context.Context, contract *autotransfer.Contract, record *autotransfer.ExecutionRecord) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Notify(ctx, notify.TransferAlert{
		ContractID:    contract.ID,
		OwnerID:       contract.OwnerID,
		ScheduledDate: autotransfer.DateKey(record.ScheduledDate),
		Amount:        record.Amount.String(),
		FailureReason: record.FailureReason,
		RetryCount:    record.RetryCount,
		NextTransfer:  autotransfer.DateKey(contract.NextTransferDate),
	})
	if err != nil {
		e.logf("transfer alert failed: contract=%s err=%v", contract.ID, err)
	}
}

func (e *Executor) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func skipped(result ExecutionResult, reason string) ExecutionResult {
	result.Skipped = true
	result.SkipReason = reason
	return result
}
