package autotransfer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the canonical result of one execution attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePending Outcome = "PENDING"
)

// MaxRetries bounds re-execution of a failed obligation.
const MaxRetries = 3

// ExecutionRecord is one attempt to carry out a scheduled payment.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	ContractID    string          `json:"contract_id"`
	ScheduledDate time.Time       `json:"scheduled_date"`
	ExecutionDate *time.Time      `json:"execution_date"`
	Amount        decimal.Decimal `json:"amount"`
	Outcome       Outcome         `json:"outcome"`
	TransactionID string          `json:"transaction_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	RetryCount    int             `json:"retry_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewPendingExecution opens an attempt for the obligation scheduled on the given day.
func NewPendingExecution(id string, contract *Contract, scheduled, now time.Time) (*ExecutionRecord, error) {
	if contract == nil {
		return nil, ErrNilContract
	}
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "required"}
	}
	return &ExecutionRecord{
		ID:            id,
		ContractID:    contract.ID,
		ScheduledDate: scheduled,
		Amount:        contract.Amount,
		Outcome:       OutcomePending,
		CreatedAt:     now,
	}, nil
}

// IdempotencyKey identifies the obligation the record belongs to.
func (r *ExecutionRecord) IdempotencyKey() string {
	return IdempotencyKey(r.ContractID, r.ScheduledDate)
}

// Resolved reports whether the attempt reached SUCCESS or FAILED.
func (r *ExecutionRecord) Resolved() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeFailed
}

// MarkSucceeded resolves a pending attempt. A transaction id is mandatory.
func (r *ExecutionRecord) MarkSucceeded(transactionID string, at time.Time) error {
	if r.Resolved() {
		return &ValidationError{Field: "outcome", Message: "execution already resolved"}
	}
	if transactionID == "" {
		return &ValidationError{Field: "transaction_id", Message: "required on success"}
	}
	r.Outcome = OutcomeSuccess
	r.TransactionID = transactionID
	r.FailureReason = ""
	r.ExecutionDate = &at
	return nil
}

// MarkFailed resolves a pending attempt with a reason.
func (r *ExecutionRecord) MarkFailed(reason string, at time.Time) error {
	if r.Resolved() {
		return &ValidationError{Field: "outcome", Message: "execution already resolved"}
	}
	if reason == "" {
		reason = "unknown failure"
	}
	r.Outcome = OutcomeFailed
	r.FailureReason = reason
	r.TransactionID = ""
	r.ExecutionDate = &at
	return nil
}

// Orphaned reports whether a PENDING attempt has outlived the window in which
// its executor could still resolve it.
func (r *ExecutionRecord) Orphaned(now time.Time, window time.Duration) bool {
	return r.Outcome == OutcomePending && now.Sub(r.CreatedAt) > window
}

// CanRetry reports whether a failed attempt may run again.
func (r *ExecutionRecord) CanRetry() bool {
	return r.Outcome == OutcomeFailed && r.RetryCount < MaxRetries
}

// Retry reopens a failed attempt.
func (r *ExecutionRecord) Retry() error {
	if !r.CanRetry() {
		return &ValidationError{Field: "retry_count", Message: "retry not allowed"}
	}
	r.RetryCount++
	r.Outcome = OutcomePending
	r.FailureReason = ""
	r.ExecutionDate = nil
	return nil
}

// Stats are the execution counters of one contract.
type Stats struct {
	Total         int
	Succeeded     int
	Failed        int
	LastExecution *time.Time
}

// SuccessRate returns Succeeded/Total, 0 on an empty history.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total)
}

// ComputeStats folds a contract history into counters. Pending attempts count
// toward Total only.
func ComputeStats(records []ExecutionRecord) Stats {
	var stats Stats
	for i := range records {
		rec := &records[i]
		stats.Total++
		switch rec.Outcome {
		case OutcomeSuccess:
			stats.Succeeded++
		case OutcomeFailed:
			stats.Failed++
		}
		if rec.ExecutionDate == nil {
			continue
		}
		if stats.LastExecution == nil || rec.ExecutionDate.After(*stats.LastExecution) {
			last := *rec.ExecutionDate
			stats.LastExecution = &last
		}
	}
	return stats
}
