package autotransfer

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a recurring-payment contract.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus normalizes a persisted status label.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(value))) {
	case StatusActive:
		return StatusActive, true
	case StatusSuspended:
		return StatusSuspended, true
	case StatusCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// Terminal reports whether no transition may leave the status.
func (s Status) Terminal() bool { return s == StatusCancelled }

// Open reports whether the contract still holds its source account.
func (s Status) Open() bool { return s == StatusActive || s == StatusSuspended }

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionSuspend Transition = "suspend"
	TransitionResume  Transition = "resume"
	TransitionCancel  Transition = "cancel"
)

// allowedFrom lists the source states of every transition.
//
//	transition | ACTIVE | SUSPENDED | CANCELLED
//	suspend    |  yes   |    no     |    no
//	resume     |  no    |    yes    |    no
//	cancel     |  yes   |    yes    |    no
var allowedFrom = map[Transition]map[Status]bool{
	TransitionSuspend: {StatusActive: true},
	TransitionResume:  {StatusSuspended: true},
	TransitionCancel:  {StatusActive: true, StatusSuspended: true},
}

// CanTransition reports whether t is legal from status.
func CanTransition(t Transition, from Status) bool {
	return allowedFrom[t][from]
}

// Contract is a recurring rent/fee debit agreement.
type Contract struct {
	ID                   string          `json:"id"`
	OwnerID              string          `json:"owner_id"`
	FromAccount          string          `json:"from_account"`
	ToAccount            string          `json:"to_account"`
	ToBankCode           string          `json:"to_bank_code,omitempty"`
	ToBankName           string          `json:"to_bank_name,omitempty"`
	BeneficiaryName      string          `json:"beneficiary_name"`
	Amount               decimal.Decimal `json:"amount"`
	BillingDay           int             `json:"billing_day"`
	Memo                 string          `json:"memo,omitempty"`
	Status               Status          `json:"status"`
	NextTransferDate     time.Time       `json:"next_transfer_date"`
	TotalExecutions      int             `json:"total_executions"`
	SuccessfulExecutions int             `json:"successful_executions"`
	FailedExecutions     int             `json:"failed_executions"`
	LastExecutionDate    *time.Time      `json:"last_execution_date"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NewContract builds an ACTIVE contract scheduled from now.
func NewContract(id, ownerID, fromAccount, toAccount, beneficiary string, amount decimal.Decimal, billingDay int, now time.Time) (*Contract, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "required"}
	}
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner_id", Message: "required"}
	}
	if fromAccount == "" || toAccount == "" {
		return nil, &ValidationError{Field: "account", Message: "source and destination accounts required"}
	}
	if fromAccount == toAccount {
		return nil, &ValidationError{Field: "account", Message: "source and destination must differ"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	next, err := NextDueDate(billingDay, now)
	if err != nil {
		return nil, err
	}
	return &Contract{
		ID:               id,
		OwnerID:          ownerID,
		FromAccount:      fromAccount,
		ToAccount:        toAccount,
		BeneficiaryName:  beneficiary,
		Amount:           amount,
		BillingDay:       billingDay,
		Status:           StatusActive,
		NextTransferDate: next,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Suspend pauses an ACTIVE contract. NextTransferDate is kept.
func (c *Contract) Suspend(now time.Time) error {
	if err := c.guard(TransitionSuspend); err != nil {
		return err
	}
	c.Status = StatusSuspended
	c.UpdatedAt = now
	return nil
}

// Resume reactivates a SUSPENDED contract and reschedules it from now.
func (c *Contract) Resume(now time.Time) error {
	if err := c.guard(TransitionResume); err != nil {
		return err
	}
	next, err := NextDueDate(c.BillingDay, now)
	if err != nil {
		return err
	}
	c.Status = StatusActive
	c.NextTransferDate = next
	c.UpdatedAt = now
	return nil
}

// Cancel terminates the contract. Cancelled contracts are kept for audit.
func (c *Contract) Cancel(now time.Time) error {
	if err := c.guard(TransitionCancel); err != nil {
		return err
	}
	c.Status = StatusCancelled
	c.UpdatedAt = now
	return nil
}

// Apply runs the named transition.
func (c *Contract) Apply(t Transition, now time.Time) error {
	switch t {
	case TransitionSuspend:
		return c.Suspend(now)
	case TransitionResume:
		return c.Resume(now)
	case TransitionCancel:
		return c.Cancel(now)
	default:
		return &ValidationError{Field: "transition", Message: "unknown transition " + string(t)}
	}
}

// CanExecute reports whether the contract is due for execution on now's day.
func (c *Contract) CanExecute(now time.Time) bool {
	if c == nil {
		return false
	}
	return c.Status == StatusActive && IsDue(c.NextTransferDate, now)
}

// Advance moves NextTransferDate to the first billing date after now.
func (c *Contract) Advance(now time.Time) error {
	next, err := NextDueDate(c.BillingDay, now)
	if err != nil {
		return err
	}
	c.NextTransferDate = next
	c.UpdatedAt = now
	return nil
}

// ApplyStats overwrites the execution counters.
func (c *Contract) ApplyStats(stats Stats) {
	c.TotalExecutions = stats.Total
	c.SuccessfulExecutions = stats.Succeeded
	c.FailedExecutions = stats.Failed
	c.LastExecutionDate = stats.LastExecution
}

// SuccessRate returns successful/total, 0 when nothing ran.
func (c *Contract) SuccessRate() float64 {
	if c == nil || c.TotalExecutions <= 0 {
		return 0
	}
	return float64(c.SuccessfulExecutions) / float64(c.TotalExecutions)
}

// Clone returns a detached copy.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	clone := *c
	if c.LastExecutionDate != nil {
		last := *c.LastExecutionDate
		clone.LastExecutionDate = &last
	}
	return &clone
}

func (c *Contract) guard(t Transition) error {
	if c == nil {
		return ErrNilContract
	}
	if !CanTransition(t, c.Status) {
		return &TransitionError{Transition: t, From: c.Status}
	}
	return nil
}
