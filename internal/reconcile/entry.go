package reconcile

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one execution-history record as delivered by an upstream source.
// Sources disagree on field names, so every alias is kept and resolved later.
type Entry struct {
	ID         string `json:"id"`
	ContractID string `json:"contractId"`

	Status         string `json:"status"`
	TransferStatus string `json:"transferStatus"`
	PaymentStatus  string `json:"paymentStatus"`

	ExecutedAt    string `json:"executedAt"`
	ExecutionDate string `json:"executionDate"`
	PaidDate      string `json:"paidDate"`
	CreatedAt     string `json:"createdAt"`

	ScheduledDate string `json:"scheduledDate"`
	DueDate       string `json:"dueDate"`

	Amount        decimal.NullDecimal `json:"amount"`
	PaymentAmount decimal.NullDecimal `json:"paymentAmount"`

	TransactionID     string `json:"transactionId"`
	BankTransactionID string `json:"bankTransactionId"`
	FailureReason     string `json:"failureReason"`
	ErrorMessage      string `json:"errorMessage"`
	RetryCount        int    `json:"retryCount"`
}

// Label returns the first populated status field.
func (e Entry) Label() string {
	return firstNonEmpty(e.Status, e.TransferStatus, e.PaymentStatus)
}

// AmountValue returns amount, falling back to paymentAmount, then zero.
func (e Entry) AmountValue() decimal.Decimal {
	if e.Amount.Valid {
		return e.Amount.Decimal
	}
	if e.PaymentAmount.Valid {
		return e.PaymentAmount.Decimal
	}
	return decimal.Zero
}

// TransactionRef returns transactionId, falling back to the bank-side id.
func (e Entry) TransactionRef() string {
	return firstNonEmpty(e.TransactionID, e.BankTransactionID)
}

// FailureText returns failureReason, falling back to errorMessage.
func (e Entry) FailureText() string {
	return firstNonEmpty(e.FailureReason, e.ErrorMessage)
}

// ResolveDate picks the execution instant: execution timestamp, then paid
// date, then creation time. The first value that parses wins.
func ResolveDate(e Entry, loc *time.Location) (time.Time, bool) {
	return firstTimestamp(loc, e.ExecutedAt, e.ExecutionDate, e.PaidDate, e.CreatedAt)
}

// ResolveScheduled picks the obligation date: scheduled date, then due date,
// then creation time. The result is midnight of that day in loc.
func ResolveScheduled(e Entry, loc *time.Location) (time.Time, bool) {
	ts, ok := firstTimestamp(loc, e.ScheduledDate, e.DueDate, e.CreatedAt)
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	ts = ts.In(loc)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, loc), true
}

var errUnparsedTimestamp = errors.New("reconcile: unrecognized timestamp")

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"06/01/02 15:04:05",
	"06/01/02",
	"2006.01.02",
}

// ParseTimestamp accepts the timestamp shapes seen in upstream history feeds.
// Values without an offset are read as wall-clock time in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errUnparsedTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errUnparsedTimestamp
}

func firstTimestamp(loc *time.Location, values ...string) (time.Time, bool) {
	for _, value := range values {
		if value == "" {
			continue
		}
		if ts, err := ParseTimestamp(value, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
