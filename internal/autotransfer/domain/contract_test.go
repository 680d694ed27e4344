package autotransfer

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestContract(t *testing.T, now time.Time) *Contract {
	t.Helper()
	c, err := NewContract("c-1", "user-1", "111-222", "333-444", "Landlord", decimal.NewFromInt(500000), 25, now)
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	return c
}

func TestNewContract_Validation(t *testing.T) {
	now := date(2024, time.March, 1)
	cases := []struct {
		name   string
		from   string
		to     string
		amount decimal.Decimal
		day    int
	}{
		{"zero amount", "a", "b", decimal.Zero, 10},
		{"same account", "a", "a", decimal.NewFromInt(1), 10},
		{"missing account", "", "b", decimal.NewFromInt(1), 10},
		{"billing day", "a", "b", decimal.NewFromInt(1), 32},
	}
	for _, tc := range cases {
		_, err := NewContract("c", "u", tc.from, tc.to, "x", tc.amount, tc.day, now)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestContract_SuspendKeepsNextDate(t *testing.T) {
	now := date(2024, time.March, 1)
	c := newTestContract(t, now)
	next := c.NextTransferDate
	if err := c.Suspend(now.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if c.Status != StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", c.Status)
	}
	if !c.NextTransferDate.Equal(next) {
		t.Fatalf("next transfer date changed on suspend")
	}
}

func TestContract_ResumeRecomputesNextDate(t *testing.T) {
	c := newTestContract(t, date(2024, time.March, 1))
	if err := c.Suspend(date(2024, time.March, 2)); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := c.Resume(date(2024, time.May, 26)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if c.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", c.Status)
	}
	if DateKey(c.NextTransferDate) != "2024-06-25" {
		t.Fatalf("expected 2024-06-25, got %s", DateKey(c.NextTransferDate))
	}
}

func TestContract_CancelIsTerminal(t *testing.T) {
	now := date(2024, time.March, 1)
	for _, prior := range []Status{StatusActive, StatusSuspended} {
		c := newTestContract(t, now)
		c.Status = prior
		if err := c.Cancel(now); err != nil {
			t.Fatalf("cancel from %s: %v", prior, err)
		}
		for _, tr := range []Transition{TransitionSuspend, TransitionResume, TransitionCancel} {
			err := c.Apply(tr, now)
			if !errors.Is(err, ErrStateConflict) {
				t.Fatalf("%s after cancel from %s: expected state conflict, got %v", tr, prior, err)
			}
			var terr *TransitionError
			if !errors.As(err, &terr) || terr.Transition != tr || terr.From != StatusCancelled {
				t.Fatalf("%s after cancel: unexpected error payload %v", tr, err)
			}
		}
	}
}

func TestContract_IllegalTransitions(t *testing.T) {
	now := date(2024, time.March, 1)
	c := newTestContract(t, now)
	if err := c.Resume(now); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("resume active: expected state conflict, got %v", err)
	}
	if err := c.Suspend(now); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := c.Suspend(now); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("suspend twice: expected state conflict, got %v", err)
	}
	var nilContract *Contract
	if err := nilContract.Cancel(now); !errors.Is(err, ErrNilContract) {
		t.Fatalf("expected nil contract error, got %v", err)
	}
}

func TestContract_CanExecute(t *testing.T) {
	c := newTestContract(t, date(2024, time.March, 1))
	if c.CanExecute(date(2024, time.March, 24)) {
		t.Fatalf("expected not executable before due date")
	}
	if !c.CanExecute(date(2024, time.March, 25)) {
		t.Fatalf("expected executable on due date")
	}
	_ = c.Suspend(date(2024, time.March, 25))
	if c.CanExecute(date(2024, time.March, 25)) {
		t.Fatalf("suspended contract must not execute")
	}
}

func TestComputeStats(t *testing.T) {
	if s := ComputeStats(nil); s.Total != 0 || s.SuccessRate() != 0 || s.LastExecution != nil {
		t.Fatalf("unexpected empty stats %+v", s)
	}
	d1 := date(2024, time.January, 25)
	d2 := date(2024, time.February, 26)
	records := []ExecutionRecord{
		{Outcome: OutcomeSuccess, ExecutionDate: &d2},
		{Outcome: OutcomeFailed, ExecutionDate: &d1},
		{Outcome: OutcomePending},
		{Outcome: OutcomeSuccess, ExecutionDate: &d1},
	}
	s := ComputeStats(records)
	if s.Total != 4 || s.Succeeded != 2 || s.Failed != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.Succeeded+s.Failed > s.Total {
		t.Fatalf("counters exceed total")
	}
	if s.LastExecution == nil || !s.LastExecution.Equal(d2) {
		t.Fatalf("unexpected last execution %v", s.LastExecution)
	}
	if s.SuccessRate() != 0.5 {
		t.Fatalf("expected 0.5, got %v", s.SuccessRate())
	}
}

func TestExecutionRecord_RetryBudget(t *testing.T) {
	now := date(2024, time.March, 25)
	c := newTestContract(t, date(2024, time.March, 1))
	rec, err := NewPendingExecution("e-1", c, c.NextTransferDate, now)
	if err != nil {
		t.Fatalf("new execution: %v", err)
	}
	for i := 0; i < MaxRetries; i++ {
		if err := rec.MarkFailed("insufficient funds", now); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		if err := rec.Retry(); err != nil {
			t.Fatalf("retry %d: %v", i, err)
		}
	}
	_ = rec.MarkFailed("insufficient funds", now)
	if rec.CanRetry() {
		t.Fatalf("expected retries exhausted")
	}
	if err := rec.MarkSucceeded("tx-1", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected resolved record to reject success, got %v", err)
	}
}

func TestExecutionRecord_MarkFailedRejectsResolved(t *testing.T) {
	now := date(2024, time.March, 25)
	c := newTestContract(t, date(2024, time.March, 1))
	rec, err := NewPendingExecution("e-1", c, c.NextTransferDate, now)
	if err != nil {
		t.Fatalf("new execution: %v", err)
	}
	if err := rec.MarkSucceeded("tx-1", now); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if err := rec.MarkFailed("late gateway error", now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected resolved record to reject failure, got %v", err)
	}
	if rec.Outcome != OutcomeSuccess || rec.TransactionID != "tx-1" {
		t.Fatalf("resolved record must be unchanged, got %+v", rec)
	}
}

func TestExecutionRecord_Orphaned(t *testing.T) {
	created := date(2024, time.March, 25)
	c := newTestContract(t, date(2024, time.March, 1))
	rec, err := NewPendingExecution("e-1", c, c.NextTransferDate, created)
	if err != nil {
		t.Fatalf("new execution: %v", err)
	}
	if rec.Orphaned(created.Add(30*time.Second), time.Minute) {
		t.Fatalf("fresh pending record must not be orphaned")
	}
	if !rec.Orphaned(created.Add(2*time.Minute), time.Minute) {
		t.Fatalf("expected stale pending record to be orphaned")
	}
	_ = rec.MarkFailed("insufficient funds", created)
	if rec.Orphaned(created.Add(time.Hour), time.Minute) {
		t.Fatalf("resolved record is never orphaned")
	}
}

func TestStatus_Open(t *testing.T) {
	if !StatusActive.Open() || !StatusSuspended.Open() || StatusCancelled.Open() {
		t.Fatalf("unexpected open statuses")
	}
}
