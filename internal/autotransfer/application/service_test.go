package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rentflow-cloud/internal/audit"
	"rentflow-cloud/internal/auth"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/autotransfer/infrastructure/memory"
	"rentflow-cloud/internal/reconcile"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

type serviceFixture struct {
	service    *ContractService
	contracts  *memory.ContractRepository
	executions *memory.ExecutionRepository
	clock      *fixedClock
	audit      *recordingAudit
}

func newServiceFixture(t *testing.T, now time.Time) serviceFixture {
	t.Helper()
	f := serviceFixture{
		contracts:  memory.NewContractRepository(),
		executions: memory.NewExecutionRepository(),
		clock:      &fixedClock{now: now},
		audit:      &recordingAudit{},
	}
	ids := 0
	service, err := NewContractService(f.contracts, f.executions, reconcile.NewReconciler(time.UTC, nil),
		WithClock(f.clock),
		WithLocker(memory.NewLocker(), time.Second),
		WithAuditLogger(f.audit),
		WithIDGenerator(func() string {
			ids++
			return "c-" + string(rune('0'+ids))
		}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.service = service
	return f
}

func residentCtx(subject string) context.Context {
	return auth.WithIdentity(context.Background(), auth.RoleResident, subject)
}

func registerRequest() RegisterRequest {
	return RegisterRequest{
		FromAccount:     "111-222",
		ToAccount:       "333-444",
		BeneficiaryName: "Landlord",
		Amount:          decimal.NewFromInt(650000),
		BillingDay:      25,
	}
}

func TestContractService_RegisterAndDuplicate(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	ctx := residentCtx("user-1")

	contract, err := f.service.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if contract.OwnerID != "user-1" || contract.Status != autotransfer.StatusActive {
		t.Fatalf("unexpected contract %+v", contract)
	}
	if autotransfer.DateKey(contract.NextTransferDate) != "2024-03-25" {
		t.Fatalf("unexpected next date %s", autotransfer.DateKey(contract.NextTransferDate))
	}
	if _, err := f.service.Register(ctx, registerRequest()); !errors.Is(err, autotransfer.ErrDuplicateContract) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	req := registerRequest()
	req.BillingDay = 0
	req.FromAccount = "999"
	if _, err := f.service.Register(ctx, req); !errors.Is(err, autotransfer.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	other := registerRequest()
	other.OwnerID = "user-2"
	if _, err := f.service.Register(ctx, other); !errors.Is(err, autotransfer.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestContractService_SuspendedContractBlocksRegistration(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	ctx := residentCtx("user-1")
	first, err := f.service.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.service.Suspend(ctx, first.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := f.service.Register(ctx, registerRequest()); !errors.Is(err, autotransfer.ErrDuplicateContract) {
		t.Fatalf("expected duplicate while suspended, got %v", err)
	}

	if _, err := f.service.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second, err := f.service.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("register after cancel: %v", err)
	}
	if second.ID == first.ID || second.Status != autotransfer.StatusActive {
		t.Fatalf("unexpected replacement contract %+v", second)
	}
}

func TestContractService_ConcurrentRegistrationKeepsOneContract(t *testing.T) {
	contracts := memory.NewContractRepository()
	service, err := NewContractService(contracts, memory.NewExecutionRepository(), reconcile.NewReconciler(time.UTC, nil),
		WithClock(&fixedClock{now: time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)}),
		WithLocker(memory.NewLocker(), time.Minute),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Register(residentCtx("user-1"), registerRequest())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, autotransfer.ErrDuplicateContract), errors.Is(err, autotransfer.ErrContractBusy):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	list, err := contracts.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if succeeded != 1 || len(list) != 1 {
		t.Fatalf("expected exactly one contract, got succeeded=%d stored=%d", succeeded, len(list))
	}
}

func TestContractRepository_RejectsSecondOpenContract(t *testing.T) {
	contracts := memory.NewContractRepository()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	first, err := autotransfer.NewContract("c-1", "user-1", "111-222", "333-444", "Landlord", decimal.NewFromInt(650000), 25, now)
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	second, err := autotransfer.NewContract("c-2", "user-1", "111-222", "555-666", "Landlord", decimal.NewFromInt(650000), 25, now)
	if err != nil {
		t.Fatalf("new contract: %v", err)
	}
	if err := contracts.Save(context.Background(), first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := contracts.Save(context.Background(), second); !errors.Is(err, autotransfer.ErrDuplicateContract) {
		t.Fatalf("expected duplicate on second open contract, got %v", err)
	}
}

func TestContractService_Lifecycle(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	ctx := residentCtx("user-1")
	contract, err := f.service.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	suspended, err := f.service.Suspend(ctx, contract.ID)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if suspended.Status != autotransfer.StatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", suspended.Status)
	}

	f.clock.Set(time.Date(2024, time.April, 26, 9, 0, 0, 0, time.UTC))
	resumed, err := f.service.Resume(ctx, contract.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if autotransfer.DateKey(resumed.NextTransferDate) != "2024-05-25" {
		t.Fatalf("expected recomputed next date, got %s", autotransfer.DateKey(resumed.NextTransferDate))
	}

	if _, err := f.service.Cancel(ctx, contract.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.service.Resume(ctx, contract.ID); !errors.Is(err, autotransfer.ErrStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}

	stored, err := f.contracts.FindByID(context.Background(), contract.ID)
	if err != nil || stored.Status != autotransfer.StatusCancelled {
		t.Fatalf("expected persisted CANCELLED, got %+v %v", stored, err)
	}

	want := []string{audit.ActionContractRegister, audit.ActionContractSuspend, audit.ActionContractResume, audit.ActionContractCancel}
	got := f.audit.actions()
	if len(got) != len(want) {
		t.Fatalf("expected audit %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected audit %v, got %v", want, got)
		}
	}
}

func TestContractService_OwnershipAndNotFound(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	contract, err := f.service.Register(residentCtx("user-1"), registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.service.Suspend(residentCtx("user-2"), contract.ID); !errors.Is(err, autotransfer.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	operator := auth.WithIdentity(context.Background(), auth.RoleOperator, "ops")
	if _, err := f.service.Suspend(operator, contract.ID); err != nil {
		t.Fatalf("operator suspend: %v", err)
	}
	if _, err := f.service.Get(operator, "missing"); !errors.Is(err, autotransfer.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.service.List(residentCtx("user-2"), "user-1"); !errors.Is(err, autotransfer.ErrForbidden) {
		t.Fatalf("expected forbidden list, got %v", err)
	}
	list, err := f.service.List(residentCtx("user-1"), "")
	if err != nil || len(list) != 1 {
		t.Fatalf("expected own contract listed, got %v %v", list, err)
	}
}

func TestContractService_LockedContractIsBusy(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC))
	locker := memory.NewLocker()
	f.service.locker = locker
	contract, err := f.service.Register(residentCtx("user-1"), registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	unlock, err := locker.Lock(context.Background(), lockKey(contract.ID), time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()
	if _, err := f.service.Suspend(residentCtx("user-1"), contract.ID); !errors.Is(err, autotransfer.ErrContractBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestContractService_GetRecomputesStats(t *testing.T) {
	f := newServiceFixture(t, time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC))
	ctx := residentCtx("user-1")
	contract, err := f.service.Register(ctx, registerRequest())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	at := time.Date(2024, time.January, 25, 9, 0, 0, 0, time.UTC)
	records := []autotransfer.ExecutionRecord{
		{ID: "e1", ContractID: contract.ID, ScheduledDate: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), Outcome: autotransfer.OutcomeSuccess, TransactionID: "tx", ExecutionDate: &at},
		{ID: "e2", ContractID: contract.ID, ScheduledDate: time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC), Outcome: autotransfer.OutcomeFailed, FailureReason: "limit"},
	}
	for i := range records {
		if err := f.executions.Save(context.Background(), &records[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	got, err := f.service.Get(ctx, contract.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalExecutions != 2 || got.SuccessfulExecutions != 1 || got.FailedExecutions != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if got.LastExecutionDate == nil || !got.LastExecutionDate.Equal(at) {
		t.Fatalf("unexpected last execution %v", got.LastExecutionDate)
	}

	_, history, err := f.service.History(ctx, contract.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Stats.Total != 2 || history.Stats.SuccessRate != 0.5 {
		t.Fatalf("unexpected history stats %+v", history.Stats)
	}
}
