package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/reconcile"
)

func exportFixture(t *testing.T) (*autotransfer.Contract, reconcile.Result) {
	t.Helper()
	now := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	contract, err := autotransfer.NewContract("c-1", "user-1", "111", "222", "Landlord", decimal.NewFromInt(650000), 25, now)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	executed := time.Date(2024, time.February, 25, 9, 1, 0, 0, time.UTC)
	records := []autotransfer.ExecutionRecord{
		{ID: "e-1", ContractID: "c-1", ScheduledDate: time.Date(2024, 2, 25, 0, 0, 0, 0, time.UTC), ExecutionDate: &executed, Amount: contract.Amount, Outcome: autotransfer.OutcomeSuccess, TransactionID: "tx-1"},
		{ID: "e-2", ContractID: "c-1", ScheduledDate: time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), Amount: contract.Amount, Outcome: autotransfer.OutcomeFailed, FailureReason: "limit"},
	}
	return contract, reconcile.NewReconciler(time.UTC, nil).Summarize(records)
}

func TestBuildHistoryPDF(t *testing.T) {
	contract, history := exportFixture(t)
	data, err := BuildHistoryPDF(contract, history, time.Now())
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected PDF header")
	}
	if _, err := BuildHistoryPDF(nil, history, time.Now()); err == nil {
		t.Fatalf("expected error for nil contract")
	}
}

func TestBuildHistoryXLSX(t *testing.T) {
	contract, history := exportFixture(t)
	data, err := BuildHistoryXLSX(contract, history, time.Now())
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("items")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[1][2] != "SUCCESS" || rows[1][0] != "2024-02-25" {
		t.Fatalf("expected newest record first, got %v", rows[1])
	}
	value, err := f.GetCellValue("summary", "B3")
	if err != nil || value != "c-1" {
		t.Fatalf("expected contract id in summary, got %q %v", value, err)
	}
}
