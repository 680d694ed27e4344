package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rentflow-cloud/internal/auth"
	autotransferapp "rentflow-cloud/internal/autotransfer/application"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/autotransfer/infrastructure/memory"
	"rentflow-cloud/internal/reconcile"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubRunner struct{ calls int }

func (s *stubRunner) RunDue(ctx context.Context) (autotransferapp.RunSummary, error) {
	s.calls++
	return autotransferapp.RunSummary{Total: 1, Succeeded: 1}, nil
}

func newTestMux(t *testing.T) (*http.ServeMux, *stubRunner) {
	t.Helper()
	clock := fixedClock{now: time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)}
	reconciler := reconcile.NewReconciler(time.UTC, nil)
	service, err := autotransferapp.NewContractService(memory.NewContractRepository(), memory.NewExecutionRepository(), reconciler,
		autotransferapp.WithClock(clock))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	runner := &stubRunner{}
	handler, err := NewHandler(service, runner, reconciler, clock, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux, runner
}

func do(t *testing.T, mux http.Handler, method, path, subject string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleResident, subject))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_NextDue(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := do(t, mux, http.MethodGet, "/api/v1/schedule/next-due?billing_day=31&from=2024-02-10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["next_due_date"] != "2024-02-29" {
		t.Fatalf("expected clamped leap-year date, got %v", resp["next_due_date"])
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/schedule/next-due?billing_day=32", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for day 32, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/schedule/next-due?billing_day=x", "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer day, got %d", rec.Code)
	}
}

func TestHandler_ContractLifecycle(t *testing.T) {
	mux, _ := newTestMux(t)
	body := map[string]any{
		"from_account":     "111",
		"to_account":       "222",
		"beneficiary_name": "Landlord",
		"amount":           "650000",
		"billing_day":      25,
	}
	rec := do(t, mux, http.MethodPost, "/api/v1/auto-transfers", "user-1", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var contract autotransfer.Contract
	if err := json.NewDecoder(rec.Body).Decode(&contract); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/auto-transfers", "user-1", body); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", rec.Code)
	}

	base := "/api/v1/auto-transfers/" + contract.ID
	if rec := do(t, mux, http.MethodGet, base, "user-2", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign contract, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, base+"/suspend", "user-1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on suspend, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, base+"/suspend", "user-1", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double suspend, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, base+"/cancel", "user-1", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodPost, base+"/resume", "user-1", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 resuming cancelled contract, got %d", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/auto-transfers/missing", "user-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, base+"/history", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on history, got %d", rec.Code)
	}
	rec = do(t, mux, http.MethodGet, base+"/history/export.pdf", "user-1", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf export, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := do(t, mux, http.MethodGet, base+"/history/export.csv", "user-1", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown export, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodGet, "/api/v1/auto-transfers", "user-1", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), contract.ID) {
		t.Fatalf("expected listed contract, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ReconcileAndExecute(t *testing.T) {
	mux, runner := newTestMux(t)
	entries := []map[string]any{
		{"id": "1", "status": "COMPLETED", "executedAt": "2024-03-01T10:00:00Z", "transactionId": "tx-1"},
		{"id": "2", "transferStatus": "FAILED", "paidDate": "2024-03-02", "errorMessage": "limit"},
		{"id": "3", "paymentStatus": "WEIRD"},
	}
	rec := do(t, mux, http.MethodPost, "/api/v1/history/reconcile", "", entries)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var result reconcile.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Stats.Total != 3 || result.Stats.Success != 1 || result.Stats.Failed != 1 || len(result.Ambiguities) != 1 {
		t.Fatalf("unexpected reconcile result %+v", result.Stats)
	}

	if rec := do(t, mux, http.MethodGet, "/api/v1/auto-transfers/execute", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	rec = do(t, mux, http.MethodPost, "/api/v1/auto-transfers/execute", "", nil)
	if rec.Code != http.StatusOK || runner.calls != 1 {
		t.Fatalf("expected execute run, got %d calls=%d", rec.Code, runner.calls)
	}
}
