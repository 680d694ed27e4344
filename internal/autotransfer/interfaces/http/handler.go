package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	autotransferapp "rentflow-cloud/internal/autotransfer/application"
	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/autotransfer/interfaces"
	"rentflow-cloud/internal/observability/metrics"
	"rentflow-cloud/internal/reconcile"
)

const (
	contractsPath  = "/api/v1/auto-transfers"
	executePath    = "/api/v1/auto-transfers/execute"
	nextDuePath    = "/api/v1/schedule/next-due"
	reconcilePath  = "/api/v1/history/reconcile"
	maxRequestBody = 1 << 20
)

// Handler serves auto-transfer, schedule and history endpoints.
type Handler struct {
	service    *autotransferapp.ContractService
	runner     autotransferapp.DueRunner
	reconciler *reconcile.Reconciler
	clock      autotransferapp.Clock
	logger     *log.Logger
}

// NewHandler constructs a Handler. runner may be nil, in which case the
// execute endpoint answers 503.
func NewHandler(service *autotransferapp.ContractService, runner autotransferapp.DueRunner, reconciler *reconcile.Reconciler, clock autotransferapp.Clock, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("autotransfer handler: nil service")
	}
	if reconciler == nil {
		return nil, errors.New("autotransfer handler: nil reconciler")
	}
	if clock == nil {
		clock = autotransferapp.NewSystemClock(reconciler.Location())
	}
	return &Handler{service: service, runner: runner, reconciler: reconciler, clock: clock, logger: logger}, nil
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle(contractsPath, h)
	mux.Handle(contractsPath+"/", h)
	mux.Handle(nextDuePath, h)
	mux.Handle(reconcilePath, h)
}

// ServeHTTP routes requests by path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case nextDuePath:
		h.handleNextDue(w, r)
		return
	case reconcilePath:
		h.handleReconcile(w, r)
		return
	case executePath:
		h.handleExecute(w, r)
		return
	case contractsPath, contractsPath + "/":
		switch r.Method {
		case http.MethodPost:
			h.handleRegister(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if !strings.HasPrefix(r.URL.Path, contractsPath+"/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, contractsPath+"/"), "/"), "/")
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case len(parts) == 2 && r.Method == http.MethodPost && isTransition(parts[1]):
		h.handleTransition(w, r, id, parts[1])
	case len(parts) == 2 && parts[1] == "history" && r.Method == http.MethodGet:
		h.handleHistory(w, r, id)
	case len(parts) == 3 && parts[1] == "history" && r.Method == http.MethodGet:
		h.handleExport(w, r, id, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleNextDue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	billingDay, err := strconv.Atoi(r.URL.Query().Get("billing_day"))
	if err != nil {
		http.Error(w, "billing_day must be an integer", http.StatusBadRequest)
		return
	}
	ref := h.clock.Now()
	if value := r.URL.Query().Get("from"); value != "" {
		ref, err = time.ParseInLocation("2006-01-02", value, h.reconciler.Location())
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	due, err := autotransfer.NextDueDate(billingDay, ref)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"billing_day":   billingDay,
		"from":          autotransfer.DateKey(ref),
		"next_due_date": autotransfer.DateKey(due),
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req autotransferapp.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	contract, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	contract, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract":     contract,
		"success_rate": contract.SuccessRate(),
	})
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, id, action string) {
	var (
		contract *autotransfer.Contract
		err      error
	)
	switch autotransfer.Transition(action) {
	case autotransfer.TransitionSuspend:
		contract, err = h.service.Suspend(r.Context(), id)
	case autotransfer.TransitionResume:
		contract, err = h.service.Resume(r.Context(), id)
	default:
		contract, err = h.service.Cancel(r.Context(), id)
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, id string) {
	contract, history, err := h.service.History(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"contract": contract,
		"history":  history,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, file string) {
	var format string
	switch file {
	case "export.pdf":
		format = "pdf"
	case "export.xlsx":
		format = "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	start := time.Now()
	contract, history, err := h.service.History(r.Context(), id)
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(start))
		respondServiceError(w, err)
		return
	}

	var (
		data        []byte
		contentType string
	)
	if format == "pdf" {
		data, err = interfaces.BuildHistoryPDF(contract, history, h.clock.Now())
		contentType = "application/pdf"
	} else {
		data, err = interfaces.BuildHistoryXLSX(contract, history, h.clock.Now())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveHistoryExport(format, metrics.ResultError, time.Since(start))
		h.logf("history export failed: contract=%s format=%s err=%v", id, format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveHistoryExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "auto-transfer-"+contract.ID+"."+format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.runner == nil {
		http.Error(w, "executor not configured", http.StatusServiceUnavailable)
		return
	}
	summary, err := h.runner.RunDue(r.Context())
	if err != nil {
		h.logf("execute due failed: err=%v", err)
		http.Error(w, "execute failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var entries []reconcile.Entry
	if err := decodeJSON(r, &entries); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, h.reconciler.Reconcile(entries))
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

func isTransition(action string) bool {
	switch autotransfer.Transition(action) {
	case autotransfer.TransitionSuspend, autotransfer.TransitionResume, autotransfer.TransitionCancel:
		return true
	}
	return false
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, autotransfer.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, autotransfer.ErrDuplicateContract),
		errors.Is(err, autotransfer.ErrStateConflict),
		errors.Is(err, autotransfer.ErrContractBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, autotransfer.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, autotransfer.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
