package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	loanapp "rentflow-cloud/internal/loan/application"
	loan "rentflow-cloud/internal/loan/domain"
)

const prefix = "/api/v1/loans/"

// Handler serves loan workflow endpoints.
type Handler struct {
	service *loanapp.Service
}

// NewHandler constructs a Handler.
func NewHandler(service *loanapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("loan handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP routes loan requests:
//
//	GET  /api/v1/loans/overview?owner_id=
//	GET  /api/v1/loans/applications/{id}
//	POST /api/v1/loans/applications/{id}/contract-completed
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "overview":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleOverview(w, r)
	case len(parts) == 2 && parts[0] == "applications" && parts[1] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGet(w, r, parts[1])
	case len(parts) == 3 && parts[0] == "applications" && parts[2] == "contract-completed":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleContractCompleted(w, r, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleContractCompleted(w http.ResponseWriter, r *http.Request, id string) {
	view, err := h.service.MarkContractCompleted(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loan.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, loan.ErrApplicationNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, loan.ErrForbidden):
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
