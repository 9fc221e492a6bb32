package olympus

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tartarus-sandbox/persephone/pkg/erebus"
	"github.com/tartarus-sandbox/persephone/pkg/persephone"
	"github.com/tartarus-sandbox/persephone/pkg/persephone/evaluator"
)

// Handlers exposes the service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates handlers for the given service
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Routes registers every endpoint on a new mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /backtests", h.HandleBacktest)
	mux.HandleFunc("POST /sweeps", h.HandleSweep)
	mux.HandleFunc("GET /reports/{id}", h.HandleGetReport)
	mux.HandleFunc("GET /backends", h.HandleListBackends)
	return mux
}

// HandleBacktest runs a single backtest. A report rejected by the gate is
// returned with 422.
func (h *Handlers) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report, err := h.service.Backtest(r.Context(), req)
	h.respond(w, report, err)
}

// HandleSweep runs a sweep of trials or walk-forward folds.
func (h *Handlers) HandleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	report, err := h.service.Sweep(r.Context(), req)
	h.respond(w, report, err)
}

// HandleGetReport returns an archived report
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.LoadReport(r.Context(), r.PathValue("id"))
	h.respond(w, report, err)
}

// HandleListBackends returns the registered backend names
func (h *Handlers) HandleListBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"backends": persephone.Backends()})
}

func (h *Handlers) respond(w http.ResponseWriter, report *Report, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, report)
	case errors.Is(err, evaluator.ErrGateFailed) && report != nil:
		writeJSON(w, http.StatusUnprocessableEntity, report)
	default:
		http.Error(w, err.Error(), statusFor(err))
	}
}

func statusFor(err error) int {
	var backendErr *evaluator.BackendError
	switch {
	case errors.Is(err, erebus.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, erebus.ErrInvalidKey),
		errors.Is(err, ErrNoSeries),
		errors.Is(err, ErrAmbiguousSeries),
		errors.Is(err, persephone.ErrInvalidSeries),
		errors.Is(err, persephone.ErrInvalidSeriesName),
		errors.Is(err, persephone.ErrUnknownBackend),
		errors.Is(err, persephone.ErrInvalidParams),
		errors.Is(err, evaluator.ErrInsufficientData),
		errors.Is(err, evaluator.ErrEmptyValidation),
		errors.Is(err, evaluator.ErrInvalidGate):
		return http.StatusBadRequest
	case errors.As(err, &backendErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
