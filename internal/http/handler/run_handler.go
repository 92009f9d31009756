package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/your-org/momet-screener/internal/datastore"
)

// RunHandler serves backtest run status over HTTP.
type RunHandler struct {
	repo *datastore.Repository
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(repo *datastore.Repository) *RunHandler {
	return &RunHandler{repo: repo}
}

// RegisterRoutes registers the run routes on a chi router.
func (h *RunHandler) RegisterRoutes(r chi.Router) {
	r.Get("/runs/{id}", h.GetRunStatus)
}

type runStatusResponse struct {
	Status            string           `json:"status"`
	TotalTrades       int              `json:"total_trades"`
	TotalProfit       *decimal.Decimal `json:"total_profit"`
	TotalProfitPerDay *decimal.Decimal `json:"total_profit_per_day"`
	ErrorMessage      string           `json:"error_message,omitempty"`
}

// GetRunStatus returns the current status and headline results of one run.
func (h *RunHandler) GetRunStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	run, err := h.repo.RunByID(r.Context(), id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	resp := runStatusResponse{
		Status:       string(run.Status),
		TotalTrades:  run.TotalTrades,
		ErrorMessage: run.ErrorMessage,
	}
	if run.TotalBT.Valid {
		resp.TotalProfit = &run.TotalBT.Decimal
	}
	if run.TotalBMJ.Valid {
		resp.TotalProfitPerDay = &run.TotalBMJ.Decimal
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
