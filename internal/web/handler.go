package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hysun/tfbot/internal/runstore"
)

// Handler serves the read-only run status API. The PR comment is the
// primary surface for results; this API exists for operators and for
// wiring health checks.
type Handler struct {
	store *runstore.Store
}

// NewHandler creates a new status API handler
func NewHandler(store *runstore.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers status API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")
	r.HandleFunc("/api/runs", h.handleRunList).Methods("GET")
	r.HandleFunc("/api/runs/{id}", h.handleRunDetail).Methods("GET")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runSummary struct {
	ID          string             `json:"id"`
	Repo        string             `json:"repo"`
	Number      int                `json:"number"`
	Environment string             `json:"environment"`
	Stage       string             `json:"stage"`
	Actor       string             `json:"actor"`
	Status      runstore.RunStatus `json:"status"`
	Summary     string             `json:"summary,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

type runDetail struct {
	runSummary
	Logs []logEntry `json:"logs"`
}

type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

func (h *Handler) handleRunList(w http.ResponseWriter, r *http.Request) {
	runs := h.store.List()

	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, summarize(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (h *Handler) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	run, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	detail := runDetail{
		runSummary: summarize(run),
		Logs:       make([]logEntry, 0, len(run.Logs)),
	}
	for _, l := range run.Logs {
		detail.Logs = append(detail.Logs, logEntry{
			Timestamp: l.Timestamp,
			Level:     l.Level,
			Message:   l.Message,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

func summarize(run *runstore.Run) runSummary {
	return runSummary{
		ID:          run.ID,
		Repo:        run.Repo,
		Number:      run.Number,
		Environment: run.Environment,
		Stage:       run.Stage,
		Actor:       run.Actor,
		Status:      run.Status,
		Summary:     run.Summary,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
