package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/healthwatch/healthwatch/pkg/types"
	"github.com/healthwatch/healthwatch/server/internal/config"
	"github.com/healthwatch/healthwatch/server/internal/store"
)

// Scorer computes a machine's risk score.
type Scorer interface {
	RiskScore(ctx context.Context, machineID string) (types.RiskScore, error)
}

// Resolver manually resolves an alert.
type Resolver interface {
	Resolve(ctx context.Context, id string) (*types.Alert, error)
}

// Deps are the collaborators the API reads from.
type Deps struct {
	Machines   *store.Machines
	Alerts     store.AlertStore
	Scorer     Scorer
	Resolver   Resolver
	Thresholds config.Thresholds
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	Deps
	mux *http.ServeMux
	now func() time.Time
}

// New creates a Handler and registers all routes.
func New(d Deps) http.Handler {
	h := &Handler{Deps: d, mux: http.NewServeMux(), now: time.Now}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/machines", h.listMachines)
	h.mux.HandleFunc("/api/v1/machines/", h.machineRoutes) // subtree: {id}[/alerts|/risk]
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertRoutes) // subtree: {id}/resolve

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := h.now()
	resp := HealthResponse{
		Status:      "ok",
		RiskLevels:  map[string]int{"low": 0, "medium": 0, "high": 0, "critical": 0},
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}

	open, err := h.Alerts.ListAlerts(r.Context(), store.AlertFilter{State: store.StateOpen})
	if err != nil {
		h.degraded(w, resp, err)
		return
	}
	fleet, err := BuildFleet(r.Context(), h.Deps, now)
	if err != nil {
		h.degraded(w, resp, err)
		return
	}

	resp.OpenAlerts = len(open)
	resp.MachineCount = len(fleet.Machines)
	for _, m := range fleet.Machines {
		resp.RiskLevels[m.Risk.Level]++
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) degraded(w http.ResponseWriter, resp HealthResponse, err error) {
	slog.Error("api: health check failed", "err", err)
	resp.Status = "degraded"
	resp.MachineCount = h.Machines.Count()
	jsonResp(w, http.StatusServiceUnavailable, resp)
}

// listMachines returns GET /api/v1/machines, all live machines.
func (h *Handler) listMachines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fleet, err := BuildFleet(r.Context(), h.Deps, h.now())
	if err != nil {
		h.storeErr(w, "list machines", err)
		return
	}
	jsonResp(w, http.StatusOK, fleet.Machines)
}

// machineRoutes dispatches /api/v1/machines/{id}[/alerts|/risk].
func (h *Handler) machineRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/machines/"), "/")
	if rest == "" {
		// Bare /api/v1/machines/ behaves like the list route.
		h.listMachines(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch sub {
	case "":
		h.getMachine(w, r, id)
	case "alerts":
		h.writeAlerts(w, r, id)
	case "risk":
		h.machineRisk(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// getMachine returns GET /api/v1/machines/{id}.
func (h *Handler) getMachine(w http.ResponseWriter, r *http.Request, id string) {
	e, ok := h.Machines.Live(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "machine not found")
		return
	}
	sum, err := summarize(r.Context(), h.Scorer, e)
	if err != nil {
		h.storeErr(w, "get machine", err)
		return
	}
	jsonResp(w, http.StatusOK, MachineResponse{
		MachineSummary: sum,
		Snapshot:       e.Snapshot,
		Checks:         computeChecks(e.Snapshot, h.Thresholds),
	})
}

// machineRisk returns GET /api/v1/machines/{id}/risk.
func (h *Handler) machineRisk(w http.ResponseWriter, r *http.Request, id string) {
	score, err := h.Scorer.RiskScore(r.Context(), id)
	if err != nil {
		h.storeErr(w, "risk score", err)
		return
	}
	jsonResp(w, http.StatusOK, score)
}

// listAlerts returns GET /api/v1/alerts across all machines.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.writeAlerts(w, r, "")
}

// alertRoutes dispatches POST /api/v1/alerts/{id}/resolve.
func (h *Handler) alertRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/")
	if rest == "" {
		h.listAlerts(w, r)
		return
	}
	id, action, _ := strings.Cut(rest, "/")
	if action != "resolve" {
		jsonErr(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	a, err := h.Resolver.Resolve(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		h.storeErr(w, "resolve alert", err)
		return
	}
	jsonResp(w, http.StatusOK, a)
}

// --- helpers ----------------------------------------------------------------

// writeAlerts serves an alert list; an empty machineID spans the fleet.
func (h *Handler) writeAlerts(w http.ResponseWriter, r *http.Request, machineID string) {
	state, err := store.ParseState(r.URL.Query().Get("state"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := h.Alerts.ListAlerts(r.Context(), store.AlertFilter{MachineID: machineID, State: state})
	if err != nil {
		h.storeErr(w, "list alerts", err)
		return
	}
	if list == nil {
		list = []types.Alert{}
	}
	jsonResp(w, http.StatusOK, list)
}

// BuildFleet assembles the live machines with their current risk scores.
// It backs GET /api/v1/machines and the WebSocket stream.
func BuildFleet(ctx context.Context, d Deps, now time.Time) (FleetResponse, error) {
	entries := d.Machines.List()
	out := FleetResponse{
		Machines:    make([]MachineSummary, 0, len(entries)),
		GeneratedAt: now.UTC().Format(time.RFC3339),
	}
	for _, e := range entries {
		sum, err := summarize(ctx, d.Scorer, e)
		if err != nil {
			return FleetResponse{}, err
		}
		out.Machines = append(out.Machines, sum)
	}
	return out, nil
}

func summarize(ctx context.Context, sc Scorer, e *store.Entry) (MachineSummary, error) {
	score, err := sc.RiskScore(ctx, e.Snapshot.MachineID)
	if err != nil {
		return MachineSummary{}, err
	}
	return MachineSummary{
		MachineID: e.Snapshot.MachineID,
		Hostname:  e.Snapshot.Hostname,
		Platform:  e.Snapshot.Platform,
		LastSeen:  e.UpdatedAt.UTC().Format(time.RFC3339),
		Risk:      score,
	}, nil
}

func (h *Handler) storeErr(w http.ResponseWriter, op string, err error) {
	slog.Error("api: "+op, "err", err)
	jsonErr(w, http.StatusInternalServerError, "internal error")
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
