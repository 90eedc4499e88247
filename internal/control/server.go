package control

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/enrichops/overseer/internal/core/domain"
)

// mountHandlers registers the supervision endpoints on the shared listener.
// These are what the external scheduler hits: one check per agent, a
// check-all sweep, and read-only status/report views.
func (o *Overseer) mountHandlers() {
	o.healthServer.Handle("POST /check", http.HandlerFunc(o.handleCheckAll))
	o.healthServer.Handle("POST /check/{agent}", http.HandlerFunc(o.handleCheckAgent))
	o.healthServer.Handle("GET /status", http.HandlerFunc(o.handleStatus))
	o.healthServer.Handle("GET /report", http.HandlerFunc(o.handleReport))
}

func (o *Overseer) handleCheckAll(w http.ResponseWriter, r *http.Request) {
	records := o.SuperviseAll(r.Context())
	writeJSON(w, http.StatusOK, records)
}

func (o *Overseer) handleCheckAgent(w http.ResponseWriter, r *http.Request) {
	agent := domain.Agent(r.PathValue("agent"))
	if !agent.IsKnown() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown agent"})
		return
	}

	record, err := o.supervisor.Supervise(r.Context(), agent)
	if err != nil {
		o.log.Error("supervision failed", "agent", agent, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// agentStatus is one row of the status view.
type agentStatus struct {
	Agent     domain.Agent        `json:"agent"`
	LatestRun *domain.Run         `json:"latest_run,omitempty"`
	LastCheck *domain.CheckRecord `json:"last_check,omitempty"`
}

func (o *Overseer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out := make([]agentStatus, 0, len(o.cfg.Agents))
	for _, a := range o.cfg.Agents {
		row := agentStatus{Agent: a.Name}
		if run, err := o.runs.Latest(ctx, a.Name, o.cfg.Supervision.LookbackWindow); err == nil {
			row.LatestRun = run
		}
		if chk, err := o.checks.LatestForAgent(ctx, a.Name); err == nil {
			row.LastCheck = chk
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

func (o *Overseer) handleReport(w http.ResponseWriter, r *http.Request) {
	window := 7 * 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			window = parsed
		}
	}

	snap, err := o.reporter.Generate(r.Context(), window)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
