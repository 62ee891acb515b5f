// Package health serves liveness and readiness probes for the bot process.
//
// /healthz reports liveness and always answers 200. /readyz evaluates the
// registered checks — typically the archive database, the Discord gateway
// and the transcription backend — and answers 503 until all of them pass.
// Bodies are JSON: {"status": "ok"|"fail", "checks": {name: result}}.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout bounds a single readiness check.
const probeTimeout = 5 * time.Second

// Check is one named readiness probe. Probe returns nil when the dependency
// is usable and an error describing the failure otherwise; it must honor
// context cancellation.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Pinger is anything with a Ping method, e.g. the archive store or a
// database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck wraps a [Pinger] as a named readiness check.
func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Probe: p.Ping}
}

// report is the JSON body for both probes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the health endpoints. The check list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checks []Check
}

// New builds a Handler evaluating the given checks, in order, on each
// /readyz request.
func New(checks ...Check) *Handler {
	h := &Handler{checks: make([]Check, len(checks))}
	copy(h.checks, checks)
	return h
}

// Healthz always answers 200: a process that serves the request is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 only when every check passes. Each probe runs under
// its own deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.checks)),
	}
	status := http.StatusOK

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			rep.Checks[c.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[c.Name] = "ok"
	}

	writeJSON(w, status, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
