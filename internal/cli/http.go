package cli

import (
	"encoding/json"
	"net/http"

	"github.com/hashicorp/go-hclog"

	"github.com/isometry/dlsync/internal/directory"
	"github.com/isometry/dlsync/internal/hook"
	"github.com/isometry/dlsync/internal/metrics"
)

// newHandler serves metrics, readiness and address lookups.
func newHandler(sched *directory.Scheduler, plugin *hook.Plugin, log hclog.Logger) http.Handler {
	handlers := plugin.Handlers()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{"state": sched.State().String()}
		code := http.StatusOK
		if snap, err := sched.Table().Current(); err != nil {
			code = http.StatusServiceUnavailable
		} else {
			status["generation"] = snap.Generation
			status["addresses"] = snap.Len()
			status["built_at"] = snap.BuiltAt
		}
		writeJSON(w, code, status, log)
	})

	mux.HandleFunc("GET /resolve", func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address parameter is required"}, log)
			return
		}
		writeJSON(w, http.StatusOK, resolveAddress(handlers, address), log)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any, log hclog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("Writing response failed", "error", err)
	}
}
