package server

import (
	"net/http"
	"time"

	"github.com/onnwee/chat-guard/guard"
)

// HandleHealthz responds to liveness probe requests. The process is alive as
// long as it can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests. The guard is not ready
// when its most recent cycle failed; before the first cycle it is ready.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	st := h.status.Stats()
	if st.LastError != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "not_ready",
			"failed_check": "last_cycle",
			"error_kind":   st.LastErrorKind,
			"error":        st.LastError,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns scheduler counters and the engine phase as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := h.status.Stats()
	writeJSON(w, http.StatusOK, struct {
		Now time.Time `json:"now"`
		guard.Stats
	}{Now: time.Now().UTC(), Stats: st})
}
