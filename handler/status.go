package handler

import "net/http"

// Status handles GET /status: an aggregated, read-only snapshot of
// scheduler and bucket state.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.statusAgg.Publish(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("status snapshot mirror failed")
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ProviderHealth handles GET /v1/providers/health, running a fresh
// health check against every adapter through the poller; the result of
// the poller's last background poll is not used here.
func (h *Handler) ProviderHealth(w http.ResponseWriter, r *http.Request) {
	if h.healthPoller == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	health := h.healthPoller.Status()

	resp := make(map[string]interface{}, len(health))
	for name, st := range health {
		resp[name] = map[string]interface{}{
			"healthy":    st.Healthy,
			"latency_ms": st.Latency.Milliseconds(),
			"last_check": st.LastCheck,
			"error":      st.Error,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}
