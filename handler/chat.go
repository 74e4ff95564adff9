package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/AlfredDev/conductor-gateway/dto"
)

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get("X-Request-ID")

	var req dto.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "messages field is required and must not be empty")
		return
	}
	if req.Stream {
		h.writeError(w, http.StatusBadRequest, "streaming_unsupported", "stream=true is not supported by this gateway")
		return
	}

	if r.Header.Get("X-Conductor-DryRun") == "true" {
		h.dryRun(w, &req)
		return
	}

	resp, err := h.scheduler.Submit(r.Context(), &req)
	if err != nil {
		code, kind := statusForSchedulerError(err)
		h.logger.Warn().
			Str("req_id", reqID).
			Str("model", req.Model).
			Str("kind", kind).
			Err(err).
			Msg("chat completion failed")
		h.writeError(w, code, kind, err.Error())
		return
	}

	h.logger.Info().
		Str("req_id", reqID).
		Str("model", req.Model).
		Str("provider", resp.Provider).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int64("latency_ms", time.Since(start).Milliseconds()).
		Msg("chat completion success")

	h.writeJSON(w, http.StatusOK, resp)
}

// dryRun estimates cost without submitting to the scheduler, using the
// requested provider's heuristic when given, else the default adapter.
func (h *Handler) dryRun(w http.ResponseWriter, req *dto.ChatCompletionRequest) {
	providerName := req.Provider
	var est int
	if providerName != "" {
		if a, ok := h.scheduler.Provider(providerName); ok {
			est = a.EstimateTokens(req)
		}
	}
	if est == 0 {
		providers := h.scheduler.Providers()
		if len(providers) > 0 {
			providerName = providers[0].Name()
			est = providers[0].EstimateTokens(req)
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"dry_run":          true,
		"model":            req.Model,
		"provider":         providerName,
		"estimated_tokens": est,
		"message":          "dry run complete, no provider was called",
	})
}
