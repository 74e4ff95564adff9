// Package handler implements the HTTP boundary:
// it parses inbound requests, calls into the scheduler, and serializes
// outbound responses. None of the scheduling logic lives here.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/conductor-gateway/modelmap"
	"github.com/AlfredDev/conductor-gateway/provider"
	"github.com/AlfredDev/conductor-gateway/scheduler"
	"github.com/AlfredDev/conductor-gateway/status"
)

// Handler holds the scheduler and its satellite components needed to
// serve the gateway's public endpoints.
type Handler struct {
	logger       zerolog.Logger
	scheduler    *scheduler.Scheduler
	modelMap     *modelmap.ModelMap
	statusAgg    *status.Aggregator
	healthPoller *provider.HealthPoller
}

// New builds a Handler. healthPoller may be nil if background health
// polling was not started.
func New(logger zerolog.Logger, sched *scheduler.Scheduler, mm *modelmap.ModelMap, statusAgg *status.Aggregator, healthPoller *provider.HealthPoller) *Handler {
	return &Handler{
		logger:       logger,
		scheduler:    sched,
		modelMap:     mm,
		statusAgg:    statusAgg,
		healthPoller: healthPoller,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    errType,
			"message": message,
		},
	})
}

// statusForSchedulerError maps the scheduler's typed error taxonomy to
// the HTTP status codes used for POST /v1/chat/completions outcomes.
func statusForSchedulerError(err error) (int, string) {
	kind, ok := scheduler.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal_error"
	}
	switch kind {
	case scheduler.KindQueueFull, scheduler.KindNoCapacity, scheduler.KindConfigError, scheduler.KindShuttingDown:
		return http.StatusServiceUnavailable, kind.String()
	case scheduler.KindTimeout:
		return http.StatusGatewayTimeout, kind.String()
	case scheduler.KindProviderError:
		return http.StatusInternalServerError, kind.String()
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
