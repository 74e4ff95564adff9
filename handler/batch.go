package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AlfredDev/conductor-gateway/dto"
)

// Batch handles POST /v1/batch/chat/completions. Every sub-request is
// submitted to the scheduler concurrently. With WaitForAll, results are
// gathered in submission order and failures classified into Failed;
// otherwise responses are appended in completion order.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req dto.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body: "+err.Error())
		return
	}
	if len(req.Requests) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "requests field must not be empty")
		return
	}

	var (
		mu        sync.Mutex
		responses []dto.ChatCompletionResponse
		failed    []dto.BatchFailure
	)

	if req.WaitForAll {
		ordered := make([]*dto.ChatCompletionResponse, len(req.Requests))
		errs := make([]error, len(req.Requests))

		g, ctx := errgroup.WithContext(r.Context())
		for i := range req.Requests {
			i := i
			sub := req.Requests[i]
			g.Go(func() error {
				resp, err := h.scheduler.Submit(ctx, &sub)
				if err != nil {
					errs[i] = err
					return nil
				}
				ordered[i] = resp
				return nil
			})
		}
		_ = g.Wait()

		for i, resp := range ordered {
			if errs[i] != nil {
				failed = append(failed, dto.BatchFailure{Index: i, Error: errs[i].Error()})
				continue
			}
			responses = append(responses, *resp)
		}
	} else {
		var wg sync.WaitGroup
		for i := range req.Requests {
			i := i
			sub := req.Requests[i]
			wg.Add(1)
			go func() {
				defer wg.Done()
				resp, err := h.scheduler.Submit(r.Context(), &sub)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = append(failed, dto.BatchFailure{Index: i, Error: err.Error()})
					return
				}
				responses = append(responses, *resp)
			}()
		}
		wg.Wait()
	}

	h.writeJSON(w, http.StatusOK, dto.BatchResponse{
		Responses:   responses,
		Failed:      failed,
		TotalTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}
