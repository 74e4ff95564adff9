// Package provider implements the upstream adapter: a named
// upstream connector holding an ordered set of API keys, each with its
// own rate bucket, selected round-robin as capacity allows.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/dto"
	"github.com/AlfredDev/conductor-gateway/modelmap"
)

// Key is an API credential bound to a rate bucket. Immutable after
// construction except for the bucket's own internal counters.
type Key struct {
	ProviderName string
	KeyName      string
	APIKey       string
	Bucket       *bucket.Bucket
}

// Error wraps an upstream HTTP or transport failure. Status and Body
// are zero/empty for transport errors that never received a response.
type Error struct {
	Status int
	Body   string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider error: %v", e.Cause)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HealthStatus is a point-in-time health check result for an adapter.
type HealthStatus struct {
	Healthy   bool
	Latency   time.Duration
	LastCheck time.Time
	Error     string
}

// Adapter holds one provider's keys plus a rotation cursor. All keys
// share ProviderName equal to the adapter's own Name.
type Adapter struct {
	name     string
	baseURL  string
	modelMap *modelmap.ModelMap
	client   *http.Client

	mu     sync.Mutex
	keys   []*Key
	cursor int
}

// New creates an adapter for providerName with the given base URL and
// model map, using client to perform outbound HTTP calls.
func New(providerName, baseURL string, modelMap *modelmap.ModelMap, client *http.Client) *Adapter {
	return &Adapter{
		name:     providerName,
		baseURL:  baseURL,
		modelMap: modelMap,
		client:   client,
	}
}

// Name returns the adapter's provider identifier.
func (a *Adapter) Name() string {
	return a.name
}

// BaseURL returns the upstream base URL.
func (a *Adapter) BaseURL() string {
	return a.baseURL
}

// AddKey appends a key to the adapter's rotation. It takes the same
// mutex as PickKey; intended for startup registration only.
func (a *Adapter) AddKey(k *Key) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, k)
}

// Keys returns a snapshot of the adapter's registered keys.
func (a *Adapter) Keys() []*Key {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Key, len(a.keys))
	copy(out, a.keys)
	return out
}

// PickKey round-robins over the adapter's own keys starting at cursor,
// returning the first whose bucket reports headroom for est tokens. The
// cursor advances to the slot after a successful pick only; unsuccessful
// probes never move it, so capacity reappearing later resumes from a
// sensible position instead of skipping keys that were merely full.
func (a *Adapter) PickKey(est int) (*Key, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.keys)
	if n == 0 {
		return nil, false
	}
	for i := 0; i < n; i++ {
		idx := (a.cursor + i) % n
		k := a.keys[idx]
		if k.Bucket.CanAcquire(est) {
			a.cursor = (idx + 1) % n
			return k, true
		}
	}
	return nil, false
}

// EstimateTokens is a rough, provider-agnostic heuristic so the
// scheduler can reserve bucket capacity before the response arrives:
// sum of message content length / 4 (floored at 10) plus half the
// requested max_tokens (default 1024).
func (a *Adapter) EstimateTokens(req *dto.ChatCompletionRequest) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	input := chars / 4
	if input < 10 {
		input = 10
	}
	return input + req.EffectiveMaxTokens()/2
}

type upstreamRequest struct {
	Model       string            `json:"model"`
	Messages    []dto.ChatMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
	TopP        float64           `json:"top_p"`
	Stop        []string          `json:"stop,omitempty"`
}

type upstreamResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Choices []struct {
		Message      dto.ChatMessage `json:"message"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Usage dto.Usage `json:"usage"`
}

// Call translates req.Model via the adapter's model map, POSTs the
// OpenAI-shape body to <baseURL>/chat/completions with key's bearer
// token, and on success reports actual usage back to key's bucket via
// ConsumeTokens (a post-hoc debit on top of the Acquire the scheduler
// already performed — see SPEC_FULL.md's Open Question resolution).
func (a *Adapter) Call(ctx context.Context, key *Key, req *dto.ChatCompletionRequest) (*dto.ChatCompletionResponse, error) {
	upstreamModel := a.modelMap.Resolve(req.Model, a.name)

	body, err := json.Marshal(upstreamRequest{
		Model:       upstreamModel,
		Messages:    req.Messages,
		Temperature: req.EffectiveTemperature(),
		MaxTokens:   req.EffectiveMaxTokens(),
		TopP:        req.EffectiveTopP(),
		Stop:        req.Stop,
	})
	if err != nil {
		return nil, &Error{Cause: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Cause: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key.APIKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Cause: fmt.Errorf("%s request failed: %w", a.name, err)}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{Status: resp.StatusCode, Body: string(respBody)}
	}

	var up upstreamResponse
	if err := json.Unmarshal(respBody, &up); err != nil {
		return nil, &Error{Cause: fmt.Errorf("decode response: %w", err)}
	}

	if up.Usage.TotalTokens > 0 {
		key.Bucket.ConsumeTokens(up.Usage.TotalTokens)
	}

	out := &dto.ChatCompletionResponse{
		ID:              up.ID,
		Object:          "chat.completion",
		Created:         up.Created,
		Model:           req.Model,
		Usage:           up.Usage,
		Provider:        a.name,
		ProviderKeyName: key.KeyName,
	}
	for i, c := range up.Choices {
		out.Choices = append(out.Choices, dto.Choice{
			Index:        i,
			Message:      c.Message,
			FinishReason: c.FinishReason,
		})
	}
	return out, nil
}

// HealthCheck performs a lightweight upstream reachability probe.
func (a *Adapter) HealthCheck(ctx context.Context) HealthStatus {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), LastCheck: time.Now()}
	}
	if len(a.keys) > 0 {
		req.Header.Set("Authorization", "Bearer "+a.keys[0].APIKey)
	}

	resp, err := a.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return HealthStatus{Healthy: false, Latency: latency, Error: err.Error(), LastCheck: time.Now()}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !healthy {
		errMsg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return HealthStatus{Healthy: healthy, Latency: latency, LastCheck: time.Now(), Error: errMsg}
}

// Close releases idle connections held by the adapter's HTTP client.
func (a *Adapter) Close() {
	if t, ok := a.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
