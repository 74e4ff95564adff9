package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/dto"
	"github.com/AlfredDev/conductor-gateway/modelmap"
)

func newTestAdapter(t *testing.T, baseURL string, keyNames ...string) *Adapter {
	t.Helper()
	mm := modelmap.New(nil)
	a := New("cerebras", baseURL, mm, &http.Client{Timeout: 5 * time.Second})
	for _, name := range keyNames {
		a.AddKey(&Key{
			ProviderName: "cerebras",
			KeyName:      name,
			APIKey:       "test-key-" + name,
			Bucket:       bucket.New("cerebras/"+name, 60, 100000),
		})
	}
	return a
}

func TestPickKeyRoundRobinsAndAdvancesOnlyOnSuccess(t *testing.T) {
	a := newTestAdapter(t, "http://unused", "a", "b")

	k1, ok := a.PickKey(10)
	if !ok || k1.KeyName != "a" {
		t.Fatalf("expected first pick to be key a, got %+v ok=%v", k1, ok)
	}
	k2, ok := a.PickKey(10)
	if !ok || k2.KeyName != "b" {
		t.Fatalf("expected second pick to be key b, got %+v ok=%v", k2, ok)
	}
	k3, ok := a.PickKey(10)
	if !ok || k3.KeyName != "a" {
		t.Fatalf("expected cursor to wrap back to key a, got %+v ok=%v", k3, ok)
	}
}

func TestPickKeySkipsExhaustedKeyWithoutAdvancingPastIt(t *testing.T) {
	a := newTestAdapter(t, "http://unused", "a", "b")
	for _, k := range a.Keys() {
		if k.KeyName == "a" {
			for i := 0; i < 60; i++ {
				k.Bucket.Acquire(1)
			}
		}
	}

	k, ok := a.PickKey(10)
	if !ok || k.KeyName != "b" {
		t.Fatalf("expected exhausted key a to be skipped in favor of b, got %+v ok=%v", k, ok)
	}

	// b's bucket is now spent for requests too; a still has no requests
	// left, so a further pick should fail.
	for i := 0; i < 60; i++ {
		k.Bucket.Acquire(1)
	}
	if _, ok := a.PickKey(10); ok {
		t.Fatal("expected no key to have headroom once both are exhausted")
	}
	// Picking b wrapped the cursor back to a's slot; the failed probe
	// above must leave it there rather than advance past a.
	if a.cursor != 0 {
		t.Fatalf("expected cursor to stay on key a's slot (0), got %d", a.cursor)
	}
}

func TestEstimateTokensFloorsAtTenPlusHalfMaxTokens(t *testing.T) {
	a := newTestAdapter(t, "http://unused")
	maxTokens := 200
	req := &dto.ChatCompletionRequest{
		Messages:  []dto.ChatMessage{{Role: "user", Content: "hi"}},
		MaxTokens: &maxTokens,
	}
	got := a.EstimateTokens(req)
	want := 10 + 100
	if got != want {
		t.Fatalf("expected estimate %d, got %d", want, got)
	}
}

func TestCallTranslatesModelAndConsumesReportedUsage(t *testing.T) {
	var capturedModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		capturedModel, _ = body["model"].(string)

		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key-a" {
			t.Errorf("expected bearer auth header, got %q", auth)
		}

		resp := upstreamResponse{
			ID:      "resp-1",
			Created: 1234,
			Usage:   dto.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12},
		}
		resp.Choices = []struct {
			Message      dto.ChatMessage `json:"message"`
			FinishReason string          `json:"finish_reason"`
		}{{Message: dto.ChatMessage{Role: "assistant", Content: "hello"}, FinishReason: "stop"}}

		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, "a")
	key := a.Keys()[0]
	key.Bucket.Acquire(50)

	req := &dto.ChatCompletionRequest{
		Model:    "llama-70b",
		Messages: []dto.ChatMessage{{Role: "user", Content: "hi"}},
	}

	resp, err := a.Call(context.Background(), key, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedModel != "llama-3.3-70b" {
		t.Fatalf("expected model translated to cerebras name, got %q", capturedModel)
	}
	if resp.Provider != "cerebras" || resp.ProviderKeyName != "a" {
		t.Fatalf("expected response stamped with provider/key, got %+v", resp)
	}

	status := key.Bucket.Status()
	if status.TokensRemaining != 100000-50-12 {
		t.Fatalf("expected bucket debited by both the estimate and reported usage, got %d remaining", status.TokensRemaining)
	}
}

func TestCallReturnsProviderErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, "a")
	key := a.Keys()[0]

	req := &dto.ChatCompletionRequest{Messages: []dto.ChatMessage{{Role: "user", Content: "hi"}}}
	_, err := a.Call(context.Background(), key, req)
	if err == nil {
		t.Fatal("expected an error on non-2xx upstream response")
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *provider.Error, got %T", err)
	}
	if perr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 preserved, got %d", perr.Status)
	}
}

func TestHealthCheckReportsUnhealthyOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, "a")
	st := a.HealthCheck(context.Background())
	if st.Healthy {
		t.Fatal("expected unhealthy status on 500 response")
	}
}
