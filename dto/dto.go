// Package dto defines the OpenAI-compatible chat-completion envelope
// exchanged at the gateway's HTTP boundary and, with the model name
// translated, with each upstream provider.
package dto

// ChatMessage is a single turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the inbound (and, after model translation,
// outbound) request body for POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Provider    string        `json:"provider,omitempty"`
	Priority    int           `json:"priority,omitempty"`
}

// EffectiveTemperature returns Temperature or its default, 0.7.
func (r *ChatCompletionRequest) EffectiveTemperature() float64 {
	if r.Temperature != nil {
		return *r.Temperature
	}
	return 0.7
}

// EffectiveMaxTokens returns MaxTokens or its default, 1024.
func (r *ChatCompletionRequest) EffectiveMaxTokens() int {
	if r.MaxTokens != nil {
		return *r.MaxTokens
	}
	return 1024
}

// EffectiveTopP returns TopP or its default, 1.0.
func (r *ChatCompletionRequest) EffectiveTopP() float64 {
	if r.TopP != nil {
		return *r.TopP
	}
	return 1.0
}

// Choice is a single completion choice in a response.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports upstream-reported token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the outbound response body, stamped with the
// two gateway-specific fields identifying which upstream served it.
type ChatCompletionResponse struct {
	ID              string   `json:"id"`
	Object          string   `json:"object"`
	Created         int64    `json:"created"`
	Model           string   `json:"model"`
	Choices         []Choice `json:"choices"`
	Usage           Usage    `json:"usage"`
	Provider        string   `json:"provider"`
	ProviderKeyName string   `json:"provider_key_name"`
}

// BatchRequest is the body of POST /v1/batch/chat/completions.
type BatchRequest struct {
	Requests   []ChatCompletionRequest `json:"requests"`
	WaitForAll bool                    `json:"wait_for_all"`
}

// BatchFailure describes one sub-request's failure within a batch.
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// BatchResponse is the body returned from POST /v1/batch/chat/completions.
type BatchResponse struct {
	Responses   []ChatCompletionResponse `json:"responses"`
	Failed      []BatchFailure           `json:"failed"`
	TotalTimeMs float64                  `json:"total_time_ms"`
}
