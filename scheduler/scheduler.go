// Package scheduler owns the registered provider adapters, the bounded
// backlog queue, and the worker that drains it — the admission
// subsystem that decides whether a chat-completion request dispatches
// immediately or waits for capacity.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlfredDev/conductor-gateway/dto"
	"github.com/AlfredDev/conductor-gateway/metrics"
	"github.com/AlfredDev/conductor-gateway/provider"
)

const (
	defaultMaxQueueSize = 1000
	defaultMaxWaitTime  = 60 * time.Second
	defaultMaxAttempts  = 10
	retryBackoff        = 1 * time.Second
)

// pendingRequest is a queued unit of work. Its result channel is
// buffered 1 so the worker's send never blocks on an abandoned waiter.
type pendingRequest struct {
	id               string
	request          *dto.ChatCompletionRequest
	estimatedTokens  int
	preferredProvider string
	createdAt        time.Time
	resultCh         chan outcome
}

type outcome struct {
	response *dto.ChatCompletionResponse
	err      error
}

// Config tunes a Scheduler's queueing and retry behavior.
type Config struct {
	Strategy     Strategy
	MaxQueueSize int
	MaxWaitTime  time.Duration
	MaxAttempts  int
}

// Scheduler multiplexes inbound requests across registered adapters.
type Scheduler struct {
	mu           sync.RWMutex
	providers    map[string]*provider.Adapter
	order        []string
	strategy     Strategy
	policyCursor int

	queue        chan *pendingRequest
	maxQueueSize int
	maxWaitTime  time.Duration
	maxAttempts  int

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	recorder *metrics.Recorder
	logger   zerolog.Logger
}

// New creates a Scheduler with no providers registered; call
// AddProvider for each adapter before Start.
func New(cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	if cfg.MaxWaitTime <= 0 {
		cfg.MaxWaitTime = defaultMaxWaitTime
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyRoundRobin
	}
	return &Scheduler{
		providers:    make(map[string]*provider.Adapter),
		strategy:     cfg.Strategy,
		queue:        make(chan *pendingRequest, cfg.MaxQueueSize),
		maxQueueSize: cfg.MaxQueueSize,
		maxWaitTime:  cfg.MaxWaitTime,
		maxAttempts:  cfg.MaxAttempts,
		logger:       logger.With().Str("component", "scheduler").Logger(),
	}
}

// AddProvider registers an adapter under its own name. Call only
// before Start; the provider map is read-only during steady state.
func (s *Scheduler) AddProvider(a *provider.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := a.Name()
	if _, exists := s.providers[name]; !exists {
		s.order = append(s.order, name)
	}
	s.providers[name] = a
	s.logger.Info().Str("provider", name).Int("keys", len(a.Keys())).Msg("registered provider")
}

// SetRecorder attaches a metrics recorder so dispatch outcomes are
// observed as they occur. Nil disables recording; safe to call before
// Start.
func (s *Scheduler) SetRecorder(r *metrics.Recorder) {
	s.recorder = r
}

// Provider returns a registered adapter by name.
func (s *Scheduler) Provider(name string) (*provider.Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.providers[name]
	return a, ok
}

// Providers returns every registered adapter in registration order.
func (s *Scheduler) Providers() []*provider.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*provider.Adapter, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.providers[name])
	}
	return out
}

// Start launches the background worker. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.workerLoop()
	s.logger.Info().Str("strategy", string(s.strategy)).Msg("scheduler started")
}

// Stop signals the worker to exit, closes every adapter's connections,
// and waits for the worker to finish. In-flight upstream calls are
// allowed to complete; queued items with no one waiting on their
// result channel are simply left undelivered.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.runMu.Unlock()

	<-s.doneCh

	for _, a := range s.Providers() {
		a.Close()
	}
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) isRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

func (s *Scheduler) workerLoop() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.stopCh:
			return
		case pending := <-s.queue:
			resp, err := s.executePending(pending)
			select {
			case pending.resultCh <- outcome{response: resp, err: err}:
			default:
			}
		}
	}
}

// Submit is the sole entry point: it estimates token cost, attempts
// immediate dispatch, and falls back to the bounded queue.
func (s *Scheduler) Submit(ctx context.Context, req *dto.ChatCompletionRequest) (*dto.ChatCompletionResponse, error) {
	if !s.isRunning() {
		return nil, newError(KindShuttingDown, nil)
	}

	s.mu.RLock()
	n := len(s.order)
	s.mu.RUnlock()
	if n == 0 {
		return nil, newError(KindConfigError, fmt.Errorf("no providers registered"))
	}

	est := s.estimateTokens(req)

	if resp, err, dispatched := s.tryImmediate(ctx, req, est); dispatched {
		return resp, err
	}

	pending := &pendingRequest{
		id:                uuid.NewString(),
		request:           req,
		estimatedTokens:   est,
		preferredProvider: req.Provider,
		createdAt:         timeNow(),
		resultCh:          make(chan outcome, 1),
	}

	select {
	case s.queue <- pending:
	default:
		return nil, newError(KindQueueFull, fmt.Errorf("queue at capacity (%d)", s.maxQueueSize))
	}

	timer := time.NewTimer(s.maxWaitTime)
	defer timer.Stop()

	select {
	case out := <-pending.resultCh:
		return out.response, out.err
	case <-timer.C:
		return nil, newError(KindTimeout, fmt.Errorf("exceeded wait time %s", s.maxWaitTime))
	case <-ctx.Done():
		return nil, newError(KindTimeout, ctx.Err())
	}
}

// tryImmediate attempts fast-path dispatch. The bool return reports
// whether dispatch was attempted at all (true) versus falling through
// to the slow path (false) because no key had headroom.
func (s *Scheduler) tryImmediate(ctx context.Context, req *dto.ChatCompletionRequest, est int) (*dto.ChatCompletionResponse, error, bool) {
	a, key := s.selectProviderAndKey(est, req.Provider)
	if a == nil || key == nil {
		return nil, nil, false
	}
	if !key.Bucket.Acquire(est) {
		return nil, nil, false
	}
	start := time.Now()
	resp, err := a.Call(ctx, key, req)
	if err != nil {
		s.recordDispatch(a.Name(), "error", start)
		return nil, newError(KindProviderError, err), true
	}
	s.recordDispatch(a.Name(), "success", start)
	return resp, nil, true
}

// executePending retries selection up to maxAttempts, sleeping
// retryBackoff between misses; a provider-side error is returned
// immediately without further retries.
func (s *Scheduler) executePending(pending *pendingRequest) (*dto.ChatCompletionResponse, error) {
	ctx := context.Background()
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		a, key := s.selectProviderAndKey(pending.estimatedTokens, pending.preferredProvider)
		if a != nil && key != nil {
			if key.Bucket.Acquire(pending.estimatedTokens) {
				start := time.Now()
				resp, err := a.Call(ctx, key, pending.request)
				if err != nil {
					s.recordDispatch(a.Name(), "error", start)
					return nil, newError(KindProviderError, err)
				}
				s.recordDispatch(a.Name(), "success", start)
				return resp, nil
			}
		}
		select {
		case <-s.stopCh:
			return nil, newError(KindShuttingDown, nil)
		case <-time.After(retryBackoff):
		}
	}
	s.recordDispatch(pending.preferredProvider, "no_capacity", pending.createdAt)
	return nil, newError(KindNoCapacity, fmt.Errorf("exhausted %d attempts", s.maxAttempts))
}

// recordDispatch observes one dispatch outcome if a recorder is
// attached; a no-op otherwise so metrics stay entirely optional.
func (s *Scheduler) recordDispatch(providerName, outcome string, since time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObserveDispatch(providerName, outcome, float64(time.Since(since).Milliseconds()))
}

// estimateTokens uses the preferred provider's heuristic when given,
// otherwise any registered adapter's (the heuristic is provider-agnostic).
func (s *Scheduler) estimateTokens(req *dto.ChatCompletionRequest) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if req.Provider != "" {
		if a, ok := s.providers[req.Provider]; ok {
			return a.EstimateTokens(req)
		}
	}
	if len(s.order) > 0 {
		return s.providers[s.order[0]].EstimateTokens(req)
	}
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

// PendingCount reports the current backlog depth.
func (s *Scheduler) PendingCount() int {
	return len(s.queue)
}

// Strategy returns the configured selection policy.
func (s *Scheduler) Strategy() Strategy {
	return s.strategy
}

// IsRunning reports whether the worker is active.
func (s *Scheduler) IsRunning() bool {
	return s.isRunning()
}

func timeNow() time.Time {
	return time.Now()
}
