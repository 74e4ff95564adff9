package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthPoller continuously monitors adapter health in the background,
// logging each transition between healthy and unhealthy and invoking
// the optional OnStatusChange callback. Its poll results are not read
// by /status, /health or the scheduler's key selection.
type HealthPoller struct {
	adapters map[string]*Adapter
	logger   zerolog.Logger
	interval time.Duration

	mu             sync.RWMutex
	lastStatus     map[string]bool
	statusChangeCB func(provider string, healthy bool, status HealthStatus)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewHealthPoller creates a poller that checks every adapter in
// adapters at the given interval (minimum 5 seconds).
func NewHealthPoller(adapters map[string]*Adapter, logger zerolog.Logger, interval time.Duration) *HealthPoller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		adapters:   adapters,
		logger:     logger.With().Str("component", "health_poller").Logger(),
		interval:   interval,
		lastStatus: make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// OnStatusChange registers a callback invoked when a provider's health
// status transitions (healthy → unhealthy or vice versa).
func (hp *HealthPoller) OnStatusChange(cb func(provider string, healthy bool, status HealthStatus)) {
	hp.statusChangeCB = cb
}

// Start begins the background polling loop. Call Stop() to shut it
// down gracefully.
func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel

	hp.logger.Info().Dur("interval", hp.interval).Msg("starting provider health poller")

	go hp.pollLoop(ctx)
}

// Stop gracefully shuts down the poller and waits for it to finish.
func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
	hp.logger.Info().Msg("health poller stopped")
}

func (hp *HealthPoller) pollLoop(ctx context.Context) {
	defer close(hp.done)

	hp.poll(ctx)

	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.poll(ctx)
		}
	}
}

func (hp *HealthPoller) checkAll(ctx context.Context) map[string]HealthStatus {
	results := make(map[string]HealthStatus, len(hp.adapters))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, a := range hp.adapters {
		wg.Add(1)
		go func(name string, a *Adapter) {
			defer wg.Done()
			status := a.HealthCheck(ctx)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, a)
	}
	wg.Wait()
	return results
}

func (hp *HealthPoller) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, hp.interval/2)
	defer cancel()

	results := hp.checkAll(pollCtx)

	hp.mu.Lock()
	defer hp.mu.Unlock()

	healthy, unhealthy := 0, 0
	for name, status := range results {
		wasHealthy, known := hp.lastStatus[name]
		if known && wasHealthy != status.Healthy {
			transition := "recovered"
			if !status.Healthy {
				transition = "degraded"
			}
			hp.logger.Warn().
				Str("provider", name).
				Str("transition", transition).
				Str("error", status.Error).
				Dur("latency", status.Latency).
				Msg("provider status change")

			if hp.statusChangeCB != nil {
				hp.statusChangeCB(name, status.Healthy, status)
			}
		}
		hp.lastStatus[name] = status.Healthy

		if status.Healthy {
			healthy++
		} else {
			unhealthy++
		}
	}

	hp.logger.Debug().
		Int("healthy", healthy).
		Int("unhealthy", unhealthy).
		Int("total", len(results)).
		Msg("health poll complete")
}

// Status returns the latest health status for every adapter, checked
// fresh (not from cache).
func (hp *HealthPoller) Status() map[string]HealthStatus {
	return hp.checkAll(context.Background())
}

// IsHealthy returns whether a specific provider was healthy at last poll.
func (hp *HealthPoller) IsHealthy(name string) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	healthy, ok := hp.lastStatus[name]
	return ok && healthy
}

// HealthyProviders returns only the names of currently healthy providers.
func (hp *HealthPoller) HealthyProviders() []string {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	var names []string
	for name, healthy := range hp.lastStatus {
		if healthy {
			names = append(names, name)
		}
	}
	return names
}
