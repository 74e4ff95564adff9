// Package status aggregates a read-only snapshot of scheduler and
// bucket state for the /status endpoint, optionally mirroring it to
// Redis for external dashboards.
package status

import (
	"context"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/scheduler"
)

// KeyStatus is one bucket's snapshot, labeled with its owning provider.
type KeyStatus struct {
	Provider string        `json:"provider"`
	bucket.Status
}

// Snapshot is the full aggregated view returned by GET /status.
type Snapshot struct {
	Status           string      `json:"status"`
	Strategy         string      `json:"strategy"`
	TotalProviders   int         `json:"total_providers"`
	TotalKeys        int         `json:"total_keys"`
	AvailableKeys    int         `json:"available_keys"`
	PendingRequests  int         `json:"pending_requests"`
	Keys             []KeyStatus `json:"keys"`
}

// Publisher is satisfied by redisclient.Client; kept as an interface so
// status stays independent of the Redis wiring and is easy to test.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snapshot interface{}) error
}

// Aggregator builds Snapshots from a Scheduler and optionally mirrors
// them to a Publisher.
type Aggregator struct {
	scheduler *scheduler.Scheduler
	publisher Publisher
}

// New creates an Aggregator. publisher may be nil to disable mirroring.
func New(s *scheduler.Scheduler, publisher Publisher) *Aggregator {
	return &Aggregator{scheduler: s, publisher: publisher}
}

// Snapshot builds the current aggregated view.
func (a *Aggregator) Snapshot() Snapshot {
	state := "stopped"
	if a.scheduler.IsRunning() {
		state = "running"
	}

	snap := Snapshot{
		Status:          state,
		Strategy:        string(a.scheduler.Strategy()),
		PendingRequests: a.scheduler.PendingCount(),
	}

	providers := a.scheduler.Providers()
	snap.TotalProviders = len(providers)
	for _, p := range providers {
		for _, k := range p.Keys() {
			bs := k.Bucket.Status()
			snap.TotalKeys++
			if bs.IsAvailable {
				snap.AvailableKeys++
			}
			snap.Keys = append(snap.Keys, KeyStatus{Provider: p.Name(), Status: bs})
		}
	}
	return snap
}

// Publish computes a fresh snapshot and mirrors it via the configured
// publisher, if any. A publish failure is returned but never blocks
// the caller from using the snapshot it already has.
func (a *Aggregator) Publish(ctx context.Context) (Snapshot, error) {
	snap := a.Snapshot()
	if a.publisher == nil {
		return snap, nil
	}
	return snap, a.publisher.PublishSnapshot(ctx, snap)
}
