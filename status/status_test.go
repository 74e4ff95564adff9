package status

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/modelmap"
	"github.com/AlfredDev/conductor-gateway/provider"
	"github.com/AlfredDev/conductor-gateway/scheduler"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	log := zerolog.New(io.Discard)
	s := scheduler.New(scheduler.Config{Strategy: scheduler.StrategyRoundRobin}, log)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func addAdapter(s *scheduler.Scheduler, name string, rpm, tpm int, keyNames ...string) *provider.Adapter {
	mm := modelmap.New(nil)
	a := provider.New(name, "http://unused", mm, &http.Client{Timeout: time.Second})
	for _, kn := range keyNames {
		a.AddKey(&provider.Key{
			ProviderName: name,
			KeyName:      kn,
			APIKey:       "key-" + kn,
			Bucket:       bucket.New(name+"/"+kn, rpm, tpm),
		})
	}
	s.AddProvider(a)
	return a
}

func TestSnapshotCountsProvidersAndKeys(t *testing.T) {
	s := newTestScheduler(t)
	addAdapter(s, "cerebras", 60, 100000, "a", "b")
	addAdapter(s, "nvidia", 60, 100000, "a")

	agg := New(s, nil)
	snap := agg.Snapshot()

	if snap.TotalProviders != 2 {
		t.Fatalf("expected 2 providers, got %d", snap.TotalProviders)
	}
	if snap.TotalKeys != 3 {
		t.Fatalf("expected 3 keys across providers, got %d", snap.TotalKeys)
	}
	if snap.AvailableKeys != 3 {
		t.Fatalf("expected all 3 keys to report available headroom, got %d", snap.AvailableKeys)
	}
	if snap.Status != "running" {
		t.Fatalf("expected status running after Start, got %q", snap.Status)
	}
	if snap.Strategy != string(scheduler.StrategyRoundRobin) {
		t.Fatalf("expected strategy round_robin, got %q", snap.Strategy)
	}
}

func TestSnapshotExcludesExhaustedKeyFromAvailableCount(t *testing.T) {
	s := newTestScheduler(t)
	adapter := addAdapter(s, "cerebras", 60, 200, "a")
	// Bucket.Status() reports IsAvailable only once tokensRemaining > 100.
	adapter.Keys()[0].Bucket.Acquire(150)

	agg := New(s, nil)
	snap := agg.Snapshot()

	if snap.TotalKeys != 1 {
		t.Fatalf("expected 1 key, got %d", snap.TotalKeys)
	}
	if snap.AvailableKeys != 0 {
		t.Fatalf("expected the drained key to be excluded from available count, got %d", snap.AvailableKeys)
	}
}

type fakePublisher struct {
	published interface{}
	err       error
}

func (f *fakePublisher) PublishSnapshot(ctx context.Context, snapshot interface{}) error {
	f.published = snapshot
	return f.err
}

func TestPublishMirrorsSnapshotToPublisher(t *testing.T) {
	s := newTestScheduler(t)
	addAdapter(s, "cerebras", 60, 100000, "a")

	pub := &fakePublisher{}
	agg := New(s, pub)

	snap, err := agg.Publish(context.Background())
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	published, ok := pub.published.(Snapshot)
	if !ok {
		t.Fatalf("expected published value to be a Snapshot, got %T", pub.published)
	}
	if published.TotalKeys != snap.TotalKeys {
		t.Fatalf("expected published snapshot to match returned snapshot")
	}
}

func TestPublishReturnsSnapshotEvenWhenPublisherFails(t *testing.T) {
	s := newTestScheduler(t)
	addAdapter(s, "cerebras", 60, 100000, "a")

	pub := &fakePublisher{err: errors.New("redis unreachable")}
	agg := New(s, pub)

	snap, err := agg.Publish(context.Background())
	if err == nil {
		t.Fatal("expected the publisher's error to propagate")
	}
	if snap.TotalKeys != 1 {
		t.Fatal("expected a usable snapshot to be returned alongside the publish error")
	}
}

func TestPublishWithNilPublisherNeverErrors(t *testing.T) {
	s := newTestScheduler(t)
	agg := New(s, nil)

	if _, err := agg.Publish(context.Background()); err != nil {
		t.Fatalf("expected no error with a nil publisher, got %v", err)
	}
}
