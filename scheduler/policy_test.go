package scheduler

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/conductor-gateway/bucket"
	"github.com/AlfredDev/conductor-gateway/modelmap"
	"github.com/AlfredDev/conductor-gateway/provider"
)

func newPolicyAdapter(name string, rpm, tpm int) *provider.Adapter {
	mm := modelmap.New(nil)
	a := provider.New(name, "http://unused", mm, &http.Client{Timeout: time.Second})
	a.AddKey(&provider.Key{
		ProviderName: name,
		KeyName:      "default",
		APIKey:       "key",
		Bucket:       bucket.New(name+"/default", rpm, tpm),
	})
	return a
}

func newPolicyScheduler(strategy Strategy) *Scheduler {
	return New(Config{Strategy: strategy}, zerolog.New(io.Discard))
}

func TestSelectRoundRobinCyclesProviders(t *testing.T) {
	s := newPolicyScheduler(StrategyRoundRobin)
	s.AddProvider(newPolicyAdapter("cerebras", 60, 100000))
	s.AddProvider(newPolicyAdapter("nvidia", 60, 100000))

	first, _ := s.selectProviderAndKey(10, "")
	second, _ := s.selectProviderAndKey(10, "")
	third, _ := s.selectProviderAndKey(10, "")

	if first.Name() != "cerebras" || second.Name() != "nvidia" || third.Name() != "cerebras" {
		t.Fatalf("expected round robin cerebras->nvidia->cerebras, got %s, %s, %s", first.Name(), second.Name(), third.Name())
	}
}

func TestSelectSequentialAlwaysPrefersFirstRegistered(t *testing.T) {
	s := newPolicyScheduler(StrategySequential)
	s.AddProvider(newPolicyAdapter("cerebras", 60, 100000))
	s.AddProvider(newPolicyAdapter("nvidia", 60, 100000))

	for i := 0; i < 3; i++ {
		a, _ := s.selectProviderAndKey(10, "")
		if a.Name() != "cerebras" {
			t.Fatalf("expected sequential to always pick the first registered provider while it has capacity, got %s", a.Name())
		}
	}
}

func TestSelectLeastLoadedPicksHighestHeadroom(t *testing.T) {
	s := newPolicyScheduler(StrategyLeastLoaded)
	loaded := newPolicyAdapter("cerebras", 60, 100000)
	fresh := newPolicyAdapter("nvidia", 60, 100000)
	s.AddProvider(loaded)
	s.AddProvider(fresh)

	// Drain most of cerebras's token budget so nvidia has more headroom.
	loaded.Keys()[0].Bucket.Acquire(90000)

	a, k := s.selectProviderAndKey(10, "")
	if a.Name() != "nvidia" {
		t.Fatalf("expected least_loaded to pick nvidia (more headroom), got %s", a.Name())
	}
	if k.ProviderName != "nvidia" {
		t.Fatalf("expected the selected key to belong to nvidia, got %s", k.ProviderName)
	}
}

func TestSelectLeastLoadedSkipsKeyWithoutHeadroomForEstimate(t *testing.T) {
	s := newPolicyScheduler(StrategyLeastLoaded)
	tight := newPolicyAdapter("cerebras", 60, 100000)
	s.AddProvider(tight)
	tight.Keys()[0].Bucket.Acquire(99995)

	if a, _ := s.selectProviderAndKey(10, ""); a != nil {
		t.Fatalf("expected no selection when the only key lacks headroom for the estimate, got %s", a.Name())
	}
}

func TestSelectProviderAndKeyPreferredWithNoCapacityReturnsNilWithoutFallback(t *testing.T) {
	s := newPolicyScheduler(StrategyRoundRobin)
	exhausted := newPolicyAdapter("cerebras", 1, 100000)
	s.AddProvider(exhausted)
	s.AddProvider(newPolicyAdapter("nvidia", 60, 100000))
	exhausted.Keys()[0].Bucket.Acquire(1)

	a, k := s.selectProviderAndKey(10, "cerebras")
	if a != nil || k != nil {
		t.Fatal("expected no fallback to nvidia when the preferred provider has no capacity")
	}
}

func TestSelectProviderAndKeyUnknownPreferredReturnsNil(t *testing.T) {
	s := newPolicyScheduler(StrategyRoundRobin)
	s.AddProvider(newPolicyAdapter("cerebras", 60, 100000))

	a, k := s.selectProviderAndKey(10, "does-not-exist")
	if a != nil || k != nil {
		t.Fatal("expected nil selection for an unregistered preferred provider")
	}
}
