package scheduler

import "github.com/AlfredDev/conductor-gateway/provider"

// Strategy selects which provider+key serves a request when none is
// explicitly preferred.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round_robin"
	StrategyLeastLoaded Strategy = "least_loaded"
	StrategySequential  Strategy = "sequential"
)

// selectProviderAndKey honors an explicit preferred provider first; a
// preferred provider that has no capacity returns nothing rather than
// falling back to another provider.
func (s *Scheduler) selectProviderAndKey(est int, preferred string) (*provider.Adapter, *provider.Key) {
	if preferred != "" {
		s.mu.RLock()
		a, ok := s.providers[preferred]
		s.mu.RUnlock()
		if !ok {
			return nil, nil
		}
		if key, found := a.PickKey(est); found {
			return a, key
		}
		return nil, nil
	}

	switch s.strategy {
	case StrategyLeastLoaded:
		return s.selectLeastLoaded(est)
	case StrategySequential:
		return s.selectSequential(est)
	default:
		return s.selectRoundRobin(est)
	}
}

func (s *Scheduler) selectRoundRobin(est int) (*provider.Adapter, *provider.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.order)
	if n == 0 {
		return nil, nil
	}
	for i := 0; i < n; i++ {
		idx := (s.policyCursor + i) % n
		a := s.providers[s.order[idx]]
		if key, found := a.PickKey(est); found {
			s.policyCursor = (idx + 1) % n
			return a, key
		}
	}
	return nil, nil
}

func (s *Scheduler) selectSequential(est int) (*provider.Adapter, *provider.Key) {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	s.mu.RUnlock()

	for _, name := range order {
		s.mu.RLock()
		a := s.providers[name]
		s.mu.RUnlock()
		if key, found := a.PickKey(est); found {
			return a, key
		}
	}
	return nil, nil
}

// selectLeastLoaded scores every key with headroom as
// requestsRemaining*1000 + tokensRemaining, favoring a free request
// slot over a large token cushion, and ties break on first-encountered
// provider-then-key order. Scoring reads Status() rather than mutating
// PickKey's cursor, since candidates that lose the score comparison
// must not be treated as picked.
func (s *Scheduler) selectLeastLoaded(est int) (*provider.Adapter, *provider.Key) {
	s.mu.RLock()
	order := append([]string(nil), s.order...)
	providers := make(map[string]*provider.Adapter, len(s.providers))
	for k, v := range s.providers {
		providers[k] = v
	}
	s.mu.RUnlock()

	var bestAdapter *provider.Adapter
	var bestKey *provider.Key
	bestScore := -1

	for _, name := range order {
		a := providers[name]
		for _, key := range a.Keys() {
			if !key.Bucket.CanAcquire(est) {
				continue
			}
			status := key.Bucket.Status()
			score := status.RequestsRemaining*1000 + status.TokensRemaining
			if score > bestScore {
				bestScore = score
				bestAdapter = a
				bestKey = key
			}
		}
	}
	return bestAdapter, bestKey
}
