// Package bucket implements the per-key fixed-window rate accounting that
// backs admission decisions in the scheduler. A Bucket tracks two
// counters — requests remaining and tokens remaining in the current
// one-minute window — and resets them lazily on the next operation once
// the window has elapsed.
package bucket

import (
	"sync"
	"time"
)

const window = 60 * time.Second

// Status is a point-in-time snapshot of a Bucket, safe to serialize.
type Status struct {
	Name              string    `json:"name"`
	RPMLimit          int       `json:"rpm_limit"`
	TPMLimit          int       `json:"tpm_limit"`
	RequestsRemaining int       `json:"requests_remaining"`
	TokensRemaining   int       `json:"tokens_remaining"`
	ResetAt           time.Time `json:"reset_at"`
	IsAvailable       bool      `json:"is_available"`
}

// Bucket is a fixed-window token+request counter for one (provider, key)
// pair. All operations are serialized by mu; the window reset and the
// counter check/mutation that follows it must be observed atomically so
// two concurrent callers can never both see a stale window and over-debit.
type Bucket struct {
	mu sync.Mutex

	name     string
	rpmLimit int
	tpmLimit int

	requestsRemaining int
	tokensRemaining   int
	windowStart       time.Time
}

// New creates a bucket at full capacity with the window starting now.
func New(name string, rpmLimit, tpmLimit int) *Bucket {
	return &Bucket{
		name:              name,
		rpmLimit:          rpmLimit,
		tpmLimit:          tpmLimit,
		requestsRemaining: rpmLimit,
		tokensRemaining:   tpmLimit,
		windowStart:       time.Now(),
	}
}

// Name returns the bucket's stable identifier ("<provider>:<keyName>").
func (b *Bucket) Name() string {
	return b.name
}

// maybeResetLocked resets the window if 60s have elapsed since it began.
// Caller must hold mu.
func (b *Bucket) maybeResetLocked() {
	now := time.Now()
	if now.Sub(b.windowStart) >= window {
		b.requestsRemaining = b.rpmLimit
		b.tokensRemaining = b.tpmLimit
		b.windowStart = now
	}
}

// CanAcquire reports whether a slot for est tokens could be acquired right
// now, after any pending window reset. It never mutates counters.
func (b *Bucket) CanAcquire(est int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeResetLocked()
	return b.requestsRemaining >= 1 && b.tokensRemaining >= est
}

// Acquire atomically resets the window if due, then — if both a request
// slot and est tokens are available — debits one request and est tokens
// and returns true. On failure it returns false without mutating state.
func (b *Bucket) Acquire(est int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeResetLocked()
	if b.requestsRemaining < 1 || b.tokensRemaining < est {
		return false
	}
	b.requestsRemaining--
	b.tokensRemaining -= est
	return true
}

// ReleaseTokens refunds the over-estimation (est - actual) back into
// tokensRemaining, clamped at tpmLimit. A no-op when actual >= est.
func (b *Bucket) ReleaseTokens(actual, est int) {
	if actual >= est {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokensRemaining += est - actual
	if b.tokensRemaining > b.tpmLimit {
		b.tokensRemaining = b.tpmLimit
	}
}

// ConsumeTokens subtracts delta from tokensRemaining, clamped at 0. Used
// for post-hoc truing-up once the upstream reports actual usage.
func (b *Bucket) ConsumeTokens(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokensRemaining -= delta
	if b.tokensRemaining < 0 {
		b.tokensRemaining = 0
	}
}

// Status returns a snapshot of the bucket's current counters.
func (b *Bucket) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeResetLocked()
	return Status{
		Name:              b.name,
		RPMLimit:          b.rpmLimit,
		TPMLimit:          b.tpmLimit,
		RequestsRemaining: b.requestsRemaining,
		TokensRemaining:   b.tokensRemaining,
		ResetAt:           b.windowStart.Add(window),
		IsAvailable:       b.requestsRemaining > 0 && b.tokensRemaining > 100,
	}
}
