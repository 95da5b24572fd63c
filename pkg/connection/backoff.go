package connection

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Reconnection delays. The n-th retry waits
// min(InitialBackoff * BackoffMultiplier^n, MaxBackoff), stretched by up to
// JitterFactor so clients of a restarted server do not redial in lockstep.
const (
	InitialBackoff    = 500 * time.Millisecond
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0
	JitterFactor      = 0.25
)

// BackoffConfig shapes the delays. Zero values select the defaults, except
// Jitter where zero disables jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns the default delays.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

// Backoff hands out exponentially growing delays. It is safe for concurrent
// use.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	attempts int
}

// NewBackoff returns a Backoff for cfg.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	cfg.Max = max(cfg.Max, cfg.Initial)
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	cfg.Jitter = max(cfg.Jitter, 0)
	return &Backoff{cfg: cfg}
}

// base is the delay before jitter for the given attempt count.
func (b *Backoff) base(attempts int) time.Duration {
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(attempts))
	if d >= float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Next returns the delay before the next attempt and counts the attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	d := b.base(b.attempts)
	b.attempts++
	b.mu.Unlock()

	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * rand.Float64())
	}
	return d
}

// Reset starts over from the initial delay. Call it once connected.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempts = 0
	b.mu.Unlock()
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the delay, without jitter, that Next will use.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base(b.attempts)
}
