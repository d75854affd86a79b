package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Retry defaults.
const (
	// InitialRetryDelay is the delay before the first retry.
	InitialRetryDelay = 4 * time.Second

	// MaxRetryDelay caps the retry delay.
	MaxRetryDelay = 60 * time.Second

	// RetryMultiplier is the growth factor between retries.
	RetryMultiplier = 2.0

	// RetryJitter is the maximum jitter as a fraction of the base delay.
	RetryJitter = 0.1
)

// BackoffConfig customizes the retry backoff.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`
}

// DefaultBackoffConfig returns the retry defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialRetryDelay,
		Max:        MaxRetryDelay,
		Multiplier: RetryMultiplier,
		Jitter:     RetryJitter,
	}
}

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	mu sync.Mutex

	cfg BackoffConfig

	// current is the next base delay (before jitter)
	current time.Duration

	// attempts since the last Reset
	attempts int

	rng *rand.Rand
}

// NewBackoff creates a backoff with the default configuration.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

// NewBackoffWithConfig creates a backoff. Zero or invalid fields fall back
// to the defaults; a negative jitter disables jitter.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialRetryDelay
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = max(MaxRetryDelay, cfg.Initial)
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = RetryMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	return &Backoff{
		cfg:     cfg,
		current: cfg.Initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay (with jitter) and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.withJitter(b.current)

	b.attempts++
	next := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if next > b.cfg.Max {
		next = b.cfg.Max
	}
	b.current = next

	return delay
}

// Peek returns the next delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.withJitter(b.current)
}

// Reset returns to the initial delay. Called on CONOK.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the next base delay (without jitter).
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *Backoff) withJitter(d time.Duration) time.Duration {
	if b.cfg.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}
