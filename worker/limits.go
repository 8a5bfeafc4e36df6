package worker

import (
	"sync"

	"golang.org/x/time/rate"
)

// HostConfig defines per-host throttling: how many chunks a host may
// hold at once, and how fast chunks may be dispatched to it.
type HostConfig struct {
	// Name is the host identifier (must match Host.Name).
	Name string

	// MaxConcurrency limits how many chunks may be outstanding on
	// this host simultaneously. Zero means no host-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained chunk dispatches per second
	// for this host. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// hostState tracks runtime state for a single host.
type hostState struct {
	config  HostConfig
	limiter *rate.Limiter
	active  int
}

// Limits controls per-host rate limiting and concurrency. It is safe
// for concurrent use.
type Limits struct {
	mu    sync.Mutex
	hosts map[string]*hostState
}

// NewLimits creates a Limits with the given host configurations. Hosts
// not listed here have no limits.
func NewLimits(configs ...HostConfig) *Limits {
	l := &Limits{hosts: make(map[string]*hostState, len(configs))}
	for _, cfg := range configs {
		l.hosts[cfg.Name] = newHostState(cfg)
	}
	return l
}

func newHostState(cfg HostConfig) *hostState {
	hs := &hostState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		hs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return hs
}

// Acquire checks rate limits and concurrency for the given host. If a
// chunk may be dispatched it increments the active counter and returns
// true. The caller MUST call Release when the chunk completes or is
// reclaimed.
func (l *Limits) Acquire(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	hs := l.hosts[host]
	if hs != nil {
		if hs.limiter != nil && !hs.limiter.Allow() {
			return false
		}
		if hs.config.MaxConcurrency > 0 && hs.active >= hs.config.MaxConcurrency {
			return false
		}
		hs.active++
	}
	return true
}

// Release decrements the active chunk count for the host.
func (l *Limits) Release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if hs := l.hosts[host]; hs != nil && hs.active > 0 {
		hs.active--
	}
}

// SetHostConfig dynamically updates (or creates) a host configuration.
func (l *Limits) SetHostConfig(cfg HostConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.hosts[cfg.Name]
	hs := newHostState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		hs.active = existing.active
	}
	l.hosts[cfg.Name] = hs
}

// ActiveCount returns the current number of outstanding chunks on a host.
func (l *Limits) ActiveCount(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hs := l.hosts[host]; hs != nil {
		return hs.active
	}
	return 0
}
