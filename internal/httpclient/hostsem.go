package httpclient

import (
	"context"
	"net/url"
	"sync"
)

// HostSemaphore is a process-global per-host concurrency limiter.
// The preload fan-out is unbounded, so without it a large catalog on one origin
// would open one connection per asset at once.
//
//	release, err := GlobalHostSem.Acquire(ctx, locator)
//	if err != nil { ... }
//	defer release()
type HostSemaphore struct {
	mu    sync.Mutex
	sems  map[string]chan struct{}
	limit int
}

// GlobalHostSem is the shared per-host limiter. Default cap: 6 concurrent
// requests per host, the same per-origin budget browsers use.
var GlobalHostSem = NewHostSemaphore(6)

func NewHostSemaphore(concurrency int) *HostSemaphore {
	if concurrency < 1 {
		concurrency = 1
	}
	return &HostSemaphore{
		sems:  make(map[string]chan struct{}),
		limit: concurrency,
	}
}

// Acquire blocks until a slot is available for the host of rawURL or ctx is done.
func (h *HostSemaphore) Acquire(ctx context.Context, rawURL string) (func(), error) {
	sem := h.semFor(rawURL)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// Limit reports the per-host cap.
func (h *HostSemaphore) Limit() int { return h.limit }

func (h *HostSemaphore) semFor(rawURL string) chan struct{} {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	s, ok := h.sems[host]
	if !ok {
		s = make(chan struct{}, h.limit)
		h.sems[host] = s
	}
	h.mu.Unlock()
	return s
}
