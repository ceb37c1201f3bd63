package preload

import (
	"context"
	"sync"
)

const progressBuffer = 64

// Session is a preload running in the background.
type Session struct {
	ch   chan Progress
	done chan struct{}

	mu      sync.Mutex
	last    Progress
	summary Summary
}

// Start runs c.Run in a goroutine. Intermediate reports are dropped when the
// buffer is full and nobody is reading; the terminal 100 is always delivered.
// Starting an already-run coordinator yields only that terminal report.
func (c *Coordinator) Start(ctx context.Context) *Session {
	s := &Session{
		ch:   make(chan Progress, progressBuffer),
		done: make(chan struct{}),
	}
	go func() {
		sum := c.Run(ctx, s.publish)
		s.mu.Lock()
		s.summary = sum
		s.mu.Unlock()
		close(s.ch)
		close(s.done)
	}()
	return s
}

// publish is only called serialized, from the coordinator's aggregator.
func (s *Session) publish(p Progress) {
	s.mu.Lock()
	s.last = p
	s.mu.Unlock()
	if p.Percent < 100 {
		select {
		case s.ch <- p:
		default:
		}
		return
	}
	for {
		select {
		case s.ch <- p:
			return
		default:
			// Make room by dropping the oldest intermediate report.
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Progress returns the report stream. It is closed after the terminal report.
func (s *Session) Progress() <-chan Progress { return s.ch }

// Done is closed once every pipeline has settled and Summary is available.
func (s *Session) Done() <-chan struct{} { return s.done }

// Last returns the most recent report.
func (s *Session) Last() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Summary returns the session summary. It is zero until Done is closed.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}
