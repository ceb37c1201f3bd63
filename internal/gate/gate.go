// Package gate holds the page back until media preloading finishes, or until
// the overall ceiling passes, whichever comes first.
package gate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/snapetech/tribute/internal/metrics"
	"github.com/snapetech/tribute/internal/preload"
)

// DefaultTimeout is the reveal ceiling for slow connections.
const DefaultTimeout = 90 * time.Second

const (
	StatusPreparing = "Preparing your experience..."
	StatusLoading   = "Loading..."
	StatusReady     = "Ready!"
)

// State is what the loading screen renders.
type State struct {
	Percent  int    `json:"percent"`
	Status   string `json:"status"`
	Revealed bool   `json:"revealed"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

type Gate struct {
	timeout time.Duration
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    State
	subs     map[chan State]struct{}
	revealed chan struct{}
	once     sync.Once
}

// New returns a gate in the preparing state. timeout <= 0 means DefaultTimeout.
func New(timeout time.Duration, m *metrics.Metrics) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		timeout:  timeout,
		metrics:  m,
		state:    State{Status: StatusPreparing},
		subs:     make(map[chan State]struct{}),
		revealed: make(chan struct{}),
	}
}

// Watch follows s until the page is revealed or ctx is done. The reveal fires
// when the session's stream closes after its terminal report, or when the
// ceiling passes first.
func (g *Gate) Watch(ctx context.Context, s *preload.Session) {
	g.update(func(st *State) { st.Status = StatusLoading })

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()
	progress := s.Progress()
	for {
		select {
		case p, ok := <-progress:
			if !ok {
				g.reveal(false)
				return
			}
			g.update(func(st *State) {
				if !st.Revealed && p.Percent > st.Percent {
					st.Percent = p.Percent
				}
			})
		case <-timer.C:
			log.Printf("gate: loading timeout reached after %v at %d%% - proceeding anyway", g.timeout, s.Last().Percent)
			g.reveal(true)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (g *Gate) reveal(timedOut bool) {
	g.once.Do(func() {
		g.update(func(st *State) {
			st.Percent = 100
			st.Status = StatusReady
			st.Revealed = true
			st.TimedOut = timedOut
		})
		close(g.revealed)
		g.metrics.SetRevealed()
		log.Printf("gate: revealed timed_out=%v", timedOut)
	})
}

func (g *Gate) update(fn func(*State)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.state)
	for ch := range g.subs {
		offer(ch, g.state)
	}
}

// offer replaces whatever the subscriber has not read yet with st.
func offer(ch chan State, st State) {
	for {
		select {
		case ch <- st:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Revealed is closed once the page may be shown.
func (g *Gate) Revealed() <-chan struct{} { return g.revealed }

// Subscribe returns a channel that always holds the latest state. Slow readers
// skip intermediate states.
func (g *Gate) Subscribe() chan State {
	ch := make(chan State, 1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs[ch] = struct{}{}
	ch <- g.state
	return ch
}

// Unsubscribe stops delivery to ch and closes it.
func (g *Gate) Unsubscribe(ch chan State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.subs[ch]; ok {
		delete(g.subs, ch)
		close(ch)
	}
}
