// Package preload fetches and validates every catalog entry in parallel and
// folds per-asset byte progress into one percent stream.
//
// The stream is monotonically non-decreasing, never exceeds 99 while any
// pipeline is still running, and ends with exactly one report of 100.
package preload

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/fetch"
	"github.com/snapetech/tribute/internal/mediacache"
	"github.com/snapetech/tribute/internal/metrics"
	"github.com/snapetech/tribute/internal/validate"
)

// Progress is one aggregate report. Loaded and Total are summed over the
// per-asset samples; Total counts 1 for each asset whose size is not yet known.
type Progress struct {
	Percent int   `json:"percent"`
	Loaded  int64 `json:"loaded"`
	Total   int64 `json:"total"`
}

// Outcome is the tagged result of one pipeline: Ready with the local locator,
// or Fallback with the original one.
type Outcome struct {
	Key        catalog.Key     `json:"key"`
	Kind       catalog.Kind    `json:"type"`
	Status     fetch.Status    `json:"status"`
	Locator    string          `json:"src"`
	Validation validate.Result `json:"validation,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Bytes      int64           `json:"bytes"`
}

// Summary describes a finished session.
type Summary struct {
	SessionID string    `json:"session_id"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Ready returns how many outcomes are Ready.
func (s Summary) Ready() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == fetch.StatusReady {
			n++
		}
	}
	return n
}

// Fetcher downloads one entry. *fetch.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, entry catalog.Entry, onProgress fetch.ProgressFunc) fetch.Result
}

// Validator probes one downloaded asset. *validate.Validator implements it.
type Validator interface {
	Validate(ctx context.Context, a validate.Asset) validate.Report
}

// Recorder persists sessions. Errors are logged, never propagated.
type Recorder interface {
	BeginSession(ctx context.Context, id string, started time.Time, assets int) error
	RecordOutcome(ctx context.Context, sessionID string, o Outcome) error
	EndSession(ctx context.Context, id string, finished time.Time) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics reports outcomes and percent to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithRecorder sends every session and outcome to r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// Coordinator runs the preload session for a catalog. A coordinator preloads
// its catalog once; later calls to Run return the first Summary.
type Coordinator struct {
	cat       *catalog.Catalog
	cache     *mediacache.Cache
	fetcher   Fetcher
	validator Validator
	metrics   *metrics.Metrics
	recorder  Recorder

	once    sync.Once
	summary Summary
	final   Progress
}

// New returns a coordinator that writes successful assets to cache.
func New(cat *catalog.Catalog, cache *mediacache.Cache, f Fetcher, v Validator, opts ...Option) *Coordinator {
	c := &Coordinator{cat: cat, cache: cache, fetcher: f, validator: v}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run preloads every entry and blocks until all of them settle. sink, if not
// nil, receives every aggregate report in order; calls are never concurrent.
// Cancelling ctx makes outstanding downloads fall back sooner but the session
// still settles and still reports 100.
//
// Later calls do no work: sink gets the first session's terminal report once
// and the first Summary is returned.
func (c *Coordinator) Run(ctx context.Context, sink func(Progress)) Summary {
	ran := false
	c.once.Do(func() {
		ran = true
		c.summary = c.run(ctx, sink)
	})
	if !ran && sink != nil {
		sink(c.final)
	}
	return c.summary
}

func (c *Coordinator) run(ctx context.Context, sink func(Progress)) Summary {
	entries := c.cat.Entries()
	sum := Summary{
		SessionID: uuid.NewString(),
		Started:   time.Now(),
		Outcomes:  make([]Outcome, len(entries)),
	}
	log.Printf("preload: session=%s start assets=%d", sum.SessionID, len(entries))
	// The ledger is written even when ctx is cancelled mid-session.
	recCtx := context.WithoutCancel(ctx)
	if c.recorder != nil {
		if err := c.recorder.BeginSession(recCtx, sum.SessionID, sum.Started, len(entries)); err != nil {
			log.Printf("preload: record session start: %v", err)
		}
	}

	agg := newAggregator(len(entries), func(p Progress) {
		if p.Percent == 100 {
			c.final = p
		}
		c.metrics.SetPercent(p.Percent)
		if sink != nil {
			sink(p)
		}
	})

	var wg sync.WaitGroup
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e catalog.Entry) {
			defer wg.Done()
			sum.Outcomes[i] = c.pipeline(ctx, e, func(loaded, total int64) {
				agg.update(i, loaded, total)
			})
		}(i, e)
	}
	wg.Wait()
	agg.finish()

	sum.Finished = time.Now()
	c.metrics.ObserveSession(sum.Finished.Sub(sum.Started))
	for _, o := range sum.Outcomes {
		c.metrics.ObserveOutcome(string(o.Kind), string(o.Status), string(o.Validation), o.Bytes)
		if c.recorder != nil {
			if err := c.recorder.RecordOutcome(recCtx, sum.SessionID, o); err != nil {
				log.Printf("preload: record outcome key=%s: %v", o.Key, err)
			}
		}
	}
	if c.recorder != nil {
		if err := c.recorder.EndSession(recCtx, sum.SessionID, sum.Finished); err != nil {
			log.Printf("preload: record session end: %v", err)
		}
	}
	log.Printf("preload: session=%s done ready=%d/%d in %s",
		sum.SessionID, sum.Ready(), len(entries), sum.Finished.Sub(sum.Started).Round(time.Millisecond))
	return sum
}

// pipeline is fetch, then validate, then cache write. It always settles.
func (c *Coordinator) pipeline(ctx context.Context, e catalog.Entry, report fetch.ProgressFunc) Outcome {
	kind := e.Kind()
	res := c.fetcher.Fetch(ctx, e, report)
	if res.Status != fetch.StatusReady {
		return Outcome{
			Key:     e.Key,
			Kind:    kind,
			Status:  fetch.StatusFallback,
			Locator: e.Locator,
			Reason:  res.Reason,
		}
	}

	rep := c.validator.Validate(ctx, validate.Asset{
		Key:  string(e.Key),
		Kind: kind,
		Data: res.Data,
		Path: res.Path,
	})
	if !c.cache.Set(mediacache.Entry{
		Key:         e.Key,
		Kind:        kind,
		ContentType: res.ContentType,
		Data:        res.Data,
		Placeholder: rep.Placeholder,
		Validation:  string(rep.Result),
		Path:        res.Path,
	}) {
		log.Printf("preload: key=%s already cached, keeping first entry", e.Key)
	}

	n := res.WireBytes
	if n < 1 {
		n = 1
	}
	report(n, n)
	return Outcome{
		Key:        e.Key,
		Kind:       kind,
		Status:     fetch.StatusReady,
		Locator:    c.cache.Get(e.Key),
		Validation: rep.Result,
		Bytes:      int64(len(res.Data)),
	}
}

type sample struct {
	loaded, total int64
}

// aggregator keeps one slot per asset. Updates and emission share one mutex so
// reports leave in the order they were computed.
type aggregator struct {
	mu      sync.Mutex
	samples []sample
	highest int
	emit    func(Progress)
}

func newAggregator(n int, emit func(Progress)) *aggregator {
	s := make([]sample, n)
	for i := range s {
		s[i].total = 1
	}
	return &aggregator{samples: s, emit: emit}
}

func (a *aggregator) sums() (loaded, total int64) {
	for _, s := range a.samples {
		loaded += s.loaded
		total += s.total
	}
	return loaded, total
}

func (a *aggregator) update(i int, loaded, total int64) {
	if total < 1 {
		total = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.samples[i] = sample{loaded: loaded, total: total}
	l, t := a.sums()
	pct := int(math.Round(100 * float64(l) / float64(t)))
	if pct > a.highest {
		a.highest = pct
	}
	a.emit(Progress{Percent: min(a.highest, 99), Loaded: l, Total: t})
}

func (a *aggregator) finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, t := a.sums()
	a.highest = 100
	a.emit(Progress{Percent: 100, Loaded: l, Total: t})
}
