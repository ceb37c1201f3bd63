package gate

import (
	"bytes"
	"context"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/fetch"
	"github.com/snapetech/tribute/internal/mediacache"
	"github.com/snapetech/tribute/internal/metrics"
	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/validate"
)

type stubFetcher struct{ block chan struct{} }

func (f stubFetcher) Fetch(_ context.Context, e catalog.Entry, p fetch.ProgressFunc) fetch.Result {
	p(40, 100)
	if f.block != nil {
		<-f.block
	}
	return fetch.Result{Status: fetch.StatusReady, Locator: e.Locator, Data: []byte("x"), WireBytes: 100}
}

type stubValidator struct{}

func (stubValidator) Validate(context.Context, validate.Asset) validate.Report {
	return validate.Report{Result: validate.ResultDecoded}
}

func startSession(t *testing.T, block chan struct{}) *preload.Session {
	t.Helper()
	cat, err := catalog.New(catalog.Entry{Key: "a", Locator: "http://o/a.jpeg"})
	require.NoError(t, err)
	c := preload.New(cat, mediacache.New(cat, ""), stubFetcher{block: block}, stubValidator{})
	return c.Start(context.Background())
}

func TestGate_initialState(t *testing.T) {
	g := New(0, nil)
	assert.Equal(t, State{Status: StatusPreparing}, g.State())
	assert.Equal(t, DefaultTimeout, g.timeout)
}

func TestGate_revealsWhenSessionCompletes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	g := New(time.Minute, m)
	sub := g.Subscribe()
	defer g.Unsubscribe(sub)

	g.Watch(context.Background(), startSession(t, nil))

	select {
	case <-g.Revealed():
	default:
		require.FailNow(t, "gate not revealed after session completed")
	}
	assert.Equal(t, State{Percent: 100, Status: StatusReady, Revealed: true}, g.State())
	assert.Equal(t, State{Percent: 100, Status: StatusReady, Revealed: true}, <-sub)
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP tribute_page_revealed 1 once the readiness gate has revealed the page.
# TYPE tribute_page_revealed gauge
tribute_page_revealed 1
`), "tribute_page_revealed"))
}

func TestGate_timeoutProceedsAnyway(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	g := New(30*time.Millisecond, nil)
	var logs bytes.Buffer
	log.SetOutput(&logs)

	start := time.Now()
	g.Watch(context.Background(), startSession(t, block))
	log.SetOutput(os.Stderr)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, logs.String(), "loading timeout reached after 30ms at 40%")
	st := g.State()
	assert.True(t, st.Revealed)
	assert.True(t, st.TimedOut)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, 100, st.Percent)
}

func TestGate_ctxDoneLeavesGateClosed(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	g := New(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := startSession(t, block)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	g.Watch(ctx, s)

	st := g.State()
	assert.False(t, st.Revealed)
	assert.Equal(t, StatusLoading, st.Status)
	assert.LessOrEqual(t, st.Percent, 99)
}

func TestGate_subscriberSeesLatestOnly(t *testing.T) {
	g := New(time.Minute, nil)
	sub := g.Subscribe()
	g.update(func(st *State) { st.Percent = 10 })
	g.update(func(st *State) { st.Percent = 20 })
	assert.Equal(t, 20, (<-sub).Percent)

	g.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
	g.Unsubscribe(sub)
}
