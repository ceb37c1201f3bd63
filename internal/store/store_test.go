package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/fetch"
	"github.com/snapetech/tribute/internal/mediacache"
	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/validate"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_sessionLifecycle(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.UnixMilli(1700000000000)

	if err := s.BeginSession(ctx, "s1", start, 2); err != nil {
		t.Fatal(err)
	}
	outs := []preload.Outcome{
		{Key: "media1", Kind: catalog.KindImage, Status: fetch.StatusReady, Locator: "/media/media1", Validation: validate.ResultDecoded, Bytes: 42},
		{Key: "media9", Kind: catalog.KindVideo, Status: fetch.StatusFallback, Locator: "assets/1.mp4", Reason: "status 500"},
	}
	for _, o := range outs {
		if err := s.RecordOutcome(ctx, "s1", o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.EndSession(ctx, "s1", start.Add(3*time.Second)); err != nil {
		t.Fatal(err)
	}

	sessions, err := s.Sessions(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions: %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != "s1" || got.Assets != 2 || got.Ready != 1 || got.Fallback != 1 {
		t.Errorf("session: %+v", got)
	}
	if !got.Started.Equal(start) || got.Finished.Sub(got.Started) != 3*time.Second {
		t.Errorf("times: %v %v", got.Started, got.Finished)
	}

	back, err := s.Outcomes(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("outcomes: %d", len(back))
	}
	for i := range outs {
		if back[i] != outs[i] {
			t.Errorf("outcome %d: got %+v want %+v", i, back[i], outs[i])
		}
	}
}

func TestStore_endUnknownSession(t *testing.T) {
	s := openTemp(t)
	if err := s.EndSession(context.Background(), "nope", time.Now()); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestStore_sessionsNewestFirstWithLimit(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.BeginSession(ctx, id, base.Add(time.Duration(i)*time.Minute), 0); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Sessions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("got %+v", got)
	}
	if !got[0].Finished.IsZero() {
		t.Errorf("unfinished session has finish time %v", got[0].Finished)
	}
}

type failFetcher struct{}

func (failFetcher) Fetch(_ context.Context, e catalog.Entry, p fetch.ProgressFunc) fetch.Result {
	p(1, 1)
	return fetch.Result{Status: fetch.StatusFallback, Locator: e.Locator, Reason: "offline"}
}

func TestStore_recordsCoordinatorRun(t *testing.T) {
	s := openTemp(t)
	cat := catalog.Default()
	c := preload.New(cat, mediacache.New(cat, ""), failFetcher{}, &validate.Validator{}, preload.WithRecorder(s))
	sum := c.Run(context.Background(), nil)

	outs, err := s.Outcomes(context.Background(), sum.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != cat.Len() {
		t.Fatalf("recorded %d outcomes, want %d", len(outs), cat.Len())
	}
	for _, o := range outs {
		if o.Status != fetch.StatusFallback || o.Reason != "offline" {
			t.Errorf("outcome %+v", o)
		}
	}
}
