package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/config"
	"github.com/snapetech/tribute/internal/preload"
)

func TestLoadCatalog_builtinResolved(t *testing.T) {
	cat, err := loadCatalog("", "https://cdn.example.com/tribute")
	if err != nil {
		t.Fatal(err)
	}
	loc, ok := cat.Locator("media9")
	if !ok || loc != "https://cdn.example.com/tribute/assets/1.mp4" {
		t.Fatalf("media9 = %q %v", loc, ok)
	}
	if cat.Len() != catalog.Default().Len() {
		t.Errorf("len = %d", cat.Len())
	}
}

func TestLoadCatalog_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.yaml")
	if err := os.WriteFile(path, []byte("media:\n  - key: hero\n    locator: img/hero.png\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := loadCatalog(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if loc, _ := cat.Locator("hero"); loc != "img/hero.png" {
		t.Errorf("hero = %q", loc)
	}
	if _, err := loadCatalog(filepath.Join(t.TempDir(), "missing.json"), ""); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApp_preloadAgainstOrigin(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/assets/1.jpeg" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("not really a jpeg"))
			return
		}
		http.NotFound(w, r)
	}))
	defer origin.Close()

	dir := t.TempDir()
	os.Clearenv()
	cfg := config.Load()
	cfg.Origin = origin.URL
	cfg.DBPath = filepath.Join(dir, "ledger.db")
	cfg.CacheDir = filepath.Join(dir, "cache")

	a, err := newApp(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.checkOrigin(context.Background()); err != nil {
		t.Fatalf("checkOrigin: %v", err)
	}

	var out bytes.Buffer
	sum := a.coord.Run(context.Background(), progressPrinter(&out))
	if sum.Ready() != 1 {
		t.Fatalf("ready = %d, outcomes %+v", sum.Ready(), sum.Outcomes)
	}
	if got := a.cache.Get("media1"); got != "/media/media1" {
		t.Errorf("media1 = %q", got)
	}
	if got := a.cache.Get("media2"); got != origin.URL+"/assets/2.jpeg" {
		t.Errorf("media2 = %q", got)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if !strings.HasPrefix(lines[len(lines)-1], "progress: 100%") {
		t.Errorf("progress output:\n%s", out.String())
	}

	sessions, err := a.ledger.Sessions(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Ready != 1 || sessions[0].Fallback != a.cat.Len()-1 {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestProgressPrinter_skipsRepeats(t *testing.T) {
	var out bytes.Buffer
	p := progressPrinter(&out)
	for _, pct := range []int{0, 10, 10, 10, 99, 100} {
		p(preload.Progress{Percent: pct, Loaded: int64(pct), Total: 100})
	}
	if n := strings.Count(out.String(), "\n"); n != 4 {
		t.Errorf("lines = %d:\n%s", n, out.String())
	}
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, preload.Summary{
		SessionID: "abc",
		Outcomes: []preload.Outcome{
			{Key: "media1", Kind: catalog.KindImage, Status: "ready", Locator: "/media/media1", Validation: "decoded", Bytes: 10},
			{Key: "media9", Kind: catalog.KindVideo, Status: "fallback", Locator: "assets/1.mp4"},
		},
	})
	s := out.String()
	for _, want := range []string{"media1", "decoded", "/media/media1", "media9", "fallback", "assets/1.mp4"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
