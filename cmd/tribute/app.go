package main

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/config"
	"github.com/snapetech/tribute/internal/fetch"
	"github.com/snapetech/tribute/internal/health"
	"github.com/snapetech/tribute/internal/httpclient"
	"github.com/snapetech/tribute/internal/mediacache"
	"github.com/snapetech/tribute/internal/metrics"
	"github.com/snapetech/tribute/internal/preload"
	"github.com/snapetech/tribute/internal/safeurl"
	"github.com/snapetech/tribute/internal/store"
	"github.com/snapetech/tribute/internal/validate"
)

// app is everything one preload session needs, wired from config.
type app struct {
	cfg     *config.Config
	cat     *catalog.Catalog
	cache   *mediacache.Cache
	coord   *preload.Coordinator
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	ledger  *store.Store
}

// loadCatalog reads path (or the built-in catalog when empty) and resolves
// relative locators against origin.
func loadCatalog(path, origin string) (*catalog.Catalog, error) {
	cat := catalog.Default()
	if path != "" {
		c, err := catalog.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cat = c
	}
	if origin == "" {
		return cat, nil
	}
	resolved, err := cat.Resolve(origin)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog against %s: %w", safeurl.Redact(origin), err)
	}
	return resolved, nil
}

func newApp(cfg *config.Config) (*app, error) {
	cat, err := loadCatalog(cfg.CatalogPath, cfg.Origin)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	a := &app{
		cfg:     cfg,
		cat:     cat,
		cache:   mediacache.New(cat, cfg.MediaPrefix),
		reg:     reg,
		metrics: m,
	}

	hostSem := httpclient.NewHostSemaphore(cfg.HostConcurrency)
	fetcher := &fetch.Fetcher{
		Client:   httpclient.WithTimeout(cfg.FetchTimeout),
		Retry:    cfg.RetryPolicy(),
		Limiter:  cfg.Limiter(),
		HostSem:  hostSem,
		MaxBytes: cfg.FetchMaxBytes,
		SpillDir: cfg.CacheDir,
	}
	validator := &validate.Validator{
		Prober:       validate.FFprobe{Path: cfg.FFprobePath},
		VideoTimeout: cfg.VideoProbeTimeout,
	}
	opts := []preload.Option{preload.WithMetrics(m)}
	if cfg.DBPath != "" {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.ledger = st
		opts = append(opts, preload.WithRecorder(st))
	}
	a.coord = preload.New(cat, a.cache, fetcher, validator, opts...)
	log.Printf("Loaded %d media entries (origin=%q cache_dir=%q ledger=%q per_host=%d)",
		cat.Len(), safeurl.Redact(cfg.Origin), cfg.CacheDir, cfg.DBPath, hostSem.Limit())
	return a, nil
}

// checkOrigin probes the first http(s) entry; relative-only catalogs are skipped.
func (a *app) checkOrigin(ctx context.Context) error {
	for _, e := range a.cat.Entries() {
		if safeurl.IsHTTPOrHTTPS(e.Locator) {
			return health.CheckOrigin(ctx, e.Locator)
		}
	}
	log.Print("Origin check skipped: no http(s) locators (set TRIBUTE_ORIGIN)")
	return nil
}

func (a *app) Close() {
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			log.Printf("Close ledger: %v", err)
		}
	}
}
