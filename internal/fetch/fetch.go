// Package fetch downloads one media asset with byte progress. A failed download
// is never an error: the result falls back to the original locator.
package fetch

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/snapetech/tribute/internal/cache"
	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/httpclient"
	"github.com/snapetech/tribute/internal/safeurl"
)

// DefaultMaxBytes caps a single asset held in memory.
const DefaultMaxBytes = 256 << 20

// Status tags a fetch result.
type Status string

const (
	StatusReady    Status = "ready"
	StatusFallback Status = "fallback"
)

// ProgressFunc receives cumulative wire bytes for one asset.
type ProgressFunc func(loaded, total int64)

// Result is the settled outcome of one download.
// On StatusFallback only Locator (the original) and Reason are set.
type Result struct {
	Status      Status
	Locator     string
	Reason      string
	Data        []byte
	ContentType string
	WireBytes   int64  // bytes read off the connection, before content decoding
	Path        string // spill file, "" when spilling is disabled or failed
}

// Fetcher downloads assets. The zero value is usable: shared client, no retry,
// no rate limit, no spill.
type Fetcher struct {
	Client   *http.Client
	Retry    httpclient.RetryPolicy
	Limiter  *rate.Limiter
	HostSem  *httpclient.HostSemaphore
	MaxBytes int64
	// SpillDir, when set, receives a copy of every downloaded asset at
	// cache.Path(SpillDir, key, ext). The video probe reads from it.
	SpillDir string
}

// Fetch downloads entry.Locator. It always returns a settled Result.
func (f *Fetcher) Fetch(ctx context.Context, entry catalog.Entry, onProgress ProgressFunc) Result {
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	key := string(entry.Key)
	fallback := func(reason string) Result {
		log.Printf("fetch: fallback key=%s url=%q reason=%s", key, safeurl.Redact(entry.Locator), reason)
		onProgress(1, 1)
		return Result{Status: StatusFallback, Locator: entry.Locator, Reason: reason}
	}

	if !safeurl.IsHTTPOrHTTPS(entry.Locator) {
		return fallback("locator is not http(s)")
	}
	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			return fallback("rate limit: " + err.Error())
		}
	}
	sem := f.HostSem
	if sem == nil {
		sem = httpclient.GlobalHostSem
	}
	release, err := sem.Acquire(ctx, entry.Locator)
	defer release()
	if err != nil {
		return fallback("host slot: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.Locator, nil)
	if err != nil {
		return fallback(err.Error())
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	req.Header.Set("Accept-Encoding", "br, gzip")
	client := f.Client
	if client == nil {
		client = httpclient.Default()
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, f.Retry)
	if err != nil {
		return fallback("network: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fallback(fmt.Sprintf("status %d", resp.StatusCode))
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if resp.ContentLength > maxBytes {
		return fallback(fmt.Sprintf("content-length %d over limit %d", resp.ContentLength, maxBytes))
	}
	wire := &progressReader{r: resp.Body, total: resp.ContentLength, fn: onProgress}
	body, err := decodeBody(resp.Header.Get("Content-Encoding"), wire)
	if err != nil {
		return fallback(err.Error())
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return fallback("read: " + err.Error())
	}
	if int64(len(data)) > maxBytes {
		return fallback(fmt.Sprintf("body over limit %d", maxBytes))
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = http.DetectContentType(data)
	}
	res := Result{
		Status:      StatusReady,
		Locator:     entry.Locator,
		Data:        data,
		ContentType: ct,
		WireBytes:   wire.n,
	}
	if f.SpillDir != "" {
		p, err := spill(f.SpillDir, key, entry.Ext(), data)
		if err != nil {
			log.Printf("fetch: spill failed key=%s err=%v", key, err)
		} else {
			res.Path = p
		}
	}
	log.Printf("fetch: ok key=%s bytes=%d wire=%d type=%q", key, len(data), wire.n, ct)
	return res
}

// decodeBody undoes the negotiated Content-Encoding.
func decodeBody(encoding string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return r, nil
	case "br":
		return brotli.NewReader(r), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	default:
		return nil, errors.New("unsupported content-encoding " + encoding)
	}
}

// spill writes data to the .partial path, then renames it into place.
func spill(dir, key, ext string, data []byte) (string, error) {
	partial := cache.PartialPath(dir, key)
	final := cache.Path(dir, key, ext)
	if err := os.MkdirAll(filepath.Dir(partial), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(partial, data, 0644); err != nil {
		os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return "", err
	}
	return final, nil
}

// progressReader reports cumulative bytes read while the total is known.
type progressReader struct {
	r     io.Reader
	n     int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		if p.total > 0 {
			p.fn(p.n, p.total)
		}
	}
	return n, err
}
