// Package server exposes the media cache and readiness gate to the page over HTTP.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/gate"
	"github.com/snapetech/tribute/internal/mediacache"
	"github.com/snapetech/tribute/internal/metrics"
)

// DefaultMaxConns caps concurrent connections when MaxConns is 0.
const DefaultMaxConns = 256

type Server struct {
	Addr     string
	MaxConns int // 0 = DefaultMaxConns; <0 = unlimited
	Cache    *mediacache.Cache
	Gate     *gate.Gate
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // /metrics is not mounted when nil

	// started is the Last-Modified time for cached media.
	started time.Time
}

// Handler returns the routed, request-logging handler.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/media", s.serveMediaList)
	mux.HandleFunc("GET /api/media/{key}", s.serveMediaInfo)
	// Ready locators come from the cache, so media routes follow its prefix.
	prefix := s.Cache.Prefix()
	mux.HandleFunc("GET "+prefix+"/{key}", s.serveMedia)
	mux.HandleFunc("GET "+prefix+"/{key}/placeholder", s.servePlaceholder)
	mux.HandleFunc("GET /api/readiness", s.serveReadiness)
	mux.Handle("GET /ws/progress", &progressHandler{gate: s.Gate, metrics: s.Metrics})
	mux.Handle("GET /healthz", s.serveHealth())
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.Gatherer))
	}
	return logRequests(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	maxConns := s.MaxConns
	if maxConns == 0 {
		maxConns = DefaultMaxConns
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Tribute listening on %s (max_conns=%d)", ln.Addr(), maxConns)
		serverErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// mediaInfo is what rendering code needs to place one asset.
type mediaInfo struct {
	Key    catalog.Key  `json:"key"`
	Src    string       `json:"src"`
	Type   catalog.Kind `json:"type"`
	Cached bool         `json:"cached"`
}

func (s *Server) info(key catalog.Key) mediaInfo {
	return mediaInfo{
		Key:    key,
		Src:    s.Cache.Get(key),
		Type:   s.Cache.KindFor(key),
		Cached: s.Cache.Has(key),
	}
}

func (s *Server) serveMediaList(w http.ResponseWriter, r *http.Request) {
	entries := s.Cache.Catalog().Entries()
	out := make([]mediaInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.info(e.Key))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) serveMediaInfo(w http.ResponseWriter, r *http.Request) {
	key := catalog.Key(r.PathValue("key"))
	if _, ok := s.Cache.Catalog().Locator(key); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown media key"})
		return
	}
	writeJSON(w, http.StatusOK, s.info(key))
}

// serveMedia answers ready locators from memory. Range requests work, which
// video elements rely on for seeking.
func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Cache.Lookup(catalog.Key(r.PathValue("key")))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if e.ContentType != "" {
		w.Header().Set("Content-Type", e.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, string(e.Key), s.started, bytes.NewReader(e.Data))
}

func (s *Server) servePlaceholder(w http.ResponseWriter, r *http.Request) {
	e, ok := s.Cache.Lookup(catalog.Key(r.PathValue("key")))
	if !ok || len(e.Placeholder) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeContent(w, r, string(e.Key)+".jpg", s.started, bytes.NewReader(e.Placeholder))
}

func (s *Server) serveReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Gate.State())
}

// serveHealth returns 503 {"status":"loading"} until the page is revealed.
func (s *Server) serveHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := s.Gate.State()
		if !st.Revealed {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "loading", "percent": st.Percent})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"cached":    len(s.Cache.Keys()),
			"assets":    s.Cache.Catalog().Len(),
			"timed_out": st.TimedOut,
		})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: response writer cannot be hijacked")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf(
			"http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr,
		)
	})
}
