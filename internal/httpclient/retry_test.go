package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	max := 10 * time.Second
	tests := []struct {
		name string
		s    string
		want time.Duration
	}{
		{"empty", "", 1 * time.Second},
		{"seconds 5", "5", 5 * time.Second},
		{"seconds 0", "0", 0},
		{"seconds over cap", "120", max},
		{"whitespace", "  3  ", 3 * time.Second},
		{"invalid fallback", "x", 1 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.s, max); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}

func TestDoWithRetry_5xxThen200(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx := context.Background()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	policy := DefaultRetryPolicy
	policy.Backoff5xx = time.Millisecond
	resp, err := DoWithRetry(ctx, &http.Client{Timeout: 5 * time.Second}, req, policy)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestDoWithRetry_zeroPolicyNoRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx := context.Background()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := DoWithRetry(ctx, nil, req, RetryPolicy{})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError || atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("status=%d attempts=%d", resp.StatusCode, attempts)
	}
}

func TestDoWithRetry_4xxNoRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := DoWithRetry(ctx, nil, req, DefaultRetryPolicy)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHostSemaphore_limitFloor(t *testing.T) {
	if got := NewHostSemaphore(0).Limit(); got != 1 {
		t.Errorf("Limit() = %d, want 1", got)
	}
	if got := NewHostSemaphore(4).Limit(); got != 4 {
		t.Errorf("Limit() = %d, want 4", got)
	}
}

func TestHostSemaphore_limitsPerHost(t *testing.T) {
	h := NewHostSemaphore(1)
	ctx := context.Background()
	release, err := h.Acquire(ctx, "http://a.test/x.jpeg")
	if err != nil {
		t.Fatal(err)
	}
	// Different host is independent.
	r2, err := h.Acquire(ctx, "http://b.test/y.jpeg")
	if err != nil {
		t.Fatal(err)
	}
	r2()
	// Same host blocks until ctx is done.
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := h.Acquire(tctx, "http://a.test/other.mp4"); err == nil {
		t.Error("second acquire on same host should block")
	}
	release()
	r3, err := h.Acquire(ctx, "http://a.test/other.mp4")
	if err != nil {
		t.Fatal(err)
	}
	r3()
}
