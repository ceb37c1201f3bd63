package httpclient

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout         = 60 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16

	// UserAgent is sent on every origin request.
	UserAgent = "tribute-preload/1.0"
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: MaxIdleConnsPerHost,
			IdleConnTimeout:     DefaultIdleConnTimeout,
			// The fetcher negotiates br/gzip itself and counts wire bytes for progress.
			DisableCompression: true,
		},
	}
}

// Default returns the shared tuned HTTP client for the fetcher and origin health check.
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a clone of the Default transport.
// A timeout <= 0 returns Default.
func WithTimeout(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return defaultClient
	}
	t, ok := defaultClient.Transport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: timeout}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: t.Clone(),
	}
}
