package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapetech/tribute/internal/httpclient"
	"github.com/snapetech/tribute/internal/safeurl"
)

// CheckOrigin fetches one asset URL from the media origin. Returns nil if OK,
// error with message if not.
func CheckOrigin(ctx context.Context, assetURL string) error {
	if assetURL == "" {
		return fmt.Errorf("no origin asset URL")
	}
	if !safeurl.IsHTTPOrHTTPS(assetURL) {
		return fmt.Errorf("origin asset %q is not an http(s) URL", assetURL)
	}
	// Some static hosts don't support HEAD; use GET with a one-byte range and close early.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("User-Agent", httpclient.UserAgent)
	client := httpclient.WithTimeout(15 * time.Second)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("origin unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("origin returned HTTP %d for %s", resp.StatusCode, safeurl.Redact(assetURL))
	}
	return nil
}
