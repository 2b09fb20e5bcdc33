// Package downloader fetches feed files over HTTP, optionally keeping
// a copy in memory, on disk or in Redis.
package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "stopboard-gtfs"

var ErrTooLarge = errors.New("response exceeds size limit")

// Returned for any response other than 200 OK.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

type GetOptions struct {
	// Maximum accepted body size in bytes. Zero means no limit.
	MaxSize  int
	Timeout  time.Duration
	Cache    bool
	CacheTTL time.Duration
}

func (o GetOptions) fresh(retrievedAt, now time.Time) bool {
	return now.Before(retrievedAt.Add(o.CacheTTL))
}

// Downloader returns the body of a URL, possibly from a cache.
type Downloader interface {
	Get(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error)
}

var httpClient = &http.Client{}

// HTTPGet downloads url without caching. A body larger than
// options.MaxSize fails with ErrTooLarge instead of being truncated.
func HTTPGet(ctx context.Context, url string, headers map[string]string, options GetOptions) ([]byte, error) {
	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if options.MaxSize <= 0 {
		return io.ReadAll(resp.Body)
	}

	if resp.ContentLength > int64(options.MaxSize) {
		return nil, fmt.Errorf("GET %s: %w (%d > %d bytes)", url, ErrTooLarge, resp.ContentLength, options.MaxSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(options.MaxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: reading body: %w", url, err)
	}
	if len(body) > options.MaxSize {
		return nil, fmt.Errorf("GET %s: %w (limit %d bytes)", url, ErrTooLarge, options.MaxSize)
	}

	return body, nil
}

// Cache key for a URL. Headers are not part of the key.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
