package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrNotText is returned for attachments that are not .txt files
	ErrNotText = errors.New("attachment must be a .txt file")

	// ErrTooLarge is returned when the body exceeds the configured limit
	ErrTooLarge = errors.New("attachment is too large")
)

// Fetcher downloads import attachments with a shared rate limit
type Fetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	maxBytes   int64
}

// NewFetcher creates a Fetcher. Downloads are limited to perSecond with a
// burst of one.
func NewFetcher(timeout time.Duration, maxBytes int64, perSecond float64) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		maxBytes: maxBytes,
	}
}

// Fetch downloads url and parses it. filename is checked for a .txt extension.
func (f *Fetcher) Fetch(ctx context.Context, url, filename string) (Batch, error) {
	if !strings.EqualFold(path.Ext(filename), ".txt") {
		return Batch{}, ErrNotText
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return Batch{}, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Batch{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Batch{}, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return Batch{}, ErrTooLarge
	}

	return ParseLimited(resp.Body, f.maxBytes)
}

// ParseLimited reads at most maxBytes from r and parses them. Input longer
// than maxBytes is rejected with ErrTooLarge rather than truncated.
func ParseLimited(r io.Reader, maxBytes int64) (Batch, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Batch{}, fmt.Errorf("failed to read import file: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return Batch{}, ErrTooLarge
	}
	return Parse(bytes.NewReader(body))
}
