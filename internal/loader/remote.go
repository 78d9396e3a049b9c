// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxRemoteBytes caps remote payloads.
const DefaultMaxRemoteBytes = 10 << 20

// ErrRemoteTooLarge is returned when a payload exceeds HTTPFetcher.MaxBytes.
var ErrRemoteTooLarge = errors.New("remote module exceeds size limit")

type (
	// Fetcher retrieves remote module payloads.
	Fetcher interface {
		Fetch(ctx context.Context, url string) ([]byte, error)
	}

	// HTTPFetcher fetches modules over http(s).
	HTTPFetcher struct {
		// Client defaults to http.DefaultClient.
		Client *http.Client
		// Timeout bounds one request; zero means no extra bound.
		Timeout time.Duration
		// MaxBytes defaults to DefaultMaxRemoteBytes.
		MaxBytes int64
		// UserAgent is sent with every request.
		UserAgent string
	}

	// RemoteStatusError reports a non-200 response.
	RemoteStatusError struct {
		URL    string
		Status int
	}
)

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.Status)
}

// Fetch downloads url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteStatusError{URL: url, Status: resp.StatusCode}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxRemoteBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("fetching %s: %w (%d bytes)", url, ErrRemoteTooLarge, limit)
	}
	return body, nil
}
