package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTLDFeed is the IANA list of delegated top-level domains
const DefaultTLDFeed = "https://data.iana.org/TLD/tlds-alpha-by-domain.txt"

// ErrEmptyFeed is returned when a feed parses to zero labels
var ErrEmptyFeed = errors.New("feed contains no labels")

// ErrFeedTooLarge is returned when a response body exceeds the size limit
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// Fetcher downloads line-delimited reference lists
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// New creates a Fetcher with the given per-request timeout and body size limit
func New(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 1024 * 1024
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// FetchLines retrieves rawURL and returns its non-empty, non-comment lines
func (f *Fetcher) FetchLines(ctx context.Context, rawURL string) ([]string, error) {
	// Validate URL
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "osintdeck/1.0 (tld-refresh)")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFeedTooLarge, f.maxBytes)
	}

	lines, err := ParseLines(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyFeed
	}
	return lines, nil
}

// ParseLines splits a feed into trimmed lines, dropping blanks and '#' comments
func ParseLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return lines, nil
}
