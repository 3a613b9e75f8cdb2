package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"resty.dev/v3"
)

// HTTPOptions configures the HTTP source.
type HTTPOptions struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
}

// StatusError is a non-2xx answer from an artifact host.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

type httpSource struct {
	client   *resty.Client
	maxBytes int64
}

func newHTTPSource(opts HTTPOptions, maxBytes int64) *httpSource {
	client := resty.New().
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	return &httpSource{client: client, maxBytes: maxBytes}
}

func (s *httpSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: code}
	}

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		// one extra byte lets the router detect oversize bodies
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return data, nil
}

func (s *httpSource) Close() { s.client.Close() }
