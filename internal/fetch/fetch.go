// Package fetch performs JSON GET requests against the queue API with a
// bounded number of attempts and a constant delay between them.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/izzyreal/qwatch/internal/version"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second

	maxBodyBytes = 8 << 20
)

var (
	EmptySequence = json.RawMessage(`[]`)
	EmptyObject   = json.RawMessage(`{}`)
)

type Fetcher struct {
	client      *http.Client
	baseURL     string
	query       url.Values
	header      http.Header
	maxAttempts int
	retryDelay  time.Duration
	metrics     *Metrics
	sleep       func(ctx context.Context, d time.Duration) bool
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.retryDelay = d
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithQuery appends the given parameters to every request.
func WithQuery(q url.Values) Option {
	return func(f *Fetcher) {
		if len(q) == 0 {
			return
		}
		f.query = url.Values{}
		for k, vs := range q {
			f.query[k] = append([]string(nil), vs...)
		}
	}
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(f *Fetcher) {
		if f.header == nil {
			f.header = http.Header{}
		}
		f.header.Set(key, value)
	}
}

// WithBearerToken sends token in the Authorization header. An empty token is
// ignored.
func WithBearerToken(token string) Option {
	token = strings.TrimSpace(token)
	if token == "" {
		return func(*Fetcher) {}
	}
	return WithHeader("Authorization", "Bearer "+token)
}

func New(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		sleep:       sleepWithContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) BaseURL() string { return f.baseURL }

func (f *Fetcher) MaxAttempts() int { return f.maxAttempts }

// Fetch is FetchWithRetry with the configured attempt budget.
func (f *Fetcher) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	return f.FetchWithRetry(ctx, path, f.maxAttempts)
}

// FetchWithRetry issues GET requests until one succeeds or maxAttempts is
// spent. The wait between attempts is constant. The returned error is always a
// *FetchError wrapping the last attempt's *TransportError or *ParseError, or
// the context error when ctx ends first.
func (f *Fetcher) FetchWithRetry(ctx context.Context, path string, maxAttempts int) (json.RawMessage, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	target := f.resolve(path)

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		body, err := f.get(ctx, target)
		if err == nil {
			f.metrics.observeAttempt(path, outcomeSuccess)
			return body, nil
		}
		lastErr = err
		f.metrics.observeAttempt(path, outcomeOf(err))

		if ctx.Err() != nil {
			return nil, &FetchError{URL: target, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt < maxAttempts {
			slog.Warn("fetch failed; retrying", "url", target, "attempt", attempt, "max_attempts", maxAttempts, "next_wait", f.retryDelay, "error", err)
			f.metrics.observeWait(f.retryDelay.Seconds())
			if !f.sleep(ctx, f.retryDelay) {
				return nil, &FetchError{URL: target, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}

	f.metrics.observeExhausted(path)
	slog.Error("fetch failed after retries", "url", target, "attempts", attempt, "error", lastErr)
	return nil, &FetchError{URL: target, Attempts: attempt, Err: lastErr}
}

// FetchOrEmpty swallows exhaustion and returns sentinel instead. Callers that
// must tell "no data" apart from "unavailable" use Fetch.
func (f *Fetcher) FetchOrEmpty(ctx context.Context, path string, sentinel json.RawMessage) json.RawMessage {
	body, err := f.Fetch(ctx, path)
	if err != nil {
		return append(json.RawMessage(nil), sentinel...)
	}
	return body
}

func (f *Fetcher) get(ctx context.Context, target string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, vs := range f.header {
		req.Header[k] = vs
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, &ParseError{URL: target, Err: errors.New("invalid JSON body")}
	}
	return json.RawMessage(body), nil
}

func (f *Fetcher) resolve(path string) string {
	target := f.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(f.query) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + f.query.Encode()
}

func outcomeOf(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return outcomeParse
	}
	return outcomeTransport
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
