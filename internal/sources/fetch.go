package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"threadwatch/internal/forum"
	"threadwatch/internal/logging"
	"threadwatch/internal/services"
)

const (
	maxResponseBytes = 8 << 20
	acceptLanguage   = "en-US,en;q=0.9"
	defaultTimeout   = 15 * time.Second
	fallbackAgent    = "threadwatch/1.0"
)

// Fetcher issues GET requests for JSON documents on behalf of one source and
// records every attempt.
type Fetcher struct {
	source   string
	client   *http.Client
	agents   []string
	next     atomic.Uint64
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithUserAgents sets the rotation pool for the User-Agent header.
func WithUserAgents(agents []string) FetcherOption {
	return func(f *Fetcher) {
		pool := make([]string, 0, len(agents))
		for _, agent := range agents {
			if agent = strings.TrimSpace(agent); agent != "" {
				pool = append(pool, agent)
			}
		}
		if len(pool) > 0 {
			f.agents = pool
		}
	}
}

// WithRecorder routes request log entries to r.
func WithRecorder(r Recorder) FetcherOption {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithLogger sets the logger used for recorder failures.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the clock used for request timestamps and durations.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFetcher builds a Fetcher for the named source. timeout bounds each call;
// zero selects the default.
func NewFetcher(source string, timeout time.Duration, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		source:   source,
		client:   &http.Client{Timeout: timeout},
		agents:   []string{fallbackAgent},
		recorder: NopRecorder,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the source name attached to recorded entries.
func (f *Fetcher) Source() string {
	return f.source
}

// GetJSON fetches url and decodes the body into out.
func (f *Fetcher) GetJSON(ctx context.Context, kind forum.RequestKind, url string, out any) error {
	started := f.now()
	status, err := f.getJSON(ctx, url, out)
	entry := forum.RequestLog{
		Timestamp:  started,
		Kind:       kind,
		Source:     f.source,
		URL:        url,
		Duration:   f.now().Sub(started),
		Success:    err == nil,
		StatusCode: status,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if recErr := f.recorder.LogRequest(ctx, entry); recErr != nil {
		f.logger.Debug("request log write failed",
			logging.String(logging.FieldSource, f.source),
			logging.String("url", url),
			logging.Error(recErr),
		)
	}
	return err
}

func (f *Fetcher) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, f.source, "build request", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", acceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, services.Wrap(services.ErrTimeout, f.source, "fetch", url, err)
		}
		return 0, services.Wrap(services.ErrTransient, f.source, "fetch", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, services.Wrap(services.ErrTransient, f.source, "read body", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			marker = services.ErrNotFound
		}
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return resp.StatusCode, services.Wrap(marker, f.source, "fetch", fmt.Sprintf("status %d: %s", resp.StatusCode, snippet), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, services.Wrap(services.ErrValidation, f.source, "decode", url, err)
	}
	return resp.StatusCode, nil
}

func (f *Fetcher) userAgent() string {
	n := f.next.Add(1) - 1
	return f.agents[n%uint64(len(f.agents))]
}
