package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// Lovelace client defaults.
const (
	defaultLovelaceTimeout = 10 * time.Second
	defaultLovelaceRetries = 3
	defaultRetryDelay      = 500 * time.Millisecond
	maxRetryDelay          = 5 * time.Second

	// maxDocumentSize bounds how much of a response body is read.
	maxDocumentSize = 4 << 20

	lovelaceConfigPath = "/api/lovelace/config"
)

// LovelaceOptions configures a LovelaceStore.
type LovelaceOptions struct {
	// URL is the base URL of the Home Assistant instance, e.g.
	// http://hass:8123.
	URL string

	// Token is a long-lived access token sent as a bearer credential.
	Token string

	// Retries is the number of attempts for transient failures.
	Retries int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration

	// Client overrides the HTTP client.
	Client *http.Client
}

// LovelaceStore loads and saves documents through the Lovelace config REST
// endpoint. Transport errors and 5xx responses are retried with backoff; a
// 404 is ErrNotFound and other 4xx responses fail immediately.
type LovelaceStore struct {
	base   string
	token  string
	client *http.Client
	tries  uint
	delay  time.Duration
}

// NewLovelaceStore creates a store for the instance at opts.URL.
func NewLovelaceStore(opts LovelaceOptions) (*LovelaceStore, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, fmt.Errorf("lovelace url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parsing lovelace url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLovelaceTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultLovelaceRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &LovelaceStore{
		base:   base,
		token:  opts.Token,
		client: client,
		tries:  uint(opts.Retries),
		delay:  opts.RetryDelay,
	}, nil
}

// statusError is a non-2xx response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lovelace: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("lovelace: unexpected status %d: %s", e.Code, e.Body)
}

// retryable reports whether err is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidDocument) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

func (s *LovelaceStore) endpoint(path string) string {
	q := url.Values{}
	if path != "" {
		q.Set("url_path", path)
	}
	u := s.base + lovelaceConfigPath
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (s *LovelaceStore) do(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.tries),
		retry.Delay(s.delay),
		retry.MaxDelay(maxRetryDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
}

// Load implements Store.
func (s *LovelaceStore) Load(ctx context.Context, path string) (Document, error) {
	var doc Document
	err := s.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint(path), http.NoBody)
		if err != nil {
			return err
		}
		s.authorize(req)

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching lovelace config: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if err != nil {
			return fmt.Errorf("reading lovelace config: %w", err)
		}
		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{Code: resp.StatusCode, Body: snippet(body)}
		}

		doc, err = ParseDocument(body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Save implements Store.
func (s *LovelaceStore) Save(ctx context.Context, path string, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshalling dashboard: %w", err)
	}

	return s.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(path), bytes.NewReader(data))
		if err != nil {
			return err
		}
		s.authorize(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("saving lovelace config: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &statusError{Code: resp.StatusCode, Body: snippet(body)}
		}
		return nil
	})
}

func (s *LovelaceStore) authorize(req *http.Request) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
