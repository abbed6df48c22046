// internal/clients/transport.go

// Package clients talks to separately deployed librastacks services over
// their HTTP APIs.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrServerError      = errors.New("server error")
)

const (
	defaultTimeout  = 5 * time.Second
	defaultMaxTries = 3
)

// transport sends JSON requests through a circuit breaker. Retryable
// requests are retried with exponential backoff on network and 5xx errors.
type transport struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxTries   uint
	logger     *slog.Logger
}

type Option func(*transport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *transport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithMaxTries bounds attempts per retryable request. One disables retries.
func WithMaxTries(n uint) Option {
	return func(t *transport) {
		if n > 0 {
			t.maxTries = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func newTransport(name, baseURL string, opts ...Option) *transport {
	t := &transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxTries:   defaultMaxTries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return t
}

type response struct {
	status int
	body   []byte
}

func (r *response) decode(v interface{}) error {
	if err := json.Unmarshal(r.body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r *response) unexpected() error {
	return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, r.status, strings.TrimSpace(string(r.body)))
}

// do sends the request and returns any status below 500. in, when not nil, is
// sent as a JSON body.
func (t *transport) do(ctx context.Context, method, path string, in interface{}) (*response, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	tries := uint(1)
	if retryable(method) {
		tries = t.maxTries
	}

	attempt := func() (*response, error) {
		out, err := t.breaker.Execute(func() (interface{}, error) {
			return t.send(ctx, method, path, payload)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			t.logger.DebugContext(ctx, "request attempt failed", "method", method, "path", path, "error", err)
			return nil, err
		}
		return out.(*response), nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	return backoff.Retry(ctx, attempt, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
}

// retryable reports whether repeating a request of this method leaves the
// server in the same state. PATCH routes here set absolute values. DELETE
// routes release one loan or reservation each, so a repeat is not safe.
func retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func (t *transport) send(ctx context.Context, method, path string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s %s: %d: %s", ErrServerError, method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return &response{status: resp.StatusCode, body: data}, nil
}
