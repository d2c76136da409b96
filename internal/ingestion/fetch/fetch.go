// Package fetch retrieves web pages as markdown through a conversion proxy
// (r.jina.ai by default) and turns them into corpus documents.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nsriram/docsearch/internal/ingestion"
	apperrors "github.com/nsriram/docsearch/pkg/errors"
	"github.com/nsriram/docsearch/pkg/health"
	"github.com/nsriram/docsearch/pkg/resilience"
)

const (
	DefaultBaseURL = "https://r.jina.ai/"
	maxBodyBytes   = 8 << 20
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	// RetryDelay is the first backoff interval.
	RetryDelay time.Duration
	// BreakerThreshold is the number of consecutive failures that opens the
	// circuit. Zero means 5.
	BreakerThreshold int
	// OnBreakerChange observes circuit transitions.
	OnBreakerChange func(from, to resilience.State)
}

// Client fetches pages with retry and a circuit breaker shared by all
// calls.
type Client struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}
	var onChange func(string, resilience.State, resilience.State)
	if cfg.OnBreakerChange != nil {
		onChange = func(_ string, from, to resilience.State) { cfg.OnBreakerChange(from, to) }
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
		},
		breaker: resilience.NewCircuitBreaker("fetch", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerThreshold,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    onChange,
		}),
		logger: slog.Default().With("component", "fetch"),
	}
}

// Fetch returns the markdown rendering of url. Non-2xx responses fail with
// ErrUpstream; 4xx responses are not retried.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: empty url", apperrors.ErrInvalidInput)
	}
	var body string
	err := resilience.Retry(ctx, "fetch "+url, c.retry, func() error {
		return c.breaker.Execute(func() error {
			b, err := c.get(ctx, c.baseURL+url)
			if err != nil {
				return err
			}
			body = b
			return nil
		})
	})
	if err != nil {
		c.logger.Warn("fetch failed", "url", url, "error", err)
		return "", err
	}
	c.logger.Debug("fetched", "url", url, "bytes", len(body))
	return body, nil
}

func (c *Client) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", resilience.Permanent(fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.5")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", apperrors.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("%w: %s returned %d", apperrors.ErrUpstream, target, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", resilience.Permanent(err)
		}
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

// BreakerState exposes the circuit state for health checks.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Health reports the fetch upstream as degraded while its circuit is not
// closed.
func (c *Client) Health(context.Context) health.ComponentHealth {
	state := c.BreakerState()
	if state != resilience.StateClosed {
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
	}
	return health.ComponentHealth{Status: health.StatusUp}
}

// Source fetches a fixed list of URLs, at most Parallel at a time, and keeps
// them in list order.
type Source struct {
	Client   *Client
	URLs     []string
	Parallel int
}

func (s Source) Name() string { return "fetch" }

func (s Source) Load(ctx context.Context) ([]ingestion.Document, error) {
	docs := make([]ingestion.Document, len(s.URLs))
	g, ctx := errgroup.WithContext(ctx)
	limit := s.Parallel
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, url := range s.URLs {
		g.Go(func() error {
			body, err := s.Client.Fetch(ctx, url)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", url, err)
			}
			docs[i] = ingestion.Document{
				ingestion.FieldFilename: url,
				ingestion.FieldContent:  body,
				ingestion.FieldTitle:    ingestion.TitleOrBase([]byte(body), url),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}
