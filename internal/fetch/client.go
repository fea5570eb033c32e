// Package fetch is the menu API client: JSON GETs with a timeout, classified
// errors, request pacing and a circuit breaker. It never caches.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/onnwee/menulive/internal/circuitbreaker"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/metrics"
	"github.com/onnwee/menulive/internal/tracing"
)

// DefaultTimeout bounds a single fetch when the caller passes no timeout.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RPS paces requests to the API; 0 disables pacing.
	RPS   float64
	Burst int
	// BreakerFailures consecutive network/timeout/server failures open the breaker
	// for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
	UserAgent       string
	HTTPClient      *http.Client
}

// Client talks to the menu REST API.
type Client struct {
	base      string
	timeout   time.Duration
	userAgent string
	hc        *http.Client
	limiter   *rate.Limiter
	breaker   *circuitbreaker.CircuitBreaker
	log       *slog.Logger
}

// New builds a client from opts.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "menulive/1.0"
	}
	c := &Client{
		base:      opts.BaseURL,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		hc:        opts.HTTPClient,
		log:       logger.WithComponent("fetch"),
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	c.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:             "menu_api",
		FailureThreshold: opts.BreakerFailures,
		Timeout:          opts.BreakerCooldown,
		IsFailure:        countsAgainstBreaker,
	})
	return c
}

// Timeout returns the default per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State { return c.breaker.GetState() }

func countsAgainstBreaker(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindServer:
		return true
	}
	return false
}

// FetchJSON GETs path relative to the client's base URL and decodes the JSON body
// into T. A non-positive timeout uses the client default. Failures are always
// *FetchError.
func FetchJSON[T any](ctx context.Context, c *Client, path string, timeout time.Duration) (T, error) {
	var out T
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := c.base + path
	ctx, span := tracing.StartSpan(ctx, "fetch.json", attribute.String("http.url", target))
	start := time.Now()

	err := c.breaker.Call(func() error {
		return c.get(ctx, target, &out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		err = &FetchError{Kind: KindServer, URL: target, Message: "menu API unavailable", Err: err}
	}

	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
		c.log.Warn("fetch failed", "url", target, "kind", outcome, "error", err, "duration", time.Since(start))
	} else {
		c.log.Debug("fetch ok", "url", target, "duration", time.Since(start))
	}
	metrics.FetchRequests.WithLabelValues(outcome).Inc()
	metrics.FetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("fetch.outcome", outcome))
	tracing.EndSpan(span, err)

	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, target string, out any) error {
	if err := c.wait(ctx); err != nil {
		return &FetchError{Kind: waitKind(ctx), URL: target, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &FetchError{Kind: KindUnknown, URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if lang := req.URL.Query().Get("lang"); lang != "" {
		req.Header.Set("Accept-Language", lang)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &FetchError{Kind: classifyTransport(ctx, err), URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &FetchError{Kind: classifyTransport(ctx, err), URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FetchError{
			Kind:    KindServer,
			Status:  resp.StatusCode,
			URL:     target,
			Message: serverMessage(body),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Kind: KindParsing, URL: target, Err: err}
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if c.limiter.Tokens() < 1 {
		metrics.FetchRateLimitWaits.Inc()
	}
	return c.limiter.Wait(ctx)
}

// waitKind classifies a pacing failure. The limiter refuses up front when the
// wait would outlast the deadline, before ctx itself is done.
func waitKind(ctx context.Context) Kind {
	if errors.Is(ctx.Err(), context.Canceled) {
		return KindUnknown
	}
	return KindTimeout
}

// CategoriesPath is the category list endpoint for lang.
func CategoriesPath(lang string) string {
	return "/api/categories-menu?lang=" + url.QueryEscape(lang)
}

// CategoryProductsPath is the per-category product endpoint for lang.
func CategoryProductsPath(categoryID int, lang string) string {
	return "/api/products/category/" + strconv.Itoa(categoryID) + "?lang=" + url.QueryEscape(lang)
}

// LastUpdatePath returns the server's last menu mutation timestamp.
const LastUpdatePath = "/api/menu/last-update"

// LastUpdateResponse is the body of LastUpdatePath.
type LastUpdateResponse struct {
	Timestamp int64 `json:"timestamp"`
}

// LastUpdate fetches the server's last menu mutation timestamp.
func (c *Client) LastUpdate(ctx context.Context) (int64, error) {
	lu, err := FetchJSON[LastUpdateResponse](ctx, c, LastUpdatePath, 0)
	if err != nil {
		return 0, fmt.Errorf("last update: %w", err)
	}
	return lu.Timestamp, nil
}
