package feed

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"fx-tracker-go/internal/config"
	"github.com/dgraph-io/ristretto"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LiveFeed talks to a local terminal gateway over HTTP. It implements the
// Feed interface. Construction never falls over to demo data on its own:
// the caller probes the gateway once and picks the replay feed instead if
// the probe fails.
type LiveFeed struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	rates      *ristretto.Cache
	rateTTL    time.Duration
	reqTimeout time.Duration
	status     atomic.Value // string
}

// ensure LiveFeed implements the interface
var _ Feed = (*LiveFeed)(nil)

// NewLiveFeed creates a gateway client with rate limiting and a short-TTL
// cache in front of rate lookups, so the valuation loop re-pricing many
// trades on the same pair costs one gateway call per pair per tick.
func NewLiveFeed(cfg *config.Feed, logger *zap.Logger) (*LiveFeed, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate cache: %w", err)
	}

	f := &LiveFeed{
		client:     resty.New().SetBaseURL(cfg.GatewayURL),
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		rates:      cache,
		rateTTL:    time.Duration(cfg.RateCacheTTLMs) * time.Millisecond,
		reqTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}
	f.status.Store("Connecting...")
	return f, nil
}

// callContext bounds a single gateway call, retries included. A gateway
// that accepts the connection and never answers must not stall the polling
// loops.
func (f *LiveFeed) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), f.reqTimeout)
}

// Probe checks gateway connectivity and updates the connection status.
func (f *LiveFeed) Probe(ctx context.Context) error {
	type serverTimeResponse struct {
		ServerTime int64 `json:"server_time"`
	}

	req := f.client.R().SetContext(ctx).SetResult(&serverTimeResponse{})
	if _, err := f.doRequest(ctx, "GET", "/api/v1/time", req); err != nil {
		f.status.Store("Gateway unreachable")
		return fmt.Errorf("gateway probe failed: %w", err)
	}

	f.status.Store("Terminal connected")
	return nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (f *LiveFeed) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		f.logger.Debug("Executing gateway request", zap.String("method", method), zap.String("url", f.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		f.logger.Warn("Gateway request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// Trades fetches the gateway's full current trade list. A failed fetch
// yields an empty list; the reconciliation loop simply retries next cycle.
func (f *LiveFeed) Trades() []RawTrade {
	var trades []RawTrade

	ctx, cancel := f.callContext()
	defer cancel()

	req := f.client.R().
		SetContext(ctx).
		SetResult(&trades).
		SetHeader("Content-Type", "application/json")

	if _, err := f.doRequest(ctx, "GET", "/api/v1/trades", req); err != nil {
		f.logger.Warn("Failed to fetch trades from gateway", zap.Error(err))
		return nil
	}

	return trades
}

// rateResponse is the gateway's quote payload. The rate comes back as a
// string to avoid binary-float drift on the wire.
type rateResponse struct {
	Pair string `json:"pair"`
	Rate string `json:"rate"`
}

// CurrentRate fetches the latest market rate for a pair, consulting the
// short-TTL cache first.
func (f *LiveFeed) CurrentRate(pair string) (decimal.Decimal, error) {
	if cached, ok := f.rates.Get(pair); ok {
		return cached.(decimal.Decimal), nil
	}

	ctx, cancel := f.callContext()
	defer cancel()

	var result rateResponse
	req := f.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetQueryParam("pair", pair).
		SetHeader("Content-Type", "application/json")

	if _, err := f.doRequest(ctx, "GET", "/api/v1/rate", req); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to get rate for %s: %w", pair, err)
	}

	rate, err := decimal.NewFromString(result.Rate)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("gateway returned unparseable rate %q for %s: %w", result.Rate, pair, err)
	}

	f.rates.SetWithTTL(pair, rate, 1, f.rateTTL)
	return rate, nil
}

// eventsResponse carries at most one new and one closed trade per poll.
type eventsResponse struct {
	Opened RawTrade `json:"opened"`
	Closed RawTrade `json:"closed"`
}

// PollEvents asks the gateway for discrete open/close events.
func (f *LiveFeed) PollEvents() (RawTrade, RawTrade) {
	ctx, cancel := f.callContext()
	defer cancel()

	var result eventsResponse
	req := f.client.R().
		SetContext(ctx).
		SetResult(&result).
		SetHeader("Content-Type", "application/json")

	if _, err := f.doRequest(ctx, "GET", "/api/v1/events", req); err != nil {
		f.logger.Warn("Failed to poll gateway events", zap.Error(err))
		return nil, nil
	}

	return result.Opened, result.Closed
}

// ConnectionStatus returns the last probe result.
func (f *LiveFeed) ConnectionStatus() string {
	return f.status.Load().(string)
}
