// Package markets resolves market metadata and closure status.
package markets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/NoahJunge/polymarkettracker/pkg/types"
)

// GammaClient fetches market metadata from the Polymarket Gamma API.
type GammaClient struct {
	baseURL           string
	httpClient        *http.Client
	logger            *zap.Logger
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// NewGammaClient creates a Gamma client with retrying transport defaults.
func NewGammaClient(baseURL string, logger *zap.Logger) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:            logger,
		maxRetries:        3,
		initialBackoff:    250 * time.Millisecond,
		maxBackoff:        5 * time.Second,
		backoffMultiplier: 2.0,
	}
}

// gammaMarket is the subset of the Gamma market payload we read.
type gammaMarket struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Slug     string `json:"slug"`
	Closed   bool   `json:"closed"`
	Active   bool   `json:"active"`
	Archived bool   `json:"archived"`
}

// errRetryable marks failures worth another attempt.
var errRetryable = errors.New("retryable")

// FetchMarket returns metadata for one market. A 404 maps to types.ErrUnknownMarket.
func (c *GammaClient) FetchMarket(ctx context.Context, marketID string) (*types.Market, error) {
	start := time.Now()
	defer func() {
		GammaFetchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	requestURL := fmt.Sprintf("%s/markets/%s", c.baseURL, url.PathEscape(marketID))
	backoff := c.initialBackoff

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("gamma-fetch-retrying",
				zap.String("market-id", marketID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.backoffMultiplier)
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		market, err := c.fetchOnce(ctx, requestURL)
		if err == nil {
			if market.ID == "" {
				market.ID = marketID
			}
			return market, nil
		}
		lastErr = err
		if !errors.Is(err, errRetryable) {
			break
		}
	}

	GammaFetchErrorsTotal.Inc()
	if errors.Is(lastErr, types.ErrUnknownMarket) {
		return nil, &types.UnknownMarketError{MarketID: marketID}
	}
	return nil, fmt.Errorf("fetch market %s: %w", marketID, lastErr)
}

func (c *GammaClient) fetchOnce(ctx context.Context, requestURL string) (*types.Market, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "polymarkettracker/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("do request: %w: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w: %w", errRetryable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.ErrUnknownMarket
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("unexpected status code %d: %w", resp.StatusCode, errRetryable)
	default:
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var gm gammaMarket
	err = json.Unmarshal(body, &gm)
	if err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &types.Market{
		ID:       gm.ID,
		Question: gm.Question,
		Slug:     gm.Slug,
		Closed:   gm.Closed || gm.Archived,
	}, nil
}
