package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// GammaClient is the REST client for the Polymarket Gamma API, the market
// discovery and metadata surface. It implements domain.MarketSource.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGammaClient creates a Gamma API client.
//
// baseURL is the API root, e.g. "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListMarkets returns a page of binary markets. Non-binary markets in the
// response are skipped.
func (g *GammaClient) ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.MarketSnapshot, error) {
	params := url.Values{}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(filter.Offset))
	if filter.ActiveOnly {
		params.Set("closed", "false")
	}
	// The latency window lives in recently-ended markets; ask for the ones
	// whose end date passed most recently first.
	params.Set("order", "endDate")
	params.Set("ascending", "false")

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	var apiMarkets []apiMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	now := time.Now().UTC()
	snaps := make([]domain.MarketSnapshot, 0, len(apiMarkets))
	for i := range apiMarkets {
		if snap, ok := apiMarkets[i].toSnapshot(now); ok {
			snaps = append(snaps, snap)
		}
	}
	return snaps, nil
}

// GetMarket returns a single market by its ID.
func (g *GammaClient) GetMarket(ctx context.Context, id string) (domain.MarketSnapshot, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(id))
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: get market %s: %w", id, err)
	}

	var m apiMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	snap, ok := m.toSnapshot(time.Now().UTC())
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: market %s is not a binary market", id)
	}
	return snap, nil
}

// doGet performs a GET against the Gamma API and returns the raw body.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
