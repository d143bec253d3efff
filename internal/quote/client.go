package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paperfolio/internal/models"
)

// ErrUnavailable is returned when the provider cannot be reached or keeps
// failing after retries. An unknown symbol is not an error: Lookup returns
// (nil, nil) so callers can fail closed.
var ErrUnavailable = errors.New("quote service unavailable")

const maxRetries = 2

// Client looks up live prices from an IEX-style quote API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a quote client. timeout bounds each upstream call.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type quoteResponse struct {
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"companyName"`
	LatestPrice decimal.Decimal `json:"latestPrice"`
}

// Lookup fetches the current price for symbol. The provider canonicalizes
// the symbol; the returned quote carries the canonical form.
func (c *Client) Lookup(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/stock/%s/quote?token=%s",
		c.baseURL, url.PathEscape(strings.TrimSpace(symbol)), url.QueryEscape(c.token))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		q, retry, err := c.fetch(ctx, endpoint)
		if err == nil {
			return q, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// fetch performs one request. retry reports whether the failure is transient.
func (c *Client) fetch(ctx context.Context, endpoint string) (q *models.Quote, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Unknown symbol
		return nil, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("provider returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}

	return &models.Quote{
		Symbol: strings.ToUpper(body.Symbol),
		Name:   body.CompanyName,
		Price:  body.LatestPrice,
	}, false, nil
}
