package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/contract"
)

var _ RateSource = (*HTTPRates)(nil)

// HTTPRates reads rates from a supplier's GET {base}/v1/exchange_rate/{ccy}.
type HTTPRates struct {
	baseURL    string
	httpClient *http.Client
}

type rateResponse struct {
	Currency string  `json:"currency"`
	Rate     float64 `json:"rate"`
}

func NewHTTPRates(baseURL string, client *http.Client) (*HTTPRates, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("rates: base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("rates: invalid base url: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPRates{baseURL: trimmed, httpClient: client}, nil
}

func (h *HTTPRates) Rate(ctx context.Context, currency string) (float64, error) {
	ccy := strings.ToUpper(strings.TrimSpace(currency))
	if ccy == "" {
		return 0, fmt.Errorf("%w: currency is required", contractx.ErrValidation)
	}
	if ccy == "USD" {
		return 1, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/v1/exchange_rate/"+url.PathEscape(ccy), nil)
	if err != nil {
		return 0, fmt.Errorf("rates: build request: %w", err)
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: rates: %v", contractx.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%w: currency %q not supported", contractx.ErrValidation, ccy)
	case resp.StatusCode >= http.StatusInternalServerError:
		return 0, fmt.Errorf("%w: rates status %d", contractx.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("rates: unexpected status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("rates: decode: %w", err)
	}
	if body.Rate <= 0 {
		return 0, fmt.Errorf("rates: non-positive rate for %s", ccy)
	}
	return body.Rate, nil
}
