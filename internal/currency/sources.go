package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

// StaticRateSource serves rates from configuration. Reverse pairs are derived
// from the configured direction.
type StaticRateSource struct {
	rates map[string]decimal.Decimal
}

func NewStaticRateSource(rates map[string]decimal.Decimal) *StaticRateSource {
	out := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		out[strings.ToUpper(k)] = v
	}
	return &StaticRateSource{rates: out}
}

// ParseStaticRates reads "USD:EUR=0.92,USD:JPY=151.2".
func ParseStaticRates(raw string) (*StaticRateSource, error) {
	rates := map[string]decimal.Decimal{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair, value, ok := strings.Cut(part, "=")
		if !ok || !strings.Contains(pair, ":") {
			return nil, fmt.Errorf("invalid rate %q", part)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate %q: %w", part, err)
		}
		rates[strings.TrimSpace(pair)] = d
	}
	return NewStaticRateSource(rates), nil
}

func (s *StaticRateSource) Rate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if v, ok := s.rates[from+":"+to]; ok {
		return v, nil
	}
	if v, ok := s.rates[to+":"+from]; ok && v.Sign() > 0 {
		return decimal.NewFromInt(1).DivRound(v, 10), nil
	}
	return decimal.Decimal{}, apperr.Describe(apperr.ErrRateUnavailable, "no rate configured for %s->%s", from, to)
}

// HTTPRateSource queries a rates service: GET {base}/rates?from=USD&to=EUR
// answering {"rate":"0.92"}.
type HTTPRateSource struct {
	base   *url.URL
	client *http.Client
}

func NewHTTPRateSource(baseURL string, client *http.Client) (*HTTPRateSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse rates url: %w", err)
	}
	return &HTTPRateSource{base: u, client: client}, nil
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (s *HTTPRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	u := s.base.ResolveReference(&url.URL{
		Path:     "/rates",
		RawQuery: url.Values{"from": {from}, "to": {to}}.Encode(),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("get rate: unexpected status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode rate: %w", err)
	}
	return body.Rate, nil
}
