package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production Finnhub API endpoint
const DefaultBaseURL = "https://finnhub.io/api/v1"

// Client is the upstream collaborator the refresh pipeline consumes:
// a current quote and a put-side option chain per symbol. Both calls
// honor the context deadline.
type Client interface {
	FetchQuote(ctx context.Context, symbol string) (float64, error)
	FetchOptionChain(ctx context.Context, symbol string) ([]OptionContract, error)
}

// OptionContract is one put contract parsed from the upstream chain.
// The expiration date is validated at this boundary so downstream code
// never handles a raw date string.
type OptionContract struct {
	ContractName      string
	Strike            float64
	LastPrice         float64
	Bid               float64
	Ask               float64
	Volume            int64
	OpenInterest      int64
	ExpirationDate    time.Time
	ImpliedVolatility float64
	Delta             *float64
	Gamma             *float64
	Theta             *float64
}

// FinnhubClient fetches quotes and option chains from finnhub.io
type FinnhubClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewFinnhubClient creates a client with an explicit per-request timeout
func NewFinnhubClient(baseURL, apiKey string, timeout time.Duration) *FinnhubClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &FinnhubClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type quoteResponse struct {
	Current float64 `json:"c"`
}

type chainResponse struct {
	Data []struct {
		ExpirationDate string `json:"expirationDate"`
		Options        struct {
			Put []rawContract `json:"PUT"`
		} `json:"options"`
	} `json:"data"`
}

type rawContract struct {
	ContractName      string   `json:"contractName"`
	Strike            float64  `json:"strike"`
	LastPrice         float64  `json:"lastPrice"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	Volume            int64    `json:"volume"`
	OpenInterest      int64    `json:"openInterest"`
	ExpirationDate    string   `json:"expirationDate"`
	ImpliedVolatility float64  `json:"impliedVolatility"`
	Delta             *float64 `json:"delta"`
	Gamma             *float64 `json:"gamma"`
	Theta             *float64 `json:"theta"`
}

// FetchQuote returns the current price for a symbol
func (fc *FinnhubClient) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	var quote quoteResponse
	if err := fc.getJSON(ctx, "/quote", symbol, &quote); err != nil {
		return 0, err
	}
	if quote.Current == 0 {
		return 0, fmt.Errorf("no quote available for %s", symbol)
	}
	return quote.Current, nil
}

// FetchOptionChain returns the put side of the option chain for a symbol.
// Contracts whose expiration date fails to parse are skipped with a log line.
func (fc *FinnhubClient) FetchOptionChain(ctx context.Context, symbol string) ([]OptionContract, error) {
	var chain chainResponse
	if err := fc.getJSON(ctx, "/stock/option-chain", symbol, &chain); err != nil {
		return nil, err
	}
	return parseChain(symbol, chain), nil
}

func parseChain(symbol string, chain chainResponse) []OptionContract {
	var contracts []OptionContract
	for _, dateGroup := range chain.Data {
		for _, raw := range dateGroup.Options.Put {
			expiryStr := raw.ExpirationDate
			if expiryStr == "" {
				expiryStr = dateGroup.ExpirationDate
			}
			expiry, err := time.Parse("2006-01-02", expiryStr)
			if err != nil {
				log.Printf("Skipping contract %s for %s: bad expiration date %q", raw.ContractName, symbol, expiryStr)
				continue
			}
			contracts = append(contracts, OptionContract{
				ContractName:      raw.ContractName,
				Strike:            raw.Strike,
				LastPrice:         raw.LastPrice,
				Bid:               raw.Bid,
				Ask:               raw.Ask,
				Volume:            raw.Volume,
				OpenInterest:      raw.OpenInterest,
				ExpirationDate:    expiry,
				ImpliedVolatility: raw.ImpliedVolatility,
				Delta:             raw.Delta,
				Gamma:             raw.Gamma,
				Theta:             raw.Theta,
			})
		}
	}
	return contracts
}

func (fc *FinnhubClient) getJSON(ctx context.Context, path, symbol string, out interface{}) error {
	endpoint := fmt.Sprintf("%s%s?symbol=%s&token=%s",
		fc.baseURL, path, url.QueryEscape(symbol), url.QueryEscape(fc.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := fc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned status %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
