package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("symbol") != "AAPL" {
			t.Errorf("unexpected symbol %q", r.URL.Query().Get("symbol"))
		}
		if r.URL.Query().Get("token") != "test-key" {
			t.Errorf("api key not forwarded")
		}
		w.Write([]byte(`{"c": 187.45, "h": 189.2, "l": 186.1}`))
	}))
	defer server.Close()

	client := NewFinnhubClient(server.URL, "test-key", 5*time.Second)
	price, err := client.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if price != 187.45 {
		t.Errorf("price = %v, want 187.45", price)
	}
}

func TestFetchQuoteNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"c": 0}`))
	}))
	defer server.Close()

	client := NewFinnhubClient(server.URL, "test-key", 5*time.Second)
	if _, err := client.FetchQuote(context.Background(), "NOPE"); err == nil {
		t.Error("zero quote should be an error")
	}
}

func TestFetchQuoteUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "limit exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewFinnhubClient(server.URL, "test-key", 5*time.Second)
	if _, err := client.FetchQuote(context.Background(), "AAPL"); err == nil {
		t.Error("non-200 status should be an error")
	}
}

func TestFetchOptionChainParsesPuts(t *testing.T) {
	body := `{
		"data": [
			{
				"expirationDate": "2026-02-20",
				"options": {
					"CALL": [{"contractName": "IGNORED-CALL", "strike": 100}],
					"PUT": [
						{
							"contractName": "AAPL260220P00100000",
							"strike": 100,
							"lastPrice": 5.1,
							"bid": 5,
							"ask": 5.2,
							"volume": 500,
							"openInterest": 1000,
							"impliedVolatility": 40,
							"theta": -0.03
						},
						{
							"contractName": "BAD-DATE",
							"strike": 95,
							"expirationDate": "not-a-date"
						}
					]
				}
			}
		]
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/option-chain" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(body))
	}))
	defer server.Close()

	client := NewFinnhubClient(server.URL, "test-key", 5*time.Second)
	contracts, err := client.FetchOptionChain(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchOptionChain: %v", err)
	}

	// Calls are ignored, the unparseable date is skipped.
	if len(contracts) != 1 {
		t.Fatalf("got %d contracts, want 1", len(contracts))
	}

	c := contracts[0]
	if c.ContractName != "AAPL260220P00100000" {
		t.Errorf("contract name = %q", c.ContractName)
	}
	wantExpiry := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	if !c.ExpirationDate.Equal(wantExpiry) {
		t.Errorf("expiration = %v, want %v", c.ExpirationDate, wantExpiry)
	}
	if c.Theta == nil || *c.Theta != -0.03 {
		t.Errorf("theta = %v, want -0.03", c.Theta)
	}
	if c.Strike != 100 || c.Bid != 5 || c.Ask != 5.2 {
		t.Errorf("quote fields wrong: %+v", c)
	}
}

func TestFetchHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"c": 1}`))
	}))
	defer server.Close()

	client := NewFinnhubClient(server.URL, "test-key", 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := client.FetchQuote(ctx, "AAPL"); err == nil {
		t.Error("expired context should abort the request")
	}
}
