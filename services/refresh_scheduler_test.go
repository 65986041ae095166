package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"options_watchlist_backend/market"
	"options_watchlist_backend/models"
	"options_watchlist_backend/scoring"
	"options_watchlist_backend/services/marketdata"

	"gorm.io/gorm"
)

// fakeMarketClient serves canned quotes and chains
type fakeMarketClient struct {
	price      float64
	chain      []marketdata.OptionContract
	quoteErr   error
	chainErr   error
	quoteCalls int
}

func (f *fakeMarketClient) FetchQuote(ctx context.Context, symbol string) (float64, error) {
	f.quoteCalls++
	if f.quoteErr != nil {
		return 0, f.quoteErr
	}
	return f.price, nil
}

func (f *fakeMarketClient) FetchOptionChain(ctx context.Context, symbol string) ([]marketdata.OptionContract, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return f.chain, nil
}

// marketOpenTime is a Tuesday at 10:00 Eastern
var marketOpenTime = time.Date(2026, 1, 6, 15, 0, 0, 0, time.UTC)

func putContract(name string, strike float64, dte int) marketdata.OptionContract {
	return marketdata.OptionContract{
		ContractName:      name,
		Strike:            strike,
		LastPrice:         5.1,
		Bid:               5,
		Ask:               5.2,
		Volume:            500,
		OpenInterest:      1000,
		ExpirationDate:    marketOpenTime.AddDate(0, 0, dte),
		ImpliedVolatility: 40,
		Theta:             floatPtr(-0.03),
	}
}

type schedulerFixture struct {
	db        *gorm.DB
	registry  *SymbolRegistry
	store     *SnapshotStore
	cache     *ResponseCache
	client    *fakeMarketClient
	scheduler *RefreshScheduler
}

func newSchedulerFixture(t *testing.T, client *fakeMarketClient) *schedulerFixture {
	t.Helper()

	db := newTestDB(t)
	registry := NewSymbolRegistry(db)
	store := NewSnapshotStore(db)
	cache := NewResponseCache()
	scorer := &scoring.Engine{Now: func() time.Time { return marketOpenTime }}

	scheduler := NewRefreshScheduler(db, registry, store, cache, scorer, market.NewCalendar(), client)
	scheduler.Now = func() time.Time { return marketOpenTime }

	return &schedulerFixture{
		db:        db,
		registry:  registry,
		store:     store,
		cache:     cache,
		client:    client,
		scheduler: scheduler,
	}
}

func (f *schedulerFixture) addSymbols(t *testing.T, symbols ...string) {
	t.Helper()
	for _, sym := range symbols {
		if _, err := f.registry.AddOrUpdate(sym, false); err != nil {
			t.Fatalf("AddOrUpdate %s: %v", sym, err)
		}
	}
}

func (f *schedulerFixture) cursor(t *testing.T) *models.RefreshCursor {
	t.Helper()
	cursor, err := f.scheduler.Cursor()
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	return cursor
}

func TestNextSymbolStableUntilAdvanced(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})
	f.addSymbols(t, "AAPL", "MSFT")

	for i := 0; i < 3; i++ {
		next, position, err := f.scheduler.NextSymbol()
		if err != nil {
			t.Fatalf("NextSymbol: %v", err)
		}
		if next.Symbol != "AAPL" || position != 1 {
			t.Errorf("call %d: got %s at %d, want AAPL at 1", i, next.Symbol, position)
		}
	}

	if cursor := f.cursor(t); cursor.Position != 0 {
		t.Errorf("NextSymbol must not advance the cursor, position = %d", cursor.Position)
	}
}

func TestNextSymbolEmptyWatchlist(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})

	next, _, err := f.scheduler.NextSymbol()
	if err != nil {
		t.Fatalf("NextSymbol: %v", err)
	}
	if next != nil {
		t.Errorf("empty watchlist should yield nil, got %+v", next)
	}
}

func TestTickRotatesAndCountsCycles(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})
	f.addSymbols(t, "AAPL", "MSFT")

	// First tick refreshes AAPL and starts the cycle.
	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	cursor := f.cursor(t)
	if cursor.Position != 1 || cursor.LastSymbol == nil || *cursor.LastSymbol != "AAPL" {
		t.Errorf("after tick 1: position=%d lastSymbol=%v", cursor.Position, cursor.LastSymbol)
	}
	if cursor.CycleStartedAt == nil {
		t.Error("cycle start not stamped")
	}
	if cursor.CycleCount != 0 {
		t.Errorf("cycle count = %d before the cycle completes", cursor.CycleCount)
	}

	// Second tick finishes the pass.
	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	cursor = f.cursor(t)
	if cursor.Position != 2 || *cursor.LastSymbol != "MSFT" {
		t.Errorf("after tick 2: position=%d lastSymbol=%v", cursor.Position, cursor.LastSymbol)
	}

	// Third tick wraps around and closes the cycle.
	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("tick 3: %v", err)
	}
	cursor = f.cursor(t)
	if cursor.CycleCount != 1 {
		t.Errorf("cycle count = %d, want 1", cursor.CycleCount)
	}
	if cursor.CycleCompletedAt == nil {
		t.Error("cycle completion not stamped")
	} else if cursor.CycleStartedAt == nil || cursor.CycleCompletedAt.After(*cursor.CycleStartedAt) {
		t.Errorf("completion %v should not follow the next cycle start %v",
			cursor.CycleCompletedAt, cursor.CycleStartedAt)
	}
	if *cursor.LastSymbol != "AAPL" || cursor.Position != 1 {
		t.Errorf("after wrap: position=%d lastSymbol=%v", cursor.Position, cursor.LastSymbol)
	}
}

func TestRefreshFiltersAndScoresChain(t *testing.T) {
	client := &fakeMarketClient{
		price: 100,
		chain: []marketdata.OptionContract{
			putContract("KEEP", 100, 35),
			putContract("STRIKE-TOO-HIGH", 130, 35),
			putContract("STRIKE-TOO-LOW", 70, 35),
			putContract("TOO-FAR-OUT", 100, 90),
		},
	}
	f := newSchedulerFixture(t, client)
	f.addSymbols(t, "AAPL")

	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	detail, err := f.store.GetLatest("AAPL")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if detail == nil {
		t.Fatal("no snapshot persisted")
	}
	if len(detail.Contracts) != 1 {
		t.Fatalf("got %d contracts, want 1 after filtering", len(detail.Contracts))
	}
	contract := detail.Contracts[0]
	if contract.ContractName != "KEEP" {
		t.Errorf("kept contract = %s, want KEEP", contract.ContractName)
	}
	if contract.Score == nil {
		t.Fatal("contract score not persisted")
	}
	if contract.Score.Total != 67.22 {
		t.Errorf("score total = %v, want 67.22", contract.Score.Total)
	}

	tracked, _ := f.registry.Get("AAPL")
	if tracked.LastRefreshedAt == nil || !tracked.LastRefreshedAt.Equal(marketOpenTime) {
		t.Errorf("refresh not recorded: %v", tracked.LastRefreshedAt)
	}
}

func TestTickSkipsWhenMarketClosed(t *testing.T) {
	client := &fakeMarketClient{price: 100}
	f := newSchedulerFixture(t, client)
	f.addSymbols(t, "AAPL")

	// A Sunday afternoon.
	f.scheduler.Now = func() time.Time {
		return time.Date(2026, 1, 4, 15, 0, 0, 0, time.UTC)
	}

	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if client.quoteCalls != 0 {
		t.Errorf("fetched %d quotes with the market closed", client.quoteCalls)
	}
}

func TestFetchFailureKeepsCursorAndRecordsError(t *testing.T) {
	client := &fakeMarketClient{quoteErr: errors.New("rate limited")}
	f := newSchedulerFixture(t, client)
	f.addSymbols(t, "AAPL", "MSFT")

	err := f.scheduler.Tick()
	var ferr *UpstreamFetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("want UpstreamFetchError, got %v", err)
	}

	if cursor := f.cursor(t); cursor.Position != 0 {
		t.Errorf("cursor advanced on failure: position=%d", cursor.Position)
	}

	tracked, _ := f.registry.Get("AAPL")
	if tracked.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", tracked.ErrorCount)
	}
	if tracked.LastError == nil {
		t.Error("last error not recorded")
	}
}

func TestPersistentlyFailingSymbolIsSkipped(t *testing.T) {
	client := &fakeMarketClient{quoteErr: errors.New("unknown symbol")}
	f := newSchedulerFixture(t, client)
	f.addSymbols(t, "AAPL", "MSFT")

	// Three consecutive failures hit the skip threshold on the third tick.
	for i := 0; i < 3; i++ {
		if err := f.scheduler.Tick(); err == nil {
			t.Fatalf("tick %d: expected an error", i+1)
		}
	}

	if cursor := f.cursor(t); cursor.Position != 1 {
		t.Fatalf("cursor should move past the dead symbol, position=%d", cursor.Position)
	}

	// The rotation recovers on the next symbol.
	client.quoteErr = nil
	client.price = 250
	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("tick after skip: %v", err)
	}

	detail, err := f.store.GetLatest("MSFT")
	if err != nil || detail == nil {
		t.Fatalf("MSFT not refreshed after skip: %v, %v", detail, err)
	}
	if cursor := f.cursor(t); cursor.Position != 2 {
		t.Errorf("position = %d after successful refresh, want 2", cursor.Position)
	}
}

func TestRefreshManualDoesNotAdvanceCursor(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})
	f.addSymbols(t, "AAPL", "MSFT")

	// Prime the cursor the way the scheduler loop would.
	if _, _, err := f.scheduler.NextSymbol(); err != nil {
		t.Fatal(err)
	}

	if err := f.scheduler.RefreshManual("MSFT"); err != nil {
		t.Fatalf("RefreshManual: %v", err)
	}

	if cursor := f.cursor(t); cursor.Position != 0 {
		t.Errorf("manual refresh moved the cursor: position=%d", cursor.Position)
	}

	detail, err := f.store.GetLatest("MSFT")
	if err != nil || detail == nil {
		t.Fatalf("manual refresh persisted nothing: %v, %v", detail, err)
	}
}

func TestRefreshInvalidatesCache(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})
	f.addSymbols(t, "AAPL")

	key := CacheKey{Symbol: "AAPL", Kind: "latest"}
	if _, _, err := f.cache.GetOrFetch(key, time.Hour, func() (interface{}, error) {
		return "stale", nil
	}, false); err != nil {
		t.Fatal(err)
	}

	if err := f.scheduler.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if f.cache.TimeRemaining(key) != 0 {
		t.Error("cache entry survived a successful refresh")
	}
}

func TestRefreshManualValidatesSymbol(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})

	err := f.scheduler.RefreshManual("  ")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestStatusReportsMarketAndCursor(t *testing.T) {
	f := newSchedulerFixture(t, &fakeMarketClient{price: 100})
	f.addSymbols(t, "AAPL")

	status, err := f.scheduler.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.MarketOpen {
		t.Error("market should be open at the fixture instant")
	}
	if status.Statistics == nil || status.Statistics.ActiveSymbols != 1 {
		t.Errorf("statistics missing or wrong: %+v", status.Statistics)
	}
	if !status.Timestamp.Equal(marketOpenTime) {
		t.Errorf("timestamp = %v, want %v", status.Timestamp, marketOpenTime)
	}
}
