package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"options_watchlist_backend/market"
	"options_watchlist_backend/models"
	"options_watchlist_backend/scoring"
	"options_watchlist_backend/services/marketdata"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SnapshotSource labels snapshots produced by the upstream quote provider
const SnapshotSource = "finnhub"

// Contracts outside this band around the current price, or further out
// than this many days, are not worth scoring for short-dated puts.
const (
	strikeBandPct = 0.2
	maxChainDte   = 60
)

// RefreshScheduler orchestrates the background refresh rotation: gate on
// the market calendar, pick the next symbol round-robin, fetch, score,
// persist one snapshot, and advance the cursor.
//
// The cursor advances on success. A symbol that keeps failing is skipped
// after MaxConsecutiveFailures consecutive errors so one dead symbol
// cannot starve the rest of the rotation; below that threshold it is
// retried on every tick.
type RefreshScheduler struct {
	db       *gorm.DB
	registry *SymbolRegistry
	store    *SnapshotStore
	cache    *ResponseCache
	scorer   *scoring.Engine
	calendar *market.Calendar
	client   marketdata.Client

	FetchTimeout           time.Duration
	MaxConsecutiveFailures int
	Now                    func() time.Time
}

// NewRefreshScheduler wires the scheduler to its collaborators. The cache
// may be nil; it is only used to invalidate read-path entries after a
// successful refresh.
func NewRefreshScheduler(db *gorm.DB, registry *SymbolRegistry, store *SnapshotStore, cache *ResponseCache, scorer *scoring.Engine, calendar *market.Calendar, client marketdata.Client) *RefreshScheduler {
	return &RefreshScheduler{
		db:                     db,
		registry:               registry,
		store:                  store,
		cache:                  cache,
		scorer:                 scorer,
		calendar:               calendar,
		client:                 client,
		FetchTimeout:           30 * time.Second,
		MaxConsecutiveFailures: 3,
		Now:                    time.Now,
	}
}

// SchedulerStatus is the answer of the refresh status endpoint
type SchedulerStatus struct {
	MarketOpen bool                 `json:"market_open"`
	Cursor     models.RefreshCursor `json:"cursor"`
	Statistics *RegistryStatistics  `json:"statistics"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Cursor loads the singleton cursor row, creating it on first use
func (s *RefreshScheduler) Cursor() (*models.RefreshCursor, error) {
	var cursor models.RefreshCursor
	err := s.db.First(&cursor, models.RefreshCursorID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.RefreshCursor{ID: models.RefreshCursorID}
		if err := s.db.Create(&cursor).Error; err != nil {
			return nil, fmt.Errorf("failed to create refresh cursor: %w", err)
		}
		return &cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh cursor: %w", err)
	}
	return &cursor, nil
}

// NextSymbol returns the symbol the rotation points at, without advancing
// the cursor. Membership changes resync the cursor's total; crossing back
// to position 1 stamps the cycle bookkeeping. Returns nil when the active
// set is empty.
func (s *RefreshScheduler) NextSymbol() (*models.TrackedSymbol, int, error) {
	symbols, err := s.registry.ListActive()
	if err != nil {
		return nil, 0, err
	}
	if len(symbols) == 0 {
		return nil, 0, nil
	}

	cursor, err := s.Cursor()
	if err != nil {
		return nil, 0, err
	}

	if cursor.TotalSymbols != len(symbols) {
		// Membership changed; a position may skip or repeat one symbol
		// against the new size, which round-robin tolerates.
		cursor.TotalSymbols = len(symbols)
	}

	nextPosition := cursor.Position%cursor.TotalSymbols + 1
	now := s.Now()
	if nextPosition == 1 && cursor.Position > 0 {
		completed := now
		cursor.CycleCompletedAt = &completed
		cursor.CycleCount++
		log.Printf("Completed refresh cycle %d", cursor.CycleCount)
	}
	if nextPosition == 1 {
		started := now
		cursor.CycleStartedAt = &started
	}
	if err := s.db.Save(cursor).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to update refresh cursor: %w", err)
	}

	return &symbols[nextPosition-1], nextPosition, nil
}

// Tick runs one scheduler iteration: no-op while the market is closed,
// otherwise refresh the next symbol in the rotation.
func (s *RefreshScheduler) Tick() error {
	if !s.calendar.IsOpen(s.Now()) {
		return nil
	}

	next, position, err := s.NextSymbol()
	if err != nil {
		return err
	}
	if next == nil {
		log.Println("No active symbols to refresh")
		return nil
	}

	log.Printf("Refreshing %s (position %d)", next.Symbol, position)
	return s.RefreshOne(next.Symbol)
}

// RefreshOne fetches, scores and persists one symbol as part of the
// rotation: the cursor advances only when the whole pipeline succeeds
// (or, on failure, once the skip threshold is reached).
func (s *RefreshScheduler) RefreshOne(symbol string) error {
	return s.refresh(symbol, true)
}

// RefreshManual runs the same pipeline for an administrative refresh
// without touching the rotation cursor.
func (s *RefreshScheduler) RefreshManual(symbol string) error {
	return s.refresh(symbol, false)
}

func (s *RefreshScheduler) refresh(symbol string, advance bool) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return &ValidationError{Msg: "symbol is required"}
	}
	if s.client == nil {
		return &ConfigurationError{Msg: "no market data client configured"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.FetchTimeout)
	defer cancel()

	fetchedAt := s.Now()
	price, err := s.client.FetchQuote(ctx, sym)
	if err != nil {
		return s.fail(sym, advance, &UpstreamFetchError{Symbol: sym, Err: err})
	}
	chain, err := s.client.FetchOptionChain(ctx, sym)
	if err != nil {
		return s.fail(sym, advance, &UpstreamFetchError{Symbol: sym, Err: err})
	}

	eligible := filterChain(chain, price, fetchedAt)
	contracts := make([]models.ContractSnapshot, 0, len(eligible))
	scores := make([]scoring.Score, 0, len(eligible))
	for _, oc := range eligible {
		contracts = append(contracts, contractRow(oc))
		scores = append(scores, s.scorer.Score(scoringContract(oc), price))
	}

	// A failed write leaves the cursor in place so the symbol is retried;
	// the error propagates instead of being absorbed as a symbol failure.
	if _, err := s.store.Save(sym, decimal.NewFromFloat(price), contracts, scores, fetchedAt, SnapshotSource); err != nil {
		return err
	}

	if err := s.registry.RecordSuccess(sym, fetchedAt); err != nil {
		return err
	}
	if advance {
		if err := s.advanceCursor(sym); err != nil {
			return err
		}
	}
	if s.cache != nil {
		s.cache.Invalidate(sym)
	}

	log.Printf("Refreshed %s: price %.2f, %d contracts scored", sym, price, len(contracts))
	return nil
}

// fail records a per-symbol failure and applies the skip policy
func (s *RefreshScheduler) fail(sym string, advance bool, ferr error) error {
	if err := s.registry.RecordFailure(sym, ferr.Error()); err != nil {
		log.Printf("Could not record failure for %s: %v", sym, err)
	}

	if advance && s.MaxConsecutiveFailures > 0 {
		tracked, err := s.registry.Get(sym)
		if err == nil && tracked != nil && tracked.ErrorCount >= s.MaxConsecutiveFailures {
			log.Printf("Symbol %s failed %d consecutive refreshes, skipping ahead", sym, tracked.ErrorCount)
			if err := s.advanceCursor(""); err != nil {
				log.Printf("Could not advance cursor past %s: %v", sym, err)
			}
		}
	}
	return ferr
}

// advanceCursor moves the rotation to the position NextSymbol computed.
// lastSymbol is only stamped for successful refreshes.
func (s *RefreshScheduler) advanceCursor(lastSymbol string) error {
	cursor, err := s.Cursor()
	if err != nil {
		return err
	}
	if cursor.TotalSymbols == 0 {
		return nil
	}

	cursor.Position = cursor.Position%cursor.TotalSymbols + 1
	if lastSymbol != "" {
		cursor.LastSymbol = &lastSymbol
	}
	if err := s.db.Save(cursor).Error; err != nil {
		return fmt.Errorf("failed to advance refresh cursor: %w", err)
	}
	return nil
}

// Status reports the scheduler's view for the status endpoint
func (s *RefreshScheduler) Status() (*SchedulerStatus, error) {
	cursor, err := s.Cursor()
	if err != nil {
		return nil, err
	}
	stats, err := s.registry.Statistics()
	if err != nil {
		return nil, err
	}
	now := s.Now()
	return &SchedulerStatus{
		MarketOpen: s.calendar.IsOpen(now),
		Cursor:     *cursor,
		Statistics: stats,
		Timestamp:  now,
	}, nil
}

// filterChain keeps puts with a strike near the current price and a
// short-dated expiry, the only contracts the ranking cares about.
func filterChain(chain []marketdata.OptionContract, currentPrice float64, now time.Time) []marketdata.OptionContract {
	minStrike := currentPrice * (1 - strikeBandPct)
	maxStrike := currentPrice * (1 + strikeBandPct)

	var eligible []marketdata.OptionContract
	for _, oc := range chain {
		if oc.Strike < minStrike || oc.Strike > maxStrike {
			continue
		}
		if scoring.DaysToExpiry(oc.ExpirationDate, now) > maxChainDte {
			continue
		}
		eligible = append(eligible, oc)
	}
	return eligible
}

func contractRow(oc marketdata.OptionContract) models.ContractSnapshot {
	return models.ContractSnapshot{
		ContractName:      oc.ContractName,
		Strike:            decimal.NewFromFloat(oc.Strike),
		LastPrice:         decimal.NewFromFloat(oc.LastPrice),
		Bid:               decimal.NewFromFloat(oc.Bid),
		Ask:               decimal.NewFromFloat(oc.Ask),
		Volume:            oc.Volume,
		OpenInterest:      oc.OpenInterest,
		ExpirationDate:    oc.ExpirationDate,
		ImpliedVolatility: oc.ImpliedVolatility,
		Delta:             oc.Delta,
		Gamma:             oc.Gamma,
		Theta:             oc.Theta,
	}
}

func scoringContract(oc marketdata.OptionContract) scoring.Contract {
	return scoring.Contract{
		Strike:            oc.Strike,
		Bid:               oc.Bid,
		Ask:               oc.Ask,
		Volume:            oc.Volume,
		OpenInterest:      oc.OpenInterest,
		ExpirationDate:    oc.ExpirationDate,
		ImpliedVolatility: oc.ImpliedVolatility,
		Theta:             oc.Theta,
	}
}
