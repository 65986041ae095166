package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"options_watchlist_backend/models"
	"options_watchlist_backend/scoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// dedupThresholdPct is the minimum price move (percent) that keeps two
// snapshots in the same calendar-hour bucket distinct in GetRecent.
var dedupThresholdPct = decimal.NewFromFloat(0.1)

// SnapshotStore persists immutable (price, contracts, scores) snapshots
// and serves the recency and trend queries of the read path.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a store over the given database
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SnapshotDetail is one stock snapshot with its contracts, each carrying
// its score, ordered by total score descending.
type SnapshotDetail struct {
	Snapshot  models.StockSnapshot      `json:"snapshot"`
	Contracts []models.ContractSnapshot `json:"contracts"`
}

// DailyPerformance aggregates one trailing-window calendar day (UTC)
type DailyPerformance struct {
	Date          string  `json:"date"`
	MinPrice      float64 `json:"min_price"`
	MaxPrice      float64 `json:"max_price"`
	AvgPrice      float64 `json:"avg_price"`
	MaxTopScore   float64 `json:"max_top_score"`
	AvgTopScore   float64 `json:"avg_top_score"`
	ContractCount int     `json:"contract_count"`
	SnapshotCount int     `json:"snapshot_count"`
}

// Save atomically writes one stock snapshot, its contract rows and their
// score rows, index-aligned. Nothing is written when contracts and scores
// disagree in length; a failure inside the transaction rolls every row
// back so an orphan stock snapshot can never be observed.
func (s *SnapshotStore) Save(symbol string, price decimal.Decimal, contracts []models.ContractSnapshot, scores []scoring.Score, fetchedAt time.Time, source string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", &ValidationError{Msg: "symbol is required"}
	}
	if len(contracts) != len(scores) {
		return "", &ValidationError{Msg: fmt.Sprintf(
			"mismatched contract and score counts: %d vs %d", len(contracts), len(scores))}
	}

	snapshotID := uuid.NewString()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		snap := models.StockSnapshot{
			ID:        snapshotID,
			Symbol:    sym,
			Price:     price,
			FetchedAt: fetchedAt,
			Source:    source,
		}
		if err := tx.Create(&snap).Error; err != nil {
			return err
		}

		for i := range contracts {
			contract := contracts[i]
			contract.ID = uuid.NewString()
			contract.SnapshotID = snapshotID
			if err := tx.Create(&contract).Error; err != nil {
				return err
			}

			score := scores[i]
			row := models.ScoreSnapshot{
				ID:                 uuid.NewString(),
				ContractSnapshotID: contract.ID,
				Total:              score.Total,
				PremiumScore:       score.PremiumScore,
				ThetaScore:         score.ThetaScore,
				StrikeScore:        score.StrikeScore,
				DteScore:           score.DteScore,
				IvScore:            score.IvScore,
				LiquidityScore:     score.LiquidityScore,
				SpreadPenalty:      score.SpreadPenalty,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", &PersistenceError{Op: "save snapshot", Err: err}
	}
	return snapshotID, nil
}

// GetLatest returns the most recent snapshot for a symbol together with
// its contracts and scores, ranked best-first. A symbol with no snapshot
// yet yields (nil, nil): no data is not an error.
func (s *SnapshotStore) GetLatest(symbol string) (*SnapshotDetail, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	var snap models.StockSnapshot
	err := s.db.Where("symbol = ?", sym).
		Order("fetched_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot for %s: %w", sym, err)
	}

	contracts, err := s.contractsFor(snap.ID)
	if err != nil {
		return nil, err
	}
	return &SnapshotDetail{Snapshot: snap, Contracts: contracts}, nil
}

// contractsFor loads a snapshot's contracts with scores, best score first.
// Contracts without a score sort last.
func (s *SnapshotStore) contractsFor(snapshotID string) ([]models.ContractSnapshot, error) {
	var contracts []models.ContractSnapshot
	err := s.db.Preload("Score").
		Where("snapshot_id = ?", snapshotID).
		Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load contracts for snapshot %s: %w", snapshotID, err)
	}

	sort.SliceStable(contracts, func(i, j int) bool {
		si, sj := contracts[i].Score, contracts[j].Score
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return si.Total > sj.Total
	})
	return contracts, nil
}

// GetRecent returns up to limit recent snapshots for a symbol, newest
// first, deduplicated: within the same UTC calendar-hour bucket a
// snapshot whose price moved less than 0.1% against the latest kept one
// is collapsed away, while moves of 0.1% or more stay distinct.
func (s *SnapshotStore) GetRecent(symbol string, limit int) ([]models.StockSnapshot, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if limit <= 0 {
		limit = 10
	}

	// Over-fetch because dedup may collapse several raw rows per hour.
	var rows []models.StockSnapshot
	err := s.db.Where("symbol = ?", sym).
		Order("fetched_at DESC").
		Limit(limit * 10).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent snapshots for %s: %w", sym, err)
	}

	kept := make([]models.StockSnapshot, 0, limit)
	for _, row := range rows {
		if len(kept) > 0 && collapses(kept[len(kept)-1], row) {
			continue
		}
		kept = append(kept, row)
		if len(kept) == limit {
			break
		}
	}
	return kept, nil
}

// collapses reports whether candidate (the older row) should fold into
// kept: same UTC hour bucket and a relative price move under 0.1%.
func collapses(kept, candidate models.StockSnapshot) bool {
	keptHour := kept.FetchedAt.UTC().Truncate(time.Hour)
	candHour := candidate.FetchedAt.UTC().Truncate(time.Hour)
	if !keptHour.Equal(candHour) {
		return false
	}
	if kept.Price.IsZero() {
		return candidate.Price.IsZero()
	}
	movePct := candidate.Price.Sub(kept.Price).Abs().
		Div(kept.Price.Abs()).
		Mul(decimal.NewFromInt(100))
	return movePct.LessThan(dedupThresholdPct)
}

// GetPerformance aggregates the trailing windowDays of snapshots per UTC
// calendar day: price range, top-score statistics, distinct contract
// count and snapshot count. Days are returned newest first.
func (s *SnapshotStore) GetPerformance(symbol string, windowDays int) ([]DailyPerformance, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if windowDays <= 0 {
		windowDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)

	var snaps []models.StockSnapshot
	err := s.db.Preload("Contracts.Score").
		Where("symbol = ? AND fetched_at >= ?", sym, cutoff).
		Order("fetched_at DESC").
		Find(&snaps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load performance window for %s: %w", sym, err)
	}

	type dayAccum struct {
		minPrice, maxPrice float64
		sumPrice           float64
		maxTop, sumTop     float64
		contractNames      map[string]bool
		snapshots          int
	}
	days := make(map[string]*dayAccum)
	var order []string

	for _, snap := range snaps {
		date := snap.FetchedAt.UTC().Format("2006-01-02")
		acc, ok := days[date]
		if !ok {
			acc = &dayAccum{contractNames: make(map[string]bool)}
			days[date] = acc
			order = append(order, date)
		}

		price := snap.Price.InexactFloat64()
		if acc.snapshots == 0 || price < acc.minPrice {
			acc.minPrice = price
		}
		if price > acc.maxPrice {
			acc.maxPrice = price
		}
		acc.sumPrice += price

		var top float64
		for _, contract := range snap.Contracts {
			acc.contractNames[contract.ContractName] = true
			if contract.Score != nil && contract.Score.Total > top {
				top = contract.Score.Total
			}
		}
		if top > acc.maxTop {
			acc.maxTop = top
		}
		acc.sumTop += top
		acc.snapshots++
	}

	result := make([]DailyPerformance, 0, len(order))
	for _, date := range order {
		acc := days[date]
		n := float64(acc.snapshots)
		result = append(result, DailyPerformance{
			Date:          date,
			MinPrice:      acc.minPrice,
			MaxPrice:      acc.maxPrice,
			AvgPrice:      acc.sumPrice / n,
			MaxTopScore:   acc.maxTop,
			AvgTopScore:   acc.sumTop / n,
			ContractCount: len(acc.contractNames),
			SnapshotCount: acc.snapshots,
		})
	}
	return result, nil
}
