package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"options_watchlist_backend/models"

	"gorm.io/gorm"
)

// SymbolRegistry owns watchlist membership, priority tiers and the
// per-symbol error/refresh bookkeeping the background scheduler relies on.
type SymbolRegistry struct {
	db *gorm.DB
}

// NewSymbolRegistry creates a registry over the given database
func NewSymbolRegistry(db *gorm.DB) *SymbolRegistry {
	return &SymbolRegistry{db: db}
}

// RegistryStatistics summarizes the tracked-symbol table for the status endpoint
type RegistryStatistics struct {
	TotalSymbols      int64      `json:"total_symbols"`
	ActiveSymbols     int64      `json:"active_symbols"`
	PreferredSymbols  int64      `json:"preferred_symbols"`
	SymbolsWithErrors int64      `json:"symbols_with_errors"`
	SymbolsRefreshed  int64      `json:"symbols_refreshed"`
	MostRecentRefresh *time.Time `json:"most_recent_refresh"`
	OldestRefresh     *time.Time `json:"oldest_refresh"`
}

// AddOrUpdate registers a symbol for tracking, case-insensitively.
// The preferred tier can only be promoted by a later call, never demoted:
// re-registering a preferred symbol as non-preferred keeps priority 10.
// A deactivated symbol is reactivated by re-registration.
func (r *SymbolRegistry) AddOrUpdate(symbol string, isPreferred bool) (*models.TrackedSymbol, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return nil, &ValidationError{Msg: "symbol is required"}
	}

	var tracked models.TrackedSymbol
	err := r.db.Where("symbol = ?", sym).First(&tracked).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tracked = models.TrackedSymbol{
			Symbol:      sym,
			IsPreferred: isPreferred,
			Priority:    priorityFor(isPreferred),
			IsActive:    true,
		}
		if err := r.db.Create(&tracked).Error; err != nil {
			return nil, fmt.Errorf("failed to create tracked symbol %s: %w", sym, err)
		}
		log.Printf("Tracking new symbol %s (preferred: %v)", sym, isPreferred)
		return &tracked, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked symbol %s: %w", sym, err)
	}

	if isPreferred && !tracked.IsPreferred {
		tracked.IsPreferred = true
		tracked.Priority = models.PriorityPreferred
	}
	tracked.IsActive = true
	if err := r.db.Save(&tracked).Error; err != nil {
		return nil, fmt.Errorf("failed to update tracked symbol %s: %w", sym, err)
	}
	return &tracked, nil
}

// Get returns one tracked symbol, or nil if it is unknown
func (r *SymbolRegistry) Get(symbol string) (*models.TrackedSymbol, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	var tracked models.TrackedSymbol
	err := r.db.Where("symbol = ?", sym).First(&tracked).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked symbol %s: %w", sym, err)
	}
	return &tracked, nil
}

// ListActive returns active symbols ordered by (priority descending,
// symbol ascending). This ordering is the canonical round-robin sequence
// and is stable as long as membership is unchanged.
func (r *SymbolRegistry) ListActive() ([]models.TrackedSymbol, error) {
	var symbols []models.TrackedSymbol
	err := r.db.Where("is_active = ?", true).
		Order("priority DESC, symbol ASC").
		Find(&symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active symbols: %w", err)
	}
	return symbols, nil
}

// RecordSuccess clears the error fields and stamps the refresh time
func (r *SymbolRegistry) RecordSuccess(symbol string, at time.Time) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	err := r.db.Model(&models.TrackedSymbol{}).
		Where("symbol = ?", sym).
		Updates(map[string]interface{}{
			"last_refreshed_at": at,
			"last_error":        nil,
			"error_count":       0,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record success for %s: %w", sym, err)
	}
	return nil
}

// RecordFailure increments the error counter and stores the message.
// Symbols are never deactivated automatically; the scheduler decides
// what to do with persistently failing ones.
func (r *SymbolRegistry) RecordFailure(symbol, message string) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	err := r.db.Model(&models.TrackedSymbol{}).
		Where("symbol = ?", sym).
		Updates(map[string]interface{}{
			"error_count": gorm.Expr("error_count + 1"),
			"last_error":  message,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", sym, err)
	}
	return nil
}

// Deactivate removes a symbol from the rotation without deleting its
// history. The row stays in place so snapshots keep their context.
func (r *SymbolRegistry) Deactivate(symbol string) error {
	sym := strings.ToUpper(strings.TrimSpace(symbol))

	result := r.db.Model(&models.TrackedSymbol{}).
		Where("symbol = ?", sym).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate %s: %w", sym, result.Error)
	}
	if result.RowsAffected == 0 {
		return &ValidationError{Msg: fmt.Sprintf("symbol %s is not tracked", sym)}
	}
	return nil
}

// Statistics aggregates the tracking table for the refresh status endpoint
func (r *SymbolRegistry) Statistics() (*RegistryStatistics, error) {
	stats := &RegistryStatistics{}
	table := r.db.Model(&models.TrackedSymbol{})

	if err := table.Count(&stats.TotalSymbols).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate symbol statistics: %w", err)
	}
	r.db.Model(&models.TrackedSymbol{}).Where("is_active = ?", true).Count(&stats.ActiveSymbols)
	r.db.Model(&models.TrackedSymbol{}).Where("is_preferred = ?", true).Count(&stats.PreferredSymbols)
	r.db.Model(&models.TrackedSymbol{}).Where("error_count > 0").Count(&stats.SymbolsWithErrors)
	r.db.Model(&models.TrackedSymbol{}).Where("last_refreshed_at IS NOT NULL").Count(&stats.SymbolsRefreshed)

	var newest models.TrackedSymbol
	if err := r.db.Where("last_refreshed_at IS NOT NULL").
		Order("last_refreshed_at DESC").First(&newest).Error; err == nil {
		stats.MostRecentRefresh = newest.LastRefreshedAt
	}
	var oldest models.TrackedSymbol
	if err := r.db.Where("last_refreshed_at IS NOT NULL").
		Order("last_refreshed_at ASC").First(&oldest).Error; err == nil {
		stats.OldestRefresh = oldest.LastRefreshedAt
	}

	return stats, nil
}

func priorityFor(isPreferred bool) int {
	if isPreferred {
		return models.PriorityPreferred
	}
	return models.PriorityStandard
}
