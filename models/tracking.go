package models

import (
	"time"

	"gorm.io/gorm"
)

// Priority tiers for tracked symbols. Preferred symbols sort ahead of
// standard ones in the round-robin sequence.
const (
	PriorityPreferred = 10
	PriorityStandard  = 5
)

// RefreshCursorID is the fixed primary key of the singleton cursor row
const RefreshCursorID uint = 1

// TrackedSymbol represents a watchlist member eligible for background refresh
type TrackedSymbol struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Symbol          string     `gorm:"uniqueIndex;not null" json:"symbol"`
	IsPreferred     bool       `json:"is_preferred"`
	Priority        int        `json:"priority"` // 10 preferred, 5 standard; never demoted
	LastRefreshedAt *time.Time `json:"last_refreshed_at"`
	LastError       *string    `json:"last_error"`
	ErrorCount      int        `json:"error_count"`
	IsActive        bool       `gorm:"index" json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RefreshCursor is the singleton round-robin state for the background refresh loop.
// Position is 0 before the first successful refresh, otherwise 1..TotalSymbols.
type RefreshCursor struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Position         int        `json:"position"`
	TotalSymbols     int        `json:"total_symbols"`
	LastSymbol       *string    `json:"last_symbol"`
	CycleCount       int        `json:"cycle_count"`
	CycleStartedAt   *time.Time `json:"cycle_started_at"`
	CycleCompletedAt *time.Time `json:"cycle_completed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// MigrateTrackingModels runs database migrations for tracking-related models
func MigrateTrackingModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TrackedSymbol{},
		&RefreshCursor{},
	)
}
