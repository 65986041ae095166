package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockSnapshot is an immutable point-in-time record of a symbol's price.
// Snapshot rows are never updated or deleted once written.
type StockSnapshot struct {
	ID        string          `gorm:"primaryKey;size:36" json:"id"`
	Symbol    string          `gorm:"index:idx_snapshot_symbol_fetched;not null" json:"symbol"`
	Price     decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	FetchedAt time.Time       `gorm:"index:idx_snapshot_symbol_fetched" json:"fetched_at"`
	Source    string          `json:"source"` // upstream provider, e.g. "finnhub"
	CreatedAt time.Time       `json:"created_at"`

	Contracts []ContractSnapshot `gorm:"foreignKey:SnapshotID" json:"contracts,omitempty"`
}

// ContractSnapshot is one put contract observed in a stock snapshot
type ContractSnapshot struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	SnapshotID        string          `gorm:"index;size:36;not null" json:"snapshot_id"`
	ContractName      string          `json:"contract_name"`
	Strike            decimal.Decimal `gorm:"type:decimal(15,4)" json:"strike"`
	LastPrice         decimal.Decimal `gorm:"type:decimal(15,4)" json:"last_price"`
	Bid               decimal.Decimal `gorm:"type:decimal(15,4)" json:"bid"`
	Ask               decimal.Decimal `gorm:"type:decimal(15,4)" json:"ask"`
	Volume            int64           `json:"volume"`
	OpenInterest      int64           `json:"open_interest"`
	ExpirationDate    time.Time       `gorm:"type:date" json:"expiration_date"`
	ImpliedVolatility float64         `json:"implied_volatility"`
	Delta             *float64        `json:"delta"`
	Gamma             *float64        `json:"gamma"`
	Theta             *float64        `json:"theta"`
	CreatedAt         time.Time       `json:"created_at"`

	Score *ScoreSnapshot `gorm:"foreignKey:ContractSnapshotID" json:"score,omitempty"`
}

// ScoreSnapshot is the composite score computed for one contract snapshot (1:1)
type ScoreSnapshot struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	ContractSnapshotID string    `gorm:"uniqueIndex;size:36;not null" json:"contract_snapshot_id"`
	Total              float64   `json:"total"`
	PremiumScore       float64   `json:"premium_score"`
	ThetaScore         float64   `json:"theta_score"`
	StrikeScore        float64   `json:"strike_score"`
	DteScore           float64   `json:"dte_score"`
	IvScore            float64   `json:"iv_score"`
	LiquidityScore     float64   `json:"liquidity_score"`
	SpreadPenalty      float64   `json:"spread_penalty"`
	CreatedAt          time.Time `json:"created_at"`
}

// MigrateSnapshotModels runs database migrations for snapshot models
func MigrateSnapshotModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&StockSnapshot{},
		&ContractSnapshot{},
		&ScoreSnapshot{},
	)
}
