package scoring

import (
	"math"
	"time"
)

// Factor weights for the composite contract score. They sum to 100; the
// spread penalty is subtracted after the factors are summed.
const (
	WeightPremium   = 25.0
	WeightTheta     = 20.0
	WeightStrike    = 15.0
	WeightDte       = 15.0
	WeightIv        = 15.0
	WeightLiquidity = 10.0

	MaxSpreadPenalty = 15.0
)

// Contract carries the fields of a put contract the scorer evaluates
type Contract struct {
	Strike            float64
	Bid               float64
	Ask               float64
	Volume            int64
	OpenInterest      int64
	ExpirationDate    time.Time
	ImpliedVolatility float64 // percent, e.g. 40 for 40%
	Theta             *float64
}

// Score is a composite 0-100 result with its per-factor breakdown.
// All values are rounded to 2 decimal places.
type Score struct {
	Total          float64 `json:"total"`
	PremiumScore   float64 `json:"premium_score"`
	ThetaScore     float64 `json:"theta_score"`
	StrikeScore    float64 `json:"strike_score"`
	DteScore       float64 `json:"dte_score"`
	IvScore        float64 `json:"iv_score"`
	LiquidityScore float64 `json:"liquidity_score"`
	SpreadPenalty  float64 `json:"spread_penalty"`
}

// Engine computes composite contract scores. Now is injectable because the
// days-to-expiry factor depends on wall-clock time.
type Engine struct {
	Now func() time.Time
}

// NewEngine creates a scoring engine using the real clock
func NewEngine() *Engine {
	return &Engine{Now: time.Now}
}

// DaysToExpiry returns the number of days until expiry, rounded up
func DaysToExpiry(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// Score evaluates one put contract against the current underlying price
func (e *Engine) Score(c Contract, currentPrice float64) Score {
	dte := DaysToExpiry(c.ExpirationDate, e.Now())

	s := Score{
		PremiumScore:   round2(premiumScore(c.Bid, c.Strike)),
		ThetaScore:     round2(thetaScore(c.Theta)),
		StrikeScore:    round2(strikeScore(c.Strike, currentPrice)),
		DteScore:       round2(dteScore(dte)),
		IvScore:        round2(ivScore(c.ImpliedVolatility)),
		LiquidityScore: round2(liquidityScore(c.OpenInterest, c.Volume)),
		SpreadPenalty:  round2(spreadPenalty(c.Bid, c.Ask)),
	}

	total := s.PremiumScore + s.ThetaScore + s.StrikeScore + s.DteScore +
		s.IvScore + s.LiquidityScore - s.SpreadPenalty
	s.Total = round2(clamp(total, 0, 100))
	return s
}

// premiumScore rewards premium collected relative to the strike.
// Capped at a 10% premium so deep-in-the-money quotes cannot dominate.
func premiumScore(bid, strike float64) float64 {
	if strike <= 0 {
		return 0
	}
	premiumPct := bid / strike * 100
	return math.Min(WeightPremium, math.Log(1+math.Min(premiumPct, 10))*8)
}

// thetaScore rewards time decay up to -0.1/day; absent theta scores 0
func thetaScore(theta *float64) float64 {
	if theta == nil {
		return 0
	}
	return math.Min(WeightTheta, math.Abs(clamp(*theta, -0.1, 0))*200)
}

// strikeScore rewards strikes close to the current price; each 1% of
// distance costs 1.5 points.
func strikeScore(strike, currentPrice float64) float64 {
	if currentPrice <= 0 {
		return 0
	}
	return math.Max(0, WeightStrike-math.Abs(1-strike/currentPrice)*150)
}

// dteScore peaks across the 30-45 day window and falls off on both sides,
// faster toward short expiries than long ones.
func dteScore(dte int) float64 {
	d := float64(dte)
	var s float64
	switch {
	case d < 25:
		s = WeightDte - (25-d)*1.5
	case d < 30:
		s = WeightDte - (30-d)*0.8
	case d <= 45:
		s = WeightDte - math.Abs(d-37.5)*0.2
	case d <= 50:
		s = WeightDte - (d-45)*0.8
	default:
		s = WeightDte - (d-50)*0.5
	}
	return math.Max(0, s)
}

// ivScore scales implied volatility against a 60% reference point
func ivScore(iv float64) float64 {
	return math.Min(WeightIv, math.Min(iv, 100)/60*WeightIv)
}

// liquidityScore weighs open interest over volume on a log scale,
// normalized so 10000 weighted contracts reach full marks.
func liquidityScore(openInterest, volume int64) float64 {
	weighted := float64(openInterest)*0.8 + float64(volume)*0.2
	if weighted < 0 {
		weighted = 0
	}
	return math.Min(WeightLiquidity, math.Log(1+weighted)/math.Log(1+10000)*WeightLiquidity)
}

// spreadPenalty charges for bid/ask spreads wider than 8% of the ask
func spreadPenalty(bid, ask float64) float64 {
	if ask == 0 {
		return 0
	}
	spreadPct := (ask - bid) / ask
	if spreadPct <= 0.08 {
		return 0
	}
	return math.Min(MaxSpreadPenalty, (spreadPct-0.08)*200)
}

// Classify maps a total score onto its quality band
func Classify(total float64) string {
	switch {
	case total >= 80:
		return "excellent"
	case total >= 65:
		return "good"
	case total >= 50:
		return "moderate"
	case total >= 35:
		return "weak"
	default:
		return "poor"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
