package testing

import (
	"fmt"
	"time"

	"github.com/aristath/tierfolio/internal/domain"
)

// Ptr returns a pointer to v, for optional score and fundamental fields
func Ptr(v float64) *float64 {
	return &v
}

// marketCaps places fixture holdings comfortably inside each tier
var marketCaps = map[domain.Tier]float64{
	domain.TierLarge: 50e9,
	domain.TierMid:   5e9,
	domain.TierSmall: 800e6,
}

// ProfitableHistory returns n periods of 12% profitability
func ProfitableHistory(n int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = 0.12
	}
	return series
}

// HealthyFundamentals passes every strict filter
func HealthyFundamentals() domain.Fundamentals {
	return domain.Fundamentals{
		FreeCashFlow:    Ptr(25e6),
		DebtToEquity:    Ptr(0.3),
		OperatingMargin: Ptr(0.15),
	}
}

// NewHolding returns a holding that classifies as Eligible for tier
func NewHolding(ticker string, tier domain.Tier, shares, price, quality float64) domain.Holding {
	return domain.Holding{
		Ticker:        ticker,
		Shares:        shares,
		CostBasis:     price,
		CurrentPrice:  price,
		MarketCap:     marketCaps[tier],
		QualityScore:  Ptr(quality),
		ThematicScore: Ptr(0),
		Profitability: ProfitableHistory(10),
		Fundamentals:  HealthyFundamentals(),
	}
}

// NewBalancedSnapshot returns a 10,000 EUR portfolio that already matches the
// default policy exactly: 10 LARGE at 6.75%, 5 MID at 4%, 4 SMALL at 1.875%, 5% cash.
func NewBalancedSnapshot() *domain.Snapshot {
	s := &domain.Snapshot{
		AsOf:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Currency: domain.CurrencyEUR,
		Cash:     500,
	}
	for i := 0; i < 10; i++ {
		s.Holdings = append(s.Holdings, NewHolding(fmt.Sprintf("LRG%d", i), domain.TierLarge, 10, 67.5, 60))
	}
	for i := 0; i < 5; i++ {
		s.Holdings = append(s.Holdings, NewHolding(fmt.Sprintf("MID%d", i), domain.TierMid, 10, 40, 60))
	}
	for i := 0; i < 4; i++ {
		s.Holdings = append(s.Holdings, NewHolding(fmt.Sprintf("SML%d", i), domain.TierSmall, 10, 18.75, 60))
	}
	return s
}
