// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Currency represents a currency code
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

// Tier is a market-capitalization allocation bucket.
// Tier order comes from the configured policy set.
type Tier string

const (
	TierLarge Tier = "LARGE"
	TierMid   Tier = "MID"
	TierSmall Tier = "SMALL"
	// TierNone marks a holding with no tier assignment (ineligible or not yet classified)
	TierNone Tier = ""
)

// Fundamentals holds the quality filter inputs used by the lowest tier.
// Nil fields mean the value was not supplied by the data collaborator.
type Fundamentals struct {
	FreeCashFlow    *float64 `json:"free_cash_flow,omitempty" yaml:"free_cash_flow,omitempty"`
	DebtToEquity    *float64 `json:"debt_to_equity,omitempty" yaml:"debt_to_equity,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty" yaml:"operating_margin,omitempty"`
}

// Holding represents one position in the portfolio snapshot together with
// the scores supplied by the scoring collaborators.
type Holding struct {
	Ticker       string  `json:"ticker" yaml:"ticker"`
	Shares       float64 `json:"shares" yaml:"shares"`
	CostBasis    float64 `json:"cost_basis" yaml:"cost_basis"` // per share
	CurrentPrice float64 `json:"current_price" yaml:"current_price"`
	MarketCap    float64 `json:"market_cap" yaml:"market_cap"`

	QualityScore  *float64 `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`   // 0-100
	ThematicScore *float64 `json:"thematic_score,omitempty" yaml:"thematic_score,omitempty"` // 0-50

	// Profitability is time-ordered, oldest first (e.g. 0.12 = 12% return on equity)
	Profitability []float64    `json:"profitability" yaml:"profitability"`
	Fundamentals  Fundamentals `json:"fundamentals" yaml:"fundamentals"`

	// Tier is filled in by the tier classifier
	Tier Tier `json:"tier,omitempty" yaml:"tier,omitempty"`
}

// MarketValue returns shares * current price
func (h Holding) MarketValue() float64 {
	return h.Shares * h.CurrentPrice
}

// Snapshot is the portfolio state consumed by one analysis run.
type Snapshot struct {
	AsOf     time.Time `json:"as_of" yaml:"as_of"`
	Currency Currency  `json:"currency" yaml:"currency"`
	Cash     float64   `json:"cash" yaml:"cash"`
	Holdings []Holding `json:"holdings" yaml:"holdings"`
}

// TotalValue returns the value of all holdings plus cash
func (s *Snapshot) TotalValue() float64 {
	total := s.Cash
	for _, h := range s.Holdings {
		total += h.MarketValue()
	}
	return total
}

// Holding returns a pointer to the holding for ticker, or nil if absent
func (s *Snapshot) Holding(ticker string) *Holding {
	for i := range s.Holdings {
		if s.Holdings[i].Ticker == ticker {
			return &s.Holdings[i]
		}
	}
	return nil
}

// Weights returns ticker -> percent of total portfolio value (0-100)
func (s *Snapshot) Weights() map[string]float64 {
	weights := make(map[string]float64, len(s.Holdings))
	total := s.TotalValue()
	if total <= 0 {
		return weights
	}
	for _, h := range s.Holdings {
		weights[h.Ticker] = h.MarketValue() / total * 100
	}
	return weights
}

// CashPct returns cash as percent of total portfolio value
func (s *Snapshot) CashPct() float64 {
	total := s.TotalValue()
	if total <= 0 {
		return 0
	}
	return s.Cash / total * 100
}

// Clone returns a deep copy of the snapshot
func (s *Snapshot) Clone() *Snapshot {
	clone := *s
	clone.Holdings = make([]Holding, len(s.Holdings))
	for i, h := range s.Holdings {
		h.Profitability = append([]float64(nil), h.Profitability...)
		clone.Holdings[i] = h
	}
	return &clone
}

// ApplyFill applies an executed fill to the snapshot. This is the only
// mutation a snapshot sees during a run.
func (s *Snapshot) ApplyFill(ticker string, action TradeAction, shares, price, fees float64) error {
	if shares <= 0 {
		return fmt.Errorf("fill for %s has non-positive shares %.4f", ticker, shares)
	}
	value := shares * price

	h := s.Holding(ticker)
	switch action {
	case ActionBuy:
		if h == nil {
			s.Holdings = append(s.Holdings, Holding{Ticker: ticker, CurrentPrice: price})
			h = &s.Holdings[len(s.Holdings)-1]
		}
		// weighted cost basis
		totalCost := h.Shares*h.CostBasis + value
		h.Shares += shares
		h.CostBasis = totalCost / h.Shares
		s.Cash -= value + fees
	case ActionSell:
		if h == nil {
			return fmt.Errorf("no holding %s to sell", ticker)
		}
		if shares > h.Shares+1e-9 {
			return fmt.Errorf("SELL quantity (%.2f) exceeds position (%.2f) for %s", shares, h.Shares, ticker)
		}
		h.Shares = math.Max(0, h.Shares-shares)
		s.Cash += value - fees
	default:
		return fmt.Errorf("invalid action: %s (must be BUY or SELL)", action)
	}
	return nil
}
