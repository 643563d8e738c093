package tiers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tierfolio/internal/domain"
)

func ptr(v float64) *float64 {
	return &v
}

func healthyFundamentals() domain.Fundamentals {
	return domain.Fundamentals{
		FreeCashFlow:    ptr(50e6),
		DebtToEquity:    ptr(0.4),
		OperatingMargin: ptr(0.18),
	}
}

func profitable(n int) []float64 {
	series := make([]float64, n)
	for i := range series {
		series[i] = 0.12
	}
	return series
}

func newTestClassifier() *Classifier {
	return NewClassifier(DefaultPolicySet(), zerolog.Nop())
}

func TestTrailingStreak(t *testing.T) {
	assert.Equal(t, 0, TrailingStreak(nil, 0.05))
	assert.Equal(t, 3, TrailingStreak([]float64{0.1, 0.01, 0.2, 0.3, 0.06}, 0.05))
	assert.Equal(t, 0, TrailingStreak([]float64{0.1, 0.2, 0.05}, 0.05))
	assert.Equal(t, 4, TrailingStreak(profitable(4), 0.05))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		holding domain.Holding
		want    Eligibility
	}{
		{
			name:    "large cap with full window",
			holding: domain.Holding{Ticker: "AAPL", MarketCap: 3e12, QualityScore: ptr(80), ThematicScore: ptr(20), Profitability: profitable(10)},
			want:    Eligible{Tier: domain.TierLarge},
		},
		{
			name:    "mid cap with full window",
			holding: domain.Holding{Ticker: "MID", MarketCap: 5e9, QualityScore: ptr(60), ThematicScore: ptr(20), Profitability: profitable(5)},
			want:    Eligible{Tier: domain.TierMid},
		},
		{
			name: "large cap downgraded to mid",
			holding: domain.Holding{
				Ticker: "DOWN", MarketCap: 50e9, QualityScore: ptr(70), ThematicScore: ptr(20),
				Profitability: append([]float64{0.1, 0.1, -0.02}, profitable(6)...),
			},
			want: Downgraded{From: domain.TierLarge, To: domain.TierMid},
		},
		{
			name: "mid cap downgraded to small passes strict filters",
			holding: domain.Holding{
				Ticker: "MS", MarketCap: 3e9, QualityScore: ptr(70), ThematicScore: ptr(20),
				Profitability: []float64{0.01, 0.1, 0.1, 0.1, 0.1},
				Fundamentals:  healthyFundamentals(),
			},
			want: Downgraded{From: domain.TierMid, To: domain.TierSmall},
		},
		{
			name: "large cap failing both windows",
			holding: domain.Holding{
				Ticker: "BAD", MarketCap: 50e9, QualityScore: ptr(90), ThematicScore: ptr(20),
				Profitability: []float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1, 0.2, 0.01, 0.1, 0.1},
			},
			want: Ineligible{
				Reason: ReasonInsufficientHistory,
				Detail: "profitable streak of 2 periods below the 8 required for LARGE",
			},
		},
		{
			name:    "history shorter than any window",
			holding: domain.Holding{Ticker: "NEW", MarketCap: 50e9, QualityScore: ptr(90), ThematicScore: ptr(20), Profitability: profitable(2)},
			want: Ineligible{
				Reason: ReasonInsufficientHistory,
				Detail: "2 periods of history, at least 3 required",
			},
		},
		{
			name:    "missing quality score",
			holding: domain.Holding{Ticker: "NOQ", MarketCap: 50e9, Profitability: profitable(10)},
			want:    Ineligible{Reason: ReasonMissingData, Detail: "quality score not supplied"},
		},
		{
			name:    "missing thematic score",
			holding: domain.Holding{Ticker: "NOT", MarketCap: 50e9, QualityScore: ptr(90), Profitability: profitable(10)},
			want:    Ineligible{Reason: ReasonMissingData, Detail: "thematic score not supplied"},
		},
		{
			name:    "below tier floor",
			holding: domain.Holding{Ticker: "MICRO", MarketCap: 100e6, QualityScore: ptr(90), ThematicScore: ptr(20), Profitability: profitable(10)},
			want:    Ineligible{Reason: ReasonBelowTierFloor, Detail: "market cap 100.0M below floor 300.0M"},
		},
		{
			name: "small cap with healthy fundamentals",
			holding: domain.Holding{
				Ticker: "SML", MarketCap: 800e6, QualityScore: ptr(65), ThematicScore: ptr(20),
				Profitability: profitable(3), Fundamentals: healthyFundamentals(),
			},
			want: Eligible{Tier: domain.TierSmall},
		},
	}

	c := newTestClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.holding))
		})
	}
}

func TestClassify_SmallCapNegativeFreeCashFlow(t *testing.T) {
	c := newTestClassifier()

	f := healthyFundamentals()
	f.FreeCashFlow = ptr(-2_000_000)
	h := domain.Holding{
		Ticker: "BURN", MarketCap: 600e6, QualityScore: ptr(100), ThematicScore: ptr(20),
		Profitability: profitable(12), Fundamentals: f,
	}

	e := c.Classify(h)
	require.Equal(t, KindIneligible, e.Kind())

	inel, ok := e.(Ineligible)
	require.True(t, ok)
	assert.Equal(t, ReasonFailedStrictFilter, inel.Reason)
	assert.Equal(t, "free cash flow -2,000,000 is not positive", inel.Detail)

	_, assigned := e.AssignedTier()
	assert.False(t, assigned)
}

func TestCheckStrictFilters(t *testing.T) {
	filters := *DefaultPolicySet().Tiers[2].StrictFilters

	tests := []struct {
		name   string
		mutate func(f *domain.Fundamentals)
		want   string
	}{
		{name: "all pass", mutate: func(f *domain.Fundamentals) {}, want: ""},
		{name: "missing fcf", mutate: func(f *domain.Fundamentals) { f.FreeCashFlow = nil }, want: "free cash flow not supplied"},
		{name: "zero fcf", mutate: func(f *domain.Fundamentals) { f.FreeCashFlow = ptr(0) }, want: "free cash flow 0 is not positive"},
		{name: "high leverage", mutate: func(f *domain.Fundamentals) { f.DebtToEquity = ptr(1.0) }, want: "debt-to-equity 1.00 not below 1.00"},
		{name: "missing leverage", mutate: func(f *domain.Fundamentals) { f.DebtToEquity = nil }, want: "debt-to-equity not supplied"},
		{name: "thin margin", mutate: func(f *domain.Fundamentals) { f.OperatingMargin = ptr(0.03) }, want: "operating margin 3.0% not above 5.0%"},
		{name: "missing margin", mutate: func(f *domain.Fundamentals) { f.OperatingMargin = nil }, want: "operating margin not supplied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := healthyFundamentals()
			tt.mutate(&f)
			assert.Equal(t, tt.want, CheckStrictFilters(f, filters))
		})
	}
}

func TestClassifyAll_AndGroup(t *testing.T) {
	c := newTestClassifier()
	holdings := []domain.Holding{
		{Ticker: "B", MarketCap: 50e9, QualityScore: ptr(70), ThematicScore: ptr(20), Profitability: profitable(8)},
		{Ticker: "A", MarketCap: 50e9, QualityScore: ptr(70), ThematicScore: ptr(20), Profitability: profitable(8)},
		{Ticker: "M", MarketCap: 4e9, QualityScore: ptr(70), ThematicScore: ptr(20), Profitability: profitable(6)},
		{Ticker: "X", MarketCap: 4e9, Profitability: profitable(6)},
		{Ticker: "T", MarketCap: 4e9, QualityScore: ptr(70), Profitability: profitable(6)},
	}

	results := c.ClassifyAll(holdings)
	require.Len(t, results, 5)
	assert.Equal(t, KindIneligible, results["X"].Kind())
	assert.Equal(t, KindIneligible, results["T"].Kind())

	groups := Group(results)
	assert.Equal(t, []string{"A", "B"}, groups[domain.TierLarge])
	assert.Equal(t, []string{"M"}, groups[domain.TierMid])
	assert.Empty(t, groups[domain.TierSmall])
}

func TestRecordRoundTrip(t *testing.T) {
	variants := []Eligibility{
		Eligible{Tier: domain.TierLarge},
		Downgraded{From: domain.TierMid, To: domain.TierSmall},
		Ineligible{Reason: ReasonMissingData, Detail: "quality score not supplied"},
	}
	for _, v := range variants {
		assert.Equal(t, v, ToRecord(v).Eligibility())
	}
}
