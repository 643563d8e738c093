package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/allocation"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// Trade reasons
const (
	ReasonTierCapExceeded = "tier cap exceeded"
	ReasonTierTarget      = "scaling to tier target"
	ReasonStrategicTilt   = "strategic tilt within tolerance"
)

// Config holds generator settings
type Config struct {
	// MinTradeValue discards trades smaller than this, in portfolio currency
	MinTradeValue float64 `json:"min_trade_value"`
	// DriftTolerancePct is the position drift, in percentage points, treated as a tilt
	DriftTolerancePct float64 `json:"drift_tolerance_pct"`
	// TierTolerancePct is the tier deviation beyond which all tier trades are corrective
	TierTolerancePct float64 `json:"tier_tolerance_pct"`
}

// DefaultConfig returns defaults for a €2 + 0.2% commission schedule
func DefaultConfig() Config {
	return Config{
		MinTradeValue:     CalculateMinTradeAmount(2.0, 0.002, DefaultMaxCostRatio),
		DriftTolerancePct: 2,
		TierTolerancePct:  5,
	}
}

// SkippedTrade is a candidate trade that was not recommended, with the reason
type SkippedTrade struct {
	Trade  domain.Trade `json:"trade" msgpack:"trade"`
	Reason string       `json:"reason" msgpack:"reason"`
}

// Result is the generator output
type Result struct {
	Trades         []domain.Trade `json:"trades" msgpack:"trades"`
	Skipped        []SkippedTrade `json:"skipped" msgpack:"skipped"`
	PortfolioValue float64        `json:"portfolio_value" msgpack:"portfolio_value"`
}

// Generator turns the gap between current holdings and the plan into trades
type Generator struct {
	policies tiers.PolicySet
	cfg      Config
	log      zerolog.Logger
}

// NewGenerator creates a new rebalancing trade generator
func NewGenerator(policies tiers.PolicySet, cfg Config, log zerolog.Logger) *Generator {
	return &Generator{
		policies: policies,
		cfg:      cfg,
		log:      log.With().Str("component", "trade_generator").Logger(),
	}
}

// Generate produces recommendations for every ticker that is held or targeted.
// Trades are ordered SELL before BUY, then by priority, then by ticker.
func (g *Generator) Generate(
	snapshot *domain.Snapshot,
	eligibility map[string]tiers.Eligibility,
	plan allocation.Plan,
) Result {
	result := Result{PortfolioValue: snapshot.TotalValue()}
	if result.PortfolioValue <= 0 {
		g.log.Warn().Msg("Portfolio has no value, nothing to rebalance")
		return result
	}

	weights := snapshot.Weights()
	tierDeviation := make(map[domain.Tier]float64, len(g.policies.Tiers))
	for _, ta := range allocation.CalculateTierAllocation(snapshot, eligibility, plan, g.policies) {
		tierDeviation[ta.Tier] = ta.Deviation
	}

	for _, ticker := range g.candidateTickers(snapshot, plan) {
		h := snapshot.Holding(ticker)
		if h == nil {
			result.Skipped = append(result.Skipped, SkippedTrade{
				Trade:  domain.Trade{Ticker: ticker, Action: domain.ActionBuy, Rule: domain.RuleMissingPrice, Status: domain.StatusRejected},
				Reason: "no snapshot price for targeted ticker",
			})
			continue
		}

		if inel, ok := eligibility[ticker].(tiers.Ineligible); ok {
			if h.Shares > 0 {
				result.Trades = append(result.Trades, g.exitTrade(h, inel))
			}
			continue
		}

		trade, skip, ok := g.rebalanceTrade(h, weights[ticker], plan, tierDeviation, result.PortfolioValue, snapshot.Currency, eligibility[ticker])
		if skip != nil {
			result.Skipped = append(result.Skipped, *skip)
			continue
		}
		if ok {
			result.Trades = append(result.Trades, trade)
		}
	}

	domain.SortForExecution(result.Trades)

	g.log.Info().
		Int("trades", len(result.Trades)).
		Int("skipped", len(result.Skipped)).
		Float64("portfolio_value", result.PortfolioValue).
		Msg("Rebalancing trades generated")

	return result
}

// candidateTickers returns held ∪ targeted tickers, sorted
func (g *Generator) candidateTickers(snapshot *domain.Snapshot, plan allocation.Plan) []string {
	seen := make(map[string]bool, len(snapshot.Holdings)+len(plan.Targets))
	var tickers []string
	for _, h := range snapshot.Holdings {
		if !seen[h.Ticker] {
			seen[h.Ticker] = true
			tickers = append(tickers, h.Ticker)
		}
	}
	for ticker := range plan.Targets {
		if !seen[ticker] {
			seen[ticker] = true
			tickers = append(tickers, ticker)
		}
	}
	sort.Strings(tickers)
	return tickers
}

// exitTrade sells the entire position of an ineligible holding.
// Forced exits bypass the minimum trade value.
func (g *Generator) exitTrade(h *domain.Holding, inel tiers.Ineligible) domain.Trade {
	reasoning := inel.Reason
	if inel.Detail != "" {
		reasoning = fmt.Sprintf("%s (%s)", inel.Reason, inel.Detail)
	}

	g.log.Debug().
		Str("ticker", h.Ticker).
		Float64("shares", h.Shares).
		Str("reason", inel.Reason).
		Msg("Forced exit for ineligible holding")

	return domain.Trade{
		ID:        uuid.New().String(),
		Ticker:    h.Ticker,
		Action:    domain.ActionSell,
		Shares:    h.Shares,
		Price:     h.CurrentPrice,
		Priority:  domain.PriorityHigh,
		Reasoning: reasoning,
		Rule:      domain.RuleIneligibleExit,
		Tier:      h.Tier,
		Status:    domain.StatusPending,
	}
}

// rebalanceTrade sizes a trade toward the plan target for an eligible holding.
// Returns ok=false when no whole-share trade is needed.
func (g *Generator) rebalanceTrade(
	h *domain.Holding,
	currentPct float64,
	plan allocation.Plan,
	tierDeviation map[domain.Tier]float64,
	portfolioValue float64,
	currency domain.Currency,
	eligibility tiers.Eligibility,
) (domain.Trade, *SkippedTrade, bool) {
	targetPct := plan.Targets[h.Ticker]
	tier := plan.TickerTiers[h.Ticker]

	trade := domain.Trade{
		Ticker: h.Ticker,
		Price:  h.CurrentPrice,
		Tier:   tier,
		Status: domain.StatusPending,
	}

	if h.CurrentPrice <= 0 {
		trade.Action = domain.ActionBuy
		trade.Rule = domain.RuleMissingPrice
		trade.Status = domain.StatusRejected
		return trade, &SkippedTrade{Trade: trade, Reason: "no positive price to size the trade"}, false
	}

	deltaValue := targetPct/100*portfolioValue - h.MarketValue()
	shares := WholeShares(deltaValue, h.CurrentPrice)
	if shares == 0 {
		if math.Abs(deltaValue) >= g.cfg.MinTradeValue {
			trade.Action = actionFor(deltaValue)
			trade.Rule = domain.RuleZeroShareDelta
			trade.Status = domain.StatusRejected
			return trade, &SkippedTrade{
				Trade: trade,
				Reason: fmt.Sprintf("delta of %s is less than one share at %s",
					domain.FormatMoney(math.Abs(deltaValue), currency), domain.FormatMoney(h.CurrentPrice, currency)),
			}, false
		}
		return trade, nil, false
	}

	trade.Action = actionFor(shares)
	trade.Shares = math.Abs(shares)
	if trade.Action == domain.ActionSell && trade.Shares > h.Shares {
		trade.Shares = h.Shares
	}
	trade.Priority, trade.Rule, trade.Reasoning = g.classify(currentPct, targetPct, tier, tierDeviation[tier], eligibility)

	if value := trade.Value(); value < g.cfg.MinTradeValue {
		trade.Status = domain.StatusRejected
		return trade, &SkippedTrade{
			Trade: trade,
			Reason: fmt.Sprintf("trade value %s below minimum %s",
				domain.FormatMoney(value, currency), domain.FormatMoney(g.cfg.MinTradeValue, currency)),
		}, false
	}

	trade.ID = uuid.New().String()

	g.log.Debug().
		Str("ticker", trade.Ticker).
		Str("action", string(trade.Action)).
		Float64("shares", trade.Shares).
		Float64("current_pct", currentPct).
		Float64("target_pct", targetPct).
		Str("priority", string(trade.Priority)).
		Msg("Rebalancing trade sized")

	return trade, nil, true
}

// classify assigns priority, rule code and reasoning to a rebalancing trade
func (g *Generator) classify(
	currentPct, targetPct float64,
	tier domain.Tier,
	tierDeviation float64,
	eligibility tiers.Eligibility,
) (domain.Priority, string, string) {
	if policy, ok := g.policies.Policy(tier); ok && currentPct > policy.PositionCapPct {
		return domain.PriorityHigh, domain.RuleTierCapExceeded, ReasonTierCapExceeded
	}

	drift := math.Abs(currentPct - targetPct)
	if drift > g.cfg.DriftTolerancePct || math.Abs(tierDeviation) > g.cfg.TierTolerancePct {
		if d, ok := eligibility.(tiers.Downgraded); ok {
			return domain.PriorityMedium, domain.RuleDowngraded, fmt.Sprintf("downgraded from %s to %s", d.From, d.To)
		}
		return domain.PriorityMedium, domain.RuleTierTarget, ReasonTierTarget
	}

	return domain.PriorityLow, domain.RuleStrategicTilt, ReasonStrategicTilt
}

// WholeShares converts a currency delta into a share count truncated toward zero,
// so a trade never overshoots its target by a share's value
func WholeShares(deltaValue, price float64) float64 {
	if price <= 0 {
		return 0
	}
	shares := decimal.NewFromFloat(deltaValue).
		Div(decimal.NewFromFloat(price)).
		Truncate(0)
	return shares.InexactFloat64()
}

func actionFor(delta float64) domain.TradeAction {
	if delta < 0 {
		return domain.ActionSell
	}
	return domain.ActionBuy
}
