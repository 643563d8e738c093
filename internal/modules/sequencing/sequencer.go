package sequencing

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/domain"
)

// cashEpsilon absorbs floating point noise in cash comparisons
const cashEpsilon = 1e-9

// Config holds sequencer settings
type Config struct {
	Policy         PartialFillPolicy      `json:"policy"`
	ReserveFloor   float64                `json:"reserve_floor"` // cash never drops below this
	Cost           domain.TransactionCost `json:"cost"`
	SmartThreshold float64                `json:"smart_threshold"`
	Currency       domain.Currency        `json:"currency"`
}

// DefaultConfig returns an AUTOMATIC, cost-free configuration with no reserve floor
func DefaultConfig() Config {
	return Config{
		Policy:         PolicyAutomatic,
		SmartThreshold: DefaultSmartThreshold,
		Currency:       domain.CurrencyEUR,
	}
}

// Outcome is the result of attempting one trade. Trade carries the trade after its
// last legal transition, so a trade that could not leave its submitted status keeps
// that status while Status reports REJECTED.
type Outcome struct {
	Trade           domain.Trade       `json:"trade" msgpack:"trade"`
	Status          domain.TradeStatus `json:"status" msgpack:"status"`
	RequestedShares float64            `json:"requested_shares" msgpack:"requested_shares"`
	FilledShares    float64            `json:"filled_shares" msgpack:"filled_shares"`
	FilledValue     float64            `json:"filled_value" msgpack:"filled_value"`
	Fees            float64            `json:"fees" msgpack:"fees"`
	Reason          string             `json:"reason,omitempty" msgpack:"reason,omitempty"`
	CashAfter       float64            `json:"cash_after" msgpack:"cash_after"`
}

// Summary is the execution result of one batch
type Summary struct {
	Outcomes     []Outcome         `json:"outcomes" msgpack:"outcomes"`
	StartingCash float64           `json:"starting_cash" msgpack:"starting_cash"`
	FinalCash    float64           `json:"final_cash" msgpack:"final_cash"`
	ReserveFloor float64           `json:"reserve_floor" msgpack:"reserve_floor"`
	Policy       PartialFillPolicy `json:"policy" msgpack:"policy"`
	Executed     int               `json:"executed" msgpack:"executed"`
	Partial      int               `json:"partial" msgpack:"partial"`
	Rejected     int               `json:"rejected" msgpack:"rejected"`
	TotalFees    float64           `json:"total_fees" msgpack:"total_fees"`
}

// Transition is one trade state change, reported in execution order
type Transition struct {
	TradeID string             `json:"trade_id"`
	Ticker  string             `json:"ticker"`
	Action  domain.TradeAction `json:"action"`
	From    domain.TradeStatus `json:"from"`
	To      domain.TradeStatus `json:"to"`
	Cash    float64            `json:"cash"`
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithDecider sets the Decider consulted under the ASK policy
func WithDecider(d Decider) Option {
	return func(s *Sequencer) {
		s.decider = d
	}
}

// WithTransitionHook registers a callback for every trade state change
func WithTransitionHook(fn func(Transition)) Option {
	return func(s *Sequencer) {
		s.onTransition = fn
	}
}

// Sequencer executes a trade batch against a running cash balance.
// Sequence holds no state between calls; the balance lives only inside one call.
type Sequencer struct {
	cfg          Config
	decider      Decider
	onTransition func(Transition)
	log          zerolog.Logger
}

// NewSequencer creates a new execution sequencer
func NewSequencer(cfg Config, log zerolog.Logger, opts ...Option) *Sequencer {
	if cfg.Policy == "" {
		cfg.Policy = PolicyAutomatic
	}
	if cfg.SmartThreshold <= 0 {
		cfg.SmartThreshold = DefaultSmartThreshold
	}
	s := &Sequencer{
		cfg: cfg,
		log: log.With().Str("component", "execution_sequencer").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Order returns a copy of trades in execution order: every SELL before any BUY,
// then HIGH < MEDIUM < LOW, then by ticker
func Order(trades []domain.Trade) []domain.Trade {
	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	domain.SortForExecution(ordered)
	return ordered
}

// Sequence attempts every trade in order and returns per-trade outcomes and the final cash.
// The input slice is not modified.
func (s *Sequencer) Sequence(trades []domain.Trade, startingCash float64) Summary {
	summary := Summary{
		Outcomes:     make([]Outcome, 0, len(trades)),
		StartingCash: startingCash,
		ReserveFloor: s.cfg.ReserveFloor,
		Policy:       s.cfg.Policy,
	}

	cash := startingCash
	for _, trade := range Order(trades) {
		var outcome Outcome
		outcome, cash = s.execute(trade, cash)
		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.TotalFees += outcome.Fees

		switch outcome.Status {
		case domain.StatusExecuted:
			summary.Executed++
		case domain.StatusPartiallyFilled:
			summary.Partial++
		default:
			summary.Rejected++
		}
	}
	summary.FinalCash = cash

	s.log.Info().
		Str("policy", string(s.cfg.Policy)).
		Int("executed", summary.Executed).
		Int("partial", summary.Partial).
		Int("rejected", summary.Rejected).
		Float64("starting_cash", summary.StartingCash).
		Float64("final_cash", summary.FinalCash).
		Msg("Batch sequenced")

	return summary
}

// execute runs one trade through PENDING -> EXECUTING -> terminal and returns the new cash
func (s *Sequencer) execute(trade domain.Trade, cash float64) (Outcome, float64) {
	outcome := Outcome{RequestedShares: trade.Shares}
	if trade.Status == "" {
		trade.Status = domain.StatusPending
	}

	if err := s.transition(&trade, domain.StatusExecuting, cash); err != nil {
		outcome.Trade = trade
		outcome.Status = domain.StatusRejected
		outcome.Reason = err.Error()
		outcome.CashAfter = cash
		s.log.Warn().Err(err).Str("ticker", trade.Ticker).Msg("Trade skipped")
		return outcome, cash
	}

	var filled float64
	var reason string
	action, err := domain.TradeActionFromString(string(trade.Action))
	switch {
	case err != nil:
		reason = err.Error()
	case action == domain.ActionSell:
		filled, reason = s.sellQuantity(trade)
	default:
		filled, reason = s.buyQuantity(trade, cash)
	}

	value := filled * trade.Price
	fee := s.cfg.Cost.Fee(value)
	switch {
	case filled <= 0:
	case action == domain.ActionSell:
		cash += value - fee
	default:
		cash -= value + fee
	}

	final := domain.StatusRejected
	switch {
	case filled <= 0:
		value, fee = 0, 0
	case filled < trade.Shares:
		final = domain.StatusPartiallyFilled
	default:
		final = domain.StatusExecuted
	}

	if err := s.transition(&trade, final, cash); err != nil {
		reason = err.Error()
	}

	outcome.Trade = trade
	outcome.Status = trade.Status
	outcome.FilledShares = math.Max(0, filled)
	outcome.FilledValue = value
	outcome.Fees = fee
	outcome.Reason = reason
	outcome.CashAfter = cash

	s.log.Debug().
		Str("ticker", trade.Ticker).
		Str("action", string(trade.Action)).
		Str("status", string(trade.Status)).
		Float64("requested", trade.Shares).
		Float64("filled", filled).
		Float64("cash", cash).
		Str("reason", reason).
		Msg("Trade attempted")

	return outcome, cash
}

func (s *Sequencer) sellQuantity(trade domain.Trade) (float64, string) {
	value := trade.Shares * trade.Price
	net := value - s.cfg.Cost.Fee(value)
	if trade.Shares <= 0 || net <= 0 {
		return 0, fmt.Sprintf("net proceeds %s are not positive", s.money(net))
	}
	return trade.Shares, ""
}

// buyQuantity applies the partial-fill policy. Any quantity returned keeps cash at or
// above the reserve floor after fees.
func (s *Sequencer) buyQuantity(trade domain.Trade, cash float64) (float64, string) {
	if trade.Shares <= 0 || trade.Price <= 0 {
		return 0, "nothing to buy"
	}

	available := cash - s.cfg.ReserveFloor
	requestedValue := trade.Shares * trade.Price
	if requestedValue+s.cfg.Cost.Fee(requestedValue) <= available+cashEpsilon {
		return trade.Shares, ""
	}

	affordable := s.affordableShares(trade, available)
	shortfall := fmt.Sprintf("%s available above the %s reserve floor, %s requested",
		s.money(math.Max(0, available)), s.money(s.cfg.ReserveFloor), s.money(requestedValue))

	switch s.cfg.Policy {
	case PolicyAutomatic:
		if affordable < 1 {
			return 0, "insufficient cash: " + shortfall
		}
		return affordable, fmt.Sprintf("partially filled %.0f of %.0f shares: %s", affordable, trade.Shares, shortfall)

	case PolicySmart:
		ratio := affordable * trade.Price / requestedValue
		if affordable < 1 || ratio < s.cfg.SmartThreshold {
			return 0, fmt.Sprintf("only %.0f%% affordable, below the %.0f%% threshold: %s",
				ratio*100, s.cfg.SmartThreshold*100, shortfall)
		}
		return affordable, fmt.Sprintf("partially filled %.0f of %.0f shares (%.0f%% of requested value)",
			affordable, trade.Shares, ratio*100)

	case PolicyAsk:
		if s.decider == nil {
			return 0, "awaiting manual decision: " + shortfall
		}
		decision := s.decider.Decide(trade, affordable, math.Max(0, available))
		if !decision.Accept {
			reason := decision.Reason
			if reason == "" {
				reason = "declined by decider"
			}
			return 0, reason
		}
		shares := affordable
		if decision.Shares > 0 {
			shares = math.Min(math.Floor(decision.Shares), affordable)
		}
		if shares < 1 {
			return 0, "insufficient cash for approved quantity: " + shortfall
		}
		return shares, fmt.Sprintf("partially filled %.0f of %.0f shares by decision", shares, trade.Shares)

	default:
		return 0, "insufficient cash for full fill: " + shortfall
	}
}

// affordableShares returns the largest whole-share quantity, capped at the request,
// whose cost plus fees fits in available
func (s *Sequencer) affordableShares(trade domain.Trade, available float64) float64 {
	if available <= s.cfg.Cost.Fixed {
		return 0
	}
	perShare := trade.Price * (1 + s.cfg.Cost.Percent)
	shares := math.Floor((available - s.cfg.Cost.Fixed + cashEpsilon) / perShare)
	for shares > 0 {
		value := shares * trade.Price
		if value+s.cfg.Cost.Fee(value) <= available+cashEpsilon {
			break
		}
		shares--
	}
	return math.Max(0, math.Min(shares, trade.Shares))
}

func (s *Sequencer) transition(trade *domain.Trade, next domain.TradeStatus, cash float64) error {
	from := trade.Status
	if err := trade.Transition(next); err != nil {
		return err
	}
	if s.onTransition != nil {
		s.onTransition(Transition{
			TradeID: trade.ID,
			Ticker:  trade.Ticker,
			Action:  trade.Action,
			From:    from,
			To:      next,
			Cash:    cash,
		})
	}
	return nil
}

func (s *Sequencer) money(v float64) string {
	return domain.FormatMoney(v, s.cfg.Currency)
}
