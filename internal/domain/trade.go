package domain

import (
	"fmt"
	"sort"
)

// TradeAction is the side of a trade
type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

// TradeActionFromString parses a trade action
func TradeActionFromString(s string) (TradeAction, error) {
	switch TradeAction(s) {
	case ActionBuy, ActionSell:
		return TradeAction(s), nil
	}
	return "", fmt.Errorf("invalid trade action: %s (must be BUY or SELL)", s)
}

// Priority orders trades within one action type
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank returns 0 for HIGH, 1 for MEDIUM, 2 for LOW (lower executes first)
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// TradeStatus is the lifecycle state of a trade
type TradeStatus string

const (
	StatusPending         TradeStatus = "PENDING"
	StatusExecuting       TradeStatus = "EXECUTING"
	StatusExecuted        TradeStatus = "EXECUTED"
	StatusPartiallyFilled TradeStatus = "PARTIALLY_FILLED"
	StatusRejected        TradeStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is possible
func (s TradeStatus) IsTerminal() bool {
	return s == StatusExecuted || s == StatusPartiallyFilled || s == StatusRejected
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// PENDING -> EXECUTING -> EXECUTED | PARTIALLY_FILLED | REJECTED
func (s TradeStatus) CanTransition(next TradeStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusExecuting
	case StatusExecuting:
		return next.IsTerminal()
	}
	return false
}

// Rule codes name the rule that produced a trade
const (
	RuleIneligibleExit   = "ineligible_exit"
	RuleTierCapExceeded  = "tier_cap_exceeded"
	RuleTierTarget       = "tier_target"
	RuleDowngraded       = "tier_downgrade"
	RuleStrategicTilt    = "strategic_tilt"
	RuleZeroShareDelta   = "zero_share_delta"
	RuleMissingPrice     = "missing_price"
)

// Trade is a recommended order produced by the rebalancing generator
type Trade struct {
	ID        string      `json:"id"`
	Ticker    string      `json:"ticker"`
	Action    TradeAction `json:"action"`
	Shares    float64     `json:"shares"`
	Price     float64     `json:"price"`
	Priority  Priority    `json:"priority"`
	Reasoning string      `json:"reasoning"`
	Rule      string      `json:"rule"`
	Tier      Tier        `json:"tier,omitempty"`
	Status    TradeStatus `json:"status"`
}

// Value returns shares * price
func (t Trade) Value() float64 {
	return t.Shares * t.Price
}

// Transition moves the trade to next, returning an error for a disallowed move
func (t *Trade) Transition(next TradeStatus) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition for %s: %s -> %s", t.Ticker, t.Status, next)
	}
	t.Status = next
	return nil
}

// SortForExecution orders trades SELL before BUY, then HIGH < MEDIUM < LOW, then by ticker.
func SortForExecution(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.Action != b.Action {
			return a.Action == ActionSell
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.Ticker < b.Ticker
	})
}
