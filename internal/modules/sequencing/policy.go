// Package sequencing orders rebalancing trades and threads cash through their fills.
package sequencing

import (
	"fmt"
	"strings"

	"github.com/aristath/tierfolio/internal/domain"
)

// PartialFillPolicy decides what happens to a BUY that cash cannot fully cover
type PartialFillPolicy string

const (
	// PolicyAutomatic fills the maximum affordable whole-share quantity
	PolicyAutomatic PartialFillPolicy = "AUTOMATIC"
	// PolicySmart fills only when at least SmartThreshold of the requested value is affordable
	PolicySmart PartialFillPolicy = "SMART"
	// PolicyAsk defers to a Decider
	PolicyAsk PartialFillPolicy = "ASK"
	// PolicyReject never partially fills
	PolicyReject PartialFillPolicy = "REJECT"
)

// DefaultSmartThreshold is the affordable fraction SMART requires
const DefaultSmartThreshold = 0.8

// ParsePartialFillPolicy parses a policy name, case-insensitively
func ParsePartialFillPolicy(s string) (PartialFillPolicy, error) {
	p := PartialFillPolicy(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case PolicyAutomatic, PolicySmart, PolicyAsk, PolicyReject:
		return p, nil
	}
	return "", fmt.Errorf("invalid partial fill policy: %q (must be AUTOMATIC, SMART, ASK or REJECT)", s)
}

// Decision is an external answer to a partial-fill question
type Decision struct {
	Accept bool
	// Shares to fill when accepted; 0 means the affordable quantity.
	// Never more than is affordable above the reserve floor.
	Shares float64
	Reason string
}

// Decider answers ASK-policy partial fill questions, typically a human approval step
type Decider interface {
	Decide(trade domain.Trade, affordableShares float64, availableCash float64) Decision
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(trade domain.Trade, affordableShares float64, availableCash float64) Decision

// Decide calls f
func (f DeciderFunc) Decide(trade domain.Trade, affordableShares float64, availableCash float64) Decision {
	return f(trade, affordableShares, availableCash)
}
