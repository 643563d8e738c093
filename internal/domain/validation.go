package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrFatalInput is the sentinel wrapped by every FatalInputError
var ErrFatalInput = errors.New("fatal input")

// FatalInputError reports an internally contradictory snapshot.
// It lists every problem found, not just the first.
type FatalInputError struct {
	Problems []string
}

func (e *FatalInputError) Error() string {
	return fmt.Sprintf("fatal input: %s", strings.Join(e.Problems, "; "))
}

// Unwrap lets errors.Is(err, ErrFatalInput) match
func (e *FatalInputError) Unwrap() error {
	return ErrFatalInput
}

// ValidateSnapshot checks a snapshot for contradictions that make any plan unsafe.
// Returns nil or a *FatalInputError.
func ValidateSnapshot(s *Snapshot) error {
	if s == nil {
		return &FatalInputError{Problems: []string{"snapshot is nil"}}
	}

	var problems []string
	if math.IsNaN(s.Cash) || math.IsInf(s.Cash, 0) {
		problems = append(problems, "cash is not a finite number")
	} else if s.Cash < 0 {
		problems = append(problems, fmt.Sprintf("negative cash %.2f", s.Cash))
	}

	seen := make(map[string]bool, len(s.Holdings))
	for i, h := range s.Holdings {
		label := h.Ticker
		if strings.TrimSpace(h.Ticker) == "" {
			label = fmt.Sprintf("holding[%d]", i)
			problems = append(problems, fmt.Sprintf("%s has an empty ticker", label))
		} else if seen[h.Ticker] {
			problems = append(problems, fmt.Sprintf("duplicate ticker %s", h.Ticker))
		}
		seen[h.Ticker] = true

		problems = append(problems, validateHolding(label, h)...)
	}

	if len(problems) > 0 {
		return &FatalInputError{Problems: problems}
	}
	return nil
}

func validateHolding(label string, h Holding) []string {
	var problems []string

	for name, v := range map[string]float64{
		"shares":     h.Shares,
		"price":      h.CurrentPrice,
		"cost basis": h.CostBasis,
		"market cap": h.MarketCap,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("%s %s is not a finite number", label, name))
		}
	}

	if h.Shares < 0 {
		problems = append(problems, fmt.Sprintf("%s has negative shares %.4f", label, h.Shares))
	}
	if h.CurrentPrice < 0 {
		problems = append(problems, fmt.Sprintf("%s has negative price %.4f", label, h.CurrentPrice))
	} else if h.CurrentPrice == 0 && h.Shares > 0 {
		problems = append(problems, fmt.Sprintf("%s holds %.4f shares with no price", label, h.Shares))
	}
	if h.MarketCap < 0 {
		problems = append(problems, fmt.Sprintf("%s has negative market cap", label))
	}

	if h.QualityScore != nil {
		if q := *h.QualityScore; math.IsNaN(q) || q < 0 || q > 100 {
			problems = append(problems, fmt.Sprintf("%s quality score %.2f outside 0-100", label, q))
		}
	}
	if h.ThematicScore != nil {
		if t := *h.ThematicScore; math.IsNaN(t) || t < 0 || t > 50 {
			problems = append(problems, fmt.Sprintf("%s thematic score %.2f outside 0-50", label, t))
		}
	}
	for _, p := range h.Profitability {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			problems = append(problems, fmt.Sprintf("%s profitability series contains a non-finite value", label))
			break
		}
	}

	// map iteration order is random; keep messages stable
	sort.Strings(problems)
	return problems
}
