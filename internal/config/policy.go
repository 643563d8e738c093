package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/tiers"
)

// policyOverrides is the YAML policy file layout. Omitted fields keep their defaults.
type policyOverrides struct {
	ProfitabilityThreshold *float64       `yaml:"profitability_threshold"`
	CashReservePct         *float64       `yaml:"cash_reserve_pct"`
	Tiers                  []tierOverride `yaml:"tiers"`
}

type tierOverride struct {
	Tier              domain.Tier          `yaml:"tier"`
	MinMarketCap      *float64             `yaml:"min_market_cap"`
	TargetPct         *float64             `yaml:"target_pct"`
	MinPct            *float64             `yaml:"min_pct"`
	MaxPct            *float64             `yaml:"max_pct"`
	PositionMinPct    *float64             `yaml:"position_min_pct"`
	PositionMaxPct    *float64             `yaml:"position_max_pct"`
	PositionCapPct    *float64             `yaml:"position_cap_pct"`
	PersistenceWindow *int                 `yaml:"persistence_window"`
	StrictFilters     *tiers.StrictFilters `yaml:"strict_filters"`
}

// LoadPolicy reads tier policy overrides from a YAML file and merges them over
// tiers.DefaultPolicySet. An empty path returns the defaults.
func LoadPolicy(path string) (tiers.PolicySet, error) {
	if path == "" {
		return tiers.DefaultPolicySet(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tiers.PolicySet{}, fmt.Errorf("failed to read policy file: %w", err)
	}

	return ParsePolicy(data)
}

// ParsePolicy merges YAML policy overrides over the default policy set and validates the result.
// Unknown keys are rejected so a misspelled key cannot fall back to its default.
func ParsePolicy(data []byte) (tiers.PolicySet, error) {
	var overrides policyOverrides
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		return tiers.PolicySet{}, fmt.Errorf("failed to parse policy file: %w", err)
	}

	ps := tiers.DefaultPolicySet()
	if overrides.ProfitabilityThreshold != nil {
		ps.ProfitabilityThreshold = *overrides.ProfitabilityThreshold
	}
	if overrides.CashReservePct != nil {
		ps.CashReservePct = *overrides.CashReservePct
	}

	for _, o := range overrides.Tiers {
		idx := -1
		for i, p := range ps.Tiers {
			if p.Tier == o.Tier {
				idx = i
				break
			}
		}
		if idx < 0 {
			return tiers.PolicySet{}, fmt.Errorf("unknown tier %q in policy file", o.Tier)
		}
		applyTierOverride(&ps.Tiers[idx], o)
	}

	if err := ps.Validate(); err != nil {
		return tiers.PolicySet{}, fmt.Errorf("invalid policy: %w", err)
	}
	return ps, nil
}

func applyTierOverride(p *tiers.Policy, o tierOverride) {
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	setFloat(&p.MinMarketCap, o.MinMarketCap)
	setFloat(&p.TargetPct, o.TargetPct)
	setFloat(&p.MinPct, o.MinPct)
	setFloat(&p.MaxPct, o.MaxPct)
	setFloat(&p.PositionMinPct, o.PositionMinPct)
	setFloat(&p.PositionMaxPct, o.PositionMaxPct)
	setFloat(&p.PositionCapPct, o.PositionCapPct)
	if o.PersistenceWindow != nil {
		p.PersistenceWindow = *o.PersistenceWindow
	}
	if o.StrictFilters != nil {
		filters := *o.StrictFilters
		p.StrictFilters = &filters
	}
}
