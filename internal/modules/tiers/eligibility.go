package tiers

import "github.com/aristath/tierfolio/internal/domain"

// Kind discriminates the Eligibility variants
type Kind string

const (
	KindEligible   Kind = "ELIGIBLE"
	KindDowngraded Kind = "DOWNGRADED"
	KindIneligible Kind = "INELIGIBLE"
)

// Ineligibility reasons
const (
	ReasonBelowTierFloor      = "below tier floor"
	ReasonMissingData         = "missing data"
	ReasonInsufficientHistory = "insufficient history"
	ReasonFailedStrictFilter  = "failed strict filter"
)

// Eligibility is the classifier result. It is one of Eligible, Downgraded or
// Ineligible; consumers switch on Kind() or on the concrete type.
type Eligibility interface {
	Kind() Kind
	// AssignedTier returns the tier the holding belongs to, or false if ineligible
	AssignedTier() (domain.Tier, bool)
	sealed()
}

// Eligible means the holding qualifies for its market-cap tier
type Eligible struct {
	Tier domain.Tier
}

func (Eligible) Kind() Kind                          { return KindEligible }
func (e Eligible) AssignedTier() (domain.Tier, bool) { return e.Tier, true }
func (Eligible) sealed()                             {}

// Downgraded means the holding failed its candidate tier but qualifies one tier lower
type Downgraded struct {
	From domain.Tier
	To   domain.Tier
}

func (Downgraded) Kind() Kind                          { return KindDowngraded }
func (d Downgraded) AssignedTier() (domain.Tier, bool) { return d.To, true }
func (Downgraded) sealed()                             {}

// Ineligible means the holding belongs to no tier
type Ineligible struct {
	Reason string
	Detail string
}

func (Ineligible) Kind() Kind                        { return KindIneligible }
func (Ineligible) AssignedTier() (domain.Tier, bool) { return domain.TierNone, false }
func (Ineligible) sealed()                           {}

// Record is the flat, serializable form of an Eligibility
type Record struct {
	Kind   Kind        `json:"kind" msgpack:"kind"`
	Tier   domain.Tier `json:"tier,omitempty" msgpack:"tier,omitempty"`
	From   domain.Tier `json:"from,omitempty" msgpack:"from,omitempty"`
	Reason string      `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Detail string      `json:"detail,omitempty" msgpack:"detail,omitempty"`
}

// ToRecord flattens e for reports and API responses
func ToRecord(e Eligibility) Record {
	switch v := e.(type) {
	case Eligible:
		return Record{Kind: KindEligible, Tier: v.Tier}
	case Downgraded:
		return Record{Kind: KindDowngraded, Tier: v.To, From: v.From}
	case Ineligible:
		return Record{Kind: KindIneligible, Reason: v.Reason, Detail: v.Detail}
	}
	return Record{}
}

// Eligibility rebuilds the variant from its flat form
func (r Record) Eligibility() Eligibility {
	switch r.Kind {
	case KindEligible:
		return Eligible{Tier: r.Tier}
	case KindDowngraded:
		return Downgraded{From: r.From, To: r.Tier}
	default:
		return Ineligible{Reason: r.Reason, Detail: r.Detail}
	}
}
