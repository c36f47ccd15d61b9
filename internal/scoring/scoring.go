// Package scoring turns classified qualification facts into a prospect
// grade and a routing recommendation. It is fully deterministic; the
// tie-break order of the rules is fixed and load-bearing.
package scoring

import (
	"github.com/rastreogo/leadbot/internal/domain"
)

// Facts are the classified inputs to scoring.
type Facts struct {
	IsDecisionMaker bool
	FleetBucket     domain.FleetBucket
	Anonymous       bool
}

// Result is the scoring outcome.
type Result struct {
	Type       domain.ProspectType
	Potential  domain.Potential
	NextAction domain.NextAction
}

// Score grades a prospect. Anonymous prospects skip role confirmation,
// so their result collapses to the lowest grade regardless of fleet.
func Score(f Facts) Result {
	if f.Anonymous {
		return Result{domain.TypeCurious, domain.PotentialLow, domain.ActionSendInfo}
	}

	midOrLarge := f.FleetBucket == domain.FleetMedium || f.FleetBucket == domain.FleetLarge

	switch {
	case f.IsDecisionMaker && midOrLarge:
		return Result{domain.TypeHighValue, domain.PotentialHigh, domain.ActionBookCall}
	case f.IsDecisionMaker && f.FleetBucket == domain.FleetSmall:
		return Result{domain.TypeHighValue, domain.PotentialMedium, domain.ActionOfferCallOrInfo}
	case !f.IsDecisionMaker && midOrLarge:
		return Result{domain.TypeInfluencer, domain.PotentialMedium, domain.ActionSendInfo}
	default:
		return Result{domain.TypeCurious, domain.PotentialLow, domain.ActionSendInfo}
	}
}

// FactsFor extracts scoring inputs from a prospect record.
func FactsFor(p *domain.Prospect) Facts {
	return Facts{
		IsDecisionMaker: p.IsDecisionMaker,
		FleetBucket:     p.FleetBucket,
		Anonymous:       p.Anonymous,
	}
}
