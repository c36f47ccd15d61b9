package domain

import "time"

// Patch is a partial update to a prospect. Nil fields are left untouched;
// set fields overwrite the current value. The store applies patches under
// the per-phone lock, so a patch merge is atomic with respect to other
// dispatches for the same number.
type Patch struct {
	CountryCode  *string
	Timezone     *string
	Source       *string
	CampaignName *string

	Name            *string
	Anonymous       *bool
	Company         *string
	Role            *string
	IsDecisionMaker *bool
	InterestAreas   []string
	Emails          []string

	FleetSizeRaw *string
	FleetBucket  *FleetBucket
	HasSolution  *bool
	Competitor   *string
	Timeline     *Timeline
	Urgency      *Urgency

	InterestScore        *int
	HighInterest         *bool
	HighInterestNotified *bool
	ProspectType         *ProspectType
	Potential            *Potential
	NextAction           *NextAction

	State              *ConversationState
	Step               *QualificationStep
	Answers            map[string]string
	AppointmentOffered *bool
	Takeover           **TakeoverRecord
	ClosedByOperator   *bool

	Appointment **AppointmentDetails
	ExportID    *string
}

// Apply merges the patch into the prospect and bumps LastInteraction.
// The phone number is identity and is never touched. LastInteraction is
// monotonically non-decreasing even against a skewed clock.
func (pt *Patch) Apply(p *Prospect, now time.Time) {
	if pt == nil {
		p.LastInteraction = maxTime(p.LastInteraction, now)
		return
	}
	setStr(&p.CountryCode, pt.CountryCode)
	setStr(&p.Timezone, pt.Timezone)
	setStr(&p.Source, pt.Source)
	setStr(&p.CampaignName, pt.CampaignName)
	setStr(&p.Name, pt.Name)
	if pt.Anonymous != nil {
		p.Anonymous = *pt.Anonymous
	}
	setStr(&p.Company, pt.Company)
	setStr(&p.Role, pt.Role)
	if pt.IsDecisionMaker != nil {
		p.IsDecisionMaker = *pt.IsDecisionMaker
	}
	if pt.InterestAreas != nil {
		p.InterestAreas = append([]string(nil), pt.InterestAreas...)
	}
	if pt.Emails != nil {
		p.Emails = append([]string(nil), pt.Emails...)
	}
	setStr(&p.FleetSizeRaw, pt.FleetSizeRaw)
	if pt.FleetBucket != nil {
		p.FleetBucket = *pt.FleetBucket
	}
	if pt.HasSolution != nil {
		p.HasSolution = *pt.HasSolution
	}
	setStr(&p.Competitor, pt.Competitor)
	if pt.Timeline != nil {
		p.Timeline = *pt.Timeline
	}
	if pt.Urgency != nil {
		p.Urgency = *pt.Urgency
	}
	if pt.InterestScore != nil {
		p.InterestScore = *pt.InterestScore
	}
	if pt.HighInterest != nil {
		p.HighInterest = *pt.HighInterest
	}
	if pt.HighInterestNotified != nil {
		p.HighInterestNotified = *pt.HighInterestNotified
	}
	if pt.ProspectType != nil {
		p.ProspectType = *pt.ProspectType
	}
	if pt.Potential != nil {
		p.Potential = *pt.Potential
	}
	if pt.NextAction != nil {
		p.NextAction = *pt.NextAction
	}
	if pt.State != nil {
		p.State = NormalizeState(*pt.State)
	}
	if pt.Step != nil {
		p.Step = *pt.Step
	}
	for q, a := range pt.Answers {
		p.RecordAnswer(q, a)
	}
	if pt.AppointmentOffered != nil {
		p.AppointmentOffered = *pt.AppointmentOffered
	}
	if pt.Takeover != nil {
		p.Takeover = *pt.Takeover
	}
	if pt.ClosedByOperator != nil {
		p.ClosedByOperator = *pt.ClosedByOperator
	}
	if pt.Appointment != nil {
		p.Appointment = *pt.Appointment
	}
	setStr(&p.ExportID, pt.ExportID)

	p.LastInteraction = maxTime(p.LastInteraction, now)
}

func setStr(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// Convenience pointer constructors for building patches inline.

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// StatePtr returns a pointer to s.
func StatePtr(s ConversationState) *ConversationState { return &s }

// StepPtr returns a pointer to s.
func StepPtr(s QualificationStep) *QualificationStep { return &s }
