// Package domain contains the core business entities and interfaces.
package domain

import (
	"time"
)

// FleetBucket classifies the size of a prospect's vehicle fleet.
type FleetBucket string

const (
	FleetSmall   FleetBucket = "small"  // 1-5 vehicles
	FleetMedium  FleetBucket = "medium" // 6-20 vehicles
	FleetLarge   FleetBucket = "large"  // 21+ vehicles
	FleetUnknown FleetBucket = "unknown"
)

// Timeline classifies how soon the prospect intends to decide.
type Timeline string

const (
	TimelineImmediate Timeline = "immediate"
	TimelineShort     Timeline = "short"
	TimelineMedium    Timeline = "medium"
	TimelineLong      Timeline = "long"
	TimelineUnknown   Timeline = "unknown"
)

// Urgency is derived deterministically from the timeline.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// UrgencyFor maps a timeline to its urgency.
func UrgencyFor(t Timeline) Urgency {
	switch t {
	case TimelineImmediate:
		return UrgencyHigh
	case TimelineShort:
		return UrgencyHigh
	case TimelineMedium:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// ProspectType is the qualification outcome class.
type ProspectType string

const (
	TypeHighValue  ProspectType = "HIGH_VALUE"
	TypeInfluencer ProspectType = "INFLUENCER"
	TypeCurious    ProspectType = "CURIOUS"
)

// Potential grades the expected value of the prospect.
type Potential string

const (
	PotentialHigh   Potential = "HIGH"
	PotentialMedium Potential = "MEDIUM"
	PotentialLow    Potential = "LOW"
)

// NextAction is the recommended follow-up for a scored prospect.
type NextAction string

const (
	ActionBookCall        NextAction = "BOOK_CALL"
	ActionOfferCallOrInfo NextAction = "OFFER_CALL_OR_INFO"
	ActionSendInfo        NextAction = "SEND_INFO"
	ActionNurture         NextAction = "NURTURE"
	ActionClose           NextAction = "CLOSE"
)

// QualificationStep identifies the interview step the prospect is on.
type QualificationStep string

const (
	StepFleetSize        QualificationStep = "fleet_size"
	StepCurrentSolution  QualificationStep = "current_solution"
	StepDecisionTimeline QualificationStep = "decision_timeline"
	StepRoleConfirmation QualificationStep = "role_confirmation"
	StepComplete         QualificationStep = "complete"
)

// OfferedSlot is a calendar slot presented in a scheduling menu. The
// offered list is persisted so the prospect's numeric choice on the next
// turn maps back to a concrete slot.
type OfferedSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
	ISO  string `json:"iso"`
}

// AppointmentDetails records a booked calendar event.
type AppointmentDetails struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	ISO             string `json:"iso"`
	MeetLink        string `json:"meetLink,omitempty"`
	CalendarEventID string `json:"calendarEventId"`
}

// TakeoverRecord marks an active operator takeover and remembers the
// state to restore when the operator releases the session.
type TakeoverRecord struct {
	StartedAt     time.Time         `json:"startedAt"`
	PreviousState ConversationState `json:"previousState"`
}

// Prospect is the per-phone aggregate tracked by the bot. It is created on
// the first inbound message from an unknown number and never destroyed;
// reopening a closed conversation resets the state while keeping the
// profile and history.
type Prospect struct {
	// Identity. PhoneNumber is immutable once set.
	PhoneNumber     string    `json:"phoneNumber"`
	CountryCode     string    `json:"countryCode,omitempty"`
	Timezone        string    `json:"timezone,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	LastInteraction time.Time `json:"lastInteraction"`

	// Marketing provenance, detected from the first inbound message.
	Source       string `json:"source,omitempty"`
	CampaignName string `json:"campaignName,omitempty"`

	// Profile, filled during qualification.
	Name            string   `json:"name,omitempty"`
	Anonymous       bool     `json:"anonymous,omitempty"`
	Company         string   `json:"company,omitempty"`
	Role            string   `json:"role,omitempty"`
	IsDecisionMaker bool     `json:"isDecisionMaker,omitempty"`
	InterestAreas   []string `json:"interestAreas,omitempty"`
	Emails          []string `json:"emails,omitempty"`

	// Qualification facts.
	FleetSizeRaw string      `json:"fleetSizeRaw,omitempty"`
	FleetBucket  FleetBucket `json:"fleetBucket,omitempty"`
	HasSolution  bool        `json:"hasSolution,omitempty"`
	Competitor   string      `json:"competitor,omitempty"`
	Timeline     Timeline    `json:"timeline,omitempty"`
	Urgency      Urgency     `json:"urgency,omitempty"`

	// Scoring.
	InterestScore        int          `json:"interestScore,omitempty"`
	HighInterest         bool         `json:"highInterest,omitempty"`
	HighInterestNotified bool         `json:"highInterestNotified,omitempty"`
	ProspectType         ProspectType `json:"prospectType,omitempty"`
	Potential            Potential    `json:"prospectPotential,omitempty"`
	NextAction           NextAction   `json:"nextAction,omitempty"`

	// Conversation control.
	State              ConversationState `json:"conversationState"`
	Step               QualificationStep `json:"qualificationStep,omitempty"`
	Answers            map[string]string `json:"answers,omitempty"`
	OfferedSlots       []OfferedSlot     `json:"offeredSlots,omitempty"`
	AppointmentOffered bool              `json:"appointmentOffered,omitempty"`
	Takeover           *TakeoverRecord   `json:"operatorTakeover,omitempty"`
	ClosedByOperator   bool              `json:"closedByOperator,omitempty"`

	// Outcome.
	Appointment *AppointmentDetails `json:"appointmentDetails,omitempty"`
	ExportID    string              `json:"exportId,omitempty"`
}

// NewProspect creates a fresh prospect in the INITIAL state.
func NewProspect(phone string, now time.Time) *Prospect {
	return &Prospect{
		PhoneNumber:     phone,
		CreatedAt:       now,
		LastInteraction: now,
		State:           StateInitial,
		Answers:         make(map[string]string),
	}
}

// RecordAnswer stores a question/answer pair from the interview.
func (p *Prospect) RecordAnswer(question, answer string) {
	if p.Answers == nil {
		p.Answers = make(map[string]string)
	}
	p.Answers[question] = answer
}

// InTakeover reports whether an operator currently owns the session.
func (p *Prospect) InTakeover() bool {
	return p.Takeover != nil
}

// BeginTakeover suspends the bot, remembering the state to restore.
func (p *Prospect) BeginTakeover(now time.Time) {
	if p.InTakeover() {
		return
	}
	p.Takeover = &TakeoverRecord{StartedAt: now, PreviousState: p.State}
	p.State = StateOperatorTakeover
}

// EndTakeover releases the session back to the bot, restoring the state
// that was active when the operator seized it.
func (p *Prospect) EndTakeover() {
	if !p.InTakeover() {
		return
	}
	p.State = NormalizeState(p.Takeover.PreviousState)
	p.Takeover = nil
}

// Reopen resets a closed conversation to INITIAL while retaining the
// profile, qualification facts, and history.
func (p *Prospect) Reopen() {
	p.State = StateInitial
	p.Step = ""
	p.OfferedSlots = nil
	p.AppointmentOffered = false
	p.ClosedByOperator = false
}

// IsClosed reports whether the conversation has reached a resting state.
func (p *Prospect) IsClosed() bool {
	return p.State == StateClosing || p.State == StateClosed
}

// MarkHighInterestNotified flips the one-shot notification flag. Returns
// true only on the first call for this prospect's lifetime.
func (p *Prospect) MarkHighInterestNotified() bool {
	if p.HighInterestNotified {
		return false
	}
	p.HighInterestNotified = true
	return true
}

// DisplayName returns the prospect's name or a neutral placeholder.
func (p *Prospect) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "prospecto"
}

// Clone returns a deep copy of the prospect. The store hands out clones so
// concurrent readers never alias the canonical record.
func (p *Prospect) Clone() *Prospect {
	cp := *p
	if p.Answers != nil {
		cp.Answers = make(map[string]string, len(p.Answers))
		for k, v := range p.Answers {
			cp.Answers[k] = v
		}
	}
	if p.InterestAreas != nil {
		cp.InterestAreas = append([]string(nil), p.InterestAreas...)
	}
	if p.Emails != nil {
		cp.Emails = append([]string(nil), p.Emails...)
	}
	if p.OfferedSlots != nil {
		cp.OfferedSlots = append([]OfferedSlot(nil), p.OfferedSlots...)
	}
	if p.Takeover != nil {
		t := *p.Takeover
		cp.Takeover = &t
	}
	if p.Appointment != nil {
		a := *p.Appointment
		cp.Appointment = &a
	}
	return &cp
}
