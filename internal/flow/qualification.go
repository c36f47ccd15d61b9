package flow

import (
	"context"
	"fmt"

	"github.com/rastreogo/leadbot/internal/classify"
	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/scoring"
)

// Interview questions, asked verbatim in step order.
const (
	questionFleetSize = "¿Cuántas unidades tiene tu flota actualmente? 🚛"
	questionSolution  = "¿Actualmente usan algún sistema de rastreo GPS?"
	questionTimeline  = "¿Para cuándo les gustaría tener la solución funcionando?"
	questionRole      = "Por último, ¿cuál es tu puesto en la empresa?"
)

// qualificationModule runs the staged interview: fleet size, current
// solution, decision timeline, and role confirmation. Anonymous
// prospects skip role confirmation. Completion scores the prospect and
// routes by interest.
type qualificationModule struct {
	deps Deps
}

func (m *qualificationModule) Prompt(_ context.Context, p *domain.Prospect) string {
	if p.Step == "" || p.Step == domain.StepComplete {
		p.Step = domain.StepFleetSize
	}
	return questionFleetSize
}

func (m *qualificationModule) Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error) {
	switch p.Step {
	case domain.StepFleetSize:
		fleet := classify.FleetSize(text)
		p.RecordAnswer("fleet_size", text)
		p.FleetSizeRaw = fleet.Raw
		p.FleetBucket = fleet.Bucket
		p.Step = domain.StepCurrentSolution
		return Result{Reply: questionSolution}, nil

	case domain.StepCurrentSolution:
		sol := classify.CurrentSolution(text)
		p.RecordAnswer("current_solution", text)
		p.HasSolution = sol.HasSolution
		p.Competitor = sol.Competitor
		p.Step = domain.StepDecisionTimeline
		return Result{Reply: questionTimeline}, nil

	case domain.StepDecisionTimeline:
		tl := classify.DecisionTimeline(text)
		p.RecordAnswer("decision_timeline", text)
		p.Timeline = tl.Timeline
		p.Urgency = tl.Urgency
		if p.Anonymous {
			return m.complete(ctx, p), nil
		}
		p.Step = domain.StepRoleConfirmation
		return Result{Reply: questionRole}, nil

	case domain.StepRoleConfirmation:
		role := classify.Role(text)
		p.RecordAnswer("role_confirmation", text)
		p.Role = role.Role
		p.IsDecisionMaker = role.IsDecisionMaker
		p.InterestAreas = role.Areas
		return m.complete(ctx, p), nil

	default:
		// Interview position lost (e.g. record from an older version):
		// restart the interview rather than guessing.
		p.Step = domain.StepFleetSize
		return Result{Reply: questionFleetSize}, nil
	}
}

// complete scores the finished interview and routes the conversation.
func (m *qualificationModule) complete(ctx context.Context, p *domain.Prospect) Result {
	p.Step = domain.StepComplete

	interest := m.deps.Classifier.Interest(ctx, p.Answers)
	score := scoring.Score(scoring.FactsFor(p))

	p.InterestScore = interest.InterestScore
	p.ProspectType = score.Type
	p.Potential = score.Potential
	p.NextAction = score.NextAction
	p.HighInterest = interest.HighInterest || score.Type == domain.TypeHighValue

	result := Result{Reply: "¡Gracias por tus respuestas! 🙌"}
	if p.HighInterest {
		result.NextState = domain.StateInterestValidation
		if p.MarkHighInterestNotified() {
			result.Notification = highInterestAlert(p)
		}
	} else {
		result.NextState = domain.StateGeneralInquiry
	}
	return result
}

func highInterestAlert(p *domain.Prospect) string {
	company := p.Company
	if company == "" {
		company = "empresa no indicada"
	}
	return fmt.Sprintf("🔥 Prospecto de alto interés: %s (%s), flota: %s, tel: %s",
		p.DisplayName(), company, p.FleetSizeRaw, p.PhoneNumber)
}
