package flow

import (
	"context"
	"fmt"

	"github.com/rastreogo/leadbot/internal/domain"
)

// closingModule wraps up the conversation: one more question routes back
// to general inquiry, anything else finalizes and closes.
type closingModule struct {
	deps Deps
}

func (m *closingModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return "¿Tienes alguna otra consulta, o finalizamos por ahora?"
}

var consultaKeywords = []string{"duda", "pregunta", "consulta", "otra cosa", "una cosa mas", "sí", "si"}

func (m *closingModule) Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error) {
	choice := reduce(ctx, m.deps, text,
		"¿El prospecto tiene otra consulta (CONSULTA) o quiere terminar la conversación (FINALIZAR)?",
		"CONSULTA", "FINALIZAR", consultaKeywords)

	if choice == "CONSULTA" {
		return Result{NextState: domain.StateGeneralInquiry}, nil
	}

	return Result{
		Reply:     m.farewell(p),
		NextState: domain.StateClosed,
	}, nil
}

func (m *closingModule) farewell(p *domain.Prospect) string {
	if p.Appointment != nil {
		return fmt.Sprintf("¡Gracias por tu tiempo, %s! Nos vemos el %s a las %s. 🚛", p.DisplayName(), p.Appointment.Date, p.Appointment.Time)
	}
	return fmt.Sprintf("¡Gracias por tu tiempo, %s! Quedamos atentos para cuando nos necesites. 🚛", p.DisplayName())
}

// ForceClose is the operator-initiated closing entry: it skips the
// closing question and leaves the conversation in CLOSING awaiting the
// prospect's confirmation, marked as operator-closed.
func ForceClose(p *domain.Prospect) Result {
	p.ClosedByOperator = true
	return Result{
		Reply:     "Gracias por tu tiempo. ¿Tienes alguna otra consulta, o finalizamos por ahora?",
		NextState: domain.StateClosing,
	}
}

// closedModule is the resting phase. It never replies; the engine
// reopens the conversation on new inbound instead of dispatching here.
type closedModule struct{}

func (m *closedModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return ""
}

func (m *closedModule) Handle(_ context.Context, _ *domain.Prospect, _ string) (Result, error) {
	return Result{}, nil
}
