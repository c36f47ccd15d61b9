package flow

import (
	"context"

	"github.com/rastreogo/leadbot/internal/domain"
)

// interestModule asks whether the prospect wants an appointment or just
// information, reducing the free-text reply to CITA or INFO.
type interestModule struct {
	deps Deps
}

func (m *interestModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return "¿Te gustaría agendar una llamada con uno de nuestros asesores, o prefieres que te comparta más información por aquí?"
}

var citaKeywords = []string{"cita", "agendar", "agendemos", "llamada", "sí", "si", "claro"}

func (m *interestModule) Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error) {
	choice := reduce(ctx, m.deps, text,
		"¿El prospecto quiere agendar una cita (CITA) o solo recibir información (INFO)?",
		"CITA", "INFO", citaKeywords)

	if choice == "CITA" {
		return Result{NextState: domain.StateAppointmentScheduling}, nil
	}
	return Result{NextState: domain.StateGeneralInquiry}, nil
}
