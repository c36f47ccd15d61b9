package flow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/domain"
)

const appointmentOffer = "\n\nPor cierto, si quieres verlo funcionando te puedo agendar una demo con un asesor. ¿Te interesa? 📅"

// inquiryModule is free-form Q&A backed by the model. After each answer
// it re-grades interest; when the grade recommends it, an appointment
// offer is appended once per session. An accepting reply to the offer
// moves to scheduling.
type inquiryModule struct {
	deps Deps
}

func (m *inquiryModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return fmt.Sprintf("Con gusto te comparto información de %s. Pregúntame lo que necesites: cobertura, equipos, precios, instalación... 🙂", m.deps.VendorName)
}

var acceptKeywords = []string{"sí", "si", "claro", "me interesa", "va", "sale", "de acuerdo", "agendar", "agendemos", "cita"}

func (m *inquiryModule) Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error) {
	// A pending offer plus an accepting reply moves to scheduling.
	if p.AppointmentOffered && accepts(text) {
		return Result{NextState: domain.StateAppointmentScheduling}, nil
	}

	reply := m.answer(ctx, p, text)

	// Re-grade interest with the new exchange on record.
	p.RecordAnswer("inquiry:"+truncate(text, 80), text)
	interest := m.deps.Classifier.Interest(ctx, p.Answers)
	if interest.InterestScore > p.InterestScore {
		p.InterestScore = interest.InterestScore
	}
	if interest.HighInterest {
		p.HighInterest = true
	}

	result := Result{Reply: reply}
	if interest.ShouldOfferAppointment && !p.AppointmentOffered {
		p.AppointmentOffered = true
		result.Reply += appointmentOffer
	}
	if p.HighInterest && p.MarkHighInterestNotified() {
		result.Notification = highInterestAlert(p)
	}
	return result, nil
}

const inquirySystemPrompt = `Eres %s, asesora comercial de %s, una empresa de rastreo GPS vehicular para flotillas. ` +
	`Respondes por WhatsApp: mensajes breves, cálidos y en español. ` +
	`Si no sabes un dato exacto (precios finales, promociones vigentes), ofrece conectar al prospecto con un asesor humano en lugar de inventarlo.`

func (m *inquiryModule) answer(ctx context.Context, p *domain.Prospect, text string) string {
	if m.deps.LLM == nil {
		return fmt.Sprintf("¡Buena pregunta! Un asesor de %s te puede dar el detalle exacto; con gusto le paso tu consulta.", m.deps.VendorName)
	}

	ctx, cancel := context.WithTimeout(ctx, m.deps.LLMTimeout)
	defer cancel()

	system := fmt.Sprintf(inquirySystemPrompt, m.deps.BotName, m.deps.VendorName)
	prompt := fmt.Sprintf("Prospecto: %s\nEmpresa: %s\nFlota: %s\n\nMensaje: %s",
		p.DisplayName(), p.Company, p.FleetSizeRaw, text)

	reply, err := m.deps.LLM.Complete(ctx, system, prompt)
	if err != nil {
		m.deps.Logger.Warn("inquiry answer failed, using canned reply", zap.Error(err))
		return fmt.Sprintf("¡Buena pregunta! Un asesor de %s te puede dar el detalle exacto; con gusto le paso tu consulta.", m.deps.VendorName)
	}
	return strings.TrimSpace(reply)
}

func accepts(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	cleaned := strings.Trim(norm, "¡!¿?.,")
	for _, kw := range acceptKeywords {
		if cleaned == kw || strings.Contains(cleaned, kw+" ") || strings.HasSuffix(cleaned, " "+kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
