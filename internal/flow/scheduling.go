package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/calendar"
	"github.com/rastreogo/leadbot/internal/domain"
)

const suggestTimeFallback = "Por el momento no puedo consultar la agenda 😔. ¿Qué día y hora te acomodan? Uno de nuestros asesores confirmará tu cita."

// schedulingModule offers a numbered menu of free slots and books the
// chosen one. Calendar failures keep the phase unchanged and fall back
// to asking for a preferred time.
type schedulingModule struct {
	deps Deps
}

func (m *schedulingModule) Prompt(ctx context.Context, p *domain.Prospect) string {
	menu, err := m.offerSlots(ctx, p)
	if err != nil {
		m.deps.Logger.Warn("slot listing failed, asking for preferred time", zap.Error(err))
		return suggestTimeFallback
	}
	return menu
}

func (m *schedulingModule) Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error) {
	// No menu on record: the calendar was down when the phase opened.
	// Retry the listing; the prospect's message meanwhile was their
	// suggested time, which the operator picks up from the record.
	if len(p.OfferedSlots) == 0 {
		p.RecordAnswer("preferred_time", text)
		menu, err := m.offerSlots(ctx, p)
		if err != nil {
			m.deps.Logger.Warn("slot listing failed, asking for preferred time", zap.Error(err))
			return Result{Reply: suggestTimeFallback}, nil
		}
		return Result{Reply: "¡Gracias! Estas son las opciones disponibles:\n\n" + menu}, nil
	}

	choice, ok := parseChoice(text, len(p.OfferedSlots))
	if !ok {
		return Result{Reply: fmt.Sprintf("No te entendí 🙈. Respóndeme con el número de la opción (1-%d) que prefieras.", len(p.OfferedSlots))}, nil
	}

	slot := p.OfferedSlots[choice-1]
	details, err := m.deps.Calendar.CreateEvent(ctx, p, calendar.Slot{
		Date: slot.Date, Time: slot.Time, ISO: slot.ISO,
	})
	if err != nil {
		m.deps.Logger.Warn("event creation failed, asking for preferred time", zap.Error(err))
		return Result{Reply: suggestTimeFallback}, nil
	}

	p.Appointment = details
	p.OfferedSlots = nil

	reply := fmt.Sprintf("¡Listo! 🎉 Tu cita quedó agendada para el %s a las %s.", details.Date, details.Time)
	if details.MeetLink != "" {
		reply += "\nAquí está tu enlace: " + details.MeetLink
	}
	return Result{Reply: reply, NextState: domain.StateClosing}, nil
}

// offerSlots queries the calendar and stores the offered menu on the
// prospect so the next turn can map the numeric choice back to a slot.
func (m *schedulingModule) offerSlots(ctx context.Context, p *domain.Prospect) (string, error) {
	if m.deps.Calendar == nil {
		return "", fmt.Errorf("calendar not configured")
	}

	slots, err := m.deps.Calendar.ListAvailable(ctx)
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "", fmt.Errorf("no free slots in the offer window")
	}

	p.OfferedSlots = p.OfferedSlots[:0]
	var b strings.Builder
	b.WriteString("Estos son los horarios disponibles para tu demo:\n")
	for i, s := range slots {
		fmt.Fprintf(&b, "\n%d️⃣ %s a las %s", i+1, s.Date, s.Time)
		p.OfferedSlots = append(p.OfferedSlots, domain.OfferedSlot{Date: s.Date, Time: s.Time, ISO: s.ISO})
	}
	b.WriteString("\n\nRespóndeme con el número de la opción que prefieras. 😊")
	return b.String(), nil
}

// parseChoice extracts a 1-based menu choice from the reply.
func parseChoice(text string, max int) (int, bool) {
	for _, field := range strings.Fields(text) {
		cleaned := strings.Trim(field, ".,!¡)")
		n, err := strconv.Atoi(cleaned)
		if err == nil && n >= 1 && n <= max {
			return n, true
		}
	}
	return 0, false
}
