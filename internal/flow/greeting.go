package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rastreogo/leadbot/internal/domain"
)

// initialModule handles the very first inbound message of a session and
// moves the conversation into GREETING. The welcome is personalized by
// the detected marketing source.
type initialModule struct {
	deps Deps
}

func (m *initialModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return ""
}

func (m *initialModule) Handle(_ context.Context, p *domain.Prospect, _ string) (Result, error) {
	return Result{
		Reply:     m.welcome(p),
		NextState: domain.StateGreeting,
	}, nil
}

func (m *initialModule) welcome(p *domain.Prospect) string {
	switch p.Source {
	case "facebook_ads":
		return fmt.Sprintf("¡Hola! 👋 Soy %s de %s. Vi que nos contactaste desde nuestra promoción en Facebook, ¡gracias por tu interés en el rastreo GPS para tu flota!",
			m.deps.BotName, m.deps.VendorName)
	case "google_ads":
		return fmt.Sprintf("¡Hola! 👋 Soy %s de %s. Gracias por contactarnos, con gusto te ayudo con la solución de rastreo GPS que estás buscando.",
			m.deps.BotName, m.deps.VendorName)
	case "referral":
		return fmt.Sprintf("¡Hola! 👋 Soy %s de %s. ¡Qué gusto que nos recomendaran contigo!",
			m.deps.BotName, m.deps.VendorName)
	default:
		return fmt.Sprintf("¡Hola! 👋 Soy %s, asesora de %s. Con gusto te platico cómo funciona nuestro rastreo GPS para flotillas.",
			m.deps.BotName, m.deps.VendorName)
	}
}

// greetingModule captures the prospect's name and, for named prospects,
// their company, then starts qualification.
type greetingModule struct {
	deps Deps
}

func (m *greetingModule) Prompt(_ context.Context, _ *domain.Prospect) string {
	return "¿Con quién tengo el gusto? ¿Me compartes tu nombre? 😊"
}

func (m *greetingModule) Handle(_ context.Context, p *domain.Prospect, text string) (Result, error) {
	// Second pass through GREETING for a named prospect is the company
	// answer.
	if p.Name != "" {
		p.Company = strings.TrimSpace(text)
		return Result{NextState: domain.StateQualification}, nil
	}

	if refusesName(text) {
		p.Anonymous = true
		return Result{
			Reply:     "¡No hay problema! De todas formas con gusto te ayudo. 😊",
			NextState: domain.StateQualification,
		}, nil
	}

	p.Name = cleanName(text)
	return Result{
		Reply: fmt.Sprintf("¡Mucho gusto, %s! ¿De qué empresa nos escribes?", p.Name),
	}, nil
}

var refusalKeywords = []string{
	"no doy", "no quiero", "prefiero no", "anonimo", "anónimo", "no te digo", "para que",
}

// refusesName detects a declined name. A bare "no" also counts.
func refusesName(text string) bool {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "no" {
		return true
	}
	for _, kw := range refusalKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

// cleanName trims courtesy prefixes like "soy" or "me llamo".
func cleanName(text string) string {
	name := strings.TrimSpace(text)
	lower := strings.ToLower(name)
	for _, prefix := range []string{"me llamo ", "mi nombre es ", "soy "} {
		if strings.HasPrefix(lower, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	return name
}
