// Package classify maps free-text prospect answers to structured facts.
// The keyword heuristics are pure functions; only interest analysis
// consults the language model, with a neutral fallback when it fails.
package classify

import (
	"strconv"
	"strings"

	"github.com/rastreogo/leadbot/internal/domain"
)

// RoleResult is the outcome of role classification.
type RoleResult struct {
	Role            string
	IsDecisionMaker bool
	Areas           []string
}

// FleetResult is the outcome of fleet-size classification.
type FleetResult struct {
	Raw    string
	Bucket domain.FleetBucket
}

// SolutionResult is the outcome of current-solution classification.
type SolutionResult struct {
	HasSolution bool
	Competitor  string
}

// TimelineResult is the outcome of decision-timeline classification.
type TimelineResult struct {
	Timeline domain.Timeline
	Urgency  domain.Urgency
}

// Closed set of interest area tags.
const (
	AreaTransport = "transporte"
	AreaSecurity  = "seguridad"
	AreaLogistics = "logistica"
	AreaExecutive = "direccion"
)

var roleAreas = []struct {
	area     string
	keywords []string
}{
	{AreaTransport, []string{"transporte", "flotilla", "flota", "trafico", "unidades", "camiones", "operaciones"}},
	{AreaSecurity, []string{"seguridad", "monitoreo", "prevencion", "robo"}},
	{AreaLogistics, []string{"logistica", "almacen", "distribucion", "rutas", "entregas"}},
	{AreaExecutive, []string{"director", "dueno", "duena", "propietario", "propietaria", "ceo", "socio", "socia", "fundador", "fundadora", "gerente general"}},
}

// Seniority keywords that imply decision authority on their own.
var seniorityKeywords = []string{
	"director", "directora", "dueno", "duena", "propietario", "propietaria",
	"ceo", "socio", "socia", "fundador", "fundadora", "gerente",
}

// Explicit decision phrases.
var decisionPhrases = []string{
	"yo decido", "yo tomo la decision", "yo apruebo", "yo autorizo",
	"la decision es mia", "soy quien decide",
}

// Competitors the sales team tracks. Matching is accent and case
// insensitive.
var competitors = []string{
	"lojack", "ituran", "geotab", "samsara", "webfleet", "encontrack", "traccar",
}

// Role classifies a declared role string.
func Role(text string) RoleResult {
	norm := normalize(text)

	result := RoleResult{Role: strings.TrimSpace(text)}

	for _, bucket := range roleAreas {
		for _, kw := range bucket.keywords {
			if containsPhrase(norm, kw) {
				result.Areas = append(result.Areas, bucket.area)
				break
			}
		}
	}

	for _, phrase := range decisionPhrases {
		if containsPhrase(norm, phrase) {
			result.IsDecisionMaker = true
			break
		}
	}
	if !result.IsDecisionMaker {
		for _, kw := range seniorityKeywords {
			if containsPhrase(norm, kw) {
				result.IsDecisionMaker = true
				break
			}
		}
	}

	return result
}

// FleetSize classifies a fleet-size answer. The first integer in the
// text drives the bucket; qualitative keywords apply when no number is
// present.
func FleetSize(text string) FleetResult {
	result := FleetResult{Raw: strings.TrimSpace(text), Bucket: domain.FleetUnknown}

	if n, ok := firstInt(text); ok {
		switch {
		case n >= 21:
			result.Bucket = domain.FleetLarge
		case n >= 6:
			result.Bucket = domain.FleetMedium
		case n >= 1:
			result.Bucket = domain.FleetSmall
		}
		return result
	}

	norm := normalize(text)
	switch {
	case containsAny(norm, "grande", "enorme", "bastantes", "muchas", "muchos"):
		result.Bucket = domain.FleetLarge
	case containsAny(norm, "mediana", "mediano", "regular"):
		result.Bucket = domain.FleetMedium
	case containsAny(norm, "pequena", "pequeno", "chica", "chico", "pocas", "pocos"):
		result.Bucket = domain.FleetSmall
	}

	return result
}

// CurrentSolution classifies a current-solution answer. A named
// competitor implies an existing solution regardless of phrasing.
func CurrentSolution(text string) SolutionResult {
	norm := normalize(text)

	result := SolutionResult{}
	for _, c := range competitors {
		if containsPhrase(norm, c) {
			result.HasSolution = true
			result.Competitor = c
			return result
		}
	}

	if containsAny(norm, "no usamos", "no tenemos", "no contamos", "nada", "ninguna", "ningun", "sin sistema") {
		return result
	}
	if containsAny(norm, "si", "ya tenemos", "usamos", "contamos con", "tenemos") {
		result.HasSolution = true
	}

	return result
}

// DecisionTimeline classifies a decision-timeline answer. Urgency
// derives deterministically from the timeline bucket.
func DecisionTimeline(text string) TimelineResult {
	norm := normalize(text)

	timeline := domain.TimelineUnknown
	switch {
	case containsAny(norm, "ya", "inmediato", "urgente", "hoy", "ahora", "esta semana", "cuanto antes"):
		timeline = domain.TimelineImmediate
	case containsAny(norm, "este mes", "pronto", "quince dias", "15 dias", "dos semanas"):
		timeline = domain.TimelineShort
	case containsAny(norm, "proximo mes", "mes que viene", "trimestre", "dos meses", "tres meses"):
		timeline = domain.TimelineMedium
	case containsAny(norm, "fin de ano", "proximo ano", "mas adelante", "despues", "todavia no", "aun no"):
		timeline = domain.TimelineLong
	}

	result := TimelineResult{Timeline: timeline}
	if timeline != domain.TimelineUnknown {
		result.Urgency = domain.UrgencyFor(timeline)
	} else {
		result.Urgency = domain.UrgencyLow
	}
	return result
}

// normalize lowercases and strips the accents that show up in informal
// Spanish, so keyword sets stay plain ASCII.
func normalize(s string) string {
	s = strings.ToLower(s)
	return accentReplacer.Replace(s)
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// containsPhrase reports whether the normalized text contains the phrase
// on word boundaries.
func containsPhrase(norm, phrase string) bool {
	padded := " " + stripPunct(norm) + " "
	return strings.Contains(padded, " "+phrase+" ")
}

func containsAny(norm string, phrases ...string) bool {
	for _, p := range phrases {
		if containsPhrase(norm, p) {
			return true
		}
	}
	return false
}

// stripPunct replaces punctuation with spaces so boundary matching works
// on messages like "¿sí, agendemos!".
func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// firstInt extracts the first integer in the text.
func firstInt(s string) (int, bool) {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(s[start:i])
			return n, err == nil
		}
	}
	if start >= 0 {
		n, err := strconv.Atoi(s[start:])
		return n, err == nil
	}
	return 0, false
}
