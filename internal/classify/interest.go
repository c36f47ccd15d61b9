package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// InterestResult is the outcome of interest analysis.
type InterestResult struct {
	HighInterest           bool   `json:"highInterest"`
	InterestScore          int    `json:"interestScore"`
	ShouldOfferAppointment bool   `json:"shouldOfferAppointment"`
	Reasoning              string `json:"reasoning"`
}

// NeutralInterest is the fallback when the model cannot be consulted.
func NeutralInterest() *InterestResult {
	return &InterestResult{
		HighInterest:           false,
		InterestScore:          5,
		ShouldOfferAppointment: false,
		Reasoning:              "fallback",
	}
}

// Completer is the slice of the model client the classifier needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Classifier runs interest analysis against the language model. A nil
// Completer runs in heuristic-only mode and always returns the neutral
// default.
type Classifier struct {
	llm     Completer
	timeout time.Duration
	logger  *zap.Logger
}

// NewClassifier creates a Classifier. llm may be nil.
func NewClassifier(llm Completer, timeout time.Duration, logger *zap.Logger) *Classifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Classifier{llm: llm, timeout: timeout, logger: logger}
}

const interestSystemPrompt = `Eres un analista de ventas de sistemas de rastreo GPS vehicular. ` +
	`Evalúas el interés de compra de un prospecto a partir de sus respuestas de calificación. ` +
	`Responde ÚNICAMENTE con un objeto JSON, sin texto adicional, con esta forma exacta: ` +
	`{"highInterest": bool, "interestScore": entero 1-10, "shouldOfferAppointment": bool, "reasoning": "una frase"}`

// Interest asks the model to grade purchase interest from the answers
// collected so far. It never returns an error: any transport or parse
// failure yields the neutral default.
func (c *Classifier) Interest(ctx context.Context, answers map[string]string) *InterestResult {
	if c.llm == nil || len(answers) == 0 {
		return NeutralInterest()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.Complete(ctx, interestSystemPrompt, buildInterestPrompt(answers))
	if err != nil {
		c.logger.Warn("interest analysis failed, using neutral default", zap.Error(err))
		return NeutralInterest()
	}

	result, err := parseInterest(raw)
	if err != nil {
		c.logger.Warn("interest analysis returned unparseable output, using neutral default",
			zap.Error(err),
		)
		return NeutralInterest()
	}

	return result
}

func buildInterestPrompt(answers map[string]string) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Respuestas del prospecto:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, answers[k])
	}
	b.WriteString("\nEvalúa el interés de compra.")
	return b.String()
}

// parseInterest extracts the JSON object from the model output,
// tolerating surrounding prose or code fences.
func parseInterest(raw string) (*InterestResult, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var result InterestResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("failed to parse interest JSON: %w", err)
	}

	if result.InterestScore < 1 {
		result.InterestScore = 1
	}
	if result.InterestScore > 10 {
		result.InterestScore = 10
	}
	if result.Reasoning == "" {
		result.Reasoning = "sin detalle"
	}

	return &result, nil
}
