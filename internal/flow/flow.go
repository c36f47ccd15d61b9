// Package flow implements the per-phase conversation modules. Each
// phase of the state machine has a module that interprets the prospect's
// reply, mutates the record, and names the next phase; the engine owns
// dispatch, persistence and transport.
package flow

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/calendar"
	"github.com/rastreogo/leadbot/internal/classify"
	"github.com/rastreogo/leadbot/internal/domain"
)

// Result is a module's outcome for one turn. The module mutates the
// prospect in place; the engine persists it and validates the
// transition.
type Result struct {
	// Reply is the text for the prospect; empty means stay silent.
	Reply string
	// NextState names the phase after this turn. Equal to the current
	// state when the phase does not change.
	NextState domain.ConversationState
	// Notification, when non-empty, is relayed to the sales operator
	// channel (high-interest alerts).
	Notification string
}

// Handler is one conversation phase.
type Handler interface {
	// Prompt returns the text that opens the phase when a transition
	// lands on it. It may mutate the prospect (e.g. set the first
	// qualification step). An empty prompt opens silently.
	Prompt(ctx context.Context, p *domain.Prospect) string

	// Handle interprets one inbound reply while the phase is active.
	Handle(ctx context.Context, p *domain.Prospect, text string) (Result, error)
}

// Deps are the collaborators shared by the modules.
type Deps struct {
	Classifier *classify.Classifier
	LLM        classify.Completer  // nil in heuristic-only mode
	Calendar   calendar.Scheduler  // nil in degraded scheduling mode
	BotName    string
	VendorName string
	LLMTimeout time.Duration
	Logger     *zap.Logger
}

// Modules is the closed dispatch table: one handler per phase.
type Modules struct {
	deps Deps

	table map[domain.ConversationState]Handler
}

// NewModules builds the dispatch table.
func NewModules(deps Deps) *Modules {
	if deps.LLMTimeout <= 0 {
		deps.LLMTimeout = 30 * time.Second
	}

	m := &Modules{deps: deps}
	scheduling := &schedulingModule{deps: deps}
	inquiry := &inquiryModule{deps: deps}

	m.table = map[domain.ConversationState]Handler{
		domain.StateInitial:            &initialModule{deps: deps},
		domain.StateGreeting:           &greetingModule{deps: deps},
		domain.StateQualification:      &qualificationModule{deps: deps},
		domain.StateInterestValidation: &interestModule{deps: deps},
		domain.StateAppointmentScheduling: scheduling,
		domain.StateClosing:            &closingModule{deps: deps},
		domain.StateClosed:             &closedModule{},
		domain.StateGeneralInquiry:     inquiry,
	}
	return m
}

// For returns the handler for a phase. Unknown phases fall back to the
// INITIAL handler, mirroring state normalization in the store.
func (m *Modules) For(state domain.ConversationState) Handler {
	if h, ok := m.table[state]; ok {
		return h
	}
	return m.table[domain.StateInitial]
}

// reduce asks the model to pick exactly one of the options, with a
// keyword fallback when no model is configured. When the model answers
// but with garbage, the first option loses: callers pass the
// conservative option last.
func reduce(ctx context.Context, deps Deps, text, question string, yes, no string, yesKeywords []string) string {
	if deps.LLM != nil {
		ctx, cancel := context.WithTimeout(ctx, deps.LLMTimeout)
		defer cancel()

		prompt := "Mensaje del prospecto: \"" + text + "\"\n\n" + question +
			"\nResponde ÚNICAMENTE con la palabra " + yes + " o la palabra " + no + "."
		raw, err := deps.LLM.Complete(ctx, "", prompt)
		if err == nil {
			answer := strings.ToUpper(strings.TrimSpace(raw))
			switch {
			case strings.Contains(answer, yes):
				return yes
			case strings.Contains(answer, no):
				return no
			}
			deps.Logger.Warn("reduction returned unexpected output, defaulting",
				zap.String("want", yes+"|"+no),
			)
		} else {
			deps.Logger.Warn("reduction call failed, defaulting", zap.Error(err))
		}
		return no
	}

	norm := strings.ToLower(text)
	for _, kw := range yesKeywords {
		if strings.Contains(norm, kw) {
			return yes
		}
	}
	return no
}
