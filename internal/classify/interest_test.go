package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCompleter struct {
	response string
	err      error
	called   bool
	prompt   string
}

func (f *fakeCompleter) Complete(_ context.Context, _, prompt string) (string, error) {
	f.called = true
	f.prompt = prompt
	return f.response, f.err
}

func TestInterest_ParsesStrictJSON(t *testing.T) {
	llm := &fakeCompleter{
		response: `{"highInterest": true, "interestScore": 9, "shouldOfferAppointment": true, "reasoning": "flota grande y urgencia alta"}`,
	}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	got := c.Interest(context.Background(), map[string]string{"fleet_size": "50 camiones"})

	if !got.HighInterest || got.InterestScore != 9 || !got.ShouldOfferAppointment {
		t.Errorf("result = %+v", got)
	}
}

func TestInterest_ToleratesSurroundingProse(t *testing.T) {
	llm := &fakeCompleter{
		response: "Claro, aquí está el análisis:\n```json\n{\"highInterest\": false, \"interestScore\": 3, \"shouldOfferAppointment\": false, \"reasoning\": \"poco interés\"}\n```",
	}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	got := c.Interest(context.Background(), map[string]string{"k": "v"})

	if got.HighInterest || got.InterestScore != 3 {
		t.Errorf("result = %+v", got)
	}
}

func TestInterest_ClampsScore(t *testing.T) {
	llm := &fakeCompleter{
		response: `{"highInterest": true, "interestScore": 15, "shouldOfferAppointment": true, "reasoning": "x"}`,
	}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	if got := c.Interest(context.Background(), map[string]string{"k": "v"}); got.InterestScore != 10 {
		t.Errorf("score = %d, want clamped to 10", got.InterestScore)
	}
}

func TestInterest_NeutralOnTransportFailure(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("timeout")}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	got := c.Interest(context.Background(), map[string]string{"k": "v"})

	want := NeutralInterest()
	if *got != *want {
		t.Errorf("got %+v, want neutral default %+v", got, want)
	}
}

func TestInterest_NeutralOnGarbageOutput(t *testing.T) {
	llm := &fakeCompleter{response: "lo siento, no puedo evaluar esto"}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	got := c.Interest(context.Background(), map[string]string{"k": "v"})

	if got.InterestScore != 5 || got.Reasoning != "fallback" {
		t.Errorf("got %+v, want neutral default", got)
	}
}

func TestInterest_NilLLM(t *testing.T) {
	c := NewClassifier(nil, time.Second, zap.NewNop())

	got := c.Interest(context.Background(), map[string]string{"k": "v"})

	if got.Reasoning != "fallback" {
		t.Errorf("nil model should yield neutral default, got %+v", got)
	}
}

func TestInterest_PromptListsAnswersSorted(t *testing.T) {
	llm := &fakeCompleter{response: `{"highInterest":false,"interestScore":5,"shouldOfferAppointment":false,"reasoning":"x"}`}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	c.Interest(context.Background(), map[string]string{
		"decision_timeline": "este mes",
		"fleet_size":        "12",
	})

	if !llm.called {
		t.Fatal("model should be consulted")
	}
	ti := strings.Index(llm.prompt, "decision_timeline")
	fi := strings.Index(llm.prompt, "fleet_size")
	if ti < 0 || fi < 0 || ti > fi {
		t.Errorf("prompt should list answers in sorted key order:\n%s", llm.prompt)
	}
}

func TestInterest_EmptyAnswers(t *testing.T) {
	llm := &fakeCompleter{response: `{}`}
	c := NewClassifier(llm, time.Second, zap.NewNop())

	c.Interest(context.Background(), nil)

	if llm.called {
		t.Error("model should not be consulted without answers")
	}
}
