package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/domain"
	"github.com/rastreogo/leadbot/internal/transport"
)

func TestQueue_ProcessesInOrderPerSender(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	q := NewQueue(f.engine, &QueueConfig{Workers: 4, Depth: 16}, zap.NewNop())
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Name answer must be processed after the opening message, even
	// with several workers running.
	for _, text := range []string{"Hola, buen día", "Soy Juan Pérez", "Transportes X"} {
		if err := q.Enqueue(&transport.InboundMessage{
			RemoteJid: testJid,
			Content:   &transport.MessageContent{Conversation: text},
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	p := f.store.Get(context.Background(), testPhone)
	if p.State != domain.StateQualification {
		t.Errorf("state = %s, want QUALIFICATION after the three ordered turns", p.State)
	}
	if p.Name != "Juan Pérez" {
		t.Errorf("name = %q", p.Name)
	}
}

func TestQueue_ParallelSenders(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	q := NewQueue(f.engine, &QueueConfig{Workers: 4, Depth: 16}, zap.NewNop())
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 20; i++ {
		jid := fmt.Sprintf("52155500000%02d%s", i, jidSuffix)
		if err := q.Enqueue(&transport.InboundMessage{
			RemoteJid: jid,
			Content:   &transport.MessageContent{Conversation: "Hola"},
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := len(f.deliverer.all()); got != 20 {
		t.Errorf("deliveries = %d, want 20", got)
	}
	if f.store.MemoryCount() != 20 {
		t.Errorf("records = %d, want 20", f.store.MemoryCount())
	}
}

func TestQueue_DepthGaugeTracksBacklog(t *testing.T) {
	llm := newBlockingLLM()
	f := newFixture(t, llm, nil, nil)
	q := NewQueue(f.engine, &QueueConfig{Workers: 1, Depth: 16}, zap.NewNop())
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	p := domain.NewProspect(testPhone, f.clk.NowUTC())
	p.State = domain.StateGeneralInquiry
	f.store.Save(context.Background(), p)

	enqueue := func(text string) {
		t.Helper()
		if err := q.Enqueue(&transport.InboundMessage{
			RemoteJid: testJid,
			Content:   &transport.MessageContent{Conversation: text},
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Park the single worker inside the first turn, then pile two more
	// messages behind it.
	enqueue("¿cuánto cuesta el servicio?")
	<-llm.entered
	enqueue("¿hola?")
	enqueue("¿sigues ahí?")

	if body := scrapeEngineMetrics(t, f); !strings.Contains(body, "leadbot_queue_depth 3") {
		t.Errorf("gauge should report the backlog:\n%s", body)
	}

	close(llm.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if body := scrapeEngineMetrics(t, f); !strings.Contains(body, "leadbot_queue_depth 0") {
		t.Errorf("gauge should drop back to zero after the drain:\n%s", body)
	}
}

func scrapeEngineMetrics(t *testing.T, f *fixture) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.engine.metrics.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

func TestQueue_EnqueueAfterStopFails(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	q := NewQueue(f.engine, nil, zap.NewNop())
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	err := q.Enqueue(&transport.InboundMessage{
		RemoteJid: testJid,
		Content:   &transport.MessageContent{Conversation: "Hola"},
	})
	if err == nil || !strings.Contains(err.Error(), "stopped") {
		t.Errorf("err = %v", err)
	}
}

func TestQueue_DoubleStartFails(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	q := NewQueue(f.engine, nil, zap.NewNop())
	if err := q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer q.Stop(context.Background())

	if err := q.Start(); err == nil {
		t.Error("second Start should fail")
	}
}
