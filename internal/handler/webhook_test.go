package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/transport"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []*transport.InboundMessage
	err      error
}

func (q *fakeQueue) Enqueue(msg *transport.InboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

func webhookRouter(queue Enqueuer, secret string) chi.Router {
	r := chi.NewRouter()
	NewWebhookHandler(queue, secret, zap.NewNop()).RegisterRoutes(r)
	return r
}

const validPayload = `{"remoteJid":"5215512345678@s.whatsapp.net","pushName":"Juan","messageContent":{"conversation":"hola"}}`

func TestWebhook_AcceptsDelivery(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(queue, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(validPayload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if queue.count() != 1 {
		t.Fatalf("enqueued = %d, want 1", queue.count())
	}
	msg := queue.messages[0]
	if msg.RemoteJid != "5215512345678@s.whatsapp.net" {
		t.Errorf("remoteJid = %q", msg.RemoteJid)
	}
	if got := transport.Extract(msg.Content); got.Text != "hola" {
		t.Errorf("text = %q, want hola", got.Text)
	}
}

func TestWebhook_RejectsBadSecret(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(queue, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(validPayload))
	req.Header.Set(WebhookSecretHeader, "wrong")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
	if queue.count() != 0 {
		t.Error("message should not reach the queue")
	}
}

func TestWebhook_AcceptsMatchingSecret(t *testing.T) {
	queue := &fakeQueue{}
	router := webhookRouter(queue, "s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(validPayload))
	req.Header.Set(WebhookSecretHeader, "s3cret")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rr.Code)
	}
}

func TestWebhook_RejectsMalformedJSON(t *testing.T) {
	router := webhookRouter(&fakeQueue{}, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(`{"remoteJid":`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestWebhook_RejectsMissingJid(t *testing.T) {
	router := webhookRouter(&fakeQueue{}, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(`{"messageContent":{"conversation":"hola"}}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestWebhook_QueueStoppedMeansRetryLater(t *testing.T) {
	queue := &fakeQueue{err: errors.New("queue stopped")}
	router := webhookRouter(queue, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(validPayload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestWebhook_RejectsOversizedBody(t *testing.T) {
	router := webhookRouter(&fakeQueue{}, "")

	body := `{"remoteJid":"5215512345678@s.whatsapp.net","messageContent":{"conversation":"` +
		strings.Repeat("a", 2<<20) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
}
