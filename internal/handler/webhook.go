// Package handler provides the HTTP surface of the bot: the gateway
// webhook, health probes, and the runtime log level endpoint.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/middleware"
	"github.com/rastreogo/leadbot/internal/sanitize"
	"github.com/rastreogo/leadbot/internal/transport"
)

// WebhookSecretHeader authenticates gateway deliveries.
const WebhookSecretHeader = "X-Webhook-Secret"

// Enqueuer accepts inbound messages for asynchronous dispatch.
type Enqueuer interface {
	Enqueue(msg *transport.InboundMessage) error
}

// WebhookHandler receives chat events from the WhatsApp gateway and
// hands them to the dispatch queue. The webhook always answers fast;
// all conversation work happens on the workers.
type WebhookHandler struct {
	queue  Enqueuer
	secret string
	logger *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler. An empty secret disables
// the shared-secret check (local development).
func NewWebhookHandler(queue Enqueuer, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		queue:  queue,
		secret: secret,
		logger: logger,
	}
}

// RegisterRoutes registers the webhook route on the router.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.BodySizeLimiter(middleware.MaxWebhookBodySize)).
		Post("/webhook/whatsapp", h.HandleMessage)
}

// HandleMessage processes one gateway delivery.
func (h *WebhookHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook delivery with bad secret",
				zap.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	var msg transport.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.logger.Warn("undecodable webhook payload", zap.Error(err))
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	if msg.RemoteJid == "" {
		http.Error(w, "remoteJid is required", http.StatusBadRequest)
		return
	}

	if err := h.queue.Enqueue(&msg); err != nil {
		// Shutting down: tell the gateway to retry later.
		h.logger.Warn("queue rejected message",
			zap.String("jid", sanitize.JID(msg.RemoteJid)),
			zap.Error(err),
		)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
