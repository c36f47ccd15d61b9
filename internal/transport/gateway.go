package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/config"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
)

// Gateway implements Sender against the WhatsApp gateway sidecar's HTTP
// API.
type Gateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGateway creates a gateway client from transport config.
func NewGateway(cfg *config.TransportConfig, logger *zap.Logger) *Gateway {
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{
		baseURL: strings.TrimRight(cfg.GatewayURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type sendRequest struct {
	Jid  string `json:"jid"`
	Text string `json:"text"`
}

type presenceRequest struct {
	Jid      string `json:"jid"`
	Presence string `json:"presence"`
}

type readRequest struct {
	Jid        string   `json:"jid"`
	MessageIDs []string `json:"messageIds"`
}

// SendMessage delivers a text message through the gateway.
func (g *Gateway) SendMessage(ctx context.Context, jid, text string) error {
	return g.post(ctx, "/messages/send", sendRequest{Jid: jid, Text: text})
}

// SendPresenceUpdate emits a presence hint.
func (g *Gateway) SendPresenceUpdate(ctx context.Context, jid, presence string) error {
	return g.post(ctx, "/messages/presence", presenceRequest{Jid: jid, Presence: presence})
}

// ReadMessages marks messages as read.
func (g *Gateway) ReadMessages(ctx context.Context, jid string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return g.post(ctx, "/messages/read", readRequest{Jid: jid, MessageIDs: messageIDs})
}

func (g *Gateway) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.SendError(fmt.Errorf("failed to marshal gateway request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return apperrors.SendError(fmt.Errorf("failed to create gateway request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return apperrors.SendError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn("gateway request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return apperrors.SendError(fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	return nil
}
