package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/rastreogo/leadbot/internal/config"
	apperrors "github.com/rastreogo/leadbot/internal/errors"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		content *MessageContent
		want    Payload
	}{
		{
			"nil content",
			nil,
			Payload{Kind: KindNone},
		},
		{
			"plain conversation",
			&MessageContent{Conversation: "Hola, me interesa"},
			Payload{Kind: KindText, Text: "Hola, me interesa"},
		},
		{
			"extended text",
			&MessageContent{ExtendedTextMessage: &ExtendedText{Text: "hola https://rastreogo.mx"}},
			Payload{Kind: KindText, Text: "hola https://rastreogo.mx"},
		},
		{
			"button reply",
			&MessageContent{ButtonsResponseMessage: &ButtonsResponse{SelectedButtonID: "b1", SelectedDisplayText: "Sí, agendar"}},
			Payload{Kind: KindButton, Text: "Sí, agendar"},
		},
		{
			"list reply",
			&MessageContent{ListResponseMessage: &ListResponse{Title: "Martes 10:00"}},
			Payload{Kind: KindList, Text: "Martes 10:00"},
		},
		{
			"voice note",
			&MessageContent{AudioMessage: &AudioMessage{URL: "https://cdn.example/a.ogg", Mimetype: "audio/ogg", PTT: true}},
			Payload{Kind: KindAudio, AudioURL: "https://cdn.example/a.ogg", MediaType: "audio/ogg"},
		},
		{
			"empty shapes collapse to none",
			&MessageContent{ExtendedTextMessage: &ExtendedText{}},
			Payload{Kind: KindNone},
		},
		{
			"conversation wins over other shapes",
			&MessageContent{
				Conversation:        "texto",
				ListResponseMessage: &ListResponse{Title: "fila"},
			},
			Payload{Kind: KindText, Text: "texto"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Extract(tt.content); got != tt.want {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGateway(&config.TransportConfig{
		GatewayURL: srv.URL,
		Token:      "gw-token",
	}, zap.NewNop())
}

func TestGateway_SendMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody sendRequest

	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	})

	err := g.SendMessage(context.Background(), "5215512345678@s.whatsapp.net", "Hola")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotPath != "/messages/send" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer gw-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotBody.Jid != "5215512345678@s.whatsapp.net" || gotBody.Text != "Hola" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestGateway_SendMessage_GatewayError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := g.SendMessage(context.Background(), "jid", "text")
	if err == nil {
		t.Fatal("expected error")
	}
	if apperrors.GetCode(err) != apperrors.CodeTransportSend {
		t.Errorf("code = %s, want transport send", apperrors.GetCode(err))
	}
}

func TestGateway_SendPresenceUpdate(t *testing.T) {
	var gotBody presenceRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/presence" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
	})

	if err := g.SendPresenceUpdate(context.Background(), "jid", PresenceComposing); err != nil {
		t.Fatalf("SendPresenceUpdate: %v", err)
	}
	if gotBody.Presence != "composing" {
		t.Errorf("presence = %q", gotBody.Presence)
	}
}

func TestGateway_ReadMessages(t *testing.T) {
	var calls int
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	// Empty id list is a no-op, no request made.
	if err := g.ReadMessages(context.Background(), "jid", nil); err != nil {
		t.Fatalf("ReadMessages(nil): %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no request for empty ids, got %d", calls)
	}

	if err := g.ReadMessages(context.Background(), "jid", []string{"m1", "m2"}); err != nil {
		t.Fatalf("ReadMessages: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
