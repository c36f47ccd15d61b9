package transport

import "context"

// Presence values understood by the gateway.
const (
	PresenceComposing = "composing"
	PresencePaused    = "paused"
)

// Sender is the outbound side of the transport.
type Sender interface {
	// SendMessage delivers a text message to the jid.
	SendMessage(ctx context.Context, jid, text string) error

	// SendPresenceUpdate emits a presence hint ("composing", "paused").
	SendPresenceUpdate(ctx context.Context, jid, presence string) error

	// ReadMessages marks the given message ids as read.
	ReadMessages(ctx context.Context, jid string, messageIDs []string) error
}
