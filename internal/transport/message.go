// Package transport defines the chat transport contracts: the inbound
// message shapes delivered by the WhatsApp gateway and the outbound
// sender used for replies, presence hints and read receipts.
package transport

// Kind tags the extracted payload of an inbound message.
type Kind string

const (
	KindText   Kind = "text"
	KindButton Kind = "button"
	KindList   Kind = "list"
	KindAudio  Kind = "audio"
	KindNone   Kind = "none"
)

// InboundMessage is the gateway's chat event. FromMe marks messages sent
// from the business account itself (the operator channel).
type InboundMessage struct {
	ID        string          `json:"id,omitempty"`
	RemoteJid string          `json:"remoteJid"`
	FromMe    bool            `json:"fromMe,omitempty"`
	PushName  string          `json:"pushName,omitempty"`
	Content   *MessageContent `json:"messageContent,omitempty"`
}

// MessageContent mirrors the gateway's duck-typed message shapes. At
// most one field is set per message.
type MessageContent struct {
	Conversation           string           `json:"conversation,omitempty"`
	ExtendedTextMessage    *ExtendedText    `json:"extendedTextMessage,omitempty"`
	ButtonsResponseMessage *ButtonsResponse `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage    *ListResponse    `json:"listResponseMessage,omitempty"`
	AudioMessage           *AudioMessage    `json:"audioMessage,omitempty"`
}

// ExtendedText carries text with link previews or quotes.
type ExtendedText struct {
	Text string `json:"text"`
}

// ButtonsResponse is a tapped quick-reply button.
type ButtonsResponse struct {
	SelectedButtonID    string `json:"selectedButtonId,omitempty"`
	SelectedDisplayText string `json:"selectedDisplayText"`
}

// ListResponse is a selected list row.
type ListResponse struct {
	Title string `json:"title"`
}

// AudioMessage is a voice note or audio file with a downloadable URL.
type AudioMessage struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

// Payload is the result of extraction: the tagged variant the engine
// dispatches on.
type Payload struct {
	Kind      Kind
	Text      string
	AudioURL  string
	MediaType string
}

// Extract reduces the duck-typed content to a tagged payload. It is
// total: unrecognized or empty content yields KindNone, never an error.
func Extract(c *MessageContent) Payload {
	switch {
	case c == nil:
		return Payload{Kind: KindNone}
	case c.Conversation != "":
		return Payload{Kind: KindText, Text: c.Conversation}
	case c.ExtendedTextMessage != nil && c.ExtendedTextMessage.Text != "":
		return Payload{Kind: KindText, Text: c.ExtendedTextMessage.Text}
	case c.ButtonsResponseMessage != nil && c.ButtonsResponseMessage.SelectedDisplayText != "":
		return Payload{Kind: KindButton, Text: c.ButtonsResponseMessage.SelectedDisplayText}
	case c.ListResponseMessage != nil && c.ListResponseMessage.Title != "":
		return Payload{Kind: KindList, Text: c.ListResponseMessage.Title}
	case c.AudioMessage != nil && c.AudioMessage.URL != "":
		return Payload{Kind: KindAudio, AudioURL: c.AudioMessage.URL, MediaType: c.AudioMessage.Mimetype}
	default:
		return Payload{Kind: KindNone}
	}
}
