package message

import (
	"context"
	"time"
)

// Placeholders used when the platform cannot tell us who or where.
const (
	UnknownChat   = "Private/Unknown"
	UnknownSender = "Unknown"
)

// Chat identifies the group or channel an event was observed in
type Chat struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Sender identifies the author of an event
type Sender struct {
	ID     string `json:"id"`
	Handle string `json:"handle,omitempty"` // Username without the leading '@'; may be empty
}

// Attachment is the metadata of a file shared with an event
type Attachment struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Event is one inbound platform event. Chat, sender and attachment lookups
// may need a round trip to the platform and can fail independently.
type Event interface {
	Platform() string
	Chat(ctx context.Context) (Chat, error)
	Sender(ctx context.Context) (Sender, error)
	RawText() string
	// Attachment returns nil when the event carries no file.
	Attachment() (*Attachment, error)
}

// Message is a fully resolved Event, used by sources that deliver
// everything in one frame (Twitch, Kick) and by tests.
type Message struct {
	Source     string      `json:"platform"`
	ReceivedAt time.Time   `json:"received_at"`
	ChatInfo   Chat        `json:"chat"`
	From       Sender      `json:"sender"`
	Text       string      `json:"text"`
	File       *Attachment `json:"attachment,omitempty"`
}

func (m Message) Platform() string { return m.Source }

func (m Message) Chat(context.Context) (Chat, error) { return m.ChatInfo, nil }

func (m Message) Sender(context.Context) (Sender, error) { return m.From, nil }

func (m Message) RawText() string { return m.Text }

func (m Message) Attachment() (*Attachment, error) { return m.File, nil }

// DisplayName returns the title, or the placeholder when unnamed.
func (c Chat) DisplayName() string {
	if c.Title == "" {
		return UnknownChat
	}
	return c.Title
}

// DisplayHandle returns the handle, or the placeholder when absent.
func (s Sender) DisplayHandle() string {
	if s.Handle == "" {
		return UnknownSender
	}
	return s.Handle
}
