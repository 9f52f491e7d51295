package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gotd/td/tg"

	"github.com/john/leakwatch/internal/message"
)

const platform = "telegram"

// event resolves chat, sender and file lazily from the entities delivered
// with the update. Short updates may omit entities; lookups then fail and
// the dispatcher falls back to placeholders.
type event struct {
	msg      *tg.Message
	entities tg.Entities
}

var _ message.Event = event{}

func (e event) Platform() string { return platform }

func (e event) RawText() string { return e.msg.Message }

func (e event) Chat(context.Context) (message.Chat, error) {
	switch peer := e.msg.PeerID.(type) {
	case *tg.PeerChannel:
		id := strconv.FormatInt(peer.ChannelID, 10)
		ch, ok := e.entities.Channels[peer.ChannelID]
		if !ok {
			return message.Chat{ID: id}, fmt.Errorf("channel %d not in update entities", peer.ChannelID)
		}
		return message.Chat{ID: id, Title: ch.Title}, nil
	case *tg.PeerChat:
		id := strconv.FormatInt(peer.ChatID, 10)
		chat, ok := e.entities.Chats[peer.ChatID]
		if !ok {
			return message.Chat{ID: id}, fmt.Errorf("chat %d not in update entities", peer.ChatID)
		}
		return message.Chat{ID: id, Title: chat.Title}, nil
	case *tg.PeerUser:
		// Private conversation: no title.
		return message.Chat{ID: strconv.FormatInt(peer.UserID, 10)}, nil
	default:
		return message.Chat{}, fmt.Errorf("unexpected peer %T", e.msg.PeerID)
	}
}

func (e event) Sender(context.Context) (message.Sender, error) {
	from := e.msg.FromID
	if from == nil {
		// Channel posts and private chats carry the author in PeerID.
		from = e.msg.PeerID
	}

	switch peer := from.(type) {
	case *tg.PeerUser:
		id := strconv.FormatInt(peer.UserID, 10)
		u, ok := e.entities.Users[peer.UserID]
		if !ok {
			return message.Sender{ID: id}, fmt.Errorf("user %d not in update entities", peer.UserID)
		}
		return message.Sender{ID: id, Handle: u.Username}, nil
	case *tg.PeerChannel:
		id := strconv.FormatInt(peer.ChannelID, 10)
		ch, ok := e.entities.Channels[peer.ChannelID]
		if !ok {
			return message.Sender{ID: id}, fmt.Errorf("channel %d not in update entities", peer.ChannelID)
		}
		return message.Sender{ID: id, Handle: ch.Username}, nil
	case *tg.PeerChat:
		return message.Sender{ID: strconv.FormatInt(peer.ChatID, 10)}, nil
	default:
		return message.Sender{}, fmt.Errorf("unexpected sender peer %T", from)
	}
}

func (e event) Attachment() (*message.Attachment, error) {
	media, ok := e.msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, nil
	}

	switch doc := media.Document.(type) {
	case *tg.Document:
		att := &message.Attachment{MimeType: doc.MimeType, Size: doc.Size}
		for _, attr := range doc.Attributes {
			if name, ok := attr.(*tg.DocumentAttributeFilename); ok {
				att.FileName = name.FileName
			}
		}
		return att, nil
	case nil:
		return nil, fmt.Errorf("document media without document")
	default:
		return nil, fmt.Errorf("document unavailable (%T)", doc)
	}
}
