package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/john/leakwatch/internal/crawler"
)

func entities() tg.Entities {
	return tg.Entities{
		Users:    map[int64]*tg.User{20: {ID: 20, Username: "leaker"}},
		Chats:    map[int64]*tg.Chat{30: {ID: 30, Title: "Small Group"}},
		Channels: map[int64]*tg.Channel{10: {ID: 10, Title: "Dumps Hub", Username: "dumpshub"}},
	}
}

func TestEventGroupMessage(t *testing.T) {
	ev := event{
		msg: &tg.Message{
			PeerID:  &tg.PeerChannel{ChannelID: 10},
			FromID:  &tg.PeerUser{UserID: 20},
			Message: "combo list",
		},
		entities: entities(),
	}

	chat, err := ev.Chat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dumps Hub", chat.Title)

	sender, err := ev.Sender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "leaker", sender.Handle)

	assert.Equal(t, "combo list", ev.RawText())
	assert.Equal(t, "telegram", ev.Platform())

	att, err := ev.Attachment()
	require.NoError(t, err)
	assert.Nil(t, att)
}

func TestEventChannelPostSender(t *testing.T) {
	ev := event{msg: &tg.Message{PeerID: &tg.PeerChannel{ChannelID: 10}}, entities: entities()}

	sender, err := ev.Sender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dumpshub", sender.Handle)
}

func TestEventSmallGroupAndPrivate(t *testing.T) {
	group := event{msg: &tg.Message{PeerID: &tg.PeerChat{ChatID: 30}, FromID: &tg.PeerUser{UserID: 20}}, entities: entities()}
	chat, err := group.Chat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Small Group", chat.Title)

	private := event{msg: &tg.Message{PeerID: &tg.PeerUser{UserID: 20}}, entities: entities()}
	chat, err = private.Chat(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Private/Unknown", chat.DisplayName())

	sender, err := private.Sender(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "leaker", sender.Handle)
}

func TestEventMissingEntities(t *testing.T) {
	ev := event{
		msg:      &tg.Message{PeerID: &tg.PeerChannel{ChannelID: 99}, FromID: &tg.PeerUser{UserID: 98}},
		entities: tg.Entities{},
	}

	chat, err := ev.Chat(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "99", chat.ID)

	sender, err := ev.Sender(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "Unknown", sender.DisplayHandle())
}

func TestEventAttachment(t *testing.T) {
	ev := event{msg: &tg.Message{
		PeerID: &tg.PeerChannel{ChannelID: 10},
		Media: &tg.MessageMediaDocument{Document: &tg.Document{
			MimeType: "application/sql",
			Size:     2048,
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: "leak_2024.sql"},
			},
		}},
	}}

	att, err := ev.Attachment()
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, "leak_2024.sql", att.FileName)
	assert.Equal(t, int64(2048), att.Size)
}

func TestEventAttachmentWithoutName(t *testing.T) {
	ev := event{msg: &tg.Message{
		PeerID: &tg.PeerChannel{ChannelID: 10},
		Media:  &tg.MessageMediaDocument{Document: &tg.Document{MimeType: "video/mp4"}},
	}}

	att, err := ev.Attachment()
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Empty(t, att.FileName)
}

func TestEventAttachmentUnavailable(t *testing.T) {
	empty := event{msg: &tg.Message{Media: &tg.MessageMediaDocument{Document: &tg.DocumentEmpty{ID: 1}}}}
	_, err := empty.Attachment()
	assert.Error(t, err)

	missing := event{msg: &tg.Message{Media: &tg.MessageMediaDocument{}}}
	_, err = missing.Attachment()
	assert.Error(t, err)

	photo := event{msg: &tg.Message{Media: &tg.MessageMediaPhoto{}}}
	att, err := photo.Attachment()
	assert.NoError(t, err)
	assert.Nil(t, att)
}

func TestClassifyJoinError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want crawler.Outcome
	}{
		{"already participant", tgerr.New(400, "USER_ALREADY_PARTICIPANT"), crawler.AlreadyMember},
		{"expired", tgerr.New(400, "INVITE_HASH_EXPIRED"), crawler.Expired},
		{"invalid", tgerr.New(400, "INVITE_HASH_INVALID"), crawler.Expired},
		{"peer flood", tgerr.New(400, "PEER_FLOOD"), crawler.RateLimited},
		{"other rpc", tgerr.New(500, "INTERNAL"), crawler.OtherFailure},
		{"network", errors.New("connection reset"), crawler.OtherFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifyJoinError(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Error(t, err)
		})
	}
}

func TestClassifyJoinErrorFloodWait(t *testing.T) {
	got, err := classifyJoinError(tgerr.New(420, "FLOOD_WAIT_30"))
	assert.Equal(t, crawler.RateLimited, got)

	var flood *crawler.FloodWaitError
	require.True(t, errors.As(err, &flood))
	assert.Equal(t, 30*time.Second, flood.Wait)
}

func TestJoinedPeers(t *testing.T) {
	peers := joinedPeers(&tg.Updates{Chats: []tg.ChatClass{
		&tg.Channel{ID: 10, AccessHash: 555},
		&tg.Chat{ID: 30},
		&tg.ChatForbidden{ID: 40},
	}})

	require.Len(t, peers, 2)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 10, AccessHash: 555}, peers[0])
	assert.Equal(t, &tg.InputPeerChat{ChatID: 30}, peers[1])

	assert.Empty(t, joinedPeers(&tg.UpdatesTooLong{}))
}
