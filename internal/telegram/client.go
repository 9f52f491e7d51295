package telegram

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/crawler"
	"github.com/john/leakwatch/internal/message"
)

// Options configures the monitoring session
type Options struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string
	SessionFile string
	MuteJoined  bool
	CodeInput   io.Reader // where the login code is read from; stdin in production
}

// Client is a Telegram user session that streams new messages and joins
// groups by invite token.
type Client struct {
	client *telegram.Client
	opts   Options
	logger *logrus.Entry
	events chan<- message.Event
}

var _ crawler.Joiner = (*Client)(nil)

// New creates a client. Nothing connects until Start.
func New(opts Options, logger *logrus.Entry) *Client {
	c := &Client{opts: opts, logger: logger}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return c.forward(ctx, e, u.Message)
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return c.forward(ctx, e, u.Message)
	})

	c.client = telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: opts.SessionFile},
		UpdateHandler:  dispatcher,
	})
	return c
}

// Start connects, logs in if the session is not authorized yet and streams
// events until ctx is cancelled. onReady runs once the account is known.
func (c *Client) Start(ctx context.Context, events chan<- message.Event, onReady func(self *tg.User)) error {
	c.events = events

	return c.client.Run(ctx, func(ctx context.Context) error {
		if err := c.client.Auth().IfNecessary(ctx, c.authFlow()); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		c.logger.WithFields(logrus.Fields{"user_id": self.ID, "username": self.Username}).Info("Session ready")
		if onReady != nil {
			onReady(self)
		}

		<-ctx.Done()
		return ctx.Err()
	})
}

func (c *Client) authFlow() auth.Flow {
	in := c.opts.CodeInput
	code := auth.CodeAuthenticatorFunc(func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		if in == nil {
			return "", fmt.Errorf("login code required but no input configured")
		}
		fmt.Print("Enter login code: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read login code: %w", err)
		}
		return strings.TrimSpace(line), nil
	})

	var a auth.UserAuthenticator
	if c.opts.Password != "" {
		a = auth.Constant(c.opts.Phone, c.opts.Password, code)
	} else {
		a = auth.CodeOnly(c.opts.Phone, code)
	}
	return auth.NewFlow(a, auth.SendCodeOptions{})
}

func (c *Client) forward(ctx context.Context, e tg.Entities, m tg.MessageClass) error {
	msg, ok := m.(*tg.Message)
	if !ok || c.events == nil {
		// Service messages (joins, pins) carry no text to scan.
		return nil
	}

	select {
	case c.events <- event{msg: msg, entities: e}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join imports a chat invite.
func (c *Client) Join(ctx context.Context, token string) (crawler.Outcome, error) {
	api := c.client.API()

	updates, err := api.MessagesImportChatInvite(ctx, token)
	if err != nil {
		return classifyJoinError(err)
	}

	if c.opts.MuteJoined {
		c.mute(ctx, api, updates)
	}
	return crawler.Joined, nil
}

// classifyJoinError maps RPC errors onto join outcomes
func classifyJoinError(err error) (crawler.Outcome, error) {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return crawler.RateLimited, &crawler.FloodWaitError{Wait: wait}
	}

	switch {
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return crawler.AlreadyMember, err
	case tgerr.Is(err, "INVITE_HASH_EXPIRED", "INVITE_HASH_INVALID", "INVITE_HASH_EMPTY"):
		return crawler.Expired, err
	case tgerr.Is(err, "PEER_FLOOD", "CHANNELS_TOO_MUCH"):
		return crawler.RateLimited, err
	default:
		return crawler.OtherFailure, err
	}
}

// mute silences notifications from a freshly joined group. Failures only
// cost us noise, so they are logged and dropped.
func (c *Client) mute(ctx context.Context, api *tg.Client, updates tg.UpdatesClass) {
	for _, peer := range joinedPeers(updates) {
		settings := tg.InputPeerNotifySettings{}
		settings.SetMuteUntil(math.MaxInt32)

		_, err := api.AccountUpdateNotifySettings(ctx, &tg.AccountUpdateNotifySettingsRequest{
			Peer:     &tg.InputNotifyPeer{Peer: peer},
			Settings: settings,
		})
		if err != nil {
			c.logger.WithError(err).Warn("Failed to mute joined group")
		}
	}
}

func joinedPeers(updates tg.UpdatesClass) []tg.InputPeerClass {
	var chats []tg.ChatClass
	switch u := updates.(type) {
	case *tg.Updates:
		chats = u.Chats
	case *tg.UpdatesCombined:
		chats = u.Chats
	}

	var peers []tg.InputPeerClass
	for _, chat := range chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			peers = append(peers, &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash})
		case *tg.Chat:
			peers = append(peers, &tg.InputPeerChat{ChatID: ch.ID})
		}
	}
	return peers
}
