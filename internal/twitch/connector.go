package twitch

import (
	"context"
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/message"
)

const platform = "twitch"

// Connector manages Twitch chat connections
type Connector struct {
	username string
	oauth    string
	channels []string
	client   *twitch.Client
	logger   *logrus.Entry
}

// New creates a new Twitch connector
func New(username, oauth string, channels []string, logger *logrus.Entry) *Connector {
	return &Connector{
		username: username,
		oauth:    oauth,
		channels: channels,
		logger:   logger,
	}
}

// Start begins listening to Twitch chat
func (c *Connector) Start(ctx context.Context, events chan<- message.Event) error {
	c.client = twitch.NewClient(c.username, c.oauth)

	c.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		select {
		case events <- convertMessage(msg, time.Now().UTC()):
		case <-ctx.Done():
		}
	})

	c.client.OnConnect(func() {
		c.logger.Info("Connected to Twitch IRC")
	})

	c.client.OnReconnectMessage(func(msg twitch.ReconnectMessage) {
		c.logger.Info("Reconnecting to Twitch IRC...")
	})

	for _, channel := range c.channels {
		c.client.Join(channel)
		c.logger.WithField("channel", channel).Info("Joined channel")
	}

	go func() {
		if err := c.client.Connect(); err != nil && err != twitch.ErrClientDisconnected {
			c.logger.WithError(err).Error("Twitch IRC connection error")
		}
	}()

	<-ctx.Done()

	c.logger.Info("Disconnecting from Twitch IRC...")
	c.client.Disconnect()

	return ctx.Err()
}

// convertMessage maps a Twitch chat line onto an inbound event
func convertMessage(msg twitch.PrivateMessage, at time.Time) message.Message {
	channel := strings.TrimPrefix(msg.Channel, "#")
	return message.Message{
		Source:     platform,
		ReceivedAt: at,
		ChatInfo:   message.Chat{ID: msg.RoomID, Title: channel},
		From:       message.Sender{ID: msg.User.ID, Handle: msg.User.Name},
		Text:       msg.Message,
	}
}
