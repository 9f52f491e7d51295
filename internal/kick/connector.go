package kick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	kickchat "github.com/johanvandegriff/kick-chat-wrapper"
	"github.com/sirupsen/logrus"

	"github.com/john/leakwatch/internal/message"
)

const platform = "kick"

// KickChannelResponse represents the API response from Kick
type KickChannelResponse struct {
	ID       int    `json:"id"`
	Slug     string `json:"slug"`
	Chatroom struct {
		ID int `json:"id"`
	} `json:"chatroom"`
}

// ChannelConfig represents a Kick channel with optional pre-configured chatroom ID
type ChannelConfig struct {
	Slug       string
	ChatroomID int // 0 means not pre-configured, needs resolution
}

// Connector manages Kick chat connections
type Connector struct {
	channels   []ChannelConfig
	channelIDs map[string]int // channel slug -> chatroom ID
	idToSlug   map[int]string // chatroom ID -> channel slug (for reverse lookup)
	client     *kickchat.Client
	httpClient *http.Client
	apiBase    string
	logger     *logrus.Entry
}

// New creates a new Kick connector
func New(channels []ChannelConfig, logger *logrus.Entry) *Connector {
	return &Connector{
		channels:   channels,
		channelIDs: make(map[string]int),
		idToSlug:   make(map[int]string),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBase:    "https://kick.com/api/v2/channels/",
		logger:     logger,
	}
}

// Start begins listening to Kick chat
func (c *Connector) Start(ctx context.Context, events chan<- message.Event) error {
	c.logger.Info("Resolving Kick channel IDs...")
	for _, channel := range c.channels {
		chatroomID, slug := channel.ChatroomID, channel.Slug

		if chatroomID == 0 {
			var err error
			chatroomID, slug, err = c.resolveChannelID(ctx, channel.Slug)
			if err != nil {
				c.logger.WithField("channel", channel.Slug).WithError(err).Warn("Failed to resolve Kick channel (skipping)")
				continue
			}
		}
		c.logger.WithFields(logrus.Fields{"channel": slug, "chatroom_id": chatroomID}).Info("Kick channel ready")

		c.channelIDs[slug] = chatroomID
		c.idToSlug[chatroomID] = slug
	}

	if len(c.channelIDs) == 0 {
		return fmt.Errorf("no valid Kick channels could be resolved")
	}

	client, err := kickchat.NewClient()
	if err != nil {
		return fmt.Errorf("create Kick client: %w", err)
	}
	c.client = client
	c.logger.Info("Connected to Kick WebSocket")

	for slug, chatroomID := range c.channelIDs {
		if err := c.client.JoinChannelByID(chatroomID); err != nil {
			c.logger.WithField("channel", slug).WithError(err).Warn("Failed to join Kick channel")
			continue
		}
		c.logger.WithField("channel", slug).Info("Joined Kick channel")
	}

	messages := c.client.ListenForMessages()

	go func() {
		for {
			select {
			case msg, ok := <-messages:
				if !ok {
					c.logger.Info("Kick message channel closed")
					return
				}

				ev, ok := c.convertMessage(msg)
				if !ok {
					continue
				}

				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()

	c.logger.Info("Disconnecting from Kick chat...")
	c.client.Close()

	return ctx.Err()
}

// resolveChannelID fetches channel information from the Kick API
func (c *Connector) resolveChannelID(ctx context.Context, channelName string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+channelName, nil)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", "https://kick.com/")
	req.Header.Set("Origin", "https://kick.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var channelInfo KickChannelResponse
	if err := json.NewDecoder(resp.Body).Decode(&channelInfo); err != nil {
		return 0, "", fmt.Errorf("JSON decode failed: %w", err)
	}

	return channelInfo.Chatroom.ID, channelInfo.Slug, nil
}

// convertMessage converts a Kick ChatMessage to an inbound event
func (c *Connector) convertMessage(msg kickchat.ChatMessage) (message.Message, bool) {
	slug, ok := c.idToSlug[msg.ChatroomID]
	if !ok {
		c.logger.WithField("chatroom_id", msg.ChatroomID).Warn("Received message from unknown chatroom")
		return message.Message{}, false
	}

	return message.Message{
		Source:     platform,
		ReceivedAt: msg.CreatedAt,
		ChatInfo:   message.Chat{ID: strconv.Itoa(msg.ChatroomID), Title: slug},
		From:       message.Sender{ID: strconv.Itoa(msg.Sender.ID), Handle: msg.Sender.Username},
		Text:       msg.Content,
	}, true
}
