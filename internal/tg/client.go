// Package tg connects the bot to Telegram through long polling.
package tg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"field-visit-bot/internal/dispatch"
	"field-visit-bot/internal/visit"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TransportName labels Telegram in logs and metrics.
const TransportName = "telegram"

// Config holds configuration for the Telegram client.
type Config struct {
	Token       string
	PollTimeout time.Duration
	Debug       bool
}

// Client wraps the Bot API client.
type Client struct {
	bot         *tgbotapi.BotAPI
	logger      *slog.Logger
	pollTimeout int
	dispatcher  dispatch.Submitter
}

// New authenticates against the Bot API with cfg.Token.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug

	timeout := int(cfg.PollTimeout / time.Second)
	if timeout <= 0 {
		timeout = 60
	}

	c := &Client{
		bot:         bot,
		logger:      logger.With("component", "tg"),
		pollTimeout: timeout,
	}
	c.logger.Info("telegram bot authorised", "username", bot.Self.UserName)
	return c, nil
}

// SetDispatcher registers where inbound events are submitted.
func (c *Client) SetDispatcher(d dispatch.Submitter) {
	c.dispatcher = d
}

// Start polls for updates until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if c.dispatcher == nil {
		return errors.New("telegram client has no dispatcher")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	c.logger.Info("telegram polling started", "timeout_s", c.pollTimeout)

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram updates channel closed")
			}
			c.handleUpdate(ctx, update)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// Live location refreshes arrive as edits; only the first share counts.
	if update.EditedMessage != nil {
		return
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	job := dispatch.Job{
		Transport: TransportName,
		Reply:     c.replyTo(msg.Chat.ID, msg.MessageID),
	}
	if ev, ok := LocationFromMessage(msg); ok {
		job.Location = &ev
	} else if ev, ok := CommandFromMessage(msg); ok {
		job.Command = &ev
	} else {
		c.logger.Debug("ignoring unsupported message", "chat_id", msg.Chat.ID)
		return
	}

	if err := c.dispatcher.Submit(ctx, job); err != nil {
		c.logger.Error("submit telegram event failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (c *Client) replyTo(chatID int64, messageID int) dispatch.ReplyFunc {
	return func(_ context.Context, text string) error {
		out := tgbotapi.NewMessage(chatID, text)
		out.ReplyToMessageID = messageID
		out.DisableWebPagePreview = true
		return c.SendText(out)
	}
}

// SendText sends a prepared message.
func (c *Client) SendText(msg tgbotapi.MessageConfig) error {
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// LocationFromMessage converts a location message into a LocationEvent.
func LocationFromMessage(msg *tgbotapi.Message) (visit.LocationEvent, bool) {
	if msg == nil || msg.From == nil || msg.Location == nil {
		return visit.LocationEvent{}, false
	}
	ev := visit.LocationEvent{
		ChatUserID:  msg.From.ID,
		DisplayName: fullName(msg.From),
		Username:    msg.From.UserName,
		Latitude:    msg.Location.Latitude,
		Longitude:   msg.Location.Longitude,
	}
	if msg.Date > 0 {
		ev.OccurredAt = msg.Time().UTC()
	}
	return ev, true
}

// CommandFromMessage converts a slash command into a CommandEvent.
func CommandFromMessage(msg *tgbotapi.Message) (visit.CommandEvent, bool) {
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return visit.CommandEvent{}, false
	}
	return visit.CommandEvent{
		ChatUserID:  msg.From.ID,
		DisplayName: fullName(msg.From),
		Command:     strings.ToLower(msg.Command()),
	}, true
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
