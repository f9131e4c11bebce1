package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"field-visit-bot/internal/dispatch"
	"field-visit-bot/internal/visit"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// TransportName labels WhatsApp in logs and metrics.
const TransportName = "whatsapp"

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
}

// Client wraps the WhatsMeow client and associated dependencies.
type Client struct {
	client     *whatsmeow.Client
	logger     *slog.Logger
	dispatcher dispatch.Submitter
}

type replyContextKey struct{}

// ReplyMetadata carries information for quoting a previous message.
type ReplyMetadata struct {
	Message *waProto.Message
	Info    types.MessageInfo
}

// WithReply attaches reply metadata to the context so outgoing messages quote the given event.
func WithReply(ctx context.Context, evt *events.Message) context.Context {
	if evt == nil || evt.Message == nil {
		return ctx
	}
	cloned, ok := proto.Clone(evt.Message).(*waProto.Message)
	if !ok {
		cloned = evt.Message
	}
	meta := &ReplyMetadata{
		Message: cloned,
		Info:    evt.Info,
	}
	return context.WithValue(ctx, replyContextKey{}, meta)
}

func replyFromContext(ctx context.Context) *ReplyMetadata {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(replyContextKey{}).(*ReplyMetadata)
	return meta
}

// New creates a new WhatsApp client instance backed by an SQLite device store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client: client,
		logger: logger.With("component", "wa"),
	}
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// SetDispatcher registers where inbound events are submitted.
func (c *Client) SetDispatcher(d dispatch.Submitter) {
	c.dispatcher = d
}

// Start connects the client and handles the login/QR pairing flow.
func (c *Client) Start(ctx context.Context) error {
	if c.dispatcher == nil {
		return errors.New("whatsapp client has no dispatcher")
	}
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}

	c.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || c.dispatcher == nil {
		return
	}

	job := dispatch.Job{
		Transport: TransportName,
		Reply: func(ctx context.Context, text string) error {
			return c.SendText(WithReply(ctx, evt), evt.Info.Chat, text)
		},
	}
	if ev, ok := LocationFromMessage(evt.Info, evt.Message); ok {
		job.Location = &ev
	} else if ev, ok := CommandFromMessage(evt.Info, evt.Message); ok {
		job.Command = &ev
	} else {
		c.logger.Debug("ignoring unsupported message", "from", evt.Info.Sender.String())
		return
	}

	if err := c.dispatcher.Submit(context.Background(), job); err != nil {
		c.logger.Error("submit whatsapp event failed", "from", evt.Info.Sender.String(), "error", err)
	}
}

// ChatUserID returns the numeric user part of a sender JID.
func ChatUserID(jid types.JID) (int64, bool) {
	id, err := strconv.ParseInt(jid.ToNonAD().User, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// LocationFromMessage converts a location or live-location share into a
// LocationEvent.
func LocationFromMessage(info types.MessageInfo, msg *waProto.Message) (visit.LocationEvent, bool) {
	if msg == nil {
		return visit.LocationEvent{}, false
	}
	var lat, lon float64
	switch {
	case msg.GetLocationMessage() != nil:
		lat = msg.GetLocationMessage().GetDegreesLatitude()
		lon = msg.GetLocationMessage().GetDegreesLongitude()
	case msg.GetLiveLocationMessage() != nil:
		lat = msg.GetLiveLocationMessage().GetDegreesLatitude()
		lon = msg.GetLiveLocationMessage().GetDegreesLongitude()
	default:
		return visit.LocationEvent{}, false
	}

	id, ok := ChatUserID(info.Sender)
	if !ok {
		return visit.LocationEvent{}, false
	}
	ev := visit.LocationEvent{
		ChatUserID:  id,
		DisplayName: strings.TrimSpace(info.PushName),
		Latitude:    lat,
		Longitude:   lon,
	}
	if !info.Timestamp.IsZero() {
		ev.OccurredAt = info.Timestamp.UTC()
	}
	return ev, true
}

// CommandFromMessage converts a "/command" text into a CommandEvent.
func CommandFromMessage(info types.MessageInfo, msg *waProto.Message) (visit.CommandEvent, bool) {
	if msg == nil {
		return visit.CommandEvent{}, false
	}
	text := msg.GetConversation()
	if text == "" {
		text = msg.GetExtendedTextMessage().GetText()
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return visit.CommandEvent{}, false
	}

	id, ok := ChatUserID(info.Sender)
	if !ok {
		return visit.CommandEvent{}, false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return visit.CommandEvent{}, false
	}
	return visit.CommandEvent{
		ChatUserID:  id,
		DisplayName: strings.TrimSpace(info.PushName),
		Command:     strings.ToLower(name[0]),
	}, true
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

// SendText sends a text message to the specified JID.
func (c *Client) SendText(ctx context.Context, to types.JID, text string) error {
	reply := replyFromContext(ctx)
	var message *waProto.Message
	if reply != nil && reply.Message != nil {
		contextInfo := &waProto.ContextInfo{
			StanzaID:      proto.String(string(reply.Info.ID)),
			Participant:   proto.String(reply.Info.Sender.ToNonAD().String()),
			RemoteJID:     proto.String(reply.Info.Chat.String()),
			QuotedMessage: reply.Message,
			QuotedType:    waProto.ContextInfo_EXPLICIT.Enum(),
		}
		message = &waProto.Message{
			ExtendedTextMessage: &waProto.ExtendedTextMessage{
				Text:        proto.String(text),
				ContextInfo: contextInfo,
			},
		}
	} else {
		message = &waProto.Message{
			Conversation: proto.String(text),
		}
	}
	if _, err := c.client.SendMessage(ctx, to, message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}
