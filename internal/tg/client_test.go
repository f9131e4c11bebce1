package tg

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestLocationFromMessage(t *testing.T) {
	sent := time.Date(2026, 3, 1, 6, 30, 5, 0, time.UTC)
	msg := &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 111, FirstName: "Ayşe", LastName: "Yılmaz", UserName: "ayse"},
		Chat:      &tgbotapi.Chat{ID: 111},
		Date:      int(sent.Unix()),
		Location:  &tgbotapi.Location{Latitude: 41.0, Longitude: 29.0},
	}

	ev, ok := LocationFromMessage(msg)
	if !ok {
		t.Fatal("expected location event")
	}
	if ev.ChatUserID != 111 || ev.DisplayName != "Ayşe Yılmaz" || ev.Username != "ayse" {
		t.Errorf("unexpected sender fields %+v", ev)
	}
	if ev.Latitude != 41.0 || ev.Longitude != 29.0 {
		t.Errorf("unexpected coordinates %v,%v", ev.Latitude, ev.Longitude)
	}
	if !ev.OccurredAt.Equal(sent) {
		t.Errorf("occurred_at = %v, want %v", ev.OccurredAt, sent)
	}
}

func TestLocationFromMessage_IgnoresText(t *testing.T) {
	msg := &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "merhaba"}
	if _, ok := LocationFromMessage(msg); ok {
		t.Fatal("text message must not produce a location event")
	}
	if _, ok := LocationFromMessage(nil); ok {
		t.Fatal("nil message must not produce a location event")
	}
}

func TestCommandFromMessage(t *testing.T) {
	msg := &tgbotapi.Message{
		From:     &tgbotapi.User{ID: 222, FirstName: "Mehmet"},
		Chat:     &tgbotapi.Chat{ID: 222},
		Text:     "/Status@field_visit_bot",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 23}},
	}

	ev, ok := CommandFromMessage(msg)
	if !ok {
		t.Fatal("expected command event")
	}
	if ev.Command != "status" {
		t.Errorf("command = %q", ev.Command)
	}
	if ev.ChatUserID != 222 || ev.DisplayName != "Mehmet" {
		t.Errorf("unexpected sender fields %+v", ev)
	}
}

func TestCommandFromMessage_PlainText(t *testing.T) {
	msg := &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 1}, Text: "status"}
	if _, ok := CommandFromMessage(msg); ok {
		t.Fatal("plain text must not be treated as a command")
	}
}
