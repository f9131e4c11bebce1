package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"field-visit-bot/internal/ingest"
	"field-visit-bot/internal/visit"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen []int64
}

func (h *recordingHandler) HandleLocation(_ context.Context, ev visit.LocationEvent) ingest.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev.ChatUserID)
	return ingest.Outcome{State: ingest.StateAcked, Reply: "ok"}
}

func (h *recordingHandler) HandleCommand(_ context.Context, ev visit.CommandEvent) ingest.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, -ev.ChatUserID)
	return ingest.Outcome{State: ingest.StateAcked, Reply: "cmd"}
}

func newTestDispatcher(h Handler) *Dispatcher {
	return New(h, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 0)
}

func TestDispatcherPreservesSubmissionOrder(t *testing.T) {
	h := &recordingHandler{}
	d := newTestDispatcher(h)

	var mu sync.Mutex
	var replies []string
	reply := func(_ context.Context, text string) error {
		mu.Lock()
		defer mu.Unlock()
		replies = append(replies, text)
		return nil
	}

	for i := int64(1); i <= 50; i++ {
		job := Job{Transport: "test", Reply: reply}
		if i%10 == 0 {
			job.Command = &visit.CommandEvent{ChatUserID: i, Command: visit.CommandStatus}
		} else {
			job.Location = &visit.LocationEvent{ChatUserID: i, Latitude: 1, Longitude: 1}
		}
		if err := d.Submit(context.Background(), job); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	d.Close()

	if len(h.seen) != 50 {
		t.Fatalf("expected 50 handled events, got %d", len(h.seen))
	}
	for i, id := range h.seen {
		want := int64(i + 1)
		if want%10 == 0 {
			want = -want
		}
		if id != want {
			t.Fatalf("event %d handled out of order: got %d want %d", i, id, want)
		}
	}
	if len(replies) != 50 {
		t.Errorf("expected 50 replies, got %d", len(replies))
	}
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	d := newTestDispatcher(&recordingHandler{})
	d.Close()
	d.Close()

	err := d.Submit(context.Background(), Job{Location: &visit.LocationEvent{ChatUserID: 1}})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDispatcherRejectsEmptyJob(t *testing.T) {
	d := newTestDispatcher(&recordingHandler{})
	defer d.Close()

	if err := d.Submit(context.Background(), Job{}); err == nil {
		t.Fatal("expected error for job without event")
	}
}

func TestDispatcherSurvivesReplyErrors(t *testing.T) {
	h := &recordingHandler{}
	d := newTestDispatcher(h)

	failing := func(context.Context, string) error { return errors.New("send failed") }
	for i := int64(1); i <= 3; i++ {
		if err := d.Submit(context.Background(), Job{Location: &visit.LocationEvent{ChatUserID: i}, Reply: failing}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	d.Close()

	if len(h.seen) != 3 {
		t.Fatalf("expected all jobs handled despite reply errors, got %d", len(h.seen))
	}
}
