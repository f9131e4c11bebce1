package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"field-visit-bot/internal/repo"
)

type fakeWriter struct {
	inserted []repo.Visit
	err      error
	count    int64
}

func (f *fakeWriter) InsertVisit(_ context.Context, v repo.Visit) (*repo.Visit, error) {
	if f.err != nil {
		return nil, f.err
	}
	v.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.inserted = append(f.inserted, v)
	return &v, nil
}

func (f *fakeWriter) CountVisits(context.Context) (int64, error) {
	return f.count, f.err
}

func TestRelationalAppend_MapsRecord(t *testing.T) {
	w := &fakeWriter{}
	s := NewRelational(w)
	rec := sampleRecord()

	ack, err := s.Append(context.Background(), rec)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ack.Sink != NameRelational || ack.RecordID != rec.ID || ack.Location != "field_visits" {
		t.Errorf("unexpected ack %+v", ack)
	}
	if len(w.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(w.inserted))
	}
	got := w.inserted[0]
	if got.AccountID != 7 || got.ChatUserID != 111 || got.MapsLink != rec.MapLink {
		t.Errorf("unexpected row %+v", got)
	}
	if !got.VisitDate.Equal(rec.OccurredAt) {
		t.Errorf("visit_date = %v, want event time %v", got.VisitDate, rec.OccurredAt)
	}
	if got.CustomerTag != nil {
		t.Error("expected empty customer tag")
	}
}

func TestRelationalAppend_AccountVanished(t *testing.T) {
	s := NewRelational(&fakeWriter{err: repo.ErrAccountVanished})

	_, err := s.Append(context.Background(), sampleRecord())
	if !errors.Is(err, ErrAccountVanished) {
		t.Fatalf("expected ErrAccountVanished, got %v", err)
	}
	if KindOf(err) != KindAccountVanished {
		t.Errorf("kind = %q", KindOf(err))
	}
}

func TestRelationalAppend_StoreFailure(t *testing.T) {
	s := NewRelational(&fakeWriter{err: errors.New("connection reset by peer")})

	_, err := s.Append(context.Background(), sampleRecord())
	if KindOf(err) != KindStore {
		t.Fatalf("expected store kind, got %v", err)
	}
}

func TestNew_SelectsVariant(t *testing.T) {
	s, err := New(context.Background(), Options{Kind: NameRelational}, &fakeWriter{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Name() != NameRelational {
		t.Errorf("name = %q", s.Name())
	}
	if _, err := New(context.Background(), Options{Kind: "ftp"}, nil, nil); err == nil {
		t.Error("expected error for unknown sink")
	}
	if _, err := New(context.Background(), Options{Kind: NameRelational}, nil, nil); err == nil {
		t.Error("expected error for relational sink without writer")
	}
}
