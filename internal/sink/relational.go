package sink

import (
	"context"
	"errors"
	"fmt"

	"field-visit-bot/internal/repo"
	"field-visit-bot/internal/visit"
)

// NameRelational identifies the relational sink in logs, metrics and acks.
const NameRelational = "relational"

// VisitWriter is the write side of the relational store.
type VisitWriter interface {
	InsertVisit(ctx context.Context, v repo.Visit) (*repo.Visit, error)
	CountVisits(ctx context.Context) (int64, error)
}

// RelationalSink stores visits in the field_visits table.
type RelationalSink struct {
	writer VisitWriter
}

// NewRelational wraps a VisitWriter.
func NewRelational(writer VisitWriter) *RelationalSink {
	return &RelationalSink{writer: writer}
}

func (s *RelationalSink) Name() string { return NameRelational }

// Append inserts one row. The store re-checks the chat mapping inside the
// insert transaction and the whole write is rolled back if it fails.
func (s *RelationalSink) Append(ctx context.Context, rec visit.Record) (Ack, error) {
	saved, err := s.writer.InsertVisit(ctx, repo.Visit{
		ID:          rec.ID,
		AccountID:   rec.AccountID,
		ChatUserID:  rec.ChatUserID,
		DisplayName: rec.DisplayName,
		Phone:       rec.Phone,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
		VisitDate:   rec.OccurredAt,
		MapsLink:    rec.MapLink,
		CustomerTag: rec.CustomerTag,
	})
	if err != nil {
		kind := KindStore
		if errors.Is(err, repo.ErrAccountVanished) {
			kind = KindAccountVanished
		}
		return Ack{}, &PersistError{Sink: NameRelational, Kind: kind, Err: err}
	}
	return Ack{
		Sink:     NameRelational,
		RecordID: saved.ID,
		Location: "field_visits",
		StoredAt: saved.CreatedAt,
	}, nil
}

// Count returns the number of stored visits.
func (s *RelationalSink) Count(ctx context.Context) (int64, error) {
	n, err := s.writer.CountVisits(ctx)
	if err != nil {
		return 0, fmt.Errorf("count relational visits: %w", err)
	}
	return n, nil
}
