// Package sink persists accepted visit records. Exactly one Sink is active per
// deployment; the variant is chosen once at startup by New.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"field-visit-bot/internal/repo"
	"field-visit-bot/internal/visit"
)

// Sink appends visit records to durable storage. A retried Append may write a
// duplicate row; sinks do not deduplicate.
type Sink interface {
	Name() string
	Append(ctx context.Context, rec visit.Record) (Ack, error)
}

// Counter is implemented by sinks that can report how many visits they hold.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Ack confirms a stored record.
type Ack struct {
	Sink     string
	RecordID string
	Location string // sheet range or table name
	StoredAt time.Time
}

// Kind classifies persistence failures.
type Kind string

const (
	KindNetwork         Kind = "network"
	KindAuth            Kind = "auth"
	KindRejected        Kind = "rejected"
	KindStore           Kind = "store"
	KindAccountVanished Kind = "account_vanished"
)

// PersistError is returned by every Sink on failure.
type PersistError struct {
	Sink string
	Kind Kind
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s sink %s failure: %v", e.Sink, e.Kind, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ErrAccountVanished is re-exported so callers need not import repo.
var ErrAccountVanished = repo.ErrAccountVanished

// KindOf returns the failure kind of err, or "" when err is not a PersistError.
func KindOf(err error) Kind {
	var pe *PersistError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
