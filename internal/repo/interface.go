package repo

import (
	"context"
	"errors"
	"io/fs"
)

// ErrAccountVanished is returned by InsertVisit when the chat mapping that
// authorised the visit is no longer active at write time.
var ErrAccountVanished = errors.New("account mapping vanished")

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Identity
	ListActiveMappings(ctx context.Context, chatUserID int64) ([]Identity, error)

	// Visits
	InsertVisit(ctx context.Context, visit Visit) (*Visit, error)
	CountVisits(ctx context.Context) (int64, error)
}
