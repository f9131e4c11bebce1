package repo

import (
	"context"
	"fmt"
	"log/slog"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Options selects and parameterises the identity store backend.
type Options struct {
	Driver      string
	DatabaseURL string
	Schema      string
	SQLitePath  string
}

// Open connects to the configured backend.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Repository, error) {
	switch opts.Driver {
	case DriverPostgres, "":
		r, err := New(ctx, opts.DatabaseURL, opts.Schema, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case DriverSQLite:
		r, err := NewSQLite(ctx, opts.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported identity driver %q", opts.Driver)
	}
}
