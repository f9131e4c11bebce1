// Package identity resolves chat platform users to internal accounts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"field-visit-bot/internal/metrics"
	"field-visit-bot/internal/repo"
)

// ErrStoreUnavailable reports that the identity store could not be queried.
// It is distinct from a user simply not being provisioned.
var ErrStoreUnavailable = errors.New("identity store unavailable")

// Directory is the read side of the identity store.
type Directory interface {
	ListActiveMappings(ctx context.Context, chatUserID int64) ([]repo.Identity, error)
}

// Resolution is the outcome of a successful lookup. Found is false when the
// chat user has no active mapping.
type Resolution struct {
	ChatUserID int64
	Found      bool
	Account    repo.Account
	Mapping    repo.ChatMapping
}

// Resolver maps chat user ids to accounts through a Directory.
type Resolver struct {
	dir     Directory
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver builds a Resolver. metrics may be nil.
func NewResolver(dir Directory, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		dir:     dir,
		logger:  logger.With("component", "identity"),
		metrics: m,
	}
}

// Resolve looks up the active mapping for chatUserID. Store failures are
// returned wrapped in ErrStoreUnavailable. When several active mappings exist
// the one with the lowest mapping id wins.
func (r *Resolver) Resolve(ctx context.Context, chatUserID int64) (Resolution, error) {
	start := time.Now()
	ids, err := r.dir.ListActiveMappings(ctx, chatUserID)
	if err != nil {
		r.observe(start, "error")
		return Resolution{ChatUserID: chatUserID}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	r.observe(start, "ok")

	if len(ids) == 0 {
		return Resolution{ChatUserID: chatUserID}, nil
	}

	chosen := ids[0]
	for _, id := range ids[1:] {
		if id.Mapping.ID < chosen.Mapping.ID {
			chosen = id
		}
	}
	if len(ids) > 1 {
		r.logger.Warn("duplicate active chat mappings",
			"chat_user_id", chatUserID,
			"count", len(ids),
			"chosen_mapping_id", chosen.Mapping.ID,
			"chosen_account_id", chosen.Account.ID,
		)
	}

	return Resolution{
		ChatUserID: chatUserID,
		Found:      true,
		Account:    chosen.Account,
		Mapping:    chosen.Mapping,
	}, nil
}

func (r *Resolver) observe(start time.Time, status string) {
	if r.metrics == nil {
		return
	}
	r.metrics.IdentityLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}
