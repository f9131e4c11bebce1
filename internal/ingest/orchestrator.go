// Package ingest runs the authorization-gated pipeline for inbound chat
// events: resolve the sender, apply the access policy, normalize the location
// and persist it, producing exactly one reply per event.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"field-visit-bot/internal/cache"
	"field-visit-bot/internal/identity"
	"field-visit-bot/internal/metrics"
	"field-visit-bot/internal/policy"
	"field-visit-bot/internal/sink"
	"field-visit-bot/internal/visit"

	"github.com/google/uuid"
)

// State is a step of the per-event state machine.
type State string

const (
	StateReceived      State = "received"
	StateResolving     State = "resolving"
	StatePolicyChecked State = "policy_checked"
	StateNormalizing   State = "normalizing"
	StatePersisting    State = "persisting"
	StateAcked         State = "acked"
	StateRejected      State = "rejected"
	StateFailed        State = "failed"
)

// Outcome reasons that are not policy reasons.
const (
	ReasonInvalidCoordinate = "invalid_coordinate"
	ReasonStoreUnavailable  = "store_unavailable"
	ReasonPersistFailed     = "persist_failed"
	ReasonNotPermitted      = "not_permitted"
	ReasonUnknownCommand    = "unknown_command"
)

const defaultCountCacheTTL = time.Minute

// Resolver looks up chat users.
type Resolver interface {
	Resolve(ctx context.Context, chatUserID int64) (identity.Resolution, error)
}

// CountCache stores command results between calls. *cache.Redis satisfies it.
type CountCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config tunes the orchestrator.
type Config struct {
	// Location renders timestamps in replies; defaults to UTC.
	Location      *time.Location
	CountCacheTTL time.Duration
	// Now returns the receipt time for events that carry no timestamp.
	Now func() time.Time
}

// Outcome is the terminal result of one event. Reply is always set.
type Outcome struct {
	EventID  string
	State    State
	Reason   string
	Decision policy.Decision
	Record   *visit.Record
	Ack      *sink.Ack
	Reply    string
	Err      error
}

// Orchestrator wires resolver, policy, normalizer and sink.
type Orchestrator struct {
	resolver Resolver
	sink     sink.Sink
	cache    CountCache
	metrics  *metrics.Metrics
	logger   *slog.Logger
	location *time.Location
	countTTL time.Duration
	now      func() time.Time
}

// New creates an orchestrator. cache and m may be nil.
func New(resolver Resolver, s sink.Sink, c CountCache, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Orchestrator {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	ttl := cfg.CountCacheTTL
	if ttl <= 0 {
		ttl = defaultCountCacheTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		resolver: resolver,
		sink:     s,
		cache:    c,
		metrics:  m,
		logger:   logger.With("component", "ingest"),
		location: loc,
		countTTL: ttl,
		now:      now,
	}
}

// HandleLocation processes one location event to a terminal state.
func (o *Orchestrator) HandleLocation(ctx context.Context, ev visit.LocationEvent) Outcome {
	out := Outcome{EventID: uuid.NewString(), State: StateReceived}
	log := o.logger.With("event_id", out.EventID, "chat_user_id", ev.ChatUserID)
	o.countEvent("location")
	log.Info("location received", "display_name", ev.DisplayName)

	o.step(log, &out, StateResolving)
	res, err := o.resolver.Resolve(ctx, ev.ChatUserID)
	if err != nil {
		log.Error("identity lookup failed", "error", err)
		out.Err = err
		return o.finish(log, out, StateFailed, ReasonStoreUnavailable, msgTemporaryFailure)
	}

	o.step(log, &out, StatePolicyChecked)
	out.Decision = policy.Evaluate(res)
	if !out.Decision.Allowed {
		log.Warn("location rejected by policy",
			"reason", out.Decision.Reason,
			"display_name", ev.DisplayName,
			"username", ev.Username,
		)
		return o.finish(log, out, StateRejected, string(out.Decision.Reason), rejectionMessage(out.Decision.Reason, ev.ChatUserID))
	}

	o.step(log, &out, StateNormalizing)
	rec, err := visit.Normalize(ev, out.Decision.Account, o.now())
	if err != nil {
		log.Warn("location rejected: invalid coordinates", "error", err)
		out.Err = err
		return o.finish(log, out, StateRejected, ReasonInvalidCoordinate, msgInvalidLocation)
	}
	out.Record = &rec

	o.step(log, &out, StatePersisting)
	start := time.Now()
	ack, err := o.sink.Append(ctx, rec)
	o.observeSink(start, err)
	if err != nil {
		log.Error("persist visit failed",
			"sink", o.sink.Name(),
			"kind", sink.KindOf(err),
			"record_id", rec.ID,
			"error", err,
		)
		o.countError("sink")
		out.Err = err
		return o.finish(log, out, StateFailed, ReasonPersistFailed, msgSaveFailed)
	}
	out.Ack = &ack

	log.Info("visit recorded",
		"sink", ack.Sink,
		"record_id", rec.ID,
		"account_id", rec.AccountID,
		"latitude", rec.Latitude,
		"longitude", rec.Longitude,
		"location", ack.Location,
	)
	return o.finish(log, out, StateAcked, string(policy.ReasonAllowed), ackMessage(rec, o.location))
}

// HandleCommand answers /start, /status and /count. It resolves and evaluates
// the sender but never appends to the sink.
func (o *Orchestrator) HandleCommand(ctx context.Context, ev visit.CommandEvent) Outcome {
	out := Outcome{EventID: uuid.NewString(), State: StateReceived}
	command := strings.ToLower(strings.TrimSpace(ev.Command))
	log := o.logger.With("event_id", out.EventID, "chat_user_id", ev.ChatUserID, "command", command)
	o.countEvent("command")
	log.Info("command received", "display_name", ev.DisplayName)

	o.step(log, &out, StateResolving)
	res, err := o.resolver.Resolve(ctx, ev.ChatUserID)
	if err != nil {
		log.Error("identity lookup failed", "error", err)
		out.Err = err
		return o.finish(log, out, StateFailed, ReasonStoreUnavailable, msgTemporaryFailure)
	}

	o.step(log, &out, StatePolicyChecked)
	out.Decision = policy.Evaluate(res)
	if !out.Decision.Allowed {
		log.Warn("command from unauthorised user", "reason", out.Decision.Reason, "display_name", ev.DisplayName)
	}

	switch command {
	case visit.CommandStart:
		return o.finish(log, out, StateAcked, string(out.Decision.Reason), startMessage(ev, out.Decision))
	case visit.CommandStatus:
		return o.finish(log, out, StateAcked, string(out.Decision.Reason), statusMessage(ev, out.Decision))
	case visit.CommandCount:
		return o.handleCount(ctx, log, out)
	default:
		return o.finish(log, out, StateRejected, ReasonUnknownCommand, helpMessage(out.Decision))
	}
}

func (o *Orchestrator) handleCount(ctx context.Context, log *slog.Logger, out Outcome) Outcome {
	d := out.Decision
	if !d.Allowed || d.Account == nil || !policy.IsAdmin(d.Account.Role) {
		log.Warn("count command denied", "reason", d.Reason)
		return o.finish(log, out, StateRejected, ReasonNotPermitted, msgNotPermitted)
	}

	counter, ok := o.sink.(sink.Counter)
	if !ok {
		return o.finish(log, out, StateFailed, ReasonPersistFailed, msgCountUnavailable)
	}

	key := cache.Key("visit_count", o.sink.Name())
	var n int64
	if o.cache != nil {
		hit, err := o.cache.GetJSON(ctx, key, &n)
		if err != nil {
			log.Warn("read visit count cache failed", "error", err)
		} else if hit {
			return o.finish(log, out, StateAcked, string(d.Reason), countMessage(n, o.sink.Name()))
		}
	}

	n, err := counter.Count(ctx)
	if err != nil {
		log.Error("count visits failed", "sink", o.sink.Name(), "error", err)
		o.countError("sink")
		out.Err = err
		return o.finish(log, out, StateFailed, ReasonPersistFailed, msgCountUnavailable)
	}
	if o.cache != nil {
		if err := o.cache.SetJSON(ctx, key, n, o.countTTL); err != nil {
			log.Warn("set visit count cache failed", "error", err)
		}
	}
	return o.finish(log, out, StateAcked, string(d.Reason), countMessage(n, o.sink.Name()))
}

func (o *Orchestrator) step(log *slog.Logger, out *Outcome, next State) {
	log.Debug("state transition", "from", out.State, "to", next)
	out.State = next
}

func (o *Orchestrator) finish(log *slog.Logger, out Outcome, state State, reason, reply string) Outcome {
	o.step(log, &out, state)
	out.Reason = reason
	out.Reply = reply
	if o.metrics != nil {
		o.metrics.Outcomes.WithLabelValues(string(state), reason).Inc()
	}
	return out
}

func (o *Orchestrator) observeSink(start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if kind := sink.KindOf(err); kind != "" {
			status = string(kind)
		}
	}
	o.metrics.SinkLatency.WithLabelValues(o.sink.Name(), status).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) countEvent(kind string) {
	if o.metrics != nil {
		o.metrics.IncomingEvents.WithLabelValues(kind).Inc()
	}
}

func (o *Orchestrator) countError(component string) {
	if o.metrics != nil {
		o.metrics.Errors.WithLabelValues(component).Inc()
	}
}

// IsStoreUnavailable reports whether an outcome failed because the identity
// store could not be reached.
func IsStoreUnavailable(out Outcome) bool {
	return errors.Is(out.Err, identity.ErrStoreUnavailable)
}
