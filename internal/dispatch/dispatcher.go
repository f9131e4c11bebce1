// Package dispatch serializes inbound chat events onto a single worker so
// events from one user are handled in the order they arrived.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"field-visit-bot/internal/ingest"
	"field-visit-bot/internal/metrics"
	"field-visit-bot/internal/visit"
)

const (
	queueSize      = 256
	defaultTimeout = 30 * time.Second
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("dispatcher closed")

// Handler processes events to a terminal outcome. *ingest.Orchestrator
// satisfies it.
type Handler interface {
	HandleLocation(ctx context.Context, ev visit.LocationEvent) ingest.Outcome
	HandleCommand(ctx context.Context, ev visit.CommandEvent) ingest.Outcome
}

// Submitter accepts jobs from chat transports. *Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// ReplyFunc delivers the outcome text back to the chat the event came from.
type ReplyFunc func(ctx context.Context, text string) error

// Job is one inbound event. Exactly one of Location and Command is set.
type Job struct {
	Transport string
	Location  *visit.LocationEvent
	Command   *visit.CommandEvent
	Reply     ReplyFunc
}

// Dispatcher runs jobs one at a time on a single goroutine.
type Dispatcher struct {
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan Job
	done   chan struct{}
}

// New starts the worker goroutine. timeout bounds each job; zero uses 30s.
func New(handler Handler, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{
		handler: handler,
		logger:  logger.With("component", "dispatch"),
		metrics: m,
		timeout: timeout,
		jobs:    make(chan Job, queueSize),
		done:    make(chan struct{}),
	}
	go d.loop()
	return d
}

// Submit enqueues a job. It blocks while the queue is full until ctx expires.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	if job.Location == nil && job.Command == nil {
		return errors.New("job has no event")
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var out ingest.Outcome
	if job.Location != nil {
		out = d.handler.HandleLocation(ctx, *job.Location)
	} else {
		out = d.handler.HandleCommand(ctx, *job.Command)
	}

	if job.Reply == nil || out.Reply == "" {
		return
	}
	if err := job.Reply(ctx, out.Reply); err != nil {
		d.logger.Error("send reply failed",
			"transport", job.Transport,
			"event_id", out.EventID,
			"state", out.State,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.Errors.WithLabelValues("reply").Inc()
		}
		return
	}
	if d.metrics != nil {
		d.metrics.OutgoingMessages.WithLabelValues(job.Transport).Inc()
	}
}
