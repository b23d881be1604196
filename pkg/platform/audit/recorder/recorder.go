// Package recorder turns a mutation into an audit entry and persists it
// without ever failing or blocking the caller.
//
// Record computes the diff, attributes the actor, stamps a strictly
// increasing timestamp and hands the entry to the store. In async mode (the
// default) entries go through a bounded queue drained by Run; a full queue
// drops the entry. Every failure is logged and counted, never returned.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"labtrail/pkg/changes"
	id "labtrail/pkg/domain"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/requestcontext"
)

const (
	defaultBufferSize    = 1024
	defaultAppendTimeout = 2 * time.Second
)

// CollectionResolver supplies the collection fields declared for an entity
// type.
type CollectionResolver interface {
	CollectionsFor(entityType string) []changes.CollectionSpec
}

// Request describes one mutation. Before and After are the raw snapshots;
// only UPDATE compares them.
type Request struct {
	EntityType string
	// EntityID may be any scalar identifier; it is stringified once.
	EntityID any
	Action   audit.Action
	Before   any
	After    any
	// Allowlist restricts the compared paths. Empty compares everything.
	Allowlist []string
	Meta      map[string]any
	// Actor fields override the ones carried by the request context.
	Actor audit.Actor
}

// Recorder builds and persists audit entries.
type Recorder struct {
	store         audit.Store
	logger        *slog.Logger
	metrics       *Metrics
	breaker       *CircuitBreaker
	collections   CollectionResolver
	tracer        trace.Tracer
	clock         *monotonicClock
	appendTimeout time.Duration
	async         bool
	bufferSize    int

	mu      sync.RWMutex
	closed  bool
	queue   chan job
	started chan struct{}
	done    chan struct{}
	once    sync.Once
}

type job struct {
	ctx   context.Context
	entry audit.Entry
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(r *Recorder) {
		r.breaker = cb
	}
}

// WithCollections sets where collection specs come from.
func WithCollections(c CollectionResolver) Option {
	return func(r *Recorder) {
		r.collections = c
	}
}

// WithAsyncBuffer sets the queue capacity for async mode.
func WithAsyncBuffer(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithSync makes Record append inline. Errors are still swallowed.
func WithSync() Option {
	return func(r *Recorder) {
		r.async = false
	}
}

// WithAppendTimeout bounds each store append.
func WithAppendTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.appendTimeout = d
		}
	}
}

// WithClock overrides the wall clock feeding entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.clock = newMonotonicClock(now)
	}
}

// WithTracer overrides the tracer used for append spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = t
	}
}

// New creates a recorder. In async mode the caller must run Run in its own
// goroutine and call Close on shutdown.
func New(store audit.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:         store,
		logger:        slog.New(slog.DiscardHandler),
		breaker:       NewCircuitBreaker(5, 30*time.Second),
		clock:         newMonotonicClock(nil),
		appendTimeout: defaultAppendTimeout,
		async:         true,
		bufferSize:    defaultBufferSize,
		started:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer("labtrail/audit/recorder")
	}
	if r.async {
		r.queue = make(chan job, r.bufferSize)
	}
	return r
}

// Record builds an entry for req and persists it. It never returns an error,
// never panics, and in async mode never waits on the store.
func (r *Recorder) Record(ctx context.Context, req Request) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncBuildFailures()
			r.logger.ErrorContext(ctx, "audit record panicked",
				"panic", p,
				"entity_type", req.EntityType,
			)
		}
	}()

	entry, err := r.Build(ctx, req)
	if err != nil {
		r.metrics.IncBuildFailures()
		r.logger.WarnContext(ctx, "audit entry rejected",
			"error", err,
			"entity_type", req.EntityType,
			"action", req.Action,
		)
		return
	}

	if !r.async {
		r.persist(context.WithoutCancel(ctx), entry)
		return
	}
	r.enqueue(ctx, entry)
}

// Build turns req into an entry without persisting it.
func (r *Recorder) Build(ctx context.Context, req Request) (audit.Entry, error) {
	entityType, err := id.ParseEntityType(req.EntityType)
	if err != nil {
		return audit.Entry{}, err
	}
	action, err := audit.ParseAction(string(req.Action))
	if err != nil {
		return audit.Entry{}, err
	}

	entry := audit.Entry{
		ID:         id.NewEntryID(),
		EntityType: entityType.String(),
		EntityID:   StringifyID(req.EntityID),
		Action:     action,
		Actor:      resolveActor(ctx, req.Actor),
		Meta:       audit.CloneMeta(req.Meta),
		RequestID:  requestcontext.RequestID(ctx),
	}

	if action == audit.ActionUpdate {
		opts := changes.Options{Allowlist: req.Allowlist}
		if r.collections != nil {
			opts.Collections = r.collections.CollectionsFor(entry.EntityType)
		}
		entry.Diff = changes.BuildDiffAny(req.Before, req.After, opts)
	}

	entry.At = r.clock.Next()
	return entry, nil
}

func (r *Recorder) enqueue(ctx context.Context, entry audit.Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.IncDropped(DropClosed)
		r.logger.WarnContext(ctx, "audit entry dropped after shutdown",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
		)
		return
	}

	select {
	case r.queue <- job{ctx: context.WithoutCancel(ctx), entry: entry}:
		r.metrics.SetQueueDepth(len(r.queue))
	default:
		r.metrics.IncDropped(DropBufferFull)
		r.logger.WarnContext(ctx, "audit buffer full, entry dropped",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"action", entry.Action,
		)
	}
}

// Run drains the queue until Close is called, then persists whatever is
// still queued and returns. It is a no-op in sync mode.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.async {
		return nil
	}
	r.once.Do(func() { close(r.started) })
	defer close(r.done)

	for j := range r.queue {
		r.metrics.SetQueueDepth(len(r.queue))
		r.persist(j.ctx, j.entry)
	}
	r.logger.InfoContext(ctx, "audit recorder drained")
	return nil
}

// Close stops accepting entries and waits for queued ones to be persisted,
// or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	if !r.async {
		return nil
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.started:
	default:
		// Run never started; drain inline.
		r.once.Do(func() { close(r.started) })
		for j := range r.queue {
			r.persist(j.ctx, j.entry)
		}
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain audit queue: %w", ctx.Err())
	}
}

// persist appends one entry under its own timeout. Failures feed the breaker
// and stop here.
func (r *Recorder) persist(ctx context.Context, entry audit.Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.IncPersistFailures()
			r.logger.ErrorContext(ctx, "audit append panicked",
				"panic", p,
				"entity_type", entry.EntityType,
				"entity_id", entry.EntityID,
			)
		}
	}()

	if !r.breaker.Allow() {
		r.metrics.IncDropped(DropCircuitOpen)
		return
	}
	r.metrics.SetCircuitBreakerState(false)

	ctx, cancel := context.WithTimeout(ctx, r.appendTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "audit.append", trace.WithAttributes(
		attribute.String("audit.entity_type", entry.EntityType),
		attribute.String("audit.action", string(entry.Action)),
	))
	defer span.End()

	start := time.Now()
	err := r.store.Append(ctx, entry)
	r.metrics.ObservePersistDuration(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		r.metrics.IncPersistFailures()
		if r.breaker.RecordFailure() {
			r.metrics.SetCircuitBreakerState(true)
			r.logger.WarnContext(ctx, "audit store circuit opened")
		}
		r.logger.ErrorContext(ctx, "audit append failed",
			"error", err,
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"action", entry.Action,
		)
		return
	}

	r.breaker.RecordSuccess()
	r.metrics.IncRecorded()
}

// resolveActor merges explicit fields over the ones in ctx.
func resolveActor(ctx context.Context, explicit audit.Actor) audit.Actor {
	fromCtx := requestcontext.Actor(ctx)
	actor := audit.Actor{UserID: fromCtx.UserID, Role: fromCtx.Role, Name: fromCtx.Name}
	if explicit.UserID != "" {
		actor.UserID = explicit.UserID
	}
	if explicit.Role != "" {
		actor.Role = explicit.Role
	}
	if explicit.Name != "" {
		actor.Name = explicit.Name
	}
	return actor
}

// StringifyID renders an entity identifier as text. Whole floats print
// without a fractional part, so 42.0 and 42 give the same id.
func StringifyID(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case json.Number:
		return x.String()
	case float64:
		return changes.Number(x).String()
	case float32:
		return changes.Number(float64(x)).String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
