// Package history serves the per-day change history: it reads entries from
// the audit store, renders them for a viewer and accepts mutations reported
// by other services.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"labtrail/internal/history/metrics"
	"labtrail/internal/history/profile"
	"labtrail/internal/history/render"
	id "labtrail/pkg/domain"
	dErrors "labtrail/pkg/domain-errors"
	audit "labtrail/pkg/platform/audit"
	"labtrail/pkg/platform/audit/recorder"
	"labtrail/pkg/platform/sentinel"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

// Recorder accepts mutations for auditing. Record never fails.
type Recorder interface {
	Record(ctx context.Context, req recorder.Request)
}

// EntryView is an entry together with its rendered rows.
type EntryView struct {
	ID         id.EntryID     `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     audit.Action   `json:"action"`
	Actor      audit.Actor    `json:"actor,omitzero"`
	RequestID  string         `json:"requestId,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	At         time.Time      `json:"at"`
	Rows       []render.Row   `json:"rows"`
}

// DayView is one day's history grouped by entity type.
type DayView struct {
	Date     string                 `json:"date"`
	Timezone string                 `json:"timezone"`
	Total    int                    `json:"total"`
	Types    []string               `json:"entityTypes"`
	Groups   map[string][]EntryView `json:"groups"`
}

// IngestRequest reports one mutation performed elsewhere.
type IngestRequest struct {
	EntityType string
	EntityID   any
	Action     string
	Before     any
	After      any
	Meta       map[string]any
	Actor      audit.Actor
}

// Service reads and records change history.
type Service struct {
	store    audit.Store
	recorder Recorder
	profiles *profile.Registry
	renderer *render.Renderer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New creates the service. profiles drives both the recorder's write
// allow-lists and the renderer.
func New(store audit.Store, rec Recorder, profiles *profile.Registry, opts ...Option) *Service {
	s := &Service{
		store:    store,
		recorder: rec,
		profiles: profiles,
		renderer: render.New(profiles),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("labtrail/history")
	}
	return s
}

// Day returns the entries recorded on date (YYYY-MM-DD) in the viewer's
// zone, newest first within each entity type. An empty filter returns all
// types.
func (s *Service) Day(ctx context.Context, date string, entityTypes []string, view render.ViewContext) (*DayView, error) {
	loc := view.Location
	if loc == nil {
		loc = time.Local
	}
	day, err := audit.ParseDay(date, loc)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "history.day", trace.WithAttributes(
		attribute.String("history.date", day.String()),
		attribute.String("history.timezone", loc.String()),
		attribute.StringSlice("history.entity_types", entityTypes),
	))
	defer span.End()

	start := time.Now()
	grouped, err := s.store.QueryByDay(ctx, day, entityTypes)
	if err != nil {
		return nil, s.readFailed(ctx, span, metrics.QueryDay, start, err)
	}
	s.metrics.ObserveQuery(metrics.QueryDay, time.Since(start), "")
	s.metrics.ObserveEntries(metrics.QueryDay, grouped.Count())

	out := &DayView{
		Date:     day.String(),
		Timezone: loc.String(),
		Total:    grouped.Count(),
		Types:    make([]string, 0, len(grouped)),
		Groups:   make(map[string][]EntryView, len(grouped)),
	}
	for entityType, entries := range grouped {
		views := make([]EntryView, 0, len(entries))
		for _, e := range entries {
			views = append(views, s.view(e, view))
		}
		out.Groups[entityType] = views
		out.Types = append(out.Types, entityType)
	}
	sort.Strings(out.Types)
	return out, nil
}

// Recent returns the newest entries across all days. limit is clamped to
// [1, MaxRecentLimit]; zero or less means DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, limit int, view render.ViewContext) ([]EntryView, error) {
	limit = ClampLimit(limit)

	ctx, span := s.tracer.Start(ctx, "history.recent", trace.WithAttributes(
		attribute.Int("history.limit", limit),
	))
	defer span.End()

	start := time.Now()
	entries, err := s.store.QueryRecent(ctx, limit)
	if err != nil {
		return nil, s.readFailed(ctx, span, metrics.QueryRecent, start, err)
	}
	s.metrics.ObserveQuery(metrics.QueryRecent, time.Since(start), "")
	s.metrics.ObserveEntries(metrics.QueryRecent, len(entries))

	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, s.view(e, view))
	}
	return views, nil
}

// Ingest validates req and hands it to the recorder. Only malformed input
// is reported; recording itself never fails the caller.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) error {
	entityType, err := id.ParseEntityType(req.EntityType)
	if err != nil {
		s.metrics.IncIngest(false)
		return err
	}
	action, err := audit.ParseAction(req.Action)
	if err != nil {
		s.metrics.IncIngest(false)
		return err
	}
	if recorder.StringifyID(req.EntityID) == "" {
		s.metrics.IncIngest(false)
		return dErrors.New(dErrors.CodeInvalidInput, "entity id is required")
	}

	s.recorder.Record(ctx, recorder.Request{
		EntityType: entityType.String(),
		EntityID:   req.EntityID,
		Action:     action,
		Before:     req.Before,
		After:      req.After,
		Allowlist:  s.profiles.WriteAllowlist(entityType.String()),
		Meta:       req.Meta,
		Actor:      req.Actor,
	})
	s.metrics.IncIngest(true)
	return nil
}

func (s *Service) view(e audit.Entry, view render.ViewContext) EntryView {
	at := e.At
	if view.Location != nil {
		at = at.In(view.Location)
	}
	return EntryView{
		ID:         e.ID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Action:     e.Action,
		Actor:      e.Actor,
		RequestID:  e.RequestID,
		Meta:       e.Meta,
		At:         at,
		Rows:       s.renderer.Render(e, view),
	}
}

// readFailed logs, counts and translates a store read error.
func (s *Service) readFailed(ctx context.Context, span trace.Span, query string, start time.Time, err error) error {
	translated := translateReadError(err)
	code := dErrors.CodeOf(translated)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	s.metrics.ObserveQuery(query, time.Since(start), string(code))
	s.logger.ErrorContext(ctx, "audit history read failed",
		"query", query,
		"code", code,
		"error", err,
	)
	return translated
}

func translateReadError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "audit store timed out")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit history")
	}
}

// ClampLimit applies the Recent limit rules.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}
