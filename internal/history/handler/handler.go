package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"labtrail/internal/history"
	"labtrail/internal/history/render"
	dErrors "labtrail/pkg/domain-errors"
	"labtrail/pkg/platform/httputil"
	pstrings "labtrail/pkg/platform/strings"
	"labtrail/pkg/requestcontext"
)

// Service defines the interface for history operations.
type Service interface {
	Day(ctx context.Context, date string, entityTypes []string, view render.ViewContext) (*history.DayView, error)
	Recent(ctx context.Context, limit int, view render.ViewContext) ([]history.EntryView, error)
	Ingest(ctx context.Context, req history.IngestRequest) error
}

// ProfileLister reports which entity types have display profiles.
type ProfileLister interface {
	EntityTypes() []string
}

// Handler wires history endpoints to the history service.
type Handler struct {
	service  Service
	profiles ProfileLister
	logger   *slog.Logger
	view     render.ViewContext
}

// New constructs a history handler. view holds the server defaults that
// query parameters may override.
func New(service Service, profiles ProfileLister, logger *slog.Logger, view render.ViewContext) *Handler {
	return &Handler{
		service:  service,
		profiles: profiles,
		logger:   logger,
		view:     view,
	}
}

// Register mounts history endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/days/{date}", h.HandleDay)
	r.Get("/audit/recent", h.HandleRecent)
	r.Get("/audit/profiles", h.HandleProfiles)
	r.Post("/audit/entries", h.HandleIngest)
}

// HandleDay handles GET /audit/days/{date}?entity_type=..&tz=..
func (h *Handler) HandleDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	view, err := h.viewFor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	date := chi.URLParam(r, "date")
	entityTypes := pstrings.SplitDedupeLower(r.URL.Query()["entity_type"])

	out, err := h.service.Day(ctx, date, entityTypes, view)
	if err != nil {
		h.logger.WarnContext(ctx, "day history failed",
			"request_id", requestID,
			"date", date,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleRecent handles GET /audit/recent?limit=..&tz=..
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.viewFor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
	}

	entries, err := h.service.Recent(ctx, limit, view)
	if err != nil {
		h.logger.WarnContext(ctx, "recent history failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RecentResponse{Count: len(entries), Entries: entries})
}

// HandleProfiles handles GET /audit/profiles.
func (h *Handler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ProfilesResponse{EntityTypes: h.profiles.EntityTypes()})
}

// HandleIngest handles POST /audit/entries.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IngestEntryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.Ingest(ctx, req.ToIngest()); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "audit entry accepted",
		"request_id", requestID,
		"entity_type", req.EntityType,
		"action", req.Action,
	)
	httputil.WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", RequestID: requestID})
}

// viewFor applies the tz query parameter over the server defaults.
func (h *Handler) viewFor(r *http.Request) (render.ViewContext, error) {
	view := h.view
	tz := strings.TrimSpace(r.URL.Query().Get("tz"))
	if tz == "" {
		return view, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return view, dErrors.New(dErrors.CodeBadRequest, "unknown time zone: "+tz)
	}
	view.Location = loc
	return view, nil
}
