// Package handler is the thin HTTP layer over the RRID services. It
// delegates to domain services without embedding business logic so
// transport concerns remain isolated.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/identifier"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/metrics"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/middleware"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/gateway"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/resolver"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/transport/http/shared"
	dErrors "github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/domain-errors"
)

// Searcher is the gateway slice used by the search endpoint.
type Searcher interface {
	Search(ctx context.Context, keyword, typeFilter string) ([]gateway.Hit, error)
}

// ResolverService is the cache engine slice used by the resolve endpoint.
type ResolverService interface {
	Resolve(ctx context.Context, id identifier.Identifier, ref *resolver.EntityRef) (resolver.Resolution, error)
}

// AttachmentService is the lifecycle slice used by attach/list/detach.
type AttachmentService interface {
	Attach(ctx context.Context, entityType string, entityID int64, rawIdentifier string) (*models.Attachment, error)
	List(ctx context.Context, entityType string, entityID int64) ([]*models.Attachment, error)
	Detach(ctx context.Context, attachmentID uuid.UUID) error
}

// Handler handles RRID endpoints.
type Handler struct {
	logger       *slog.Logger
	searcher     Searcher
	resolver     ResolverService
	attachments  AttachmentService
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new RRID Handler.
func New(
	searcher Searcher,
	res ResolverService,
	attachments AttachmentService,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		logger:       logger,
		searcher:     searcher,
		resolver:     res,
		attachments:  attachments,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the RRID routes with their middleware chain.
func (h *Handler) Register(r chi.Router) {
	rridRouter := chi.NewRouter()
	rridRouter.Use(middleware.Recovery(h.logger))
	rridRouter.Use(middleware.RequestID)
	rridRouter.Use(middleware.RequestTime)
	rridRouter.Use(middleware.ClientMetadata)
	rridRouter.Use(middleware.Logger(h.logger))
	rridRouter.Use(middleware.Timeout(60 * time.Second))
	rridRouter.Use(middleware.ContentTypeJSON)
	rridRouter.Use(middleware.Latency(h.metrics))
	rridRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	rridRouter.Get("/search", h.handleSearch)
	rridRouter.Get("/resolve", h.handleResolve)
	rridRouter.Post("/attach", h.handleAttach)
	rridRouter.Get("/entity", h.handleList)
	rridRouter.Delete("/{attachmentID}", h.handleDetach)

	r.Mount("/v1/rrid", rridRouter)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "q parameter is required"))
		return
	}
	typeFilter := r.URL.Query().Get("type")
	if typeFilter != "" && !gateway.ValidTypeFilter(typeFilter) {
		shared.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "unknown type filter: %q", typeFilter))
		return
	}

	hits, err := h.searcher.Search(ctx, keyword, typeFilter)
	if err != nil {
		h.logger.ErrorContext(ctx, "search failed",
			"keyword", keyword,
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUpstreamUnavailable, "identifier search service is unavailable"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, hits)
}

// resolveResponse is the flat wire form of a resolution: the seven
// normalized fields plus cache provenance.
type resolveResponse struct {
	Name           string    `json:"name"`
	Identifier     string    `json:"identifier"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	ResourceType   string    `json:"resource_type"`
	Citation       string    `json:"citation"`
	MentionCount   int       `json:"mention_count"`
	LastResolvedAt time.Time `json:"last_resolved_at"`
	Stale          bool      `json:"stale"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	raw := query.Get("identifier")
	if raw == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier parameter is required"))
		return
	}
	id, err := identifier.Normalize(raw)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	ref, err := resolver.ParseEntityRef(query.Get("entityType"), query.Get("entityId"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	res, err := h.resolver.Resolve(ctx, id, ref)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable) {
			h.logger.ErrorContext(ctx, "resolution failed",
				"identifier", id.Curie,
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resolveResponse{
		Name:           res.Payload.Name,
		Identifier:     res.Payload.Identifier,
		Description:    res.Payload.Description,
		URL:            res.Payload.URL,
		ResourceType:   res.Payload.ResourceType,
		Citation:       res.Payload.Citation,
		MentionCount:   res.Payload.MentionCount,
		LastResolvedAt: res.LastResolvedAt,
		Stale:          res.Stale,
	})
}

type attachRequest struct {
	Identifier string `json:"identifier"`
	EntityType string `json:"entityType"`
	EntityID   *int64 `json:"entityId"`
}

func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req attachRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Identifier == "" || req.EntityType == "" || req.EntityID == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "identifier, entityType and entityId are required"))
		return
	}

	att, err := h.attachments.Attach(ctx, req.EntityType, *req.EntityID, req.Identifier)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable) || dErrors.HasCode(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "attach failed",
				"identifier", req.Identifier,
				"entity_type", req.EntityType,
				"error", err.Error(),
				"request_id", middleware.GetRequestID(ctx),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, att)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	entityType := query.Get("entityType")
	rawID := query.Get("entityId")
	if entityType == "" || rawID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entityType and entityId parameters are required"))
		return
	}
	entityID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "entityId must be an integer"))
		return
	}

	attachments, err := h.attachments.List(ctx, entityType, entityID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, attachments)
}

func (h *Handler) handleDetach(w http.ResponseWriter, r *http.Request) {
	attachmentID, err := uuid.Parse(chi.URLParam(r, "attachmentID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "attachment does not exist"))
		return
	}
	if err := h.attachments.Detach(r.Context(), attachmentID); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "attachment " + attachmentID.String() + " removed",
	})
}
