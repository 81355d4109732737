// Package resolver wraps the gateway's canonical fetch with a durable,
// time-boxed cache and stale-data fallback.
//
// The cache is keyed per attachment row, not globally per identifier: with
// an entity context and an existing row, that row's persisted payload acts
// as the cache; without one (a preview-before-attach call) resolution is
// always fresh and uncached.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/identifier"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/metrics"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/models"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/store"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/gateway"
	dErrors "github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/domain-errors"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/requestcontext"
)

// CanonicalFetcher is the slice of the gateway the engine needs.
type CanonicalFetcher interface {
	FetchCanonical(ctx context.Context, id identifier.Identifier) (gateway.CanonicalRecord, error)
}

// EntityRef names the attachment row whose payload serves as the cache.
type EntityRef struct {
	Type models.EntityType
	ID   int64
}

// Resolution is the normalized view returned to callers: the seven
// documented fields plus cache provenance. Never the raw upstream payload.
type Resolution struct {
	Payload        models.ResolvedPayload
	LastResolvedAt time.Time
	// Stale marks data older than the freshness window, returned only
	// because a refresh attempt failed.
	Stale bool
}

// Service is the resolution cache engine.
type Service struct {
	fetcher   CanonicalFetcher
	store     store.Store
	freshness time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	group     singleflight.Group
}

// New constructs the engine. freshness is the window inside which a
// persisted payload is served without a network call.
func New(fetcher CanonicalFetcher, st store.Store, freshness time.Duration, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		fetcher:   fetcher,
		store:     st,
		freshness: freshness,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("docid/rrid/resolver"),
	}
}

// ParseEntityRef validates the raw entity context accompanying a resolve
// request. Supplying one of entityType/entityId without the other is a
// caller contract violation and fails before any cache or network access.
func ParseEntityRef(rawType, rawID string) (*EntityRef, error) {
	if rawType == "" && rawID == "" {
		return nil, nil
	}
	if rawType == "" || rawID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "entityType and entityId must be supplied together")
	}
	entityType, err := models.ParseEntityType(rawType)
	if err != nil {
		return nil, err
	}
	entityID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "entityId must be an integer")
	}
	return &EntityRef{Type: entityType, ID: entityID}, nil
}

// Resolve returns the normalized canonical view for one identifier.
//
// With a fresh cached payload on the referenced row, no network call is
// made. When stale or absent, the gateway is consulted; on upstream failure
// any payload on record is returned marked stale rather than failing the
// caller. Only with nothing on record does the call fail.
func (s *Service) Resolve(ctx context.Context, id identifier.Identifier, ref *EntityRef) (Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(attribute.String("rrid.identifier", id.Curie)))
	defer span.End()

	now := requestcontext.Now(ctx)

	var cached *models.Attachment
	if ref != nil {
		row, err := s.store.FindByEntityIdentifier(ctx, ref.Type, ref.ID, id.Curie)
		switch {
		case err == nil:
			cached = row
		case errors.Is(err, sentinel.ErrNotFound):
			// No row yet; resolution proceeds uncached.
		default:
			// A broken store read must not block resolution; treat as a
			// cache miss and log.
			s.logger.ErrorContext(ctx, "attachment cache read failed",
				"identifier", id.Curie,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}

	if cached != nil && cached.Payload != nil && now.Sub(cached.LastResolved) < s.freshness {
		s.metrics.RecordResolveCacheHit()
		span.SetAttributes(attribute.Bool("rrid.cache_hit", true))
		return Resolution{
			Payload:        *cached.Payload,
			LastResolvedAt: cached.LastResolved,
			Stale:          false,
		}, nil
	}
	s.metrics.RecordResolveCacheMiss()

	record, err := s.fetchCollapsed(ctx, id)
	if err != nil {
		if cached != nil && cached.Payload != nil {
			// Degraded but available beats hard failure.
			s.metrics.RecordStaleFallback()
			span.SetAttributes(attribute.Bool("rrid.stale_fallback", true))
			s.logger.WarnContext(ctx, "serving stale resolution after upstream failure",
				"identifier", id.Curie,
				"last_resolved_at", cached.LastResolved,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			return Resolution{
				Payload:        *cached.Payload,
				LastResolvedAt: cached.LastResolved,
				Stale:          true,
			}, nil
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return Resolution{}, dErrors.Newf(dErrors.CodeNotFound, "identifier %s is not known to the resolver", id.Curie)
		}
		// Status codes, URLs, and bodies stay behind the gateway boundary.
		return Resolution{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "identifier resolution service is unavailable")
	}

	payload := toPayload(record)
	if cached != nil {
		// Best-effort write: the read path never fails on a write fault.
		if err := s.store.UpdateResolution(ctx, cached.ID, &payload, now); err != nil {
			s.logger.ErrorContext(ctx, "resolution cache write failed",
				"identifier", id.Curie,
				"attachment_id", cached.ID,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}

	return Resolution{
		Payload:        payload,
		LastResolvedAt: now,
		Stale:          false,
	}, nil
}

// fetchCollapsed deduplicates concurrent upstream fetches of one identifier.
// Redundant concurrent refreshes are harmless but wasteful against a
// rate-limited upstream.
func (s *Service) fetchCollapsed(ctx context.Context, id identifier.Identifier) (gateway.CanonicalRecord, error) {
	result, err, _ := s.group.Do(id.Curie, func() (any, error) {
		// The collapsed fetch serves every concurrent waiter, so it must not
		// die with the first caller's request. The gateway's client timeout
		// bounds it instead.
		ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "resolver.fetchCanonical")
		defer span.End()
		return s.fetcher.FetchCanonical(ctx, id)
	})
	if err != nil {
		return gateway.CanonicalRecord{}, err
	}
	return result.(gateway.CanonicalRecord), nil
}

func toPayload(record gateway.CanonicalRecord) models.ResolvedPayload {
	return models.ResolvedPayload{
		Name:         record.Name,
		Identifier:   record.Identifier,
		Description:  record.Description,
		URL:          record.URL,
		ResourceType: record.ResourceType,
		Citation:     record.Citation,
		MentionCount: record.MentionCount,
	}
}
