package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/audit"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/identifier"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/jwttoken"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/platform/config"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/service"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/attachment/store"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/gateway"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/internal/rrid/resolver"
	"github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/platform/sentinel"
)

type stubSearcher struct {
	hits []gateway.Hit
	err  error
}

func (s *stubSearcher) Search(context.Context, string, string) ([]gateway.Hit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type stubFetcher struct {
	record gateway.CanonicalRecord
	err    error
}

func (f *stubFetcher) FetchCanonical(context.Context, identifier.Identifier) (gateway.CanonicalRecord, error) {
	if f.err != nil {
		return gateway.CanonicalRecord{}, f.err
	}
	return f.record, nil
}

type testEnv struct {
	router   chi.Router
	token    string
	searcher *stubSearcher
	fetcher  *stubFetcher
	store    *store.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	searcher := &stubSearcher{}
	fetcher := &stubFetcher{
		record: gateway.CanonicalRecord{
			Name:         "ImageJ",
			Identifier:   "RRID:SCR_003070",
			Description:  "image processing software",
			URL:          "https://imagej.net",
			ResourceType: "software resource",
			Citation:     "(ImageJ, RRID:SCR_003070)",
			MentionCount: 9000,
		},
	}
	attStore := store.NewInMemory()
	res := resolver.New(fetcher, attStore, config.ResolveFreshness, logger, nil)
	auditPub := audit.NewPublisher(audit.NewInMemoryStore(), nil, logger)
	attachments := service.New(attStore, res, auditPub, logger, nil)

	jwtService := jwttoken.NewJWTService("test-signing-key", "docid", "docid-api")
	token, err := jwtService.GenerateAccessToken("user-7", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint test token: %v", err)
	}

	h := New(searcher, res, attachments, logger, nil, jwttoken.NewJWTServiceAdapter(jwtService))
	router := chi.NewRouter()
	h.Register(router)

	return &testEnv{
		router:   router,
		token:    token,
		searcher: searcher,
		fetcher:  fetcher,
		store:    attStore,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return resp.Error
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/rrid/search?q=imagej", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/rrid/search?q=imagej", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.hits = []gateway.Hit{{
		SourceID:   "SCR_003070",
		Name:       "ImageJ",
		Types:      []string{"software resource"},
		Identifier: "RRID:SCR_003070",
	}}

	rec := env.do(t, http.MethodGet, "/v1/rrid/search?q=imagej", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var hits []gateway.Hit
	if err := json.NewDecoder(rec.Body).Decode(&hits); err != nil {
		t.Fatalf("failed to decode hits: %v", err)
	}
	if len(hits) != 1 || hits[0].Identifier != "RRID:SCR_003070" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestSearchValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rrid/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/rrid/search?q=gfp&type=plasmid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type filter, got %d", rec.Code)
	}
}

func TestSearchUpstreamFailureIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	env.searcher.err = fmt.Errorf("%w: upstream status 503 from https://scicrunch.org", sentinel.ErrUnavailable)

	rec := env.do(t, http.MethodGet, "/v1/rrid/search?q=imagej", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := rec.Body.String()
	if bytes.Contains([]byte(body), []byte("503")) || bytes.Contains([]byte(body), []byte("scicrunch")) {
		t.Fatalf("upstream detail leaked into response: %s", body)
	}
}

func TestResolveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rrid/resolve?identifier=scr_003070", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Name           string    `json:"name"`
		Identifier     string    `json:"identifier"`
		ResourceType   string    `json:"resource_type"`
		Citation       string    `json:"citation"`
		MentionCount   int       `json:"mention_count"`
		LastResolvedAt time.Time `json:"last_resolved_at"`
		Stale          bool      `json:"stale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode resolution: %v", err)
	}
	if resp.Name != "ImageJ" || resp.Identifier != "RRID:SCR_003070" || resp.Stale {
		t.Fatalf("unexpected resolution: %+v", resp)
	}
	if resp.LastResolvedAt.IsZero() {
		t.Fatal("expected last_resolved_at to be set")
	}
}

func TestResolveValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		target string
	}{
		{"missing identifier", "/v1/rrid/resolve"},
		{"malformed identifier", "/v1/rrid/resolve?identifier=not-an-rrid"},
		{"entity type without id", "/v1/rrid/resolve?identifier=SCR_003070&entityType=publication"},
		{"entity id without type", "/v1/rrid/resolve?identifier=SCR_003070&entityId=42"},
		{"entity type outside allowlist", "/v1/rrid/resolve?identifier=SCR_003070&entityType=dataset&entityId=42"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tc.target, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestResolveUnknownIdentifier(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = sentinel.ErrNotFound

	rec := env.do(t, http.MethodGet, "/v1/rrid/resolve?identifier=SCR_999999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAttachEndpoint(t *testing.T) {
	env := newTestEnv(t)
	entityID := int64(42)

	rec := env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "SCR_003070",
		"entityType": "publication",
		"entityId":   entityID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var att struct {
		ID         uuid.UUID `json:"id"`
		EntityType string    `json:"entity_type"`
		EntityID   int64     `json:"entity_id"`
		Identifier string    `json:"identifier"`
		Name       string    `json:"name"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&att); err != nil {
		t.Fatalf("failed to decode attachment: %v", err)
	}
	if att.ID == uuid.Nil || att.Identifier != "RRID:SCR_003070" || att.Name != "ImageJ" {
		t.Fatalf("unexpected attachment: %+v", att)
	}

	// Second attach of the same identifier to the same entity conflicts.
	rec = env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "RRID:SCR_003070",
		"entityType": "publication",
		"entityId":   entityID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", rec.Code)
	}
	if code := decodeError(t, rec); code != "conflict" {
		t.Fatalf("expected conflict error code, got %q", code)
	}
}

func TestAttachValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing identifier", map[string]any{"entityType": "publication", "entityId": 42}},
		{"missing entity type", map[string]any{"identifier": "SCR_003070", "entityId": 42}},
		{"missing entity id", map[string]any{"identifier": "SCR_003070", "entityType": "publication"}},
		{"unknown entity type", map[string]any{"identifier": "SCR_003070", "entityType": "dataset", "entityId": 42}},
		{"malformed identifier", map[string]any{"identifier": "junk", "entityType": "publication", "entityId": 42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/rrid/attach", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestAttachUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = sentinel.ErrUnavailable

	rec := env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "SCR_003070",
		"entityType": "publication",
		"entityId":   42,
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when resolution fails, got %d", rec.Code)
	}
}

func TestAttachUnknownIdentifier(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.err = sentinel.ErrNotFound

	rec := env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "SCR_999999",
		"entityType": "publication",
		"entityId":   42,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an identifier the resolver does not know, got %d: %s", rec.Code, rec.Body)
	}
	if code := decodeError(t, rec); code != "not_found" {
		t.Fatalf("expected not_found error code, got %q", code)
	}
}

func TestListEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rrid/entity?entityType=publication&entityId=42", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// Empty set serializes as an array, never null.
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}

	env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "SCR_003070",
		"entityType": "publication",
		"entityId":   42,
	})
	rec = env.do(t, http.MethodGet, "/v1/rrid/entity?entityType=publication&entityId=42", nil)
	var rows []json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(rows))
	}
}

func TestListValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/rrid/entity?entityType=publication", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing entityId, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/v1/rrid/entity?entityType=publication&entityId=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer entityId, got %d", rec.Code)
	}
}

func TestDetachEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/rrid/attach", map[string]any{
		"identifier": "SCR_003070",
		"entityType": "publication",
		"entityId":   42,
	})
	var att struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&att); err != nil {
		t.Fatalf("failed to decode attachment: %v", err)
	}

	rec = env.do(t, http.MethodDelete, "/v1/rrid/"+att.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, http.MethodDelete, "/v1/rrid/"+att.ID.String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on double detach, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/rrid/not-a-uuid", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id, got %d", rec.Code)
	}
}
