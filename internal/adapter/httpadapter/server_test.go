package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/memory"
	"github.com/couchcryptid/geo-anchor-service/internal/adapter/probe"
	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
	"github.com/couchcryptid/geo-anchor-service/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockService struct {
	registerIn registry.RegisterInput
	resolveIn  registry.ResolveInput
	record     domain.Record
	resolution registry.Resolution
	history    []domain.Record
	err        error
}

func (m *mockService) Register(_ context.Context, in registry.RegisterInput) (domain.Record, error) {
	m.registerIn = in
	return m.record, m.err
}

func (m *mockService) Resolve(_ context.Context, in registry.ResolveInput) (registry.Resolution, error) {
	m.resolveIn = in
	return m.resolution, m.err
}

func (m *mockService) History(_ context.Context) ([]domain.Record, error) {
	return m.history, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(svc httpadapter.AnchorService, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", svc, &mockReadiness{err: readyErr}, []string{"*"}, discardLogger())
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, errors.New("storage backend mongo: no primary")), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", decodeBody(t, rec)["status"])
}

func TestAPIHealth(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// --- register ---

func TestRegister_Created(t *testing.T) {
	svc := &mockService{record: domain.Record{ID: "r1", Lat: 1, Lon: 2, Content: json.RawMessage(`"https://example.com"`)}}
	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/register", `{"lat":1,"lon":2,"content":"https://example.com"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	record := body["record"].(map[string]any)
	assert.Equal(t, "r1", record["id"])
	assert.Equal(t, "https://example.com", record["content"])

	require.NotNil(t, svc.registerIn.Lat)
	assert.Equal(t, 1.0, *svc.registerIn.Lat)
	assert.JSONEq(t, `"https://example.com"`, string(svc.registerIn.Content))
}

func TestRegister_DecodesFieldsLeniently(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		latNil      bool
		lonNil      bool
		contentNil  bool
		contentJSON string
	}{
		{"string coordinates", `{"lat":"1","lon":2,"content":"x"}`, true, false, false, `"x"`},
		{"null coordinates", `{"lat":null,"lon":null,"content":"x"}`, true, true, false, `"x"`},
		{"bool coordinate", `{"lat":1,"lon":true,"content":"x"}`, false, true, false, `"x"`},
		{"absent content", `{"lat":1,"lon":2}`, false, false, true, ``},
		{"null content", `{"lat":1,"lon":2,"content":null}`, false, false, false, `null`},
		{"object content", `{"lat":1,"lon":2,"content":{"a":[1]}}`, false, false, false, `{"a":[1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			do(t, newTestServer(svc, nil), http.MethodPost, "/api/register", tt.body)

			assert.Equal(t, tt.latNil, svc.registerIn.Lat == nil)
			assert.Equal(t, tt.lonNil, svc.registerIn.Lon == nil)
			assert.Equal(t, tt.contentNil, svc.registerIn.Content == nil)
			if !tt.contentNil {
				assert.JSONEq(t, tt.contentJSON, string(svc.registerIn.Content))
			}
		})
	}
}

func TestRegister_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"input", &domain.InputError{Field: "lat", Reason: "lat and lon must be numbers"}, http.StatusBadRequest, "lat and lon must be numbers"},
		{"content", &domain.InputError{Field: "content", Reason: "content is required"}, http.StatusBadRequest, "content is required"},
		{"unreachable", domain.ErrContentUnreachable, http.StatusUnprocessableEntity, "Invalid content URL"},
		{"backend", errors.New("connection reset"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestServer(&mockService{err: tt.err}, nil), http.MethodPost, "/api/register", `{"lat":1,"lon":2,"content":"x"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["error"])
		})
	}
}

func TestRegister_MalformedBody(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodPost, "/api/register", `{"lat":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decodeBody(t, rec)["error"])
}

func TestRegister_MethodNotAllowed(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/api/register", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- resolve ---

func TestResolve_Found(t *testing.T) {
	match := domain.Match{
		Record:   domain.Record{ID: "r1", Lat: 1, Lon: 2, Content: json.RawMessage(`{"menu":"today"}`)},
		Distance: 12.5,
	}
	svc := &mockService{resolution: registry.Resolution{Content: match.Content, Match: match}}
	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/resolve", `{"lat":1,"lon":2,"thresholdMeters":30}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"menu": "today"}, body["content"])
	assert.Equal(t, 12.5, body["distance"])
	record := body["record"].(map[string]any)
	assert.Equal(t, "r1", record["id"])
	assert.Equal(t, 12.5, record["distance"])

	require.NotNil(t, svc.resolveIn.ThresholdMeters)
	assert.Equal(t, 30.0, *svc.resolveIn.ThresholdMeters)
}

func TestResolve_ThresholdOmitted(t *testing.T) {
	svc := &mockService{err: domain.ErrNotFound}
	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/resolve", `{"lat":1,"lon":2}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No record found within threshold", decodeBody(t, rec)["error"])
	assert.Nil(t, svc.resolveIn.ThresholdMeters)
}

// --- history ---

func TestHistory_EmptyIsArray(t *testing.T) {
	rec := do(t, newTestServer(&mockService{}, nil), http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())
}

func TestHistory_BackendFailure(t *testing.T) {
	rec := do(t, newTestServer(&mockService{err: errors.New("(PGRST301) JWT expired")}, nil), http.MethodGet, "/api/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- CORS ---

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&mockService{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/resolve", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- end to end through the real service ---

func TestAPI_RegisterThenResolve(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer page.Close()

	metrics := observability.NewMetricsForTesting()
	svc := registry.NewService(memory.New(), probe.NewValidator(2*time.Second, metrics, discardLogger()), discardLogger(), metrics)
	srv := newTestServer(svc, nil)

	rec := do(t, srv, http.MethodPost, "/api/register", `{"lat":40.7128,"lon":-74.006,"content":"`+page.URL+`/menu"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/register", `{"lat":40.7128,"lon":-74.006,"content":"`+page.URL+`/missing"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/register", `{"lat":"40.7","lon":-74.006,"content":"`+page.URL+`/missing"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/resolve", `{"lat":40.7129,"lon":-74.006}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, page.URL+"/menu", body["content"])
	assert.InDelta(t, 11.1, body["distance"].(float64), 0.1)

	rec = do(t, srv, http.MethodPost, "/api/resolve", `{"lat":41,"lon":-74.006}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	records := decodeBody(t, rec)["records"].([]any)
	assert.Len(t, records, 1)
}
