package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/orchardscan/internal/adapters/http"
	"github.com/samirrijal/orchardscan/internal/core/domain"
	"github.com/samirrijal/orchardscan/internal/core/usecases"
)

// ---- Mock provider ----

type mockProvider struct {
	polygonFn func(ctx context.Context, id string) ([]domain.Coordinate, error)
	treesFn   func(ctx context.Context, id string) ([]domain.TreeRecord, error)

	mu  sync.Mutex
	ids []string
}

func (m *mockProvider) OrchardPolygon(ctx context.Context, id string) ([]domain.Coordinate, error) {
	m.record(id)
	if m.polygonFn != nil {
		return m.polygonFn(ctx, id)
	}
	return squarePolygon(), nil
}

func (m *mockProvider) TreeRecords(ctx context.Context, id string) ([]domain.TreeRecord, error) {
	m.record(id)
	if m.treesFn != nil {
		return m.treesFn(ctx, id)
	}
	return gridTrees(), nil
}

func (m *mockProvider) record(id string) {
	m.mu.Lock()
	m.ids = append(m.ids, id)
	m.mu.Unlock()
}

func (m *mockProvider) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

type mockPinger struct{ err error }

func (p mockPinger) Ping(context.Context) error { return p.err }

// ---- Fixtures ----

func squarePolygon() []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0},
	}
}

// gridTrees plants a 5x5 grid at spacing 2 with the centre tree missing.
// The tree at (1,1) is sickly.
func gridTrees() []domain.TreeRecord {
	var trees []domain.TreeRecord
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if i == 2 && j == 2 {
				continue
			}
			ndre := 0.6
			if i == 0 && j == 0 {
				ndre = 0.1
			}
			trees = append(trees, domain.TreeRecord{
				ID:       fmt.Sprintf("t%d%d", i, j),
				Position: domain.Coordinate{Lat: 1 + 2*float64(i), Lng: 1 + 2*float64(j)},
				Area:     4,
				NDRE:     ndre,
			})
		}
	}
	return trees
}

// smallParams keeps the KDE grid small enough for unit tests.
const (
	gridParams  = "num_points=30&bandwidth=0.3&neighborhood_size=5&threshold_percentile=10"
	smallParams = gridParams + "&inner_buffer=0.5"
)

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(p *mockProvider, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Analysis:         usecases.NewAnalysisService(p, nil, domain.DefaultDetectionParams()),
		DefaultOrchardID: "216269",
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func get(t *testing.T, app *fiber.App, url string) (int, []byte, map[string]string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	headers := map[string]string{}
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return resp.StatusCode, readBody(t, resp.Body), headers
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var apiErr struct {
		Status int    `json:"status"`
		Code   string `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return apiErr.Code
}

// ---- Missing trees ----

func TestMissingTrees_Success(t *testing.T) {
	p := &mockProvider{}
	app := setupApp(makeDeps(p))

	status, body, _ := get(t, app, "/v1/orchards/216269/missing-trees?"+smallParams)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		MissingTrees []domain.Coordinate `json:"missing_trees"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.MissingTrees == nil {
		t.Fatal("missing_trees should be an array, got null")
	}
	for _, g := range result.MissingTrees {
		if g.Lat <= 0.5 || g.Lat >= 9.5 || g.Lng <= 0.5 || g.Lng >= 9.5 {
			t.Errorf("gap %v lies outside the eroded orchard", g)
		}
	}
	for _, id := range p.seen() {
		if id != "216269" {
			t.Errorf("provider asked for %q", id)
		}
	}
}

func TestMissingTrees_EmptyInnerRegion(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	status, body, _ := get(t, app, "/v1/orchards/216269/missing-trees?"+gridParams+"&inner_buffer=6")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if strings.TrimSpace(string(body)) != `{"missing_trees":[]}` {
		t.Errorf("unexpected body %s", body)
	}
}

func TestMissingTrees_BadQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"not an integer", "num_points=many"},
		{"not a number", "bandwidth=wide"},
		{"out of range", "num_points=1"},
		{"percentile above 100", "threshold_percentile=101"},
		{"unknown method", "bandwidth_method=guess"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			app := setupApp(makeDeps(p))

			status, body, _ := get(t, app, "/v1/orchards/216269/missing-trees?"+tt.query)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			if code := errorCode(t, body); code != "bad_request" {
				t.Errorf("expected bad_request, got %s", code)
			}
			if len(p.seen()) != 0 {
				t.Error("provider should not be called for invalid parameters")
			}
		})
	}
}

func TestMissingTrees_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockProvider
		status   int
		code     string
	}{
		{
			name: "unknown orchard",
			provider: &mockProvider{polygonFn: func(context.Context, string) ([]domain.Coordinate, error) {
				return nil, fmt.Errorf("orchard 1: %w", domain.ErrNotFound)
			}},
			status: 404, code: "not_found",
		},
		{
			name: "upstream failure",
			provider: &mockProvider{treesFn: func(context.Context, string) ([]domain.TreeRecord, error) {
				return nil, fmt.Errorf("status 503: %w", domain.ErrRemote)
			}},
			status: 502, code: "upstream_error",
		},
		{
			name: "degenerate polygon",
			provider: &mockProvider{polygonFn: func(context.Context, string) ([]domain.Coordinate, error) {
				return []domain.Coordinate{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}, nil
			}},
			status: 422, code: "unprocessable",
		},
		{
			name: "collinear trees",
			provider: &mockProvider{treesFn: func(context.Context, string) ([]domain.TreeRecord, error) {
				return []domain.TreeRecord{
					{Position: domain.Coordinate{Lat: 1, Lng: 1}, Area: 1},
					{Position: domain.Coordinate{Lat: 2, Lng: 2}, Area: 1},
					{Position: domain.Coordinate{Lat: 3, Lng: 3}, Area: 1},
				}, nil
			}},
			status: 422, code: "unprocessable",
		},
		{
			name: "unexpected failure",
			provider: &mockProvider{treesFn: func(context.Context, string) ([]domain.TreeRecord, error) {
				return nil, errors.New("disk on fire")
			}},
			status: 500, code: "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(tt.provider))
			status, body, headers := get(t, app, "/v1/orchards/1/missing-trees?"+smallParams)
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
			if code := errorCode(t, body); code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, code)
			}
			if headers["Cache-Control"] != "no-store" {
				t.Errorf("errors must not be cached, got Cache-Control %q", headers["Cache-Control"])
			}
		})
	}
}

// ---- Unhealthy trees ----

func TestUnhealthyTrees_Success(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	status, body, headers := get(t, app, "/v1/orchards/216269/unhealthy-trees")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var result struct {
		UnhealthyTrees []domain.Coordinate `json:"unhealthy_trees"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.UnhealthyTrees) != 1 {
		t.Fatalf("expected 1 unhealthy tree, got %v", result.UnhealthyTrees)
	}
	if got := result.UnhealthyTrees[0]; got != (domain.Coordinate{Lat: 1, Lng: 1}) {
		t.Errorf("expected the tree at (1,1), got %v", got)
	}
	if headers["Cache-Control"] != "public, max-age=60" {
		t.Errorf("unexpected Cache-Control %q", headers["Cache-Control"])
	}
}

func TestUnhealthyTrees_NoTrees(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{
		treesFn: func(context.Context, string) ([]domain.TreeRecord, error) { return nil, nil },
	}))

	status, body, _ := get(t, app, "/v1/orchards/216269/unhealthy-trees")
	if status != 422 {
		t.Fatalf("expected 422, got %d: %s", status, body)
	}
}

// ---- Summary ----

func TestSummary_Success(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	status, body, _ := get(t, app, "/v1/orchards/216269/summary")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	var sum domain.OrchardSummary
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatal(err)
	}
	if sum.OrchardID != "216269" || sum.Trees != 24 || sum.Vertices != 4 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.AreaDeg2 != 100 {
		t.Errorf("expected area 100, got %v", sum.AreaDeg2)
	}
	if sum.InnerRegionEmpty {
		t.Error("default buffer should leave an inner region")
	}
}

// ---- Legacy routes ----

func TestLegacyRoutes_UseDefaultOrchard(t *testing.T) {
	p := &mockProvider{}
	app := setupApp(makeDeps(p))

	status, body, headers := get(t, app, "/detect_unhealthy_trees")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if headers["Deprecation"] != "true" {
		t.Errorf("expected Deprecation header, got %q", headers["Deprecation"])
	}
	if headers["Sunset"] == "" {
		t.Error("expected Sunset header")
	}
	if !strings.Contains(headers["Link"], "/v1/orchards/{id}/unhealthy-trees") {
		t.Errorf("unexpected Link header %q", headers["Link"])
	}
	seen := p.seen()
	if len(seen) == 0 || seen[0] != "216269" {
		t.Errorf("expected the default orchard, provider saw %v", seen)
	}

	status, body, headers = get(t, app, "/detect_missing_trees?"+smallParams)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if headers["Deprecation"] != "true" {
		t.Error("expected Deprecation header on /detect_missing_trees")
	}
}

func TestLegacyRoutes_NoDefaultOrchard(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}, func(d *handler.Dependencies) {
		d.DefaultOrchardID = ""
	}))

	status, _, _ := get(t, app, "/detect_missing_trees")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestVersionedRoutes_NotDeprecated(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	_, _, headers := get(t, app, "/v1/orchards/216269/unhealthy-trees")
	if headers["Deprecation"] != "" {
		t.Errorf("versioned route marked deprecated")
	}
}

func TestDeprecationMiddleware_PatternSegments(t *testing.T) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(handler.DeprecationMiddleware([]handler.DeprecatedRoute{
		{Path: "/v0/orchards/:id/gaps", Alternative: "/v1/orchards/{id}/missing-trees"},
	}))
	app.Get("/*", func(c *fiber.Ctx) error { return c.SendStatus(204) })

	tests := []struct {
		path string
		want bool
	}{
		{"/v0/orchards/216269/gaps", true},
		{"/v0/orchards/216269/gaps/", true},
		{"/v0/orchards/216269", false},
		{"/v0/farms/216269/gaps", false},
	}
	for _, tt := range tests {
		_, _, headers := get(t, app, tt.path)
		if got := headers["Deprecation"] == "true"; got != tt.want {
			t.Errorf("%s: deprecated = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// ---- GraphQL ----

func TestGraphQL_Queries(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	query := `{
		unhealthyTrees(orchardId: "216269") { lat lng }
		orchardSummary(orchardId: "216269") { trees vertices bounds { max_lat } }
		missingTrees(orchardId: "216269", numPoints: 30, bandwidth: 0.3, innerBuffer: 0.5, neighborhoodSize: 5, thresholdPercentile: 10) { lat }
	}`
	payload, _ := json.Marshal(map[string]string{"query": query})
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			UnhealthyTrees []domain.Coordinate `json:"unhealthyTrees"`
			OrchardSummary struct {
				Trees    int `json:"trees"`
				Vertices int `json:"vertices"`
				Bounds   struct {
					MaxLat float64 `json:"max_lat"`
				} `json:"bounds"`
			} `json:"orchardSummary"`
			MissingTrees []domain.Coordinate `json:"missingTrees"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if len(result.Data.UnhealthyTrees) != 1 {
		t.Errorf("expected 1 unhealthy tree, got %v", result.Data.UnhealthyTrees)
	}
	if result.Data.OrchardSummary.Trees != 24 || result.Data.OrchardSummary.Bounds.MaxLat != 10 {
		t.Errorf("unexpected summary %+v", result.Data.OrchardSummary)
	}
	if result.Data.MissingTrees == nil {
		t.Error("missingTrees should resolve to a list")
	}
}

func TestGraphQL_ServiceErrorIsReported(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{
		polygonFn: func(context.Context, string) ([]domain.Coordinate, error) {
			return nil, domain.ErrNotFound
		},
	}))

	payload := `{"query":"{ orchardSummary(orchardId: \"nope\") { trees } }"}`
	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)

	var result struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0].Message, "not found") {
		t.Errorf("expected a not found error, got %+v", result.Errors)
	}
}

func TestGraphQL_EmptyQuery(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	req := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}, func(d *handler.Dependencies) { d.Version = "1.2.3" }))

	status, body, _ := get(t, app, "/v1/health")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.Contains(string(body), `"version":"1.2.3"`) {
		t.Errorf("unexpected body %s", body)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		db     handler.Pinger
		cache  handler.Pinger
		status int
	}{
		{"nothing optional configured", nil, nil, 200},
		{"all ok", mockPinger{}, mockPinger{}, 200},
		{"database down", mockPinger{err: errors.New("refused")}, mockPinger{}, 503},
		{"cache down", nil, mockPinger{err: errors.New("timeout")}, 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setupApp(makeDeps(&mockProvider{}, func(d *handler.Dependencies) {
				d.DB = tt.db
				d.Cache = tt.cache
			}))
			status, body, _ := get(t, app, "/v1/ready")
			if status != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, status, body)
			}
		})
	}
}

func TestWebSocket_WithoutNATS(t *testing.T) {
	app := setupApp(makeDeps(&mockProvider{}))

	status, _, _ := get(t, app, "/ws")
	if status != 503 {
		t.Fatalf("expected 503, got %d", status)
	}
}
