package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samirrijal/orchardscan/internal/core/domain"
)

// --- Mock OrchardProvider ---

type mockProvider struct {
	polygonFn func(ctx context.Context, orchardID string) ([]domain.Coordinate, error)
	treesFn   func(ctx context.Context, orchardID string) ([]domain.TreeRecord, error)

	polygonCalls atomic.Int32
	treesCalls   atomic.Int32
}

func (m *mockProvider) OrchardPolygon(ctx context.Context, orchardID string) ([]domain.Coordinate, error) {
	m.polygonCalls.Add(1)
	if m.polygonFn != nil {
		return m.polygonFn(ctx, orchardID)
	}
	return nil, nil
}

func (m *mockProvider) TreeRecords(ctx context.Context, orchardID string) ([]domain.TreeRecord, error) {
	m.treesCalls.Add(1)
	if m.treesFn != nil {
		return m.treesFn(ctx, orchardID)
	}
	return nil, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	analyses []domain.AnalysisEvent
	imports  []domain.SurveyImported
	err      error
}

func (m *mockPublisher) PublishAnalysis(ctx context.Context, e *domain.AnalysisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses = append(m.analyses, *e)
	return m.err
}

func (m *mockPublisher) PublishSurveyImported(ctx context.Context, e *domain.SurveyImported) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports = append(m.imports, *e)
	return m.err
}

// --- Mock CacheService ---

var errCacheMiss = errors.New("cache miss")

type mockCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]int
	setErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.ttls[key] = ttlSeconds
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Fixtures ---

func squareOrchard(size float64) []domain.Coordinate {
	return []domain.Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: size},
		{Lat: size, Lng: size},
		{Lat: size, Lng: 0},
	}
}

func cornerTrees(size float64) []domain.TreeRecord {
	var trees []domain.TreeRecord
	for i, c := range squareOrchard(size) {
		trees = append(trees, domain.TreeRecord{ID: string(rune('a' + i)), Position: c, Area: 1, NDRE: 0.5})
	}
	return trees
}

func fixedProvider(polygon []domain.Coordinate, trees []domain.TreeRecord) *mockProvider {
	return &mockProvider{
		polygonFn: func(ctx context.Context, id string) ([]domain.Coordinate, error) { return polygon, nil },
		treesFn:   func(ctx context.Context, id string) ([]domain.TreeRecord, error) { return trees, nil },
	}
}
