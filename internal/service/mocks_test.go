package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docsage/internal/domain"
)

// MockEmbedder mocks Embedder and BatchEmbedder
type MockEmbedder struct {
	mock.Mock
	dims int
}

func newMockEmbedder(dims int) *MockEmbedder {
	return &MockEmbedder{dims: dims}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int {
	return m.dims
}

// MockVectorStore mocks the plain VectorStore
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]*domain.SearchResult, error) {
	args := m.Called(ctx, vector, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchResult), args.Error(1)
}

// MockFilteredVectorStore adds native filtering
type MockFilteredVectorStore struct {
	MockVectorStore
}

func (m *MockFilteredVectorStore) SearchWithFilters(ctx context.Context, vector []float32, limit int, filters domain.SearchFilters) ([]*domain.SearchResult, error) {
	args := m.Called(ctx, vector, limit, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchResult), args.Error(1)
}

// MockHybridVectorStore adds hybrid search
type MockHybridVectorStore struct {
	MockVectorStore
}

func (m *MockHybridVectorStore) HybridSearch(ctx context.Context, vector []float32, text string, limit int, weights domain.HybridWeights) ([]*domain.SearchResult, error) {
	args := m.Called(ctx, vector, text, limit, weights)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SearchResult), args.Error(1)
}

// MockGenerator mocks the chat model
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, messages []domain.Message, params domain.GenerationParams) (string, error) {
	args := m.Called(ctx, messages, params)
	return args.String(0), args.Error(1)
}

func (m *MockGenerator) Model() string {
	return "test-model"
}

func (m *MockGenerator) MaxTokens() int {
	return 4096
}

// MockDocumentWriter mocks document persistence
type MockDocumentWriter struct {
	mock.Mock
}

func (m *MockDocumentWriter) ReplacePage(ctx context.Context, parentURL string, docs []*domain.Document, embeddings [][]float32) error {
	args := m.Called(ctx, parentURL, docs, embeddings)
	return args.Error(0)
}

// MockRawPageStore mocks the raw HTML archive
type MockRawPageStore struct {
	mock.Mock
}

func (m *MockRawPageStore) PutRawHTML(ctx context.Context, pageURL string, html string) (string, error) {
	args := m.Called(ctx, pageURL, html)
	return args.String(0), args.Error(1)
}

func unitVector(dims int) []float32 {
	v := make([]float32, dims)
	if dims > 0 {
		v[0] = 1
	}
	return v
}

func float32Ptr(v float32) *float32 {
	return &v
}
