package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

type MockAnswerService struct {
	mock.Mock
}

func (m *MockAnswerService) Answer(ctx context.Context, req service.AnswerRequest) (*service.AnswerResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerResponse), args.Error(1)
}

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string, opts service.RetrieveOptions) (*service.RetrievalResult, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RetrievalResult), args.Error(1)
}

func (m *MockRetriever) HybridSearch(ctx context.Context, query string, opts service.HybridOptions) (*service.RetrievalResult, error) {
	args := m.Called(ctx, query, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RetrievalResult), args.Error(1)
}

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context, docs []*domain.Document) (*service.IngestReport, error) {
	args := m.Called(ctx, docs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestReport), args.Error(1)
}

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) GetByURL(ctx context.Context, url string) (*domain.Document, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) ListByParent(ctx context.Context, parentURL string) ([]*domain.Document, error) {
	args := m.Called(ctx, parentURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentStore) DeletePage(ctx context.Context, parentURL string) error {
	args := m.Called(ctx, parentURL)
	return args.Error(0)
}

type MockRawPageArchive struct {
	mock.Mock
}

func (m *MockRawPageArchive) GetRawHTML(ctx context.Context, pageURL string) (string, error) {
	args := m.Called(ctx, pageURL)
	return args.String(0), args.Error(1)
}

func (m *MockRawPageArchive) DeleteRawHTML(ctx context.Context, pageURL string) error {
	return m.Called(ctx, pageURL).Error(0)
}
