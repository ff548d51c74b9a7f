package service

import (
	"context"

	"github.com/cloo-solutions/docsage/internal/domain"
)

// Embedder turns text into a fixed-dimension vector.
// Implementations reject empty input and vectors whose length differs from Dimensions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// BatchEmbedder is implemented by embedders that can embed several texts per call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore ranks stored documents by cosine similarity to a vector.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, limit int) ([]*domain.SearchResult, error)
}

// FilteredVectorStore applies filters inside the store.
type FilteredVectorStore interface {
	VectorStore
	SearchWithFilters(ctx context.Context, vector []float32, limit int, filters domain.SearchFilters) ([]*domain.SearchResult, error)
}

// HybridVectorStore combines vector similarity with lexical ranking.
type HybridVectorStore interface {
	VectorStore
	HybridSearch(ctx context.Context, vector []float32, text string, limit int, weights domain.HybridWeights) ([]*domain.SearchResult, error)
}

// DocumentWriter persists embedded documents for a page, replacing earlier versions.
type DocumentWriter interface {
	ReplacePage(ctx context.Context, parentURL string, docs []*domain.Document, embeddings [][]float32) error
}

// Generator produces text from a chat transcript.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message, params domain.GenerationParams) (string, error)
	Model() string
	MaxTokens() int
}

// RawPageStore archives the original HTML of crawled pages.
type RawPageStore interface {
	PutRawHTML(ctx context.Context, pageURL string, html string) (string, error)
}
