package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

const (
	defaultTopK             = 10
	defaultOverFetchFactor  = 3
	defaultVectorWeight     = 0.7
	defaultTextWeight       = 0.3
	defaultEmbedTimeout     = 10 * time.Second
	defaultSearchTimeout    = 10 * time.Second
	defaultSimilarityThresh = 0.5
)

// RetrieverConfig controls retrieval defaults.
type RetrieverConfig struct {
	TopK                int
	SimilarityThreshold float32
	OverFetchFactor     int
	// AllowMockEmbedding permits the sandbox fallback at all; a request must
	// still opt in through RetrieveOptions.
	AllowMockEmbedding bool
	EmbedTimeout       time.Duration
	SearchTimeout      time.Duration
}

// DefaultRetrieverConfig returns production retrieval defaults.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		TopK:                defaultTopK,
		SimilarityThreshold: defaultSimilarityThresh,
		OverFetchFactor:     defaultOverFetchFactor,
		EmbedTimeout:        defaultEmbedTimeout,
		SearchTimeout:       defaultSearchTimeout,
	}
}

// RetrieveOptions narrows a single retrieval. Zero values fall back to config.
type RetrieveOptions struct {
	TopK                int
	SimilarityThreshold *float32
	ContentTypes        []domain.ContentType
	Sections            []string
	Collections         []string
	AllowMockEmbedding  bool
}

// RetrievalResult is the output of Retrieve.
type RetrievalResult struct {
	Results           []*domain.SearchResult
	QueryEmbedding    []float32
	RetrievalTimeMs   int64
	UsedMockEmbedding bool
}

// HybridOptions configures HybridSearch.
type HybridOptions struct {
	RetrieveOptions
	VectorWeight float32
	TextWeight   float32
}

// Retriever embeds queries, searches the vector store and assembles context.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	builder  *ContextBuilder
	cfg      RetrieverConfig
	log      *logger.Logger
}

// NewRetriever creates a Retriever with default configuration.
func NewRetriever(embedder Embedder, store VectorStore, log *logger.Logger) *Retriever {
	return NewRetrieverWithConfig(embedder, store, NewContextBuilder(nil), DefaultRetrieverConfig(), log)
}

// NewRetrieverWithConfig creates a Retriever with explicit configuration.
func NewRetrieverWithConfig(embedder Embedder, store VectorStore, builder *ContextBuilder, cfg RetrieverConfig, log *logger.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = defaultOverFetchFactor
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = defaultEmbedTimeout
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = defaultSearchTimeout
	}
	if builder == nil {
		builder = NewContextBuilder(nil)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		builder:  builder,
		cfg:      cfg,
		log:      log.With("component", "Retriever"),
	}
}

// Retrieve embeds query, over-fetches nearest neighbours and applies filters.
// An empty result set is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		Operation: "retrieve",
	})
	defer span.End()

	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	topK := r.topK(opts)
	vector, usedMock, err := r.embedQuery(ctx, query, opts)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	candidates, err := r.search(ctx, vector, topK*r.cfg.OverFetchFactor)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	filters := r.filters(opts)
	results := candidates
	if !filters.IsEmpty() {
		if fs, ok := r.store.(FilteredVectorStore); ok {
			results, err = r.searchWithFilters(ctx, fs, vector, topK, filters)
			if err != nil {
				span.SetError(err)
				return nil, err
			}
			sortByScore(results)
		} else {
			results = filterResults(candidates, filters)
		}
	}
	results = truncate(results, topK)

	elapsed := time.Since(start).Milliseconds()
	if len(results) == 0 {
		r.log.Warn("retrieval returned no results",
			"candidates", len(candidates),
			"threshold", filters.SimilarityThreshold,
			"mock_embedding", usedMock,
		)
	} else {
		r.log.Debug("retrieval complete",
			"results", len(results),
			"candidates", len(candidates),
			"top_score", results[0].Score,
			"duration_ms", elapsed,
		)
	}

	return &RetrievalResult{
		Results:           results,
		QueryEmbedding:    vector,
		RetrievalTimeMs:   elapsed,
		UsedMockEmbedding: usedMock,
	}, nil
}

// HybridSearch delegates to the store's combined vector and text search when
// available and falls back to Retrieve otherwise.
func (r *Retriever) HybridSearch(ctx context.Context, query string, opts HybridOptions) (*RetrievalResult, error) {
	hs, ok := r.store.(HybridVectorStore)
	if !ok {
		r.log.Debug("vector store has no hybrid search, using vector retrieval")
		return r.Retrieve(ctx, query, opts.RetrieveOptions)
	}

	ctx, span := telemetry.StartSpan(ctx, "Retriever.HybridSearch", telemetry.SpanAttributes{
		Operation: "hybrid_search",
	})
	defer span.End()

	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	topK := r.topK(opts.RetrieveOptions)
	vector, usedMock, err := r.embedQuery(ctx, query, opts.RetrieveOptions)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	weights := domain.HybridWeights{Vector: opts.VectorWeight, Text: opts.TextWeight}
	if weights.Vector <= 0 && weights.Text <= 0 {
		weights = domain.HybridWeights{Vector: defaultVectorWeight, Text: defaultTextWeight}
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()
	results, err := hs.HybridSearch(searchCtx, vector, query, topK*r.cfg.OverFetchFactor, weights)
	if err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrievalFailed, domain.ErrRetrievalFailed.Message, err)
	}
	sortByScore(results)

	// hybrid scores are fused ranks, so only categorical filters apply
	filters := r.filters(opts.RetrieveOptions)
	filters.SimilarityThreshold = 0
	results = truncate(filterResults(results, filters), topK)

	return &RetrievalResult{
		Results:           results,
		QueryEmbedding:    vector,
		RetrievalTimeMs:   time.Since(start).Milliseconds(),
		UsedMockEmbedding: usedMock,
	}, nil
}

// BuildContext assembles a token-budgeted context from ranked results.
func (r *Retriever) BuildContext(results []*domain.SearchResult, maxTokens int) ContextResult {
	return r.builder.Build(results, maxTokens)
}

func (r *Retriever) embedQuery(ctx context.Context, query string, opts RetrieveOptions) ([]float32, bool, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	vector, err := r.embedder.Embed(embedCtx, query)
	if err == nil {
		return vector, false, nil
	}

	// a dimension mismatch means the deployment is misconfigured; never mask it
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return nil, false, err
	}

	if r.cfg.AllowMockEmbedding && opts.AllowMockEmbedding {
		r.log.Warn("embedding failed, using mock embedding", "error", err)
		telemetry.AddBreadcrumb(ctx, "retrieval", "embedding failed, using mock embedding")
		return mockEmbedding(query, r.embedder.Dimensions()), true, nil
	}

	if domain.IsConfigurationError(err) {
		return nil, false, err
	}
	return nil, false, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, domain.ErrEmbeddingFailed.Message, err)
}

func (r *Retriever) search(ctx context.Context, vector []float32, limit int) ([]*domain.SearchResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	results, err := r.store.Search(searchCtx, vector, limit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrievalFailed, domain.ErrRetrievalFailed.Message, err)
	}
	sortByScore(results)
	return results, nil
}

func (r *Retriever) searchWithFilters(ctx context.Context, fs FilteredVectorStore, vector []float32, limit int, filters domain.SearchFilters) ([]*domain.SearchResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	results, err := fs.SearchWithFilters(searchCtx, vector, limit, filters)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrievalFailed, domain.ErrRetrievalFailed.Message, err)
	}
	return results, nil
}

func (r *Retriever) topK(opts RetrieveOptions) int {
	if opts.TopK > 0 {
		return opts.TopK
	}
	return r.cfg.TopK
}

func (r *Retriever) filters(opts RetrieveOptions) domain.SearchFilters {
	threshold := r.cfg.SimilarityThreshold
	if opts.SimilarityThreshold != nil {
		threshold = *opts.SimilarityThreshold
	}
	return domain.SearchFilters{
		SimilarityThreshold: threshold,
		ContentTypes:        opts.ContentTypes,
		Sections:            opts.Sections,
		Collections:         opts.Collections,
	}
}

func filterResults(results []*domain.SearchResult, filters domain.SearchFilters) []*domain.SearchResult {
	out := make([]*domain.SearchResult, 0, len(results))
	for _, res := range results {
		if filters.Matches(res) {
			out = append(out, res)
		}
	}
	return out
}

// sortByScore orders results best-first; equal scores keep store order.
func sortByScore(results []*domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

func truncate(results []*domain.SearchResult, limit int) []*domain.SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// mockEmbedding returns a deterministic unit vector derived from text.
func mockEmbedding(text string, dimensions int) []float32 {
	if dimensions <= 0 {
		dimensions = 1536
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dimensions)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
