package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts service.RetrieveOptions) (*service.RetrievalResult, error)
	HybridSearch(ctx context.Context, query string, opts service.HybridOptions) (*service.RetrievalResult, error)
}

type SearchHandler struct {
	retriever Retriever
}

func NewSearchHandler(retriever Retriever) *SearchHandler {
	return &SearchHandler{retriever: retriever}
}

type SearchRequest struct {
	Query              string   `json:"query" validate:"required,max=4000"`
	TopK               int      `json:"top_k,omitempty" validate:"omitempty,min=1,max=100"`
	Threshold          *float32 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	ContentTypes       []string `json:"content_types,omitempty" validate:"omitempty,dive,oneof=guide reference faq tutorial article"`
	Sections           []string `json:"sections,omitempty" validate:"omitempty,dive,required"`
	Collections        []string `json:"collections,omitempty" validate:"omitempty,dive,required"`
	Hybrid             bool     `json:"hybrid,omitempty"`
	VectorWeight       float32  `json:"vector_weight,omitempty" validate:"gte=0,lte=1"`
	TextWeight         float32  `json:"text_weight,omitempty" validate:"gte=0,lte=1"`
	AllowMockEmbedding bool     `json:"allow_mock_embedding,omitempty"`
}

type SearchResultResponse struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Content     string  `json:"content"`
	ContentType string  `json:"content_type,omitempty"`
	Section     string  `json:"section,omitempty"`
	Subsection  string  `json:"subsection,omitempty"`
	Collection  string  `json:"collection,omitempty"`
	ChunkIndex  int     `json:"chunk_index"`
	TotalChunks int     `json:"total_chunks"`
}

type SearchResponse struct {
	Results           []*SearchResultResponse `json:"results"`
	RetrievalTimeMs   int64                   `json:"retrieval_time_ms"`
	UsedMockEmbedding bool                    `json:"used_mock_embedding"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	opts := service.RetrieveOptions{
		TopK:                req.TopK,
		SimilarityThreshold: req.Threshold,
		ContentTypes:        toContentTypes(req.ContentTypes),
		Sections:            req.Sections,
		Collections:         req.Collections,
		AllowMockEmbedding:  req.AllowMockEmbedding,
	}

	var result *service.RetrievalResult
	var err error
	if req.Hybrid {
		result, err = h.retriever.HybridSearch(r.Context(), req.Query, service.HybridOptions{
			RetrieveOptions: opts,
			VectorWeight:    req.VectorWeight,
			TextWeight:      req.TextWeight,
		})
	} else {
		result, err = h.retriever.Retrieve(r.Context(), req.Query, opts)
	}
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*SearchResultResponse, len(result.Results))
	for i, res := range result.Results {
		responses[i] = &SearchResultResponse{
			ID:          res.ID,
			Score:       res.Score,
			Title:       res.Title,
			URL:         res.URL,
			Content:     res.Content,
			ContentType: string(res.Metadata.ContentType),
			Section:     res.Metadata.Section,
			Subsection:  res.Metadata.Subsection,
			Collection:  res.Metadata.Collection,
			ChunkIndex:  res.Metadata.ChunkIndex,
			TotalChunks: res.Metadata.TotalChunks,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{
		Results:           responses,
		RetrievalTimeMs:   result.RetrievalTimeMs,
		UsedMockEmbedding: result.UsedMockEmbedding,
	})
}
