package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/api/middleware"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/service"
)

type AnswerService interface {
	Answer(ctx context.Context, req service.AnswerRequest) (*service.AnswerResponse, error)
}

// RequestDeduplicator collapses repeated questions from the same actor.
type RequestDeduplicator interface {
	Do(ctx context.Context, actor, query string, fn service.AnswerFunc) (*service.AnswerResponse, error)
}

type AskHandler struct {
	svc   AnswerService
	dedup RequestDeduplicator
	log   *logger.Logger
}

// NewAskHandler creates an AskHandler. dedup may be nil.
func NewAskHandler(svc AnswerService, dedup RequestDeduplicator, log *logger.Logger) *AskHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AskHandler{svc: svc, dedup: dedup, log: log.With("handler", "ask")}
}

type AskRequest struct {
	UserID             string   `json:"user_id" validate:"max=256"`
	Query              string   `json:"query" validate:"required,max=4000"`
	TopK               int      `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	Threshold          *float32 `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	ContentTypes       []string `json:"content_types,omitempty" validate:"omitempty,dive,oneof=guide reference faq tutorial article"`
	Sections           []string `json:"sections,omitempty" validate:"omitempty,dive,required"`
	Collections        []string `json:"collections,omitempty" validate:"omitempty,dive,required"`
	IncludeSteps       *bool    `json:"include_steps,omitempty"`
	IncludeReferences  *bool    `json:"include_references,omitempty"`
	AllowMockEmbedding bool     `json:"allow_mock_embedding,omitempty"`
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !api.DecodeAndValidate(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.HandleError(w, domain.ErrEmptyQuery)
		return
	}

	answerReq := service.AnswerRequest{
		RequestID:           middleware.GetRequestID(r.Context()),
		Actor:               req.UserID,
		Query:               req.Query,
		TopK:                req.TopK,
		SimilarityThreshold: req.Threshold,
		ContentTypes:        toContentTypes(req.ContentTypes),
		Sections:            req.Sections,
		Collections:         req.Collections,
		IncludeSteps:        req.IncludeSteps,
		IncludeReferences:   req.IncludeReferences,
		AllowMockEmbedding:  req.AllowMockEmbedding,
	}

	answer := func(ctx context.Context) (*service.AnswerResponse, error) {
		return h.svc.Answer(ctx, answerReq)
	}

	var resp *service.AnswerResponse
	var err error
	if h.dedup != nil && req.UserID != "" {
		resp, err = h.dedup.Do(r.Context(), req.UserID, req.Query, answer)
	} else {
		resp, err = answer(r.Context())
	}
	if err != nil {
		h.log.Warn("ask failed", "request_id", answerReq.RequestID, "actor", req.UserID, "error", err)
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, resp)
}

func toContentTypes(values []string) []domain.ContentType {
	if len(values) == 0 {
		return nil
	}
	out := make([]domain.ContentType, len(values))
	for i, v := range values {
		out[i] = domain.ContentType(v)
	}
	return out
}
