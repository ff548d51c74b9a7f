package service

import (
	"context"
	"strings"
	"time"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

// AnswerRequest is one question from one actor.
type AnswerRequest struct {
	RequestID           string
	Actor               string
	Query               string
	TopK                int
	SimilarityThreshold *float32
	ContentTypes        []domain.ContentType
	Sections            []string
	Collections         []string
	IncludeSteps        *bool
	IncludeReferences   *bool
	AllowMockEmbedding  bool
}

// AnswerResponse is the answer plus everything needed to render and audit it.
type AnswerResponse struct {
	Answer            string            `json:"answer"`
	Summary           string            `json:"summary"`
	Steps             []string          `json:"steps"`
	Citations         []domain.Citation `json:"citations"`
	Validation        ValidationReport  `json:"validation"`
	Fallback          bool              `json:"fallback"`
	UsedMockEmbedding bool              `json:"used_mock_embedding"`
	Duplicate         bool              `json:"duplicate"`
	Model             string            `json:"model,omitempty"`
	Attempts          int               `json:"attempts"`
	TokenCount        int               `json:"token_count"`
	ContextTokens     int               `json:"context_tokens"`
	DocumentsUsed     int               `json:"documents_used"`
	RetrievalTimeMs   int64             `json:"retrieval_time_ms"`
	GenerationTimeMs  int64             `json:"generation_time_ms"`
	TotalTimeMs       int64             `json:"total_time_ms"`
}

// AnswerServiceConfig holds pipeline defaults.
type AnswerServiceConfig struct {
	ContextMaxTokens int
	Generate         GenerateOptions
	Prompt           PromptOptions
	HybridSearch     bool
}

// DefaultAnswerServiceConfig returns the production pipeline defaults.
func DefaultAnswerServiceConfig() AnswerServiceConfig {
	return AnswerServiceConfig{
		ContextMaxTokens: DefaultContextTokens,
		Generate:         DefaultGenerateOptions(),
		Prompt:           DefaultPromptOptions(),
	}
}

// AnswerService runs retrieve, prompt, generate and validate for one question.
type AnswerService struct {
	retriever *Retriever
	prompts   *PromptBuilder
	generator *GenerationClient
	cfg       AnswerServiceConfig
	log       *logger.Logger
}

// NewAnswerService creates an AnswerService.
func NewAnswerService(retriever *Retriever, prompts *PromptBuilder, generator *GenerationClient, cfg AnswerServiceConfig, log *logger.Logger) *AnswerService {
	if cfg.ContextMaxTokens <= 0 {
		cfg.ContextMaxTokens = DefaultContextTokens
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AnswerService{
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		cfg:       cfg,
		log:       log.With("component", "AnswerService"),
	}
}

// Answer answers req. With no retrieved documentation it returns the fixed
// no-data answer without calling the model.
func (s *AnswerService) Answer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "AnswerService.Answer", telemetry.SpanAttributes{
		RequestID:  req.RequestID,
		Collection: strings.Join(req.Collections, ","),
		Operation:  "answer",
	})
	defer span.End()

	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	log := s.log.With("request_id", req.RequestID, "actor", req.Actor)
	popts := s.promptOptions(req)

	retrieval, err := s.retrieve(ctx, query, req)
	if err != nil {
		span.SetError(err)
		log.Error("retrieval failed", "error", err)
		return nil, err
	}

	if len(retrieval.Results) == 0 {
		resp := s.fallback(query, popts, retrieval)
		resp.TotalTimeMs = time.Since(start).Milliseconds()
		log.Info("answered with fallback", "reason", "no_results")
		return resp, nil
	}

	assembled := s.retriever.BuildContext(retrieval.Results, s.cfg.ContextMaxTokens)
	if len(assembled.Included) == 0 {
		resp := s.fallback(query, popts, retrieval)
		resp.TotalTimeMs = time.Since(start).Milliseconds()
		log.Warn("answered with fallback", "reason", "context_budget", "results", len(retrieval.Results))
		return resp, nil
	}

	prompt := s.prompts.BuildPrompt(query, assembled.Context, assembled.Included, popts)

	generated, err := s.generator.Generate(ctx, prompt.SystemPrompt, prompt.UserPrompt, s.cfg.Generate)
	if err != nil {
		span.SetError(err)
		log.Error("generation failed", "error", err)
		return nil, err
	}

	answer := CleanResponse(generated.Response)
	validation := mergeReports(
		ValidateResponse(answer),
		s.prompts.ValidatePromptResponse(answer, popts),
	)
	if !validation.Valid {
		log.Warn("answer has structural issues", "issues", validation.Issues)
	}

	resp := &AnswerResponse{
		Answer:            answer,
		Summary:           ParseSummary(answer),
		Steps:             limitSteps(ParseSteps(answer), popts),
		Citations:         prompt.Citations,
		Validation:        validation,
		UsedMockEmbedding: retrieval.UsedMockEmbedding,
		Model:             generated.Model,
		Attempts:          generated.Attempts,
		TokenCount:        generated.TokenCount,
		ContextTokens:     assembled.TokenCount,
		DocumentsUsed:     len(assembled.Included),
		RetrievalTimeMs:   retrieval.RetrievalTimeMs,
		GenerationTimeMs:  generated.GenerationTimeMs,
		TotalTimeMs:       time.Since(start).Milliseconds(),
	}

	log.Info("answered",
		"documents", resp.DocumentsUsed,
		"attempts", resp.Attempts,
		"valid", validation.Valid,
		"total_ms", resp.TotalTimeMs,
	)
	return resp, nil
}

func (s *AnswerService) retrieve(ctx context.Context, query string, req AnswerRequest) (*RetrievalResult, error) {
	opts := RetrieveOptions{
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		ContentTypes:        req.ContentTypes,
		Sections:            req.Sections,
		Collections:         req.Collections,
		AllowMockEmbedding:  req.AllowMockEmbedding,
	}
	if s.cfg.HybridSearch {
		return s.retriever.HybridSearch(ctx, query, HybridOptions{RetrieveOptions: opts})
	}
	return s.retriever.Retrieve(ctx, query, opts)
}

func (s *AnswerService) fallback(query string, popts PromptOptions, retrieval *RetrievalResult) *AnswerResponse {
	answer := s.prompts.BuildFallbackAnswer(query, popts)
	return &AnswerResponse{
		Answer:            answer,
		Summary:           ParseSummary(answer),
		Steps:             limitSteps(ParseSteps(answer), popts),
		Citations:         []domain.Citation{},
		Validation:        mergeReports(ValidateResponse(answer), s.prompts.ValidatePromptResponse(answer, popts)),
		Fallback:          true,
		UsedMockEmbedding: retrieval.UsedMockEmbedding,
		RetrievalTimeMs:   retrieval.RetrievalTimeMs,
	}
}

func (s *AnswerService) promptOptions(req AnswerRequest) PromptOptions {
	opts := s.cfg.Prompt
	if req.IncludeSteps != nil {
		opts.IncludeSteps = *req.IncludeSteps
	}
	if req.IncludeReferences != nil {
		opts.IncludeReferences = *req.IncludeReferences
	}
	return normalizePromptOptions(opts)
}

func limitSteps(steps []string, opts PromptOptions) []string {
	if !opts.IncludeSteps {
		return []string{}
	}
	if steps == nil {
		return []string{}
	}
	if opts.MaxSteps > 0 && len(steps) > opts.MaxSteps {
		return steps[:opts.MaxSteps]
	}
	return steps
}

// mergeReports concatenates issues, dropping duplicates.
func mergeReports(reports ...ValidationReport) ValidationReport {
	seen := make(map[string]struct{})
	var issues []string
	for _, r := range reports {
		for _, issue := range r.Issues {
			if _, ok := seen[issue]; ok {
				continue
			}
			seen[issue] = struct{}{}
			issues = append(issues, issue)
		}
	}
	return newValidationReport(issues)
}
