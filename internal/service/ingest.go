package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

const defaultIngestConcurrency = 4

// IngestConfig controls ingestion.
type IngestConfig struct {
	MaxChunkChars int
	Concurrency   int
}

// IngestFailure records a document that could not be indexed.
type IngestFailure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// IngestReport summarises an ingestion run.
type IngestReport struct {
	Documents int             `json:"documents"`
	Indexed   int             `json:"indexed"`
	Chunks    int             `json:"chunks"`
	Archived  int             `json:"archived"`
	Failed    []IngestFailure `json:"failed"`
}

// IngestService chunks, embeds and stores crawled documents.
type IngestService struct {
	embedder Embedder
	writer   DocumentWriter
	raw      RawPageStore
	cfg      IngestConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewIngestService creates an IngestService. raw may be nil when raw HTML
// archiving is disabled.
func NewIngestService(embedder Embedder, writer DocumentWriter, raw RawPageStore, cfg IngestConfig, log *logger.Logger) *IngestService {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = DefaultMaxChunkChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultIngestConcurrency
	}
	if log == nil {
		log = logger.Nop()
	}
	return &IngestService{
		embedder: embedder,
		writer:   writer,
		raw:      raw,
		cfg:      cfg,
		log:      log.With("component", "IngestService"),
		now:      time.Now,
	}
}

// Ingest indexes docs. Per-document failures are collected in the report;
// a configuration error aborts the run and is returned.
func (s *IngestService) Ingest(ctx context.Context, docs []*domain.Document) (*IngestReport, error) {
	report := &IngestReport{Documents: len(docs), Failed: []IngestFailure{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			chunks, archived, err := s.ingestOne(gctx, doc)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if domain.IsConfigurationError(err) {
					return err
				}
				report.Failed = append(report.Failed, IngestFailure{URL: documentURL(doc), Error: err.Error()})
				s.log.Warn("document ingestion failed", "url", documentURL(doc), "error", err)
				return nil
			}
			report.Indexed++
			report.Chunks += chunks
			if archived {
				report.Archived++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error("ingestion aborted", "error", err)
		return report, err
	}

	s.log.Info("ingestion complete",
		"documents", report.Documents,
		"indexed", report.Indexed,
		"chunks", report.Chunks,
		"failed", len(report.Failed),
	)
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, doc *domain.Document) (int, bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.ingestOne", telemetry.SpanAttributes{
		Collection: documentCollection(doc),
		Operation:  "ingest",
	})
	defer span.End()

	if err := domain.ValidateDocument(doc); err != nil {
		return 0, false, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidDocument.Message, err)
	}

	units := s.split(doc)
	vectors, err := s.embed(ctx, units)
	if err != nil {
		span.SetError(err)
		return 0, false, err
	}

	parent := domain.ParentURL(doc.URL)
	if err := s.writer.ReplacePage(ctx, parent, units, vectors); err != nil {
		span.SetError(err)
		return 0, false, fmt.Errorf("failed to store document: %w", err)
	}

	archived := false
	if s.raw != nil && doc.RawHTML != "" {
		if _, err := s.raw.PutRawHTML(ctx, parent, doc.RawHTML); err != nil {
			if errors.Is(err, domain.ErrStoreNotConfigured) {
				return len(units), false, err
			}
			s.log.Warn("failed to archive raw html", "url", parent, "error", err)
			telemetry.CaptureError(ctx, err)
		} else {
			archived = true
		}
	}

	return len(units), archived, nil
}

// split turns a page into its indexable units. Pages within the size limit
// stay whole; larger pages become numbered chunks.
func (s *IngestService) split(doc *domain.Document) []*domain.Document {
	now := s.now().UTC()
	created := doc.Metadata.CreatedAt
	if created.IsZero() {
		created = now
	}

	parent := domain.ParentURL(doc.URL)
	parts := ChunkContent(doc.Content, s.cfg.MaxChunkChars)

	units := make([]*domain.Document, 0, len(parts))
	for i, part := range parts {
		unitURL := parent
		if len(parts) > 1 {
			unitURL = domain.ChunkURL(parent, i)
		}

		meta := doc.Metadata
		meta.ChunkIndex = i
		meta.TotalChunks = len(parts)
		meta.CreatedAt = created
		meta.UpdatedAt = now

		units = append(units, domain.NewDocument(documentID(unitURL), unitURL, doc.Title, part, meta))
	}
	return units
}

func (s *IngestService) embed(ctx context.Context, units []*domain.Document) ([][]float32, error) {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Title + "\n\n" + u.Content
	}

	var vectors [][]float32
	if be, ok := s.embedder.(BatchEmbedder); ok {
		out, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, embeddingError(err)
		}
		vectors = out
	} else {
		vectors = make([][]float32, 0, len(texts))
		for _, text := range texts {
			vec, err := s.embedder.Embed(ctx, text)
			if err != nil {
				return nil, embeddingError(err)
			}
			vectors = append(vectors, vec)
		}
	}

	if len(vectors) != len(units) {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(units), len(vectors)))
	}
	dims := s.embedder.Dimensions()
	for _, vec := range vectors {
		if dims > 0 && len(vec) != dims {
			return nil, domain.ErrDimensionMismatch
		}
	}
	return vectors, nil
}

func embeddingError(err error) error {
	if domain.ErrorCode(err) != domain.ErrCodeInternalError {
		return err
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "document embedding failed", err)
}

// documentID derives a stable ID from the unit URL so re-ingestion keeps IDs.
func documentID(unitURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(unitURL)).String()
}

func documentURL(doc *domain.Document) string {
	if doc == nil {
		return ""
	}
	return doc.URL
}

func documentCollection(doc *domain.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Metadata.Collection
}
