package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

type Ingester interface {
	Ingest(ctx context.Context, docs []*domain.Document) (*service.IngestReport, error)
}

type DocumentStore interface {
	GetByURL(ctx context.Context, url string) (*domain.Document, error)
	ListByParent(ctx context.Context, parentURL string) ([]*domain.Document, error)
	DeletePage(ctx context.Context, parentURL string) error
}

type RawPageArchive interface {
	GetRawHTML(ctx context.Context, pageURL string) (string, error)
	DeleteRawHTML(ctx context.Context, pageURL string) error
}

type DocumentHandler struct {
	ingester Ingester
	store    DocumentStore
	raw      RawPageArchive
}

// NewDocumentHandler creates a DocumentHandler. raw may be nil when no
// archive is configured.
func NewDocumentHandler(ingester Ingester, store DocumentStore, raw RawPageArchive) *DocumentHandler {
	return &DocumentHandler{ingester: ingester, store: store, raw: raw}
}

// DocumentPayload is one crawled page as posted to /documents and read by the ingest command.
type DocumentPayload struct {
	ID          string     `json:"id,omitempty"`
	URL         string     `json:"url" validate:"required,url"`
	Title       string     `json:"title" validate:"required"`
	Content     string     `json:"content" validate:"required"`
	RawHTML     string     `json:"raw_html,omitempty"`
	ContentType string     `json:"content_type,omitempty" validate:"omitempty,oneof=guide reference faq tutorial article"`
	Section     string     `json:"section,omitempty"`
	Subsection  string     `json:"subsection,omitempty"`
	Collection  string     `json:"collection,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// ToDocument converts the payload to a domain document.
func (p DocumentPayload) ToDocument() *domain.Document {
	meta := domain.DocumentMetadata{
		ContentType: domain.ContentType(p.ContentType),
		Section:     p.Section,
		Subsection:  p.Subsection,
		Collection:  p.Collection,
	}
	if p.CreatedAt != nil {
		meta.CreatedAt = p.CreatedAt.UTC()
	}
	doc := domain.NewDocument(p.ID, strings.TrimSpace(p.URL), p.Title, p.Content, meta)
	doc.RawHTML = p.RawHTML
	return doc
}

type ingestRequest struct {
	Documents []DocumentPayload `json:"documents" validate:"required,min=1,max=1000,dive"`
}

type DocumentResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
	Section     string `json:"section,omitempty"`
	Subsection  string `json:"subsection,omitempty"`
	Collection  string `json:"collection,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Ingest accepts a JSON array of documents.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var payloads []DocumentPayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if fields := api.ValidateStruct(&ingestRequest{Documents: payloads}); fields != nil {
		api.JSON(w, http.StatusBadRequest, api.ErrorResponse{
			Error:  "validation failed",
			Code:   domain.ErrCodeValidation,
			Fields: fields,
		})
		return
	}

	docs := make([]*domain.Document, len(payloads))
	for i, p := range payloads {
		docs[i] = p.ToDocument()
	}

	report, err := h.ingester.Ingest(r.Context(), docs)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if report.Indexed == 0 && len(report.Failed) > 0 {
		status = http.StatusUnprocessableEntity
	}
	api.Success(w, status, report)
}

// Get returns the stored units of the page named by the url query parameter.
// A chunk URL returns only that chunk.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	pageURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if pageURL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	var docs []*domain.Document
	if parent := domain.ParentURL(pageURL); parent != pageURL {
		doc, err := h.store.GetByURL(r.Context(), pageURL)
		if err != nil {
			api.HandleError(w, err)
			return
		}
		docs = []*domain.Document{doc}
	} else {
		var err error
		docs, err = h.store.ListByParent(r.Context(), parent)
		if err != nil {
			api.HandleError(w, err)
			return
		}
	}

	responses := make([]*DocumentResponse, len(docs))
	for i, d := range docs {
		updatedAt := ""
		if !d.Metadata.UpdatedAt.IsZero() {
			updatedAt = d.Metadata.UpdatedAt.Format(time.RFC3339)
		}
		responses[i] = &DocumentResponse{
			ID:          d.ID,
			URL:         d.URL,
			Title:       d.Title,
			Content:     d.Content,
			ContentType: string(d.Metadata.ContentType),
			Section:     d.Metadata.Section,
			Subsection:  d.Metadata.Subsection,
			Collection:  d.Metadata.Collection,
			ChunkIndex:  d.Metadata.ChunkIndex,
			TotalChunks: d.Metadata.TotalChunks,
			UpdatedAt:   updatedAt,
		}
	}

	api.Success(w, http.StatusOK, map[string]interface{}{"documents": responses})
}

// Delete removes every unit of the page named by the url query parameter.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	pageURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if pageURL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	parent := domain.ParentURL(pageURL)
	if err := h.store.DeletePage(r.Context(), parent); err != nil {
		api.HandleError(w, err)
		return
	}
	// the index row is authoritative; a stale archive object is harmless
	if h.raw != nil {
		_ = h.raw.DeleteRawHTML(r.Context(), parent)
	}

	api.JSON(w, http.StatusNoContent, nil)
}

// Raw returns the archived HTML of a page.
func (h *DocumentHandler) Raw(w http.ResponseWriter, r *http.Request) {
	if h.raw == nil {
		api.Error(w, http.StatusNotImplemented, "raw page archive not configured")
		return
	}
	pageURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if pageURL == "" {
		api.Error(w, http.StatusBadRequest, "url is required")
		return
	}

	html, err := h.raw.GetRawHTML(r.Context(), pageURL)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
