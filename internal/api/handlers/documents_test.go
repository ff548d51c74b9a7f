package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/service"
)

func TestDocumentHandler_Ingest_Success(t *testing.T) {
	ingester := new(MockIngester)
	handler := NewDocumentHandler(ingester, new(MockDocumentStore), nil)

	ingester.On("Ingest", mock.Anything, mock.MatchedBy(func(docs []*domain.Document) bool {
		return len(docs) == 1 &&
			docs[0].URL == "https://docs.example.com/students/enroll" &&
			docs[0].Metadata.ContentType == domain.ContentTypeGuide &&
			docs[0].RawHTML == "<p>Enroll</p>" &&
			docs[0].Metadata.CreatedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	})).Return(&service.IngestReport{Documents: 1, Indexed: 1, Chunks: 1, Failed: []service.IngestFailure{}}, nil)

	w := httptest.NewRecorder()
	handler.Ingest(w, postJSON("/documents", []map[string]interface{}{{
		"url":          "https://docs.example.com/students/enroll",
		"title":        "Student Enrollment",
		"content":      "Open Students and click Add.",
		"raw_html":     "<p>Enroll</p>",
		"content_type": "guide",
		"created_at":   "2024-01-02T03:04:05Z",
	}}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(1), decodeData(t, w)["indexed"])
	ingester.AssertExpectations(t)
}

func TestDocumentHandler_Ingest_AllFailed(t *testing.T) {
	ingester := new(MockIngester)
	handler := NewDocumentHandler(ingester, new(MockDocumentStore), nil)

	ingester.On("Ingest", mock.Anything, mock.Anything).Return(&service.IngestReport{
		Documents: 1,
		Failed:    []service.IngestFailure{{URL: "https://docs.example.com/x", Error: "rate limited"}},
	}, nil)

	w := httptest.NewRecorder()
	handler.Ingest(w, postJSON("/documents", []map[string]interface{}{{
		"url": "https://docs.example.com/x", "title": "X", "content": "x",
	}}))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDocumentHandler_Ingest_Validation(t *testing.T) {
	ingester := new(MockIngester)
	handler := NewDocumentHandler(ingester, new(MockDocumentStore), nil)

	w := httptest.NewRecorder()
	handler.Ingest(w, postJSON("/documents", []map[string]interface{}{{"url": "not a url", "title": "T"}}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "documents[0].url")
	assert.Contains(t, w.Body.String(), "documents[0].content")

	w = httptest.NewRecorder()
	handler.Ingest(w, postJSON("/documents", []map[string]interface{}{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	handler.Ingest(w, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString(`{"url":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ingester.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Ingest_ConfigurationError(t *testing.T) {
	ingester := new(MockIngester)
	handler := NewDocumentHandler(ingester, new(MockDocumentStore), nil)

	ingester.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrDimensionMismatch)

	w := httptest.NewRecorder()
	handler.Ingest(w, postJSON("/documents", []map[string]interface{}{{
		"url": "https://docs.example.com/x", "title": "X", "content": "x",
	}}))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeConfiguration)
}

func TestDocumentHandler_Get(t *testing.T) {
	store := new(MockDocumentStore)
	handler := NewDocumentHandler(new(MockIngester), store, nil)

	parent := "https://docs.example.com/big"
	store.On("ListByParent", mock.Anything, parent).Return([]*domain.Document{
		domain.NewDocument("id-0", domain.ChunkURL(parent, 0), "Big", "first", domain.DocumentMetadata{TotalChunks: 2}),
		domain.NewDocument("id-1", domain.ChunkURL(parent, 1), "Big", "second", domain.DocumentMetadata{ChunkIndex: 1, TotalChunks: 2}),
	}, nil)
	store.On("ListByParent", mock.Anything, mock.Anything).Return(nil, domain.ErrDocumentNotFound)

	store.On("GetByURL", mock.Anything, domain.ChunkURL(parent, 1)).Return(
		domain.NewDocument("id-1", domain.ChunkURL(parent, 1), "Big", "second", domain.DocumentMetadata{ChunkIndex: 1, TotalChunks: 2}), nil)

	w := httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest(http.MethodGet, "/documents?url="+parent, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeData(t, w)["documents"], 2)

	w = httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest(http.MethodGet, "/documents?url="+url.QueryEscape(domain.ChunkURL(parent, 1)), nil))
	require.Equal(t, http.StatusOK, w.Code)
	docs := decodeData(t, w)["documents"].([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, domain.ChunkURL(parent, 1), docs[0].(map[string]interface{})["url"])

	w = httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest(http.MethodGet, "/documents?url=https://docs.example.com/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.Get(w, httptest.NewRequest(http.MethodGet, "/documents", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	store := new(MockDocumentStore)
	handler := NewDocumentHandler(new(MockIngester), store, nil)

	store.On("DeletePage", mock.Anything, "https://docs.example.com/x").Return(nil)

	w := httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest(http.MethodDelete, "/documents?url=https://docs.example.com/x", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	store.AssertExpectations(t)
}

func TestDocumentHandler_Delete_RemovesArchive(t *testing.T) {
	store := new(MockDocumentStore)
	raw := new(MockRawPageArchive)
	handler := NewDocumentHandler(new(MockIngester), store, raw)

	store.On("DeletePage", mock.Anything, "https://docs.example.com/x").Return(nil)
	raw.On("DeleteRawHTML", mock.Anything, "https://docs.example.com/x").Return(errors.New("bucket unreachable"))

	w := httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest(http.MethodDelete, "/documents?url=https://docs.example.com/x", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	raw.AssertExpectations(t)
}

func TestDocumentHandler_Delete_NotFoundSkipsArchive(t *testing.T) {
	store := new(MockDocumentStore)
	raw := new(MockRawPageArchive)
	handler := NewDocumentHandler(new(MockIngester), store, raw)

	store.On("DeletePage", mock.Anything, "https://docs.example.com/x").Return(domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	handler.Delete(w, httptest.NewRequest(http.MethodDelete, "/documents?url=https://docs.example.com/x", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	raw.AssertNotCalled(t, "DeleteRawHTML", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Raw(t *testing.T) {
	raw := new(MockRawPageArchive)
	raw.On("GetRawHTML", mock.Anything, "https://docs.example.com/x").Return("<html/>", nil)

	w := httptest.NewRecorder()
	NewDocumentHandler(new(MockIngester), new(MockDocumentStore), raw).
		Raw(w, httptest.NewRequest(http.MethodGet, "/documents/raw?url=https://docs.example.com/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html/>", w.Body.String())

	w = httptest.NewRecorder()
	NewDocumentHandler(new(MockIngester), new(MockDocumentStore), nil).
		Raw(w, httptest.NewRequest(http.MethodGet, "/documents/raw?url=https://docs.example.com/x", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
