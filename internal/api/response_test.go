package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/domain"
)

func TestEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{
			name:   "raw json",
			write:  func(w http.ResponseWriter) { JSON(w, http.StatusOK, map[string]int{"indexed": 2}) },
			status: http.StatusOK,
			body:   `{"indexed":2}`,
		},
		{
			name:   "no content",
			write:  func(w http.ResponseWriter) { JSON(w, http.StatusNoContent, nil) },
			status: http.StatusNoContent,
		},
		{
			name:   "success wraps data",
			write:  func(w http.ResponseWriter) { Success(w, http.StatusCreated, map[string]string{"url": "https://docs.example.com/a"}) },
			status: http.StatusCreated,
			body:   `{"data":{"url":"https://docs.example.com/a"}}`,
		},
		{
			name:   "error message only",
			write:  func(w http.ResponseWriter) { Error(w, http.StatusRequestEntityTooLarge, "request body too large") },
			status: http.StatusRequestEntityTooLarge,
			body:   `{"error":"request body too large"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			if tt.body == "" {
				assert.Empty(t, w.Body.String())
				return
			}
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation error", domain.ErrEmptyQuery, http.StatusBadRequest},
		{"not found error", domain.ErrDocumentNotFound, http.StatusNotFound},
		{"configuration error", domain.ErrMissingCredentials, http.StatusInternalServerError},
		{"embedding failed", domain.ErrEmbeddingFailed, http.StatusBadGateway},
		{"retrieval failed", domain.ErrRetrievalFailed, http.StatusBadGateway},
		{"generation failed", domain.ErrGenerationFailed, http.StatusBadGateway},
		{"duplicate request", domain.NewDomainError(domain.ErrCodeDuplicateRequest, "duplicate"), http.StatusConflict},
		{"internal error", domain.NewDomainError(domain.ErrCodeInternalError, "internal"), http.StatusInternalServerError},
		{"wrapped domain error", domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "wrapped", assert.AnError), http.StatusNotFound},
		{"unknown domain error", domain.NewDomainError("UNKNOWN", "unknown"), http.StatusInternalServerError},
		{"non-domain error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DomainErrorToHTTP(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestHandleError_ReportsCode(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, fmt.Errorf("generate: %w", domain.ErrGenerationFailed))

	assert.Equal(t, http.StatusBadGateway, w.Code)

	var result ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.ErrCodeGenerationFailed, result.Code)
	assert.True(t, strings.HasPrefix(result.Error, "generate: "))
}

type sampleRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"omitempty,min=1,max=50"`
}

func TestDecodeAndValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var req sampleRequest
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"q","top_k":5}`))

		assert.True(t, DecodeAndValidate(w, r, &req))
		assert.Equal(t, "q", req.Query)
	})

	t.Run("malformed", func(t *testing.T) {
		var req sampleRequest
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))

		assert.False(t, DecodeAndValidate(w, r, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		var req sampleRequest
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"`+strings.Repeat("q", 64)+`"}`))
		r.Body = http.MaxBytesReader(w, r.Body, 16)

		assert.False(t, DecodeAndValidate(w, r, &req))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("invalid fields use json names", func(t *testing.T) {
		var req sampleRequest
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"top_k":500}`))

		assert.False(t, DecodeAndValidate(w, r, &req))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var result ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, domain.ErrCodeValidation, result.Code)
		assert.Equal(t, "failed on 'required' tag", result.Fields["query"])
		assert.Equal(t, "failed on 'max' tag", result.Fields["top_k"])
	})
}
