package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/service"
)

func postJSON(path string, body interface{}) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "body: %s", w.Body.String())
	return data
}

func TestAskHandler_Ask_Success(t *testing.T) {
	svc := new(MockAnswerService)
	handler := NewAskHandler(svc, nil, logger.Nop())

	threshold := float32(0.3)
	svc.On("Answer", mock.Anything, mock.MatchedBy(func(req service.AnswerRequest) bool {
		return req.Query == "How do I add a new student?" &&
			req.Actor == "U123" &&
			req.TopK == 5 &&
			*req.SimilarityThreshold == threshold &&
			len(req.ContentTypes) == 1 && req.ContentTypes[0] == domain.ContentTypeGuide
	})).Return(&service.AnswerResponse{Answer: "## Summary\nDo it.", Summary: "Do it."}, nil)

	w := httptest.NewRecorder()
	handler.Ask(w, postJSON("/ask", map[string]interface{}{
		"user_id":       "U123",
		"query":         "How do I add a new student?",
		"top_k":         5,
		"threshold":     0.3,
		"content_types": []string{"guide"},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Equal(t, "Do it.", data["summary"])
	assert.Equal(t, false, data["duplicate"])
	svc.AssertExpectations(t)
}

func TestAskHandler_Ask_ValidationErrors(t *testing.T) {
	svc := new(MockAnswerService)
	handler := NewAskHandler(svc, nil, logger.Nop())

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing query", map[string]interface{}{"user_id": "U1"}},
		{"blank query", map[string]interface{}{"query": "   "}},
		{"top_k too large", map[string]interface{}{"query": "q", "top_k": 500}},
		{"threshold out of range", map[string]interface{}{"query": "q", "threshold": 1.5}},
		{"unknown content type", map[string]interface{}{"query": "q", "content_types": []string{"video"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Ask(w, postJSON("/ask", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	svc.AssertNotCalled(t, "Answer", mock.Anything, mock.Anything)
}

func TestAskHandler_Ask_InvalidJSON(t *testing.T) {
	handler := NewAskHandler(new(MockAnswerService), nil, logger.Nop())

	w := httptest.NewRecorder()
	handler.Ask(w, httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString("{")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskHandler_Ask_ServiceError(t *testing.T) {
	svc := new(MockAnswerService)
	handler := NewAskHandler(svc, nil, logger.Nop())

	svc.On("Answer", mock.Anything, mock.Anything).Return(nil, domain.ErrGenerationFailed)

	w := httptest.NewRecorder()
	handler.Ask(w, postJSON("/ask", map[string]interface{}{"query": "q"}))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), domain.ErrCodeGenerationFailed)
}

func TestAskHandler_Ask_DeduplicatesRepeatedQuestions(t *testing.T) {
	svc := new(MockAnswerService)
	d := service.NewDeduplicator(dedup.NewMemoryStore(), time.Minute, logger.Nop())
	handler := NewAskHandler(svc, d, logger.Nop())

	svc.On("Answer", mock.Anything, mock.Anything).Return(&service.AnswerResponse{Answer: "a"}, nil).Once()

	body := map[string]interface{}{"user_id": "U123", "query": "How do I add a new student?"}

	w := httptest.NewRecorder()
	handler.Ask(w, postJSON("/ask", body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeData(t, w)["duplicate"])

	w = httptest.NewRecorder()
	handler.Ask(w, postJSON("/ask", body))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeData(t, w)["duplicate"])

	svc.AssertNumberOfCalls(t, "Answer", 1)
}

func TestAskHandler_Ask_AnonymousSkipsDedup(t *testing.T) {
	svc := new(MockAnswerService)
	d := service.NewDeduplicator(dedup.NewMemoryStore(), time.Minute, logger.Nop())
	handler := NewAskHandler(svc, d, logger.Nop())

	svc.On("Answer", mock.Anything, mock.Anything).Return(&service.AnswerResponse{Answer: "a"}, nil)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.Ask(w, postJSON("/ask", map[string]interface{}{"query": "q"}))
		require.Equal(t, http.StatusOK, w.Code)
	}

	svc.AssertNumberOfCalls(t, "Answer", 2)
}

