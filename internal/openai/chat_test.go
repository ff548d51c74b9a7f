package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/domain"
)

// MockChatAPI is a mock for the chat completions API
type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestChatClient_Generate_Success(t *testing.T) {
	api := new(MockChatAPI)
	client := newChatClient(api, ChatConfig{APIKey: "key", Model: "gpt-4o-mini"})

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: "system"},
		{Role: domain.RoleUser, Content: "question"},
	}
	params := domain.GenerationParams{MaxTokens: 1500, Temperature: 0.1, TopP: 0.9}

	api.On("CreateChatCompletion", mock.Anything, openai.ChatCompletionRequest{
		Model: "gpt-4o-mini",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "system"},
			{Role: openai.ChatMessageRoleUser, Content: "question"},
		},
		MaxTokens:   1500,
		Temperature: 0.1,
		TopP:        0.9,
	}).Return(completion("## Summary\nAnswer."), nil)

	out, err := client.Generate(context.Background(), messages, params)

	require.NoError(t, err)
	assert.Equal(t, "## Summary\nAnswer.", out)
	api.AssertExpectations(t)
}

func TestChatClient_Generate_NoChoices(t *testing.T) {
	api := new(MockChatAPI)
	client := newChatClient(api, ChatConfig{APIKey: "key"})

	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	_, err := client.Generate(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, domain.GenerationParams{})

	assert.EqualError(t, err, "chat completion returned no choices")
}

func TestChatClient_Generate_Errors(t *testing.T) {
	api := new(MockChatAPI)
	client := newChatClient(api, ChatConfig{APIKey: "key"})
	msgs := []domain.Message{{Role: domain.RoleUser, Content: "q"}}

	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, errors.New("503 service unavailable")).Once()
	_, err := client.Generate(context.Background(), msgs, domain.GenerationParams{})
	assert.ErrorContains(t, err, "chat completion failed")
	assert.False(t, domain.IsConfigurationError(err))

	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}).Once()
	_, err = client.Generate(context.Background(), msgs, domain.GenerationParams{})
	assert.True(t, domain.IsConfigurationError(err))
}

func TestChatClient_Generate_InputErrors(t *testing.T) {
	api := new(MockChatAPI)

	_, err := newChatClient(api, ChatConfig{APIKey: "key"}).Generate(context.Background(), nil, domain.GenerationParams{})
	assert.ErrorIs(t, err, domain.ErrEmptyText)

	_, err = newChatClient(api, ChatConfig{}).Generate(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "q"}}, domain.GenerationParams{})
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)

	api.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestChatClient_Defaults(t *testing.T) {
	client := NewChatClient(ChatConfig{APIKey: "key"})

	assert.Equal(t, DefaultChatModel, client.Model())
	assert.Equal(t, DefaultChatMaxTokens, client.MaxTokens())
}
