package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cloo-solutions/docsage/internal/domain"
)

const (
	// DefaultChatModel is the model used for answer generation
	DefaultChatModel = openai.GPT4oMini
	// DefaultChatMaxTokens caps completion length for the default model
	DefaultChatMaxTokens = 16384
)

// ChatAPI defines the subset of the OpenAI client used for completions
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ChatConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ChatClient implements the generator port on top of chat completions.
type ChatClient struct {
	api       ChatAPI
	model     string
	maxTokens int
	hasKey    bool
}

// NewChatClient creates a ChatClient.
func NewChatClient(cfg ChatConfig) *ChatClient {
	return newChatClient(openai.NewClientWithConfig(clientConfig(cfg.APIKey, cfg.BaseURL)), cfg)
}

func newChatClient(api ChatAPI, cfg ChatConfig) *ChatClient {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultChatModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultChatMaxTokens
	}
	return &ChatClient{
		api:       api,
		model:     model,
		maxTokens: maxTokens,
		hasKey:    strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (c *ChatClient) Model() string {
	return c.model
}

func (c *ChatClient) MaxTokens() int {
	return c.maxTokens
}

// Generate sends messages and returns the first choice's content.
func (c *ChatClient) Generate(ctx context.Context, messages []domain.Message, params domain.GenerationParams) (string, error) {
	if len(messages) == 0 {
		return "", domain.ErrEmptyText
	}
	if !c.hasKey {
		return "", domain.ErrMissingCredentials
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(messages),
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyError(fmt.Errorf("chat completion failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func toChatMessages(messages []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case domain.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case domain.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
