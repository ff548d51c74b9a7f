package domain

// MessageRole identifies the author of a chat message
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a generation request
type Message struct {
	Role    MessageRole
	Content string
}

// GenerationParams are the sampling parameters passed to a Generator.
type GenerationParams struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// GenerationResult is the outcome of a successful generation call.
type GenerationResult struct {
	Response         string
	Summary          string
	Steps            []string
	TokenCount       int
	GenerationTimeMs int64
	Model            string
	Attempts         int
}
