package hearth

import "context"

// Chat message roles on the LLM wire.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one message in an LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system-role chat message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleSystem, Content: content}
}

// UserMessage builds a user-role chat message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleUser, Content: content}
}

// AssistantMessage builds an assistant-role chat message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleAssistant, Content: content}
}

// GenerationParams tune one LLM completion.
type GenerationParams struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// ResponseSchema asks the backend for structured output conforming to a
// JSON Schema. Backends without native schema support may ignore it; callers
// must validate the returned content either way.
type ResponseSchema struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
	Strict bool   `json:"strict"`
}

// ChatRequest is one completion request to an LLM backend.
type ChatRequest struct {
	Messages       []ChatMessage    `json:"messages"`
	Params         GenerationParams `json:"params"`
	ResponseSchema *ResponseSchema  `json:"response_schema,omitempty"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResponse is the backend's completion.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// ChatClient is the provider-neutral LLM surface the orchestrator depends
// on. Implementations wrap a concrete backend (OpenAI, Anthropic, a local
// runtime) and must be safe for concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// ChatClientResolver returns the client to use for a given request, letting
// deployments route routing calls to a cheap model and agent calls to a
// stronger one. A nil resolver means one shared client.
type ChatClientResolver func(purpose string) ChatClient

// Resolver purposes.
const (
	ChatPurposeRouting = "routing"
	ChatPurposeAgent   = "agent"
)

// EmbeddingClient produces vector embeddings for semantic similarity.
// Used by the routing-decision cache; optional everywhere else.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
