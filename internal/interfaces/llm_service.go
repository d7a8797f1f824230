package interfaces

import (
	"context"
)

// Message roles accepted by LLM providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string `json:"role"`

	// Content contains the text content of the message
	Content string `json:"content"`
}

// UserMessage builds a single-turn user conversation, the common case for
// analysis prompts.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

// LLMService defines the model invocation surface the analysis services
// consume. Implementations route to a configured provider (Gemini or Claude)
// and apply provider rate limits and retry policy internally.
type LLMService interface {
	// Invoke sends the conversation and returns the response text.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation history in chronological order
	//
	// Returns:
	//   - string: Generated response text
	//   - error: Error if the invocation fails after retries
	Invoke(ctx context.Context, messages []Message) (string, error)

	// InvokeJSON sends the conversation requesting a JSON object response.
	// Callers must still parse leniently: providers may wrap the object in
	// markdown code fences or return malformed JSON.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: Conversation history in chronological order
	//
	// Returns:
	//   - string: Generated response text, expected to be a JSON object
	//   - error: Error if the invocation fails after retries
	InvokeJSON(ctx context.Context, messages []Message) (string, error)

	// ModelName identifies the configured model, recorded in run metadata.
	ModelName() string

	// Close releases provider resources.
	Close() error
}
