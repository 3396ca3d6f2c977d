// Package llm provides model clients and the structured extraction gateway
// used by every pipeline stage.
package llm

import "context"

// Message roles, mirroring the chat completion wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a prompt transcript.
type Message struct {
	Role    string
	Content string
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Client defines the interface for model calls constrained to JSON output.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// GenerateJSON runs the transcript through the model in JSON mode and
	// returns the raw response text (which may still carry code fences or
	// prose; see ExtractJSON).
	GenerateJSON(ctx context.Context, messages []Message) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure both concrete clients implement Client at compile time.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
)
