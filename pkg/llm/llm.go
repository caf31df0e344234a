// Package llm defines the model gateway contract consumed by the learning loop.
//
// A Gateway provides chat completion. Embedding is an optional capability:
// implementations that support it additionally satisfy Embedder, and callers
// check for it with a type assertion at call time. The loop degrades
// gracefully when embedding is absent.
package llm

import (
	"context"
	"time"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single ordered entry in a chat exchange.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatOptions carries per-call generation parameters. A nil options pointer
// means provider defaults for everything.
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
	Model       string
	Timeout     time.Duration
}

// Gateway is the required capability: turn an ordered message list into text.
// Implementations report failures as errors with the ProviderFailed code.
type Gateway interface {
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (string, error)
}

// Embedder is the optional embedding capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// AsEmbedder returns the gateway's embedding capability, if it has one.
func AsEmbedder(gw Gateway) (Embedder, bool) {
	e, ok := gw.(Embedder)
	return e, ok
}

// SystemUser is a convenience constructor for the common two-message exchange.
func SystemUser(system, user string) []Message {
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
}
