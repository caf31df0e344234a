package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatOnlyGateway struct{}

func (chatOnlyGateway) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (string, error) {
	return "ok", nil
}

type embeddingGateway struct {
	chatOnlyGateway
}

func (embeddingGateway) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

func TestAsEmbedder(t *testing.T) {
	_, ok := AsEmbedder(chatOnlyGateway{})
	assert.False(t, ok)

	e, ok := AsEmbedder(embeddingGateway{})
	require.True(t, ok)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestSystemUser(t *testing.T) {
	msgs := SystemUser("be terse", "sort a list")
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "be terse", msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "sort a list", msgs[1].Content)
}

func TestBuildMessageRequestDefaults(t *testing.T) {
	req := buildMessageRequest("claude-sonnet-4-20250514", SystemUser("sys", "user"), nil)

	assert.Equal(t, int64(defaultAnthropicMaxTokens), req.MaxTokens)
	require.Len(t, req.System, 1)
	assert.Equal(t, "sys", req.System[0].Text)
	require.Len(t, req.Messages, 1)

	// No options means no temperature on the wire; the provider default
	// applies instead of a literal zero.
	assert.False(t, req.Temperature.Valid())
}

func TestBuildMessageRequestAppliesOptions(t *testing.T) {
	opts := &ChatOptions{Model: "claude-haiku-4-5", MaxTokens: 256, Temperature: 0.7}
	req := buildMessageRequest("claude-sonnet-4-20250514", SystemUser("sys", "user"), opts)

	assert.Equal(t, "claude-haiku-4-5", string(req.Model))
	assert.Equal(t, int64(256), req.MaxTokens)
	require.True(t, req.Temperature.Valid())
	assert.Equal(t, 0.7, req.Temperature.Value)
}

func TestRenderMessages(t *testing.T) {
	rendered := renderMessages(SystemUser("be terse", "sort a list"))
	assert.Equal(t, "[system] be terse\n[user] sort a list", rendered)
}

func TestNewAnthropicGatewayRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropicGateway("", "claude-sonnet-4-20250514")
	assert.Error(t, err)
}
