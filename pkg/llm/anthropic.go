package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	errs "github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicGateway implements Gateway over Anthropic's Messages API.
// Anthropic does not expose an embedding endpoint, so this gateway does not
// satisfy Embedder and deduplication degrades gracefully when it is used.
type AnthropicGateway struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicGateway creates a gateway for the given model. The API key is
// read from ANTHROPIC_API_KEY when the argument is empty.
func NewAnthropicGateway(apiKey, model string) (*AnthropicGateway, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.New(errs.InvalidInput, "API key is required")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicGateway{
		client: &client,
		model:  anthropic.Model(model),
	}, nil
}

// buildMessageRequest translates gateway messages and options into API
// parameters. Temperature is omitted entirely when no options are given so
// the provider default applies.
func buildMessageRequest(model anthropic.Model, messages []Message, opts *ChatOptions) anthropic.MessageNewParams {
	maxTokens := defaultAnthropicMaxTokens
	if opts != nil {
		if opts.Model != "" {
			model = anthropic.Model(opts.Model)
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
	}

	var system []anthropic.TextBlockParam
	var params []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	req := anthropic.MessageNewParams{
		Model:     model,
		System:    system,
		Messages:  params,
		MaxTokens: int64(maxTokens),
	}
	if opts != nil {
		req.Temperature = anthropic.Float(opts.Temperature)
	}
	return req
}

// Chat implements Gateway.
func (a *AnthropicGateway) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (string, error) {
	logger := logging.GetLogger()

	if opts != nil && opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req := buildMessageRequest(a.model, messages, opts)
	model := req.Model

	message, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return "", errs.WithFields(
			errs.Wrap(err, errs.ProviderFailed, "anthropic chat request failed"),
			errs.Fields{"model": string(model)})
	}

	if message == nil || len(message.Content) == 0 {
		return "", errs.New(errs.ProviderFailed, "received empty content from Anthropic API")
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	completion := b.String()

	tokens := &logging.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}
	ctx = logging.WithModelID(ctx, string(model))
	ctx = logging.WithTokenInfo(ctx, tokens)
	logger.PromptCompletion(ctx, renderMessages(messages), completion, tokens)

	return completion, nil
}

// renderMessages flattens a conversation for prompt logging.
func renderMessages(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s", m.Role, m.Content)
	}
	return b.String()
}
