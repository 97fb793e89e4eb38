// Package llms wraps the official Anthropic SDK behind a small client
// interface so the explain service and its tests can substitute fakes.
package llms

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	errs "github.com/compiler-explorer/explain/pkg/errors"
	"github.com/compiler-explorer/explain/pkg/logging"
	"github.com/compiler-explorer/explain/pkg/prompt"
)

// Response carries the explanation text and token accounting from one call.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Client generates explanations from prepared message specs.
type Client interface {
	Generate(ctx context.Context, spec *prompt.MessageSpec) (*Response, error)
}

// AnthropicClient implements Client against the Claude Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a client for the given API key. An empty key
// falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicClient(apiKey string, opts ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errs.New(errs.ConfigurationInvalid, "API key is required")
	}

	clientOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := anthropic.NewClient(clientOpts...)

	return &AnthropicClient{client: &client}, nil
}

// Generate implements Client.
func (a *AnthropicClient) Generate(ctx context.Context, spec *prompt.MessageSpec) (*Response, error) {
	logger := logging.GetLogger()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(spec.Model),
		MaxTokens: int64(spec.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: spec.System},
		},
		Temperature: anthropic.Float(spec.Temperature),
		Messages:    convertMessages(spec.Messages),
	})

	if err != nil {
		var apiErr *anthropic.Error
		code := errs.GenerationFailed
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
			if apiErr.StatusCode == http.StatusTooManyRequests {
				code = errs.RateLimitExceeded
			}
		}
		return nil, errs.WithFields(
			errs.Wrap(err, code, "failed to generate explanation"),
			errs.Fields{
				"model":      spec.Model,
				"max_tokens": spec.MaxTokens,
			})
	}

	if message == nil || len(message.Content) == 0 {
		return nil, errs.New(errs.EmptyResponse, "received empty content from Anthropic API")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	logger.Debug(ctx, "Anthropic response: %d input tokens, %d output tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return &Response{
		Content:      responseText,
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

// convertMessages maps the prompt message structure onto SDK params. The
// final assistant message, when present, acts as a response prefill.
func convertMessages(messages []prompt.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, block := range msg.Content {
			blocks = append(blocks, anthropic.NewTextBlock(block.Text))
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}

		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: blocks,
		})
	}
	return out
}
