package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIOptions configures the OpenAI client
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string        // optional alternate endpoint
	Timeout    time.Duration // per-request timeout, zero means none
	MaxRetries int           // SDK-level retries for transient failures
}

// OpenAIProvider sends transcripts to the OpenAI chat completions endpoint
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider from the given options
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set in environment")
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(max(opts.MaxRetries, 0)),
	}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		requestOpts = append(requestOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAIProvider{client: openai.NewClient(requestOpts...)}, nil
}

// Complete sends the transcript and returns the single assistant reply
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages, err := toOpenAIMessages(req.Messages)
	if err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	// Exactly one assistant choice is expected
	if len(resp.Choices) != 1 {
		return "", fmt.Errorf("%w: expected 1 choice, got %d", ErrMalformedResponse, len(resp.Choices))
	}

	msg := resp.Choices[0].Message
	if msg.Role != "assistant" {
		return "", fmt.Errorf("%w: unexpected role %q", ErrMalformedResponse, string(msg.Role))
	}
	if msg.Content == "" {
		if msg.Refusal != "" {
			return "", fmt.Errorf("%w: model refused: %s", ErrMalformedResponse, msg.Refusal)
		}
		return "", fmt.Errorf("%w: empty assistant content", ErrMalformedResponse)
	}

	return msg.Content, nil
}

// toOpenAIMessages maps transcript messages onto the SDK's message unions
func toOpenAIMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			result = append(result, openai.UserMessage(msg.Content))
		case "assistant":
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}
