package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

// Client answers a single free-text prompt.
type Client interface {
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// Option adjusts a single completion request.
type Option func(*request)

type request struct {
	temperature *float64
}

// WithTemperature sets the sampling temperature for one request.
func WithTemperature(t float64) Option {
	return func(r *request) {
		r.temperature = &t
	}
}

// ErrEmptyResponse is returned when the model produced no choices or no text.
var ErrEmptyResponse = errors.New("empty model response")

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAI creates a client. baseURL may be empty to use the OpenAI default.
func NewOpenAI(apiKey, baseURL, model string, logger *zap.Logger) (*OpenAI, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("language model API key not set")
	}
	if model == "" {
		model = DefaultModel
	}

	// One attempt per call; callers degrade on failure instead of retrying.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}, nil
}

// Complete sends prompt as a single user message and returns the reply text.
func (o *OpenAI) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	var req request
	for _, opt := range opts {
		opt(&req)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if req.temperature != nil {
		params.Temperature = openai.Float(*req.temperature)
	}

	o.logger.Debug("llm request", zap.String("model", o.model), zap.Int("prompt_len", len(prompt)))

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Func adapts a plain function to the Client interface.
type Func func(ctx context.Context, prompt string, opts ...Option) (string, error)

func (f Func) Complete(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return f(ctx, prompt, opts...)
}
