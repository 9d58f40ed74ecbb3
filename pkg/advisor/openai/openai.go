// Package openai provides an OpenAI-backed advisory implementation.
//
// Example usage:
//
//	adv, err := openai.New(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	content, err := adv.Advise(ctx, advisor.Request{
//	    TaskType: "risk_identification",
//	    Prompt:   prompt,
//	})
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/warden/pkg/advisor"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// Advisor implements advisor.Advisor against any OpenAI-compatible API.
type Advisor struct {
	client openai.Client
	model  string
}

// Option configures an Advisor.
type Option func(*settings)

type settings struct {
	model   string
	baseURL string
}

// WithModel sets the model used for advisory completions.
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint (Azure,
// local models, proxies).
func WithBaseURL(baseURL string) Option {
	return func(s *settings) { s.baseURL = baseURL }
}

// New creates an OpenAI-backed advisor. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable; an empty base URL falls back to
// OPENAI_BASE_URL, then the public API.
func New(apiKey string, opts ...Option) (*Advisor, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (parameter or OPENAI_API_KEY)")
	}

	s := settings{model: DefaultModel}
	for _, opt := range opts {
		opt(&s)
	}
	if s.baseURL == "" {
		s.baseURL = os.Getenv("OPENAI_BASE_URL")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(s.baseURL))
	}

	return &Advisor{
		client: openai.NewClient(clientOpts...),
		model:  s.model,
	}, nil
}

// Advise sends a non-streaming chat completion and returns its text content.
func (a *Advisor) Advise(ctx context.Context, req advisor.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(a.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("advisory completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("advisory completion for task %q returned no choices", req.TaskType)
	}
	return completion.Choices[0].Message.Content, nil
}
