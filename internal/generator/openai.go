package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// systemPrompt frames the model as a phone agent. Replies are spoken aloud,
// so they must stay short and free of markup.
const systemPrompt = "You are a helpful phone agent answering an inbound call. " +
	"Reply in one or two short spoken sentences. Do not use markup, lists, or emoji."

// OpenAIConfig holds configuration for the OpenAI-backed generator.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// Model defaults to gpt-4o-mini.
	Model string

	// BaseURL overrides the API endpoint; useful for proxies and tests.
	BaseURL string

	// RequestTimeout bounds a single completion call (default 20s). A timed
	// out call surfaces as ErrUnavailable.
	RequestTimeout time.Duration
}

// OpenAIGenerator calls the chat-completions API. Safe for concurrent use.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generator: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.RequestTimeout,
	}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, call CallContext, input string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(call.History)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range call.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return reply, nil
}
