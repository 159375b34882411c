package llmservice

import (
	"context"
	"errors"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/seyitcvk/chatbot-rag/internal/config"
)

// NewChatModel builds the chat-completion model from the provider
// config. The returned llms.Model is what the pipeline generates
// answers with.
func NewChatModel(cfg *config.ProviderConfig) (llms.Model, error) {
	return openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.APIKey, "Bearer ")),
		openai.WithModel(cfg.InferenceModel),
	)
}

// GenerateContent sends messages to the model and returns the first
// choice's text.
func GenerateContent(ctx context.Context, model llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (string, error) {
	res, err := model.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Content, nil
}

// ErrEmptyResponse is returned when the model replies with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")
