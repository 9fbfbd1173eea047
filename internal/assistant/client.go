// Package assistant wraps the chat completion API behind a synchronous call
// with a small error taxonomy the bot layer can act on.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrModelUnavailable covers transport failures and any API error that
	// is not rate limiting. Callers report it and suggest retrying later.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelQuotaExceeded is returned when the provider signals rate
	// limiting. Not retried here; retry policy belongs to the caller.
	ErrModelQuotaExceeded = errors.New("model quota exceeded")
)

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
}

func New(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *Client {
	return newWithClient(openai.NewClient(apiKey), model, maxTokens, temperature, logger)
}

func newWithClient(api *openai.Client, model string, maxTokens int, temperature float64, logger *zap.Logger) *Client {
	return &Client{
		client:      api,
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		logger:      logger,
	}
}

// Complete sends one fully built prompt and returns the raw model output.
// The prompt already carries preferences and conversation context; nothing is
// kept server-side between calls.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
		},
	)
	if err != nil {
		c.logger.Error("Chat completion failed", zap.Error(err))

		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: %v", ErrModelQuotaExceeded, err)
		}
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrModelUnavailable)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
