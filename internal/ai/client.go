package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/lorebook/internal/errors"
	"github.com/sashabaranov/go-openai"
)

// Sentinel errors for the model collaborator. Callers decide per component
// whether these fail open, fail the document, or fail the build.
var (
	ErrTimeout         = errors.NewSentinel("model call timed out")
	ErrRateLimited     = errors.NewSentinel("model call rate limited")
	ErrInvalidResponse = errors.NewSentinel("model returned invalid response")
)

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// Message is one chat message sent to the model.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
)

// CompletionRequest is a single prompt against the model.
type CompletionRequest struct {
	Messages  []Message
	MaxTokens int
}

// Completer is the language-model collaborator used by the follow-up engine,
// the planner and the content writer. Tests provide stubs.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Client struct {
	client   *openai.Client
	model    string
	timeout  time.Duration
	governor *Governor
	logger   *slog.Logger
}

// NewClient wraps the OpenAI API behind the Completer interface.
//
// Every call acquires a slot from the governor before going out and carries
// the given timeout so that no model call blocks indefinitely.
func NewClient(apiKey, model string, timeout time.Duration, governor *Governor, logger *slog.Logger) *Client {
	return &Client{
		client:   openai.NewClient(apiKey),
		model:    model,
		timeout:  timeout,
		governor: governor,
		logger:   logger.With("source", "ai.Client"),
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	release, err := c.governor.Acquire(ctx)
	if err != nil {
		return "", errors.Wrap(err, "acquire model call slot")
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, message := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{ //nolint:exhaustruct // this is better for readability
			Role:    message.Role,
			Content: message.Content,
		}
	}

	start := time.Now()
	completion, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{ //nolint:exhaustruct // this is better for readability
			Model:     c.model,
			MaxTokens: req.MaxTokens,
			Messages:  messages,
		},
	)
	if err != nil {
		return "", classify(err)
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "completion finished",
		slog.Duration("duration", time.Since(start)))

	if len(completion.Choices) == 0 {
		return "", errors.Wrap(ErrInvalidResponse, "no choices in completion")
	}
	return completion.Choices[0].Message.Content, nil
}

// classify maps transport and API errors onto the sentinel taxonomy.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case apiErr.HTTPStatusCode >= 500:
			// Upstream hiccups behave like timeouts from the caller's point of view.
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}

	return errors.Wrap(err, "create chat completion")
}
