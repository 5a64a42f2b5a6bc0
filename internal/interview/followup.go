package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/repositories"
)

// maxFollowUpRounds caps follow-up questions per scripted question regardless
// of what the model emits.
const maxFollowUpRounds = 2

const followUpSystemPrompt = `You are an AI interviewer collecting knowledge from an employee.

You are given the conversation so far for one interview topic: the original question, the employee's answer, and any follow-up rounds. Decide whether the answers are complete enough or whether a follow-up question would surface important detail such as concrete processes, tools, thresholds or escalation paths.

Respond with ONLY a JSON object of this exact shape and nothing else:

{"follow_ups": ["question text", "..."]}

Emit zero, one or two follow-up questions. Emit an empty list when the answers are already complete. Never repeat a question that was already asked.`

// FollowUpEngine decides whether an answer needs clarification and
// synthesizes follow-up questions from the turn history of one scripted
// question.
type FollowUpEngine struct {
	completer ai.Completer
	retry     ai.RetryPolicy
	logger    *slog.Logger
}

func NewFollowUpEngine(completer ai.Completer, retry ai.RetryPolicy, logger *slog.Logger) *FollowUpEngine {
	return &FollowUpEngine{
		completer: completer,
		retry:     retry,
		logger:    logger.With("source", "FollowUpEngine"),
	}
}

// Evaluate returns the contents of zero to two follow-up questions for the
// given thread.
//
// The engine fails open: any model error is logged and treated as "no
// follow-up needed" so that the interview is never blocked on the model.
func (e *FollowUpEngine) Evaluate(ctx context.Context, thread []repositories.QuestionTurn) []string {
	messages := make([]ai.Message, 0, 2*len(thread)+1)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: followUpSystemPrompt})
	for _, qt := range thread {
		messages = append(messages,
			ai.Message{Role: ai.RoleAssistant, Content: qt.Question.Content},
			ai.Message{Role: ai.RoleUser, Content: qt.Turn.Content},
		)
	}

	var followUps []string
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		completion, completeErr := e.completer.Complete(ctx, ai.CompletionRequest{
			Messages:  messages,
			MaxTokens: 300,
		})
		if completeErr != nil {
			return completeErr
		}
		if followUps, completeErr = parseFollowUps(completion); completeErr != nil {
			return completeErr
		}
		return nil
	})
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "follow-up evaluation failed, continuing without follow-ups",
			errors.SlogError(err))
		return nil
	}
	return followUps
}

// parseFollowUps validates the model output against the strict JSON shape.
// The excess beyond the round cap is discarded keeping the model's own
// emission order.
func parseFollowUps(completion string) ([]string, error) {
	payload := strings.TrimSpace(completion)
	// Tolerate a fenced code block around the JSON.
	if after, found := strings.CutPrefix(payload, "```json"); found {
		payload = after
	} else if after, found = strings.CutPrefix(payload, "```"); found {
		payload = after
	}
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")

	var parsed struct {
		FollowUps []string `json:"follow_ups"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrInvalidResponse, err)
	}

	followUps := make([]string, 0, maxFollowUpRounds)
	for _, followUp := range parsed.FollowUps {
		followUp = strings.TrimSpace(followUp)
		if followUp == "" {
			continue
		}
		followUps = append(followUps, followUp)
		if len(followUps) == maxFollowUpRounds {
			break
		}
	}
	return followUps, nil
}
