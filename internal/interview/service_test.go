package interview_test

import (
	"context"
	"testing"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/interview"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/stretchr/testify/require"
)

// oneFollowUpPerTopic emits a single follow-up after the scripted answer and
// none after follow-up answers.
func oneFollowUpPerTopic() stubCompleter {
	return stubCompleter{complete: func(req ai.CompletionRequest) (string, error) {
		// System message plus one question/answer pair means this is the
		// first evaluation for the topic.
		if len(req.Messages) == 3 {
			return `{"follow_ups": ["Can you give a concrete example?"]}`, nil
		}
		return `{"follow_ups": []}`, nil
	}}
}

func TestService_FullInterview(t *testing.T) {
	t.Parallel()
	service, repo := newTestService(t, oneFollowUpPerTopic())
	ctx := context.Background()

	session, err := service.Start(ctx, "emp-pam")
	require.NoError(t, err)

	// Three scripted questions, each followed by exactly one follow-up.
	wantScripted := []string{"q-1", "q-2", "q-3"}
	for _, scriptedID := range wantScripted {
		question, over, nextErr := service.NextQuestion(ctx, session.ID)
		require.NoError(t, nextErr)
		require.False(t, over)
		require.Equal(t, scriptedID, question.ID)
		require.False(t, question.IsFollowUp)

		require.NoError(t, service.Answer(ctx, session.ID, question.ID, "A short answer."))

		followUp, over, nextErr := service.NextQuestion(ctx, session.ID)
		require.NoError(t, nextErr)
		require.False(t, over)
		require.True(t, followUp.IsFollowUp)
		require.Equal(t, scriptedID, followUp.ParentQuestionID)

		require.NoError(t, service.Answer(ctx, session.ID, followUp.ID, "Some more detail."))
	}

	_, over, err := service.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, over)

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.InterviewStatusCompleted, got.Status)
	require.Len(t, got.Turns, 6)
	for i, turn := range got.Turns {
		require.EqualValues(t, i, turn.OrderIndex)
	}
}

func TestService_FollowUpCap(t *testing.T) {
	t.Parallel()
	// The model keeps emitting follow-ups, the cap discards the excess.
	greedy := stubCompleter{complete: func(_ ai.CompletionRequest) (string, error) {
		return `{"follow_ups": ["First?", "Second?", "Third?", "Fourth?"]}`, nil
	}}
	service, repo := newTestService(t, greedy)
	ctx := context.Background()

	session, err := service.Start(ctx, "emp-pam")
	require.NoError(t, err)

	for {
		question, over, nextErr := service.NextQuestion(ctx, session.ID)
		require.NoError(t, nextErr)
		if over {
			break
		}
		require.NoError(t, service.Answer(ctx, session.ID, question.ID, "answer"))
	}

	got, err := repo.Get(ctx, session.ID)
	require.NoError(t, err)
	// 3 scripted + at most 2 follow-ups each.
	require.Len(t, got.Turns, 9)

	for _, scriptedID := range []string{"q-1", "q-2", "q-3"} {
		count, countErr := repo.FollowUpCount(ctx, session.ID, scriptedID)
		require.NoError(t, countErr)
		require.Equal(t, 2, count)
	}
}

func TestService_FailsOpenOnModelError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		complete func(req ai.CompletionRequest) (string, error)
	}{
		{
			name: "transient model error",
			complete: func(_ ai.CompletionRequest) (string, error) {
				return "", ai.ErrRateLimited
			},
		},
		{
			name: "malformed model output",
			complete: func(_ ai.CompletionRequest) (string, error) {
				return "certainly! here are some follow-ups", nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			service, repo := newTestService(t, stubCompleter{complete: tt.complete})
			ctx := context.Background()

			session, err := service.Start(ctx, "emp-jim")
			require.NoError(t, err)

			// The interview is never blocked: every scripted question follows
			// directly without follow-ups.
			for _, scriptedID := range []string{"q-1", "q-2", "q-3"} {
				question, over, nextErr := service.NextQuestion(ctx, session.ID)
				require.NoError(t, nextErr)
				require.False(t, over)
				require.Equal(t, scriptedID, question.ID)
				require.NoError(t, service.Answer(ctx, session.ID, question.ID, "answer"))
			}

			_, over, err := service.NextQuestion(ctx, session.ID)
			require.NoError(t, err)
			require.True(t, over)

			got, err := repo.Get(ctx, session.ID)
			require.NoError(t, err)
			require.Equal(t, models.InterviewStatusCompleted, got.Status)
			require.Len(t, got.Turns, 3)
		})
	}
}

func TestService_RejectsOutOfOrderAnswers(t *testing.T) {
	t.Parallel()
	service, _ := newTestService(t, oneFollowUpPerTopic())
	ctx := context.Background()

	session, err := service.Start(ctx, "emp-pam")
	require.NoError(t, err)

	// q-1 is awaited, answering q-2 must be rejected.
	err = service.Answer(ctx, session.ID, "q-2", "answer")
	require.ErrorIs(t, err, interview.ErrUnknownQuestion)

	// Unknown question IDs are rejected too.
	err = service.Answer(ctx, session.ID, "nonexistent", "answer")
	require.ErrorIs(t, err, interview.ErrUnknownQuestion)

	require.NoError(t, service.Answer(ctx, session.ID, "q-1", "answer"))

	// An already answered question is not awaited anymore.
	err = service.Answer(ctx, session.ID, "q-1", "answer")
	require.ErrorIs(t, err, interview.ErrUnknownQuestion)
}

func TestService_NextQuestionIdempotent(t *testing.T) {
	t.Parallel()
	service, _ := newTestService(t, oneFollowUpPerTopic())
	ctx := context.Background()

	session, err := service.Start(ctx, "emp-pam")
	require.NoError(t, err)

	first, over, err := service.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, over)

	second, over, err := service.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, over)
	require.Equal(t, first.ID, second.ID)
}

func TestService_AnswerAfterCompletion(t *testing.T) {
	t.Parallel()
	noFollowUps := stubCompleter{complete: func(_ ai.CompletionRequest) (string, error) {
		return `{"follow_ups": []}`, nil
	}}
	service, _ := newTestService(t, noFollowUps)
	ctx := context.Background()

	session, err := service.Start(ctx, "emp-pam")
	require.NoError(t, err)

	for _, questionID := range []string{"q-1", "q-2", "q-3"} {
		require.NoError(t, service.Answer(ctx, session.ID, questionID, "answer"))
	}

	_, over, err := service.NextQuestion(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, over)

	err = service.Answer(ctx, session.ID, "q-3", "late answer")
	require.ErrorIs(t, err, interview.ErrUnknownQuestion)
}
