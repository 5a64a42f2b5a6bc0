package interview

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
)

// ErrUnknownQuestion is returned when the answered question is not the one
// the interview is currently waiting on. Out-of-order answers are rejected,
// not silently accepted.
var ErrUnknownQuestion = errors.NewSentinel("question is not awaiting an answer")

// Service sequences scripted and follow-up questions for interview sessions.
//
// What question comes next is a pure function of persisted state: scripted
// questions in ascending order index, with pending follow-ups of the current
// scripted question offered before any later scripted question.
type Service struct {
	interviews *repositories.InterviewRepository
	engine     *FollowUpEngine
	logger     *slog.Logger
}

func NewService(
	interviews *repositories.InterviewRepository,
	engine *FollowUpEngine,
	logger *slog.Logger,
) *Service {
	return &Service{
		interviews: interviews,
		engine:     engine,
		logger:     logger.With("source", "interview.Service"),
	}
}

// Start creates a new interview session for the employee.
func (s *Service) Start(ctx context.Context, employeeID string) (models.Interview, error) {
	interview, err := s.interviews.Create(ctx, employeeID)
	if err != nil {
		return models.Interview{}, errors.Wrap(err, "create interview")
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "interview started",
		slog.String("interview_id", interview.ID),
		slog.String("employee_id", employeeID))
	return interview, nil
}

// NextQuestion returns the next unanswered question, or over=true when no
// questions remain. Repeated calls against unchanged state return the same
// question. Observing the terminal state marks the interview completed.
func (s *Service) NextQuestion(ctx context.Context, interviewID string) (*models.Question, bool, error) {
	interview, err := s.interviews.Get(ctx, interviewID)
	if err != nil {
		return nil, false, errors.Wrap(err, "get interview")
	}
	if interview.Status == models.InterviewStatusCompleted {
		return nil, true, nil
	}

	// Pending follow-ups of the current scripted question come before any
	// later scripted question.
	pending, err := s.interviews.PendingFollowUps(ctx, interviewID)
	if err != nil {
		return nil, false, errors.Wrap(err, "read pending follow-ups")
	}
	if len(pending) > 0 {
		return &pending[0], false, nil
	}

	answered, err := s.interviews.AnsweredQuestions(ctx, interviewID)
	if err != nil {
		return nil, false, errors.Wrap(err, "read answered questions")
	}
	answeredIDs := make(map[string]struct{}, len(answered))
	for _, qt := range answered {
		answeredIDs[qt.Question.ID] = struct{}{}
	}

	scripted, err := s.interviews.ScriptedQuestions(ctx, interview.BusinessID)
	if err != nil {
		return nil, false, errors.Wrap(err, "read scripted questions")
	}
	for i := range scripted {
		if _, ok := answeredIDs[scripted[i].ID]; !ok {
			return &scripted[i], false, nil
		}
	}

	// Every scripted question is answered and no follow-ups remain.
	if err = s.interviews.MarkCompleted(ctx, interviewID); err != nil {
		return nil, false, errors.Wrap(err, "mark interview completed")
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "interview completed", slog.String("interview_id", interviewID))
	return nil, true, nil
}

// Answer records the employee's answer to the currently awaited question and
// evaluates whether follow-up questions are needed before returning.
func (s *Service) Answer(ctx context.Context, interviewID string, questionID string, content string) error {
	awaited, over, err := s.NextQuestion(ctx, interviewID)
	if err != nil {
		return errors.Wrap(err, "determine awaited question")
	}
	if over {
		return errors.Wrap(ErrUnknownQuestion, "interview is over", slog.String("interview_id", interviewID))
	}
	if awaited.ID != questionID {
		return errors.Wrap(ErrUnknownQuestion, "out-of-order answer",
			slog.String("awaited_question_id", awaited.ID),
			slog.String("question_id", questionID))
	}

	if _, err = s.interviews.AppendTurn(ctx, interviewID, questionID, content); err != nil {
		return errors.Wrap(err, "append turn")
	}

	if err = s.evaluateFollowUps(ctx, interviewID, *awaited); err != nil {
		return errors.Wrap(err, "evaluate follow-ups")
	}

	// Observe the terminal state eagerly so that a fully answered interview
	// is marked completed without waiting for the next poll.
	if _, _, err = s.NextQuestion(ctx, interviewID); err != nil {
		return errors.Wrap(err, "advance interview state")
	}
	return nil
}

// evaluateFollowUps runs the decision engine against the scripted question's
// full thread and persists whatever fits within the round cap.
func (s *Service) evaluateFollowUps(ctx context.Context, interviewID string, answeredQuestion models.Question) error {
	interview, err := s.interviews.Get(ctx, interviewID)
	if err != nil {
		return errors.Wrap(err, "get interview")
	}

	scriptedID := answeredQuestion.ID
	if answeredQuestion.IsFollowUp {
		scriptedID = answeredQuestion.ParentQuestionID
	}

	count, err := s.interviews.FollowUpCount(ctx, interviewID, scriptedID)
	if err != nil {
		return errors.Wrap(err, "count follow-ups")
	}
	budget := maxFollowUpRounds - count
	if budget <= 0 {
		return nil
	}

	answered, err := s.interviews.AnsweredQuestions(ctx, interviewID)
	if err != nil {
		return errors.Wrap(err, "read answered questions")
	}
	var thread []repositories.QuestionTurn
	for _, qt := range answered {
		if qt.Question.ID == scriptedID || qt.Question.ParentQuestionID == scriptedID {
			thread = append(thread, qt)
		}
	}

	contents := s.engine.Evaluate(ctx, thread)
	if len(contents) > budget {
		contents = contents[:budget]
	}
	if len(contents) == 0 {
		return nil
	}

	followUps := make([]models.Question, len(contents))
	for i, followUpContent := range contents {
		followUps[i] = models.Question{
			ID:               uuid.NewString(),
			BusinessID:       interview.BusinessID,
			Content:          followUpContent,
			IsFollowUp:       true,
			ParentQuestionID: scriptedID,
			InterviewID:      interviewID,
			OrderIndex:       -1,
		}
	}
	if err = s.interviews.CreateFollowUps(ctx, followUps); err != nil {
		return errors.Wrap(err, "create follow-ups")
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "follow-ups generated",
		slog.String("interview_id", interviewID),
		slog.String("scripted_question_id", scriptedID),
		slog.Int("count", len(followUps)))
	return nil
}
