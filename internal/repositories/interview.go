package repositories

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/sqlite"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.NewSentinel("record not found")

type InterviewRepository struct {
	read   *sqlx.DB
	write  *sql.DB
	logger *slog.Logger
}

func NewInterviewRepository(dbs *sqlite.Database, logger *slog.Logger) *InterviewRepository {
	return &InterviewRepository{
		read:   sqlx.NewDb(dbs.ReadOnly, "sqlite3"),
		write:  dbs.ReadWrite,
		logger: logger.With("source", "InterviewRepository"),
	}
}

// QuestionTurn pairs a turn with the question it answered.
type QuestionTurn struct {
	Question models.Question `db:"question"`
	Turn     models.Turn     `db:"turn"`
}

// Create starts a new interview for the employee.
func (r *InterviewRepository) Create(ctx context.Context, employeeID string) (models.Interview, error) {
	var employee models.Employee
	stmt := `SELECT id, email, bio, business_id FROM employees WHERE id = ?`
	if err := r.read.GetContext(ctx, &employee, stmt, employeeID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Interview{}, errors.Wrap(ErrNotFound, "employee not found",
				slog.String("employee_id", employeeID))
		}
		return models.Interview{}, errors.Wrap(err, "read employee")
	}

	interview := models.Interview{
		ID:         uuid.NewString(),
		EmployeeID: employee.ID,
		BusinessID: employee.BusinessID,
		Status:     models.InterviewStatusInProgress,
	}
	stmt = `INSERT INTO interviews (id, employee_id, business_id, status) VALUES (?, ?, ?, ?)`
	if _, err := r.write.ExecContext(ctx, stmt,
		interview.ID, interview.EmployeeID, interview.BusinessID, interview.Status); err != nil {
		return models.Interview{}, errors.Wrap(err, "insert interview")
	}
	return interview, nil
}

// Get returns the interview with its turns in answer order.
func (r *InterviewRepository) Get(ctx context.Context, interviewID string) (*models.Interview, error) {
	var interview models.Interview
	stmt := `SELECT id, employee_id, business_id, status FROM interviews WHERE id = ?`
	if err := r.read.GetContext(ctx, &interview, stmt, interviewID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, "interview not found", slog.String("interview_id", interviewID))
		}
		return nil, errors.Wrap(err, "read interview")
	}

	stmt = `SELECT id, interview_id, question_id, content, order_index, answered
	FROM turns
	WHERE interview_id = ?
	ORDER BY order_index`
	if err := r.read.SelectContext(ctx, &interview.Turns, stmt, interviewID); err != nil {
		return nil, errors.Wrap(err, "read turns")
	}
	return &interview, nil
}

// AnsweredQuestions returns every turn of the interview joined with the
// question it answered, in answer order.
func (r *InterviewRepository) AnsweredQuestions(ctx context.Context, interviewID string) ([]QuestionTurn, error) {
	var result []QuestionTurn
	stmt := `SELECT q.id                 AS "question.id",
       q.business_id        AS "question.business_id",
       q.content            AS "question.content",
       q.is_follow_up       AS "question.is_follow_up",
       q.parent_question_id AS "question.parent_question_id",
       q.interview_id       AS "question.interview_id",
       q.order_index        AS "question.order_index",
       t.id                 AS "turn.id",
       t.interview_id       AS "turn.interview_id",
       t.question_id        AS "turn.question_id",
       t.content            AS "turn.content",
       t.order_index        AS "turn.order_index",
       t.answered           AS "turn.answered"
FROM turns t
         JOIN questions q ON q.id = t.question_id
WHERE t.interview_id = ?
ORDER BY t.order_index`
	if err := r.read.SelectContext(ctx, &result, stmt, interviewID); err != nil {
		return nil, errors.Wrap(err, "read answered questions")
	}
	return result, nil
}

// AppendTurn records an answer as the next turn of the interview.
func (r *InterviewRepository) AppendTurn(
	ctx context.Context,
	interviewID string,
	questionID string,
	content string,
) (models.Turn, error) {
	turn := models.Turn{
		InterviewID: interviewID,
		QuestionID:  questionID,
		Content:     content,
		Answered:    time.Now().UTC(),
	}
	stmt := `INSERT INTO turns (interview_id, question_id, content, order_index, answered)
VALUES (@interview_id, @question_id, @content,
        (SELECT COALESCE(MAX(order_index) + 1, 0) FROM turns WHERE interview_id = @interview_id),
        @answered)
RETURNING id, order_index`
	params := []any{
		sql.Named("interview_id", interviewID),
		sql.Named("question_id", questionID),
		sql.Named("content", content),
		sql.Named("answered", turn.Answered),
	}
	if err := r.write.QueryRowContext(ctx, stmt, params...).Scan(&turn.ID, &turn.OrderIndex); err != nil {
		return models.Turn{}, errors.Wrap(err, "insert turn")
	}
	return turn, nil
}

// ScriptedQuestions returns the business's scripted questions in ascending
// order index.
func (r *InterviewRepository) ScriptedQuestions(ctx context.Context, businessID string) ([]models.Question, error) {
	var questions []models.Question
	stmt := `SELECT id, business_id, content, is_follow_up, parent_question_id, interview_id, order_index
	FROM questions
	WHERE business_id = ? AND is_follow_up = 0
	ORDER BY order_index`
	if err := r.read.SelectContext(ctx, &questions, stmt, businessID); err != nil {
		return nil, errors.Wrap(err, "read scripted questions")
	}
	return questions, nil
}

// Question returns a single question by ID.
func (r *InterviewRepository) Question(ctx context.Context, questionID string) (models.Question, error) {
	var question models.Question
	stmt := `SELECT id, business_id, content, is_follow_up, parent_question_id, interview_id, order_index
	FROM questions
	WHERE id = ?`
	if err := r.read.GetContext(ctx, &question, stmt, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Question{}, errors.Wrap(ErrNotFound, "question not found",
				slog.String("question_id", questionID))
		}
		return models.Question{}, errors.Wrap(err, "read question")
	}
	return question, nil
}

// PendingFollowUps returns follow-ups generated in this interview that have
// not been answered yet, in creation order.
func (r *InterviewRepository) PendingFollowUps(ctx context.Context, interviewID string) ([]models.Question, error) {
	var questions []models.Question
	stmt := `SELECT q.id, q.business_id, q.content, q.is_follow_up, q.parent_question_id, q.interview_id, q.order_index
FROM questions q
WHERE q.interview_id = ?
  AND q.is_follow_up = 1
  AND NOT EXISTS (SELECT 1 FROM turns t WHERE t.interview_id = q.interview_id AND t.question_id = q.id)
ORDER BY q.rowid`
	if err := r.read.SelectContext(ctx, &questions, stmt, interviewID); err != nil {
		return nil, errors.Wrap(err, "read pending follow-ups")
	}
	return questions, nil
}

// FollowUpCount counts follow-ups generated for one scripted question within
// the interview, answered or not.
func (r *InterviewRepository) FollowUpCount(
	ctx context.Context,
	interviewID string,
	parentQuestionID string,
) (int, error) {
	var count int
	stmt := `SELECT COUNT(*) FROM questions WHERE interview_id = ? AND parent_question_id = ?`
	if err := r.read.GetContext(ctx, &count, stmt, interviewID, parentQuestionID); err != nil {
		return 0, errors.Wrap(err, "count follow-ups")
	}
	return count, nil
}

// CreateFollowUps persists generated follow-up questions. Follow-ups are
// append-only, they are never updated afterwards.
func (r *InterviewRepository) CreateFollowUps(ctx context.Context, questions []models.Question) error {
	stmt := `INSERT INTO questions (id, business_id, content, is_follow_up, parent_question_id, interview_id, order_index)
VALUES (?, ?, ?, 1, ?, ?, -1)`
	for _, question := range questions {
		if _, err := r.write.ExecContext(ctx, stmt,
			question.ID, question.BusinessID, question.Content,
			question.ParentQuestionID, question.InterviewID); err != nil {
			return errors.Wrap(err, "insert follow-up", slog.String("question_id", question.ID))
		}
	}
	return nil
}

// MarkCompleted transitions the interview to its terminal status.
func (r *InterviewRepository) MarkCompleted(ctx context.Context, interviewID string) error {
	stmt := `UPDATE interviews SET status = ? WHERE id = ?`
	if _, err := r.write.ExecContext(ctx, stmt, models.InterviewStatusCompleted, interviewID); err != nil {
		return errors.Wrap(err, "mark interview completed")
	}
	return nil
}

// CompletedInterviews returns the business's completed interviews without turns.
func (r *InterviewRepository) CompletedInterviews(ctx context.Context, businessID string) ([]models.Interview, error) {
	var interviews []models.Interview
	stmt := `SELECT id, employee_id, business_id, status FROM interviews WHERE business_id = ? AND status = ?`
	if err := r.read.SelectContext(ctx, &interviews, stmt, businessID, models.InterviewStatusCompleted); err != nil {
		return nil, errors.Wrap(err, "read completed interviews")
	}
	return interviews, nil
}
