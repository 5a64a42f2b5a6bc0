package models

import "time"

type Business struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

type Employee struct {
	ID         string `db:"id"`
	Email      string `db:"email"`
	Bio        string `db:"bio"`
	BusinessID string `db:"business_id"`
}

// Question is either a scripted question authored for a business or a
// follow-up generated during an interview.
type Question struct {
	ID         string `db:"id"`
	BusinessID string `db:"business_id"`
	Content    string `db:"content"`
	IsFollowUp bool   `db:"is_follow_up"`
	// ParentQuestionID points to the scripted question a follow-up belongs to.
	// Empty for scripted questions.
	ParentQuestionID string `db:"parent_question_id"`
	// InterviewID scopes a follow-up to the interview that produced it.
	// Empty for scripted questions.
	InterviewID string `db:"interview_id"`
	// OrderIndex orders scripted questions within a business. Follow-ups carry -1.
	OrderIndex int64 `db:"order_index"`
}

type InterviewStatus string

const (
	InterviewStatusInProgress InterviewStatus = "in_progress"
	InterviewStatusCompleted  InterviewStatus = "completed"
)

// Interview holds the state of one employee interview session.
type Interview struct {
	ID         string          `db:"id"`
	EmployeeID string          `db:"employee_id"`
	BusinessID string          `db:"business_id"`
	Status     InterviewStatus `db:"status"`
	Turns      []Turn          `db:"-"`
}

// Turn is one answered question within an interview. Order indices are
// strictly increasing per interview in the order questions were answered.
type Turn struct {
	ID          int64     `db:"id"`
	InterviewID string    `db:"interview_id"`
	QuestionID  string    `db:"question_id"`
	Content     string    `db:"content"`
	OrderIndex  int64     `db:"order_index"`
	Answered    time.Time `db:"answered"`
}
