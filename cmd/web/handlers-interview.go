package main

import (
	"net/http"
	"strings"

	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/interview"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
)

type questionResponse struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	IsFollowUp bool   `json:"is_follow_up"`
}

// nextQuestionResponse is the shared shape of the next-question and answer
// endpoints. Question is null when the interview is over.
type nextQuestionResponse struct {
	InterviewOver bool              `json:"interview_over"`
	Question      *questionResponse `json:"question"`
}

func toNextQuestionResponse(question *models.Question, over bool) nextQuestionResponse {
	response := nextQuestionResponse{InterviewOver: over}
	if question != nil {
		response.Question = &questionResponse{
			ID:         question.ID,
			Content:    question.Content,
			IsFollowUp: question.IsFollowUp,
		}
	}
	return response
}

func (app *application) startInterview(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EmployeeID string `json:"employee_id"`
	}
	if !app.readJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.EmployeeID) == "" {
		app.clientError(w, r, http.StatusBadRequest, "employee_id is required")
		return
	}

	session, err := app.interviews.Start(r.Context(), request.EmployeeID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.clientError(w, r, http.StatusNotFound, "employee not found")
			return
		}
		app.serverError(w, r, err)
		return
	}

	app.writeJSON(w, r, http.StatusCreated, map[string]string{
		"interview_id": session.ID,
		"employee_id":  session.EmployeeID,
		"status":       string(session.Status),
	})
}

func (app *application) nextQuestion(w http.ResponseWriter, r *http.Request) {
	question, over, err := app.interviews.NextQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.clientError(w, r, http.StatusNotFound, "interview not found")
			return
		}
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, toNextQuestionResponse(question, over))
}

func (app *application) answerQuestion(w http.ResponseWriter, r *http.Request) {
	interviewID := r.PathValue("id")
	var request struct {
		QuestionID string `json:"question_id"`
		Content    string `json:"content"`
	}
	if !app.readJSON(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.QuestionID) == "" || strings.TrimSpace(request.Content) == "" {
		app.clientError(w, r, http.StatusBadRequest, "question_id and content are required")
		return
	}

	err := app.interviews.Answer(r.Context(), interviewID, request.QuestionID, request.Content)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			app.clientError(w, r, http.StatusNotFound, "interview not found")
		case errors.Is(err, interview.ErrUnknownQuestion):
			app.clientError(w, r, http.StatusConflict, "question is not awaiting an answer")
		default:
			app.serverError(w, r, err)
		}
		return
	}

	question, over, err := app.interviews.NextQuestion(r.Context(), interviewID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, toNextQuestionResponse(question, over))
}
