package main

import (
	"net/http"
	"time"

	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/wiki"
)

func (app *application) buildWiki(w http.ResponseWriter, r *http.Request) {
	businessID := r.PathValue("id")
	if _, err := app.businesses.Get(r.Context(), businessID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.clientError(w, r, http.StatusNotFound, "business not found")
			return
		}
		app.serverError(w, r, err)
		return
	}

	build, err := app.orchestrator.Start(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, repositories.ErrBuildAlreadyRunning) {
			app.clientError(w, r, http.StatusConflict, "a wiki build is already running for this business")
			return
		}
		app.serverError(w, r, err)
		return
	}

	app.writeJSON(w, r, http.StatusAccepted, map[string]string{
		"build_id": build.ID,
		"status":   string(build.Status),
	})
}

type buildStatusResponse struct {
	BuildID     string     `json:"build_id"`
	BusinessID  string     `json:"business_id"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	FailedSlugs []string   `json:"failed_slugs"`
	Sections    int        `json:"sections"`
	Documents   int        `json:"documents"`
	DocsDone    int        `json:"documents_done"`
}

func (app *application) buildStatus(w http.ResponseWriter, r *http.Request) {
	businessID := r.PathValue("id")
	build, err := app.orchestrator.Status(r.Context(), businessID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			app.clientError(w, r, http.StatusNotFound, "no wiki builds for business")
			return
		}
		app.serverError(w, r, err)
		return
	}

	documents, err := app.builds.Documents(r.Context(), build.ID)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	sections := make(map[string]struct{})
	done := 0
	for _, document := range documents {
		sections[document.Section] = struct{}{}
		if document.Status == models.DocumentStatusDone {
			done++
		}
	}

	response := buildStatusResponse{
		BuildID:     build.ID,
		BusinessID:  build.BusinessID,
		Status:      string(build.Status),
		Reason:      build.Reason,
		StartedAt:   build.StartedAt,
		FailedSlugs: build.FailedSlugs,
		Sections:    len(sections),
		Documents:   len(documents),
		DocsDone:    done,
	}
	if !build.FinishedAt.IsZero() {
		response.FinishedAt = &build.FinishedAt
	}
	if response.FailedSlugs == nil {
		response.FailedSlugs = []string{}
	}
	app.writeJSON(w, r, http.StatusOK, response)
}

func (app *application) cancelBuild(w http.ResponseWriter, r *http.Request) {
	if err := app.orchestrator.Cancel(r.PathValue("id")); err != nil {
		if errors.Is(err, wiki.ErrBuildNotRunning) {
			app.clientError(w, r, http.StatusNotFound, "build is not running")
			return
		}
		app.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
