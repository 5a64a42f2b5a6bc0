package models

import "time"

// Limits for an accepted navigation plan. Planner output beyond these is
// truncated keeping the model's own emission order.
const (
	MaxPlanSections  = 5
	MaxPlanDocuments = 10
)

// NavigationPlan is the bounded documentation hierarchy planned from a
// business's interview corpus. Immutable once accepted by a build.
type NavigationPlan struct {
	Sections []PlanSection `json:"sections"`
}

type PlanSection struct {
	Name string    `json:"section_name"`
	Docs []DocStub `json:"docs"`
}

// DocStub is one planned document with the evidence turns that justify it.
type DocStub struct {
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	EvidenceTurnIDs []int64 `json:"evidence_turn_ids"`
}

// DocumentCount returns the total number of documents across all sections.
func (p NavigationPlan) DocumentCount() int {
	count := 0
	for _, section := range p.Sections {
		count += len(section.Docs)
	}
	return count
}

type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusGenerating DocumentStatus = "generating"
	DocumentStatusDone       DocumentStatus = "done"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is one generated wiki page. Mutated only by its own content
// generation task.
type Document struct {
	BuildID string         `db:"build_id"`
	Slug    string         `db:"slug"`
	Title   string         `db:"title"`
	Section string         `db:"section"`
	Content string         `db:"content"`
	Status  DocumentStatus `db:"status"`
}

type BuildStatus string

const (
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusCompleted BuildStatus = "completed"
	BuildStatusPartial   BuildStatus = "partial"
	BuildStatusFailed    BuildStatus = "failed"
)

// WikiBuild is one end-to-end invocation of the planning and content
// generation pipeline for a business.
type WikiBuild struct {
	ID         string      `db:"id"`
	BusinessID string      `db:"business_id"`
	Status     BuildStatus `db:"status"`
	// Reason carries the failure reason code for failed builds.
	Reason      string    `db:"reason"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	FailedSlugs []string  `db:"-"`
}
