package wiki_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/myrjola/lorebook/internal/testhelpers"
	"github.com/myrjola/lorebook/internal/wiki"
)

const testFixtures = `
INSERT INTO businesses (id, name)
VALUES ('acme', 'Acme Logistics');

INSERT INTO employees (id, email, bio, business_id)
VALUES ('emp-pam', 'pam@acme.example', 'Office administrator', 'acme'),
       ('emp-jim', 'jim@acme.example', 'Sales lead', 'acme');

INSERT INTO questions (id, business_id, content, is_follow_up, order_index)
VALUES ('q-1', 'acme', 'What are your main responsibilities?', 0, 0),
       ('q-2', 'acme', 'Which tools do you use daily?', 0, 1),
       ('q-3', 'acme', 'How do you escalate problems?', 0, 2);

INSERT INTO interviews (id, employee_id, business_id, status)
VALUES ('int-pam', 'emp-pam', 'acme', 'completed'),
       ('int-jim', 'emp-jim', 'acme', 'completed'),
       ('int-open', 'emp-jim', 'acme', 'in_progress');

INSERT INTO turns (id, interview_id, question_id, content, order_index, answered)
VALUES (1, 'int-pam', 'q-1', 'I run the office and handle invoicing.', 0, '2026-08-01 10:00:00'),
       (2, 'int-pam', 'q-2', 'Mostly the ERP and a shared spreadsheet.', 1, '2026-08-01 10:05:00'),
       (3, 'int-jim', 'q-1', 'I own the sales pipeline end to end.', 0, '2026-08-02 09:00:00'),
       (4, 'int-jim', 'q-3', 'Anything stuck over a week goes to the owner.', 1, '2026-08-02 09:05:00'),
       (5, 'int-open', 'q-1', 'Still being interviewed.', 0, '2026-08-03 09:00:00');
`

// validPlanJSON references the turn IDs seeded by testFixtures.
const validPlanJSON = `{"sections": [
  {"section_name": "Business Overview", "docs": [
    {"title": "Overview", "slug": "index", "evidence_turn_ids": [1, 3]}]},
  {"section_name": "Operations", "docs": [
    {"title": "Daily Tools", "slug": "daily-tools", "evidence_turn_ids": [2]},
    {"title": "Escalation", "slug": "escalation", "evidence_turn_ids": [4]}]}]}`

// ctxCompleter fakes the language-model collaborator for both the planner and
// the writer.
type ctxCompleter struct {
	complete func(ctx context.Context, req ai.CompletionRequest) (string, error)
}

func (s ctxCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	return s.complete(ctx, req)
}

// isPlannerRequest tells planner prompts apart from writer prompts.
func isPlannerRequest(req ai.CompletionRequest) bool {
	return strings.Contains(req.Messages[0].Content, "knowledge architect")
}

func testRetryPolicy() ai.RetryPolicy {
	return ai.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   ai.IsTransient,
	}
}

type testEnv struct {
	orchestrator *wiki.Orchestrator
	businesses   *repositories.BusinessRepository
	interviews   *repositories.InterviewRepository
	builds       *repositories.BuildRepository
}

// newTestEnv wires an orchestrator against an in-memory database and the
// given completer stub.
func newTestEnv(t *testing.T, completer ai.Completer) testEnv {
	t.Helper()

	logger := testhelpers.NewLogger(io.Discard)
	dbs, err := sqlite.NewDatabase(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = dbs.ReadWrite.Exec(testFixtures); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err = dbs.Close(); err != nil {
			t.Fatal(err)
		}
	})

	env := testEnv{
		businesses: repositories.NewBusinessRepository(dbs, logger),
		interviews: repositories.NewInterviewRepository(dbs, logger),
		builds:     repositories.NewBuildRepository(dbs, logger),
	}
	retry := testRetryPolicy()
	env.orchestrator = wiki.NewOrchestrator(
		env.businesses,
		env.interviews,
		env.builds,
		wiki.NewPlanner(completer, retry, logger),
		wiki.NewWriter(completer, retry, logger),
		3,
		time.Minute,
		logger,
	)
	return env
}
