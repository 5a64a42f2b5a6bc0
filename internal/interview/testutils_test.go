package interview_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/interview"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/sqlite"
	"github.com/myrjola/lorebook/internal/testhelpers"
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
`

// stubCompleter fakes the language-model collaborator.
type stubCompleter struct {
	complete func(req ai.CompletionRequest) (string, error)
}

func (s stubCompleter) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	return s.complete(req)
}

// testRetryPolicy keeps retry delays out of the test runtime.
func testRetryPolicy() ai.RetryPolicy {
	return ai.RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Retryable:   ai.IsTransient,
	}
}

// newTestService wires an interview service against an in-memory database and
// the given completer stub.
func newTestService(t *testing.T, completer ai.Completer) (*interview.Service, *repositories.InterviewRepository) {
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

	repo := repositories.NewInterviewRepository(dbs, logger)
	engine := interview.NewFollowUpEngine(completer, testRetryPolicy(), logger)
	return interview.NewService(repo, engine, logger), repo
}
