package wiki_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/lorebook/internal/ai"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
	"github.com/myrjola/lorebook/internal/wiki"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_CompletedBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, req ai.CompletionRequest) (string, error) {
			if isPlannerRequest(req) {
				return validPlanJSON, nil
			}
			return "# Generated page\n\nGrounded in the answers.", nil
		},
	})

	build, err := env.orchestrator.Run(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusCompleted, build.Status)
	require.Empty(t, build.FailedSlugs)
	require.NotZero(t, build.FinishedAt)

	documents, err := env.builds.Documents(context.Background(), build.ID)
	require.NoError(t, err)
	require.Len(t, documents, 3)
	require.Equal(t, "index", documents[0].Slug)
	require.Equal(t, "Business Overview", documents[0].Section)
	for _, document := range documents {
		require.Equal(t, models.DocumentStatusDone, document.Status)
		require.Contains(t, document.Content, "# Generated page")
	}

	// The lease is released so the next build can start right away.
	_, err = env.orchestrator.Run(context.Background(), "acme")
	require.NoError(t, err)
}

func TestOrchestrator_PartialBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, req ai.CompletionRequest) (string, error) {
			if isPlannerRequest(req) {
				return validPlanJSON, nil
			}
			if strings.Contains(req.Messages[1].Content, `"Escalation"`) {
				return "", ai.ErrInvalidResponse
			}
			return "# Generated page", nil
		},
	})

	build, err := env.orchestrator.Run(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusPartial, build.Status)
	require.Equal(t, []string{"escalation"}, build.FailedSlugs)

	documents, err := env.builds.Documents(context.Background(), build.ID)
	require.NoError(t, err)
	done := 0
	for _, document := range documents {
		if document.Slug == "escalation" {
			require.Equal(t, models.DocumentStatusFailed, document.Status)
			require.Empty(t, document.Content)
			continue
		}
		require.Equal(t, models.DocumentStatusDone, document.Status)
		done++
	}
	require.Equal(t, 2, done)
}

func TestOrchestrator_InvalidPlanFailsBuild(t *testing.T) {
	t.Parallel()

	plannerCalls := 0
	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, req ai.CompletionRequest) (string, error) {
			require.True(t, isPlannerRequest(req))
			plannerCalls++
			return "here is your wiki plan in prose", nil
		},
	})

	build, err := env.orchestrator.Run(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusFailed, build.Status)
	require.Equal(t, "taxonomy_error", build.Reason)
	// One retry with a stricter prompt, nothing beyond it.
	require.Equal(t, 2, plannerCalls)

	documents, err := env.builds.Documents(context.Background(), build.ID)
	require.NoError(t, err)
	require.Empty(t, documents)
}

func TestOrchestrator_PlannerRecoversOnStricterRetry(t *testing.T) {
	t.Parallel()

	plannerCalls := 0
	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, req ai.CompletionRequest) (string, error) {
			if !isPlannerRequest(req) {
				return "# Generated page", nil
			}
			plannerCalls++
			if plannerCalls == 1 {
				return "not JSON at all", nil
			}
			require.Contains(t, req.Messages[0].Content, "previous plan was rejected")
			return validPlanJSON, nil
		},
	})

	build, err := env.orchestrator.Run(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusCompleted, build.Status)
}

func TestOrchestrator_LeaseBlocksConcurrentBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, _ ai.CompletionRequest) (string, error) {
			return validPlanJSON, nil
		},
	})

	err := env.builds.AcquireLease(context.Background(), "acme", "other-owner", time.Minute)
	require.NoError(t, err)

	_, err = env.orchestrator.Run(context.Background(), "acme")
	require.ErrorIs(t, err, repositories.ErrBuildAlreadyRunning)
}

func TestOrchestrator_EmptyCorpusFailsBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, _ ai.CompletionRequest) (string, error) {
			t.Error("no model call expected for an empty corpus")
			return "", nil
		},
	})

	business, err := env.businesses.Create(context.Background(), "Fresh Bakery")
	require.NoError(t, err)

	build, err := env.orchestrator.Run(context.Background(), business.ID)
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusFailed, build.Status)
	require.Equal(t, "no_completed_interviews", build.Reason)
}

func TestOrchestrator_CancelStopsGeneration(t *testing.T) {
	t.Parallel()

	writing := make(chan struct{}, 16)
	env := newTestEnv(t, ctxCompleter{
		complete: func(ctx context.Context, req ai.CompletionRequest) (string, error) {
			if isPlannerRequest(req) {
				return validPlanJSON, nil
			}
			writing <- struct{}{}
			<-ctx.Done()
			return "", ctx.Err()
		},
	})

	build, err := env.orchestrator.Start(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, models.BuildStatusRunning, build.Status)

	select {
	case <-writing:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}
	require.NoError(t, env.orchestrator.Cancel(build.ID))

	status := waitForFinish(t, env.orchestrator, "acme")
	require.Equal(t, models.BuildStatusFailed, status.Status)
	require.Equal(t, "cancelled", status.Reason)

	documents, err := env.builds.Documents(context.Background(), build.ID)
	require.NoError(t, err)
	for _, document := range documents {
		require.NotEqual(t, models.DocumentStatusDone, document.Status)
	}

	// The lease is released even for a cancelled build.
	_, err = env.builds.LatestBuild(context.Background(), "acme")
	require.NoError(t, err)
	err = env.builds.AcquireLease(context.Background(), "acme", "next-owner", time.Minute)
	require.NoError(t, err)
}

func TestOrchestrator_CancelUnknownBuild(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, ctxCompleter{
		complete: func(_ context.Context, _ ai.CompletionRequest) (string, error) {
			return "", nil
		},
	})

	err := env.orchestrator.Cancel("no-such-build")
	require.ErrorIs(t, err, wiki.ErrBuildNotRunning)
}

// waitForFinish polls the latest build until it leaves the running state.
func waitForFinish(t *testing.T, orchestrator *wiki.Orchestrator, businessID string) *models.WikiBuild {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		build, err := orchestrator.Status(context.Background(), businessID)
		require.NoError(t, err)
		if build.Status != models.BuildStatusRunning {
			return build
		}
		select {
		case <-deadline:
			t.Fatal("build never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
