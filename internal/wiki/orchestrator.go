package wiki

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/lorebook/internal/errors"
	"github.com/myrjola/lorebook/internal/models"
	"github.com/myrjola/lorebook/internal/repositories"
)

// ErrBuildNotRunning is returned by Cancel for unknown or finished builds.
var ErrBuildNotRunning = errors.NewSentinel("build is not running")

// Failure reason codes recorded on failed builds.
const (
	reasonTaxonomy  = "taxonomy_error"
	reasonNoCorpus  = "no_completed_interviews"
	reasonCancelled = "cancelled"
	reasonInternal  = "internal_error"
)

// Orchestrator runs the end-to-end wiki build for a business: plan the
// navigation, persist pending documents and fan content generation out over a
// bounded worker pool.
type Orchestrator struct {
	businesses *repositories.BusinessRepository
	interviews *repositories.InterviewRepository
	builds     *repositories.BuildRepository
	planner    *Planner
	writer     *Writer
	workers    int
	leaseTTL   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewOrchestrator(
	businesses *repositories.BusinessRepository,
	interviews *repositories.InterviewRepository,
	builds *repositories.BuildRepository,
	planner *Planner,
	writer *Writer,
	workers int,
	leaseTTL time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		businesses: businesses,
		interviews: interviews,
		builds:     builds,
		planner:    planner,
		writer:     writer,
		workers:    workers,
		leaseTTL:   leaseTTL,
		logger:     logger.With("source", "Orchestrator"),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Start acquires the business's build lease, records a running build and
// continues the build in the background. It returns
// repositories.ErrBuildAlreadyRunning when another build holds the lease.
func (o *Orchestrator) Start(ctx context.Context, businessID string) (models.WikiBuild, error) {
	build, ownerToken, err := o.begin(ctx, businessID)
	if err != nil {
		return models.WikiBuild{}, err
	}

	// The build outlives the request that started it.
	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.register(build.ID, cancel)
	go o.execute(buildCtx, build, ownerToken)
	return build, nil
}

// Run is the synchronous variant of Start. It returns the finished build.
func (o *Orchestrator) Run(ctx context.Context, businessID string) (models.WikiBuild, error) {
	build, ownerToken, err := o.begin(ctx, businessID)
	if err != nil {
		return models.WikiBuild{}, err
	}

	buildCtx, cancel := context.WithCancel(ctx)
	o.register(build.ID, cancel)
	o.execute(buildCtx, build, ownerToken)

	finished, err := o.builds.LatestBuild(context.WithoutCancel(ctx), businessID)
	if err != nil {
		return models.WikiBuild{}, errors.Wrap(err, "read finished build")
	}
	return *finished, nil
}

// Cancel stops a running build. Documents still generating when the
// cancellation is observed are marked failed, never done.
func (o *Orchestrator) Cancel(buildID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[buildID]
	o.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrBuildNotRunning, "cancel build", slog.String("build_id", buildID))
	}
	cancel()
	return nil
}

// Status reports the business's latest build with its failed document slugs.
func (o *Orchestrator) Status(ctx context.Context, businessID string) (*models.WikiBuild, error) {
	return o.builds.LatestBuild(ctx, businessID)
}

func (o *Orchestrator) begin(ctx context.Context, businessID string) (models.WikiBuild, string, error) {
	ownerToken := uuid.NewString()
	if err := o.builds.AcquireLease(ctx, businessID, ownerToken, o.leaseTTL); err != nil {
		return models.WikiBuild{}, "", err
	}

	build, err := o.builds.CreateBuild(ctx, businessID)
	if err != nil {
		if releaseErr := o.builds.ReleaseLease(ctx, businessID, ownerToken); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		return models.WikiBuild{}, "", errors.Wrap(err, "create build")
	}
	return build, ownerToken, nil
}

func (o *Orchestrator) register(buildID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[buildID] = cancel
	o.mu.Unlock()
}

// execute runs the build to its terminal status. Persistence after a
// cancellation uses a detached context so that the terminal status and the
// lease release always land.
func (o *Orchestrator) execute(ctx context.Context, build models.WikiBuild, ownerToken string) {
	persistCtx := context.WithoutCancel(ctx)
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.cancels[build.ID]; ok {
			cancel()
			delete(o.cancels, build.ID)
		}
		o.mu.Unlock()
		if err := o.builds.ReleaseLease(persistCtx, build.BusinessID, ownerToken); err != nil {
			o.logger.LogAttrs(persistCtx, slog.LevelError, "release build lease", errors.SlogError(err))
		}
	}()

	logger := o.logger.With(slog.String("build_id", build.ID), slog.String("business_id", build.BusinessID))

	status, reason := o.run(ctx, persistCtx, build, logger)
	if err := o.builds.FinishBuild(persistCtx, build.ID, status, reason); err != nil {
		logger.LogAttrs(persistCtx, slog.LevelError, "finish build", errors.SlogError(err))
		return
	}
	logger.LogAttrs(persistCtx, slog.LevelInfo, "build finished",
		slog.String("status", string(status)), slog.String("reason", reason))
}

func (o *Orchestrator) run(
	ctx context.Context,
	persistCtx context.Context,
	build models.WikiBuild,
	logger *slog.Logger,
) (models.BuildStatus, string) {
	corpus, err := LoadCorpus(ctx, o.businesses, o.interviews, build.BusinessID)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "load corpus", errors.SlogError(err))
		return models.BuildStatusFailed, reasonInternal
	}
	if corpus.Empty() {
		return models.BuildStatusFailed, reasonNoCorpus
	}

	plan, err := o.planner.Plan(ctx, corpus)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "plan navigation", errors.SlogError(err))
		switch {
		case errors.Is(err, ErrTaxonomy):
			return models.BuildStatusFailed, reasonTaxonomy
		case ctx.Err() != nil:
			return models.BuildStatusFailed, reasonCancelled
		default:
			return models.BuildStatusFailed, reasonInternal
		}
	}

	documents := make([]models.Document, 0, plan.DocumentCount())
	for _, section := range plan.Sections {
		for _, stub := range section.Docs {
			documents = append(documents, models.Document{
				BuildID: build.ID,
				Slug:    stub.Slug,
				Title:   stub.Title,
				Section: section.Name,
			})
		}
	}
	if err = o.builds.CreateDocuments(ctx, documents); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "persist pending documents", errors.SlogError(err))
		return models.BuildStatusFailed, reasonInternal
	}

	failed := o.generate(ctx, persistCtx, build.ID, corpus, plan, logger)

	switch {
	case ctx.Err() != nil:
		return models.BuildStatusFailed, reasonCancelled
	case failed == 0:
		return models.BuildStatusCompleted, ""
	default:
		// Done documents are kept even when siblings failed, failed slugs
		// can be retried in a later build without regenerating the rest.
		return models.BuildStatusPartial, ""
	}
}

type generationTask struct {
	section string
	stub    models.DocStub
}

// generate fans the planned documents out over the worker pool and returns
// the number of documents that ended up failed.
func (o *Orchestrator) generate(
	ctx context.Context,
	persistCtx context.Context,
	buildID string,
	corpus *Corpus,
	plan models.NavigationPlan,
	logger *slog.Logger,
) int {
	tasks := make(chan generationTask)
	results := make(chan error)

	workers := o.workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				results <- o.generateOne(ctx, persistCtx, buildID, corpus, plan, task, logger)
			}
		}()
	}
	go func() {
		defer close(tasks)
		for _, section := range plan.Sections {
			for _, stub := range section.Docs {
				select {
				case tasks <- generationTask{section: section.Name, stub: stub}:
				case <-ctx.Done():
					// Stop dispatching; documents never handed out stay pending.
					return
				}
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	failed := 0
	for err := range results {
		if err != nil {
			failed++
		}
	}
	return failed
}

func (o *Orchestrator) generateOne(
	ctx context.Context,
	persistCtx context.Context,
	buildID string,
	corpus *Corpus,
	plan models.NavigationPlan,
	task generationTask,
	logger *slog.Logger,
) error {
	slug := task.stub.Slug
	if err := o.builds.SetDocumentStatus(persistCtx, buildID, slug, models.DocumentStatusGenerating); err != nil {
		logger.LogAttrs(persistCtx, slog.LevelError, "mark document generating", errors.SlogError(err))
		return err
	}

	content, err := o.writer.Write(ctx, corpus, plan, task.section, task.stub)
	// A cancellation observed here must not let the document finish even when
	// the model call already returned content.
	if err == nil && ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), "build cancelled")
	}
	if err != nil {
		logger.LogAttrs(persistCtx, slog.LevelWarn, "document generation failed",
			slog.String("slug", slug), errors.SlogError(err))
		if statusErr := o.builds.SetDocumentStatus(persistCtx, buildID, slug, models.DocumentStatusFailed); statusErr != nil {
			logger.LogAttrs(persistCtx, slog.LevelError, "mark document failed", errors.SlogError(statusErr))
		}
		return err
	}

	if err = o.builds.FinishDocument(persistCtx, buildID, slug, content); err != nil {
		logger.LogAttrs(persistCtx, slog.LevelError, "finish document", errors.SlogError(err))
		return err
	}
	return nil
}
