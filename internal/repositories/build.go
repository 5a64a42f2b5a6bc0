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

// ErrBuildAlreadyRunning is returned when a build lease is already held for
// the business.
var ErrBuildAlreadyRunning = errors.NewSentinel("a wiki build is already running for this business")

type BuildRepository struct {
	read   *sqlx.DB
	write  *sql.DB
	logger *slog.Logger
}

func NewBuildRepository(dbs *sqlite.Database, logger *slog.Logger) *BuildRepository {
	return &BuildRepository{
		read:   sqlx.NewDb(dbs.ReadOnly, "sqlite3"),
		write:  dbs.ReadWrite,
		logger: logger.With("source", "BuildRepository"),
	}
}

// AcquireLease takes the per-business build lease. The lease lives in shared
// storage so that it survives process restarts; an expired lease can be taken
// over by a new owner.
func (r *BuildRepository) AcquireLease(
	ctx context.Context,
	businessID string,
	ownerToken string,
	ttl time.Duration,
) error {
	now := time.Now().UTC()
	stmt := `INSERT INTO build_leases (business_id, owner_token, expires_at)
VALUES (@business_id, @owner_token, @expires_at)
ON CONFLICT (business_id) DO UPDATE SET owner_token = excluded.owner_token,
                                        expires_at  = excluded.expires_at
WHERE build_leases.expires_at < @now`
	params := []any{
		sql.Named("business_id", businessID),
		sql.Named("owner_token", ownerToken),
		sql.Named("expires_at", now.Add(ttl)),
		sql.Named("now", now),
	}
	result, err := r.write.ExecContext(ctx, stmt, params...)
	if err != nil {
		return errors.Wrap(err, "insert lease")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "lease rows affected")
	}
	if affected == 0 {
		return errors.Wrap(ErrBuildAlreadyRunning, "lease held", slog.String("business_id", businessID))
	}
	return nil
}

// ReleaseLease drops the lease if it is still held by the given owner.
func (r *BuildRepository) ReleaseLease(ctx context.Context, businessID string, ownerToken string) error {
	stmt := `DELETE FROM build_leases WHERE business_id = ? AND owner_token = ?`
	if _, err := r.write.ExecContext(ctx, stmt, businessID, ownerToken); err != nil {
		return errors.Wrap(err, "delete lease")
	}
	return nil
}

// CreateBuild records a new running build for the business.
func (r *BuildRepository) CreateBuild(ctx context.Context, businessID string) (models.WikiBuild, error) {
	build := models.WikiBuild{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Status:     models.BuildStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	stmt := `INSERT INTO wiki_builds (id, business_id, status, started_at) VALUES (?, ?, ?, ?)`
	if _, err := r.write.ExecContext(ctx, stmt,
		build.ID, build.BusinessID, build.Status, build.StartedAt); err != nil {
		return models.WikiBuild{}, errors.Wrap(err, "insert build")
	}
	return build, nil
}

// FinishBuild records the terminal status of a build.
func (r *BuildRepository) FinishBuild(
	ctx context.Context,
	buildID string,
	status models.BuildStatus,
	reason string,
) error {
	stmt := `UPDATE wiki_builds SET status = ?, reason = ?, finished_at = ? WHERE id = ?`
	if _, err := r.write.ExecContext(ctx, stmt, status, reason, time.Now().UTC(), buildID); err != nil {
		return errors.Wrap(err, "finish build")
	}
	return nil
}

// LatestBuild returns the most recently started build for the business with
// its failed document slugs.
func (r *BuildRepository) LatestBuild(ctx context.Context, businessID string) (*models.WikiBuild, error) {
	var (
		build    models.WikiBuild
		finished sql.NullTime
	)
	stmt := `SELECT id, business_id, status, reason, started_at, finished_at
	FROM wiki_builds
	WHERE business_id = ?
	ORDER BY started_at DESC, rowid DESC
	LIMIT 1`
	err := r.read.QueryRowContext(ctx, stmt, businessID).Scan(
		&build.ID, &build.BusinessID, &build.Status, &build.Reason, &build.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrNotFound, "no builds for business", slog.String("business_id", businessID))
		}
		return nil, errors.Wrap(err, "read latest build")
	}
	if finished.Valid {
		build.FinishedAt = finished.Time
	}

	stmt = `SELECT slug FROM documents WHERE build_id = ? AND status = ? ORDER BY slug`
	if err = r.read.SelectContext(ctx, &build.FailedSlugs, stmt, build.ID, models.DocumentStatusFailed); err != nil {
		return nil, errors.Wrap(err, "read failed slugs")
	}
	return &build, nil
}

// CreateDocuments persists pending documents for every planned stub.
func (r *BuildRepository) CreateDocuments(ctx context.Context, documents []models.Document) error {
	stmt := `INSERT INTO documents (build_id, slug, title, section, content, status) VALUES (?, ?, ?, ?, '', ?)`
	for _, document := range documents {
		if _, err := r.write.ExecContext(ctx, stmt,
			document.BuildID, document.Slug, document.Title, document.Section,
			models.DocumentStatusPending); err != nil {
			return errors.Wrap(err, "insert document", slog.String("slug", document.Slug))
		}
	}
	return nil
}

// SetDocumentStatus transitions a document without touching its content.
func (r *BuildRepository) SetDocumentStatus(
	ctx context.Context,
	buildID string,
	slug string,
	status models.DocumentStatus,
) error {
	stmt := `UPDATE documents SET status = ? WHERE build_id = ? AND slug = ?`
	if _, err := r.write.ExecContext(ctx, stmt, status, buildID, slug); err != nil {
		return errors.Wrap(err, "set document status", slog.String("slug", slug))
	}
	return nil
}

// FinishDocument stores the generated content and marks the document done.
func (r *BuildRepository) FinishDocument(ctx context.Context, buildID string, slug string, content string) error {
	stmt := `UPDATE documents SET content = ?, status = ? WHERE build_id = ? AND slug = ?`
	if _, err := r.write.ExecContext(ctx, stmt, content, models.DocumentStatusDone, buildID, slug); err != nil {
		return errors.Wrap(err, "finish document", slog.String("slug", slug))
	}
	return nil
}

// Documents returns the build's documents in plan order.
func (r *BuildRepository) Documents(ctx context.Context, buildID string) ([]models.Document, error) {
	var documents []models.Document
	stmt := `SELECT build_id, slug, title, section, content, status FROM documents WHERE build_id = ? ORDER BY rowid`
	if err := r.read.SelectContext(ctx, &documents, stmt, buildID); err != nil {
		return nil, errors.Wrap(err, "read documents")
	}
	return documents, nil
}
