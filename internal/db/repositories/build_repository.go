// build_repository.go implements BuildRepository, tracking release builds from
// queueing to their terminal status.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// BuildRepository handles database operations for builds
type BuildRepository struct {
	db *sqlx.DB
}

// NewBuildRepository creates a new build repository
func NewBuildRepository(db *sqlx.DB) *BuildRepository {
	return &BuildRepository{db: db}
}

// CreateBuild records a queued build.
func (r *BuildRepository) CreateBuild(ctx context.Context, build *models.Build) error {
	if build.Status == "" {
		build.Status = models.BuildStatusQueued
	}
	if build.Assets == nil {
		build.Assets = models.ReleaseAssets{}
	}

	query := `
		INSERT INTO builds (id, module, version, status, message, assets)
		VALUES (:id, :module, :version, :status, :message, :assets)
		RETURNING created_at, updated_at`

	rows, err := r.db.NamedQueryContext(ctx, query, build)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&build.CreatedAt, &build.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create build: %w", err)
		}
	}
	return rows.Err()
}

// GetBuild retrieves a build by id. It returns nil, nil when absent.
func (r *BuildRepository) GetBuild(ctx context.Context, id string) (*models.Build, error) {
	var build models.Build
	query := `SELECT id, module, version, status, message, assets, created_at, updated_at FROM builds WHERE id = $1`
	err := r.db.GetContext(ctx, &build, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return &build, nil
}

// SetBuildSuccess moves a queued build to success. It reports false when the
// build was not queued, leaving terminal builds untouched.
func (r *BuildRepository) SetBuildSuccess(ctx context.Context, id string) (bool, error) {
	return r.finish(ctx, id, models.BuildStatusSuccess, "")
}

// SetBuildError moves a queued build to error with a message.
func (r *BuildRepository) SetBuildError(ctx context.Context, id, message string) (bool, error) {
	return r.finish(ctx, id, models.BuildStatusError, message)
}

func (r *BuildRepository) finish(ctx context.Context, id, status, message string) (bool, error) {
	query := `
		UPDATE builds
		SET status = $2, message = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'queued'`

	result, err := r.db.ExecContext(ctx, query, id, status, message)
	if err != nil {
		return false, fmt.Errorf("failed to update build status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// TouchBuild bumps updated_at so a requeued build is not swept again at once.
func (r *BuildRepository) TouchBuild(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE builds SET updated_at = NOW() WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return fmt.Errorf("failed to touch build: %w", err)
	}
	return nil
}

// ListPendingBuilds returns queued builds not updated since olderThan, oldest
// first.
func (r *BuildRepository) ListPendingBuilds(ctx context.Context, olderThan time.Time, limit int) ([]models.Build, error) {
	var builds []models.Build
	query := `
		SELECT id, module, version, status, message, assets, created_at, updated_at
		FROM builds
		WHERE status = 'queued' AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &builds, query, olderThan, limit); err != nil {
		return nil, fmt.Errorf("failed to list pending builds: %w", err)
	}
	return builds, nil
}
