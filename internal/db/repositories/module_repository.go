// module_repository.go implements ModuleRepository, providing database queries for modules
// and their published versions, including the latest-version pointer.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// ErrVersionExists is returned by CreateVersion when (module, major, minor,
// patch) is already published.
var ErrVersionExists = errors.New("version already exists")

// Pagination bounds for ListModules.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 20
)

const uniqueViolation = "23505"

// ModuleRepository handles database operations for modules
type ModuleRepository struct {
	db *sql.DB
}

// NewModuleRepository creates a new module repository
func NewModuleRepository(db *sql.DB) *ModuleRepository {
	return &ModuleRepository{db: db}
}

const moduleSelect = `
	SELECT m.name, m.kind, m.repo_id, m.owner, m.repo, m.description, m.star_count,
	       m.is_unlisted, m.created_at, m.updated_at, lv.major, lv.minor, lv.patch
	FROM modules m
	LEFT JOIN module_versions lv ON lv.id = m.latest_version_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (*models.Module, error) {
	m := &models.Module{}
	var major, minor, patch sql.NullInt64
	err := row.Scan(
		&m.Name,
		&m.Kind,
		&m.RepoID,
		&m.Owner,
		&m.Repo,
		&m.Description,
		&m.StarCount,
		&m.IsUnlisted,
		&m.CreatedAt,
		&m.UpdatedAt,
		&major,
		&minor,
		&patch,
	)
	if err != nil {
		return nil, err
	}
	if major.Valid && minor.Valid && patch.Valid {
		latest := fmt.Sprintf("%d.%d.%d", major.Int64, minor.Int64, patch.Int64)
		m.LatestVersion = &latest
	}
	return m, nil
}

// GetModule retrieves a module with its latest version and the full version
// list, newest first. It returns nil, nil when the module does not exist.
func (r *ModuleRepository) GetModule(ctx context.Context, name string) (*models.Module, error) {
	module, err := scanModule(r.db.QueryRowContext(ctx, moduleSelect+" WHERE m.name = $1", name))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get module: %w", err)
	}

	versions, err := r.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	module.Versions = versions

	return module, nil
}

// ListVersions returns the module's versions ordered major, minor, patch
// descending.
func (r *ModuleRepository) ListVersions(ctx context.Context, module string) ([]string, error) {
	query := `
		SELECT major, minor, patch
		FROM module_versions
		WHERE module = $1
		ORDER BY major DESC, minor DESC, patch DESC
	`

	rows, err := r.db.QueryContext(ctx, query, module)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []string{}
	for rows.Next() {
		var major, minor, patch int64
		if err := rows.Scan(&major, &minor, &patch); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, fmt.Sprintf("%d.%d.%d", major, minor, patch))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// UpsertModule inserts a module or refreshes its repository metadata. The
// kind and repository id of an existing module are never changed here.
func (r *ModuleRepository) UpsertModule(ctx context.Context, module *models.Module) error {
	query := `
		INSERT INTO modules (name, kind, repo_id, owner, repo, description, star_count, is_unlisted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner,
		    repo = EXCLUDED.repo,
		    description = EXCLUDED.description,
		    star_count = EXCLUDED.star_count,
		    is_unlisted = EXCLUDED.is_unlisted,
		    updated_at = NOW()
		RETURNING kind, repo_id, created_at, updated_at
	`

	if module.Kind == "" {
		module.Kind = models.ModuleKindProvider
	}

	err := r.db.QueryRowContext(ctx, query,
		module.Name,
		module.Kind,
		module.RepoID,
		module.Owner,
		module.Repo,
		module.Description,
		module.StarCount,
		module.IsUnlisted,
	).Scan(&module.Kind, &module.RepoID, &module.CreatedAt, &module.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert module: %w", err)
	}

	return nil
}

const versionColumns = `id, module, entrypoint, major, minor, patch, linux_x86, macos_x86, windows_x86, doc, readme, created_at`

// GetVersion retrieves one published version. It returns nil, nil when absent.
func (r *ModuleRepository) GetVersion(ctx context.Context, module string, major, minor, patch uint64) (*models.ModuleVersion, error) {
	query := `SELECT ` + versionColumns + `
		FROM module_versions
		WHERE module = $1 AND major = $2 AND minor = $3 AND patch = $4
	`

	v := &models.ModuleVersion{}
	var doc []byte
	err := r.db.QueryRowContext(ctx, query, module, major, minor, patch).Scan(
		&v.ID,
		&v.Module,
		&v.Entrypoint,
		&v.Major,
		&v.Minor,
		&v.Patch,
		&v.LinuxX86,
		&v.MacOSX86,
		&v.WindowsX86,
		&doc,
		&v.Readme,
		&v.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module version: %w", err)
	}
	v.Doc = doc

	return v, nil
}

// VersionExists is the cheap pre-check used before queueing or building.
func (r *ModuleRepository) VersionExists(ctx context.Context, module string, major, minor, patch uint64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM module_versions
			WHERE module = $1 AND major = $2 AND minor = $3 AND patch = $4
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, module, major, minor, patch).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check module version: %w", err)
	}
	return exists, nil
}

// CreateVersion inserts a module version and returns its id. A concurrent or
// repeated insert of the same identity yields ErrVersionExists.
func (r *ModuleRepository) CreateVersion(ctx context.Context, version *models.ModuleVersion) (int64, error) {
	query := `
		INSERT INTO module_versions
		  (module, entrypoint, major, minor, patch, linux_x86, macos_x86, windows_x86, doc, readme)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	doc := []byte(version.Doc)
	if len(doc) == 0 {
		doc = []byte("[]")
	}

	err := r.db.QueryRowContext(ctx, query,
		version.Module,
		version.Entrypoint,
		version.Major,
		version.Minor,
		version.Patch,
		version.LinuxX86,
		version.MacOSX86,
		version.WindowsX86,
		doc,
		version.Readme,
	).Scan(&version.ID, &version.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrVersionExists
		}
		return 0, fmt.Errorf("failed to create module version: %w", err)
	}

	return version.ID, nil
}

// SetLatestVersion points the module at versionID unless the current latest
// version orders above it. It reports whether the pointer moved.
func (r *ModuleRepository) SetLatestVersion(ctx context.Context, module string, versionID int64) (bool, error) {
	query := `
		UPDATE modules m
		SET latest_version_id = nv.id, updated_at = NOW()
		FROM module_versions nv
		WHERE m.name = $1
		  AND nv.id = $2
		  AND nv.module = m.name
		  AND (
		    m.latest_version_id IS NULL
		    OR (nv.major, nv.minor, nv.patch) >= (
		      SELECT cv.major, cv.minor, cv.patch
		      FROM module_versions cv
		      WHERE cv.id = m.latest_version_id
		    )
		  )
	`

	result, err := r.db.ExecContext(ctx, query, module, versionID)
	if err != nil {
		return false, fmt.Errorf("failed to set latest version: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// NormalizePage applies the default page and limit and caps the limit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// ListModules lists listed modules of one kind, newest first, together with
// the total number of matching modules.
func (r *ModuleRepository) ListModules(ctx context.Context, kind string, page, limit int) ([]*models.Module, int, error) {
	page, limit = NormalizePage(page, limit)

	var total int
	countQuery := `SELECT COUNT(*) FROM modules WHERE kind = $1 AND NOT is_unlisted`
	if err := r.db.QueryRowContext(ctx, countQuery, kind).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count modules: %w", err)
	}

	query := moduleSelect + `
		WHERE m.kind = $1 AND NOT m.is_unlisted
		ORDER BY m.created_at DESC, m.name
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, kind, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	modules := []*models.Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list modules: %w", err)
	}

	return modules, total, nil
}
