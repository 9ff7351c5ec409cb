package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var buildCols = []string{"id", "module", "version", "status", "message", "assets", "created_at", "updated_at"}

func newBuildRepo(t *testing.T) (*BuildRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBuildRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleBuildRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(buildCols).
		AddRow("b-1", "neon", "v1.0.0", status, "",
			[]byte(`[{"name":"libneon.so","browser_download_url":"https://example.com/libneon.so"}]`),
			time.Now(), time.Now())
}

// ---------------------------------------------------------------------------
// CreateBuild
// ---------------------------------------------------------------------------

func TestCreateBuild_Success(t *testing.T) {
	repo, mock := newBuildRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO builds").
		WithArgs("b-1", "neon", "v1.0.0", "queued", "", []byte("[]")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	b := &models.Build{ID: "b-1", Module: "neon", Version: "v1.0.0"}
	if err := repo.CreateBuild(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != models.BuildStatusQueued {
		t.Errorf("Status = %q, want queued", b.Status)
	}
	if !b.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", b.CreatedAt, now)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateBuild_DBError(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectQuery("INSERT INTO builds").WillReturnError(errDB)

	if err := repo.CreateBuild(context.Background(), &models.Build{ID: "b-1"}); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}

// ---------------------------------------------------------------------------
// GetBuild
// ---------------------------------------------------------------------------

func TestGetBuild_Found(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectQuery("SELECT.*FROM builds WHERE id").
		WithArgs("b-1").
		WillReturnRows(sampleBuildRow("success"))

	b, err := repo.GetBuild(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b == nil || b.Status != "success" {
		t.Fatalf("build = %+v, want status success", b)
	}
	if len(b.Assets) != 1 || b.Assets[0].Name != "libneon.so" {
		t.Errorf("Assets = %+v", b.Assets)
	}
}

func TestGetBuild_NotFound(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectQuery("SELECT.*FROM builds").WillReturnRows(sqlmock.NewRows(buildCols))

	b, err := repo.GetBuild(context.Background(), "missing")
	if err != nil || b != nil {
		t.Errorf("GetBuild = %v, %v; want nil, nil", b, err)
	}
}

// ---------------------------------------------------------------------------
// SetBuildSuccess / SetBuildError
// ---------------------------------------------------------------------------

func TestSetBuildSuccess_Queued(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectExec("UPDATE builds.*WHERE id = \\$1 AND status = 'queued'").
		WithArgs("b-1", "success", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.SetBuildSuccess(context.Background(), "b-1")
	if err != nil || !ok {
		t.Errorf("SetBuildSuccess = %v, %v; want true, nil", ok, err)
	}
}

func TestSetBuildError_AlreadyTerminal(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectExec("UPDATE builds").
		WithArgs("b-1", "error", "invalid version").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetBuildError(context.Background(), "b-1", "invalid version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("SetBuildError on a terminal build reported a change")
	}
}

func TestSetBuildError_DBError(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectExec("UPDATE builds").WillReturnError(errDB)

	if _, err := repo.SetBuildError(context.Background(), "b-1", "x"); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}

func TestTouchBuild(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectExec("UPDATE builds SET updated_at").
		WithArgs("b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.TouchBuild(context.Background(), "b-1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// ListPendingBuilds
// ---------------------------------------------------------------------------

func TestListPendingBuilds(t *testing.T) {
	repo, mock := newBuildRepo(t)
	cutoff := time.Now().Add(-10 * time.Minute)
	mock.ExpectQuery("SELECT.*FROM builds.*WHERE status = 'queued' AND updated_at < \\$1").
		WithArgs(cutoff, 50).
		WillReturnRows(sampleBuildRow("queued"))

	builds, err := repo.ListPendingBuilds(context.Background(), cutoff, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(builds) != 1 || builds[0].ID != "b-1" {
		t.Errorf("builds = %+v", builds)
	}
}

func TestListPendingBuilds_DBError(t *testing.T) {
	repo, mock := newBuildRepo(t)
	mock.ExpectQuery("SELECT.*FROM builds").WillReturnError(errDB)

	if _, err := repo.ListPendingBuilds(context.Background(), time.Now(), 10); !errors.Is(err, errDB) {
		t.Errorf("err = %v, want wrapped errDB", err)
	}
}
