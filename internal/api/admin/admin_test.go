package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutshimit/mashin-registry/internal/auth"
	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/services"
)

var errDB = errors.New("db error")

type response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, url, body string) (int, response) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, url, bytes.NewBufferString(body)))
	var resp response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return w.Code, resp
}

// ---------------------------------------------------------------------------
// Builds
// ---------------------------------------------------------------------------

type fakeBuilds struct {
	builds map[string]*models.Build
	err    error
}

func (f *fakeBuilds) GetBuild(_ context.Context, id string) (*models.Build, error) {
	return f.builds[id], f.err
}

func TestGetBuild(t *testing.T) {
	builds := &fakeBuilds{builds: map[string]*models.Build{
		"b-1": {ID: "b-1", Module: "neon", Version: "v0.1.0", Status: models.BuildStatusError, Message: "invalid version"},
	}}

	tests := []struct {
		name       string
		builds     *fakeBuilds
		id         string
		wantStatus int
	}{
		{"found", builds, "b-1", http.StatusOK},
		{"missing", builds, "b-2", http.StatusNotFound},
		{"db error", &fakeBuilds{err: errDB}, "b-1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/api/v1/builds/:id", NewBuildHandlers(tt.builds).GetBuild)

			status, resp := do(t, r, http.MethodGet, "/api/v1/builds/"+tt.id, "")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if status != http.StatusOK {
				return
			}
			var b models.Build
			if err := json.Unmarshal(resp.Data, &b); err != nil {
				t.Fatalf("unmarshal build: %v", err)
			}
			if b.Status != models.BuildStatusError || b.Message != "invalid version" {
				t.Errorf("build = %+v, want error status with message", b)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func TestIssueToken(t *testing.T) {
	r := gin.New()
	r.POST("/api/v1/auth/token", NewTokenHandlers(2*time.Hour).IssueToken)

	status, resp := do(t, r, http.MethodPost, "/api/v1/auth/token", `{"operator":"release-bot"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d (%s), want 200", status, resp.Error)
	}
	var data struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.ExpiresIn != 7200 {
		t.Errorf("expires_in = %d, want 7200", data.ExpiresIn)
	}
	claims, err := auth.ValidateJWT(data.Token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.Operator != "release-bot" {
		t.Errorf("operator = %q, want release-bot", claims.Operator)
	}
}

func TestIssueToken_Invalid(t *testing.T) {
	r := gin.New()
	r.POST("/api/v1/auth/token", NewTokenHandlers(0).IssueToken)

	for _, body := range []string{
		`{}`,
		`not json`,
		`{"operator":"has space"}`,
		`{"operator":"bot","ttl":"forever"}`,
		`{"operator":"bot","ttl":"-1h"}`,
		`{"operator":"bot","ttl":"721h"}`,
	} {
		t.Run(body, func(t *testing.T) {
			if status, _ := do(t, r, http.MethodPost, "/api/v1/auth/token", body); status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", status)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Backfill
// ---------------------------------------------------------------------------

type fakeModules struct {
	module *models.Module
	err    error
}

func (f *fakeModules) GetModule(context.Context, string) (*models.Module, error) {
	return f.module, f.err
}

type fakeBackfill struct {
	queued int
	err    error
	opts   services.Options
	calls  int
}

func (f *fakeBackfill) Run(_ context.Context, _ *models.Module, opts services.Options, _ string) (int, error) {
	f.calls++
	f.opts = opts
	return f.queued, f.err
}

func TestTriggerBackfill(t *testing.T) {
	neon := &models.Module{Name: "neon", Kind: models.ModuleKindProvider}

	tests := []struct {
		name       string
		modules    *fakeModules
		backfill   *fakeBackfill
		wantStatus int
		wantCalls  int
	}{
		{"queues builds", &fakeModules{module: neon}, &fakeBackfill{queued: 3}, http.StatusOK, 1},
		{"unknown module", &fakeModules{}, &fakeBackfill{}, http.StatusNotFound, 0},
		{"lookup error", &fakeModules{err: errDB}, &fakeBackfill{}, http.StatusInternalServerError, 0},
		{"release listing fails", &fakeModules{module: neon}, &fakeBackfill{err: errors.New("github down")}, http.StatusBadGateway, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/api/v1/modules/:module/backfill", NewBackfillHandlers(tt.modules, tt.backfill).TriggerBackfill)

			status, _ := do(t, r, http.MethodPost, "/api/v1/modules/neon/backfill?version_prefix=neon-", "")
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.backfill.calls != tt.wantCalls {
				t.Errorf("Run calls = %d, want %d", tt.backfill.calls, tt.wantCalls)
			}
			if tt.wantCalls > 0 && (tt.backfill.opts.VersionPrefix != "neon-" || tt.backfill.opts.Type != models.ModuleKindProvider) {
				t.Errorf("opts = %+v, want prefix neon- and provider type", tt.backfill.opts)
			}
		})
	}
}
