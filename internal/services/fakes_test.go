package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nutshimit/mashin-registry/internal/archive"
	"github.com/nutshimit/mashin-registry/internal/db/models"
	"github.com/nutshimit/mashin-registry/internal/db/repositories"
	"github.com/nutshimit/mashin-registry/internal/fetch"
	"github.com/nutshimit/mashin-registry/internal/github"
	"github.com/nutshimit/mashin-registry/internal/storage"
)

// ---------------------------------------------------------------------------
// In-memory catalog
// ---------------------------------------------------------------------------

type versionKey struct {
	module              string
	major, minor, patch uint64
}

type fakeModules struct {
	mu       sync.Mutex
	modules  map[string]*models.Module
	versions map[versionKey]*models.ModuleVersion
	byID     map[int64]*models.ModuleVersion
	latest   map[string]int64
	nextID   int64
	upserts  int

	getErr    error
	upsertErr error
	createErr error
}

func newFakeModules() *fakeModules {
	return &fakeModules{
		modules:  map[string]*models.Module{},
		versions: map[versionKey]*models.ModuleVersion{},
		byID:     map[int64]*models.ModuleVersion{},
		latest:   map[string]int64{},
	}
}

func (f *fakeModules) add(m *models.Module) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *m
	f.modules[m.Name] = &c
}

func (f *fakeModules) GetModule(_ context.Context, name string) (*models.Module, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modules[name]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (f *fakeModules) UpsertModule(_ context.Context, module *models.Module) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if existing, ok := f.modules[module.Name]; ok {
		module.Kind = existing.Kind
		module.RepoID = existing.RepoID
	}
	if module.Kind == "" {
		module.Kind = models.ModuleKindProvider
	}
	c := *module
	f.modules[module.Name] = &c
	return nil
}

func (f *fakeModules) VersionExists(_ context.Context, module string, major, minor, patch uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.versions[versionKey{module, major, minor, patch}]
	return ok, nil
}

func (f *fakeModules) CreateVersion(_ context.Context, v *models.ModuleVersion) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := versionKey{v.Module, v.Major, v.Minor, v.Patch}
	if _, ok := f.versions[key]; ok {
		return 0, repositories.ErrVersionExists
	}
	f.nextID++
	c := *v
	c.ID = f.nextID
	f.versions[key] = &c
	f.byID[c.ID] = &c
	return c.ID, nil
}

func (f *fakeModules) SetLatestVersion(_ context.Context, module string, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	nv, ok := f.byID[id]
	if !ok || nv.Module != module {
		return false, nil
	}
	if cur, ok := f.latest[module]; ok {
		cv := f.byID[cur]
		if compareParts(nv, cv) < 0 {
			return false, nil
		}
	}
	f.latest[module] = id
	return true, nil
}

func (f *fakeModules) version(module string, major, minor, patch uint64) *models.ModuleVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[versionKey{module, major, minor, patch}]
}

func (f *fakeModules) latestVersion(module string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.latest[module]
	if !ok {
		return ""
	}
	return f.byID[id].Version()
}

func compareParts(a, b *models.ModuleVersion) int {
	for _, d := range [][2]uint64{{a.Major, b.Major}, {a.Minor, b.Minor}, {a.Patch, b.Patch}} {
		if d[0] != d[1] {
			if d[0] < d[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// ---------------------------------------------------------------------------
// Builds, words, queue, hook
// ---------------------------------------------------------------------------

type fakeBuilds struct {
	mu        sync.Mutex
	builds    map[string]*models.Build
	order     []string
	createErr error
	finishErr error
}

func newFakeBuilds() *fakeBuilds {
	return &fakeBuilds{builds: map[string]*models.Build{}}
}

func (f *fakeBuilds) CreateBuild(_ context.Context, b *models.Build) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *b
	f.builds[b.ID] = &c
	f.order = append(f.order, b.ID)
	return nil
}

func (f *fakeBuilds) finish(id, status, message string) (bool, error) {
	if f.finishErr != nil {
		return false, f.finishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok || b.Status != models.BuildStatusQueued {
		return false, nil
	}
	b.Status = status
	b.Message = message
	return true, nil
}

func (f *fakeBuilds) SetBuildSuccess(_ context.Context, id string) (bool, error) {
	return f.finish(id, models.BuildStatusSuccess, "")
}

func (f *fakeBuilds) SetBuildError(_ context.Context, id, message string) (bool, error) {
	return f.finish(id, models.BuildStatusError, message)
}

func (f *fakeBuilds) get(id string) *models.Build {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil
	}
	c := *b
	return &c
}

func (f *fakeBuilds) all() []*models.Build {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Build, 0, len(f.order))
	for _, id := range f.order {
		c := *f.builds[id]
		out = append(out, &c)
	}
	return out
}

type fakeWords struct {
	words []string
	err   error
}

func (f *fakeWords) IsForbidden(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, w := range f.words {
		if strings.Contains(name, w) {
			return true, nil
		}
	}
	return false, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	enqueued []models.Build
	err      error
}

func (f *fakeProducer) Enqueue(_ context.Context, b *models.Build) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, *b)
	return nil
}

type hookCall struct {
	module  string
	kind    string
	prefix  string
	skipTag string
}

type fakeHook struct {
	calls []hookCall
}

func (f *fakeHook) ModuleRegistered(m *models.Module, opts Options, skipTag string) {
	f.calls = append(f.calls, hookCall{module: m.Name, kind: m.Kind, prefix: opts.VersionPrefix, skipTag: skipTag})
}

// ---------------------------------------------------------------------------
// Release sources
// ---------------------------------------------------------------------------

type fakeReleases struct {
	releases []github.Release
	err      error
}

func (f *fakeReleases) ListReleases(context.Context, string, string) ([]github.Release, error) {
	return f.releases, f.err
}

type fakeExtractor struct {
	mu     sync.Mutex
	result *archive.Result
	err    error
	calls  []string
}

func (f *fakeExtractor) Extract(_ context.Context, owner, repo, tag string) (*archive.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s@%s", owner, repo, tag))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &archive.Result{}, nil
	}
	return f.result, nil
}

type fakeGetter struct {
	bodies map[string][]byte
	errs   map[string]error
}

func (f *fakeGetter) Fetch(_ context.Context, url string) (*fetch.Artifact, error) {
	if err := f.errs[url]; err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	b, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("%s: %w", url, fetch.ErrNotFound)
	}
	return &fetch.Artifact{Body: io.NopCloser(bytes.NewReader(b)), Size: int64(len(b))}, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, key string, body []byte, contentType string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	m.types[key] = contentType
	return &storage.Object{Key: key, Size: int64(len(body)), ContentType: contentType}, nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memStore) Stat(_ context.Context, key string) (*storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Object{Key: key, Size: int64(len(b))}, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

var errDB = errors.New("db error")

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func testRepository(id int64) github.Repository {
	desc := "Neon provider"
	return github.Repository{
		ID:              id,
		Name:            "mashin-neon",
		FullName:        "nutshimit/mashin-neon",
		Owner:           github.Owner{Login: "nutshimit", ID: 1},
		Description:     &desc,
		StargazersCount: 7,
	}
}

func releaseAssets(names ...string) []github.Asset {
	out := make([]github.Asset, 0, len(names))
	for i, n := range names {
		out = append(out, github.Asset{
			ID:                 int64(i + 1),
			Name:               n,
			BrowserDownloadURL: "https://github.com/nutshimit/mashin-neon/releases/download/v1/" + n,
		})
	}
	return out
}

func releaseEvent(tag string, assets []github.Asset) github.ReleaseEvent {
	return github.ReleaseEvent{
		Action:     github.ActionReleased,
		Release:    github.Release{ID: 99, TagName: tag, Assets: assets},
		Repository: testRepository(42),
	}
}
