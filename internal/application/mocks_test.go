package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/bilipublish/internal/domain/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- vault ---

type vaultEntry struct {
	name    string
	raw     string
	expired bool
}

type mockVault struct {
	mu      sync.Mutex
	entries map[string]vaultEntry
	loadErr error
	saveErr error

	saves   int
	loads   int
	deletes int
	renames int
}

func newMockVault() *mockVault {
	return &mockVault{entries: map[string]vaultEntry{}}
}

func (m *mockVault) put(id, name, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = vaultEntry{name: name, raw: raw}
}

func (m *mockVault) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

func (m *mockVault) Save(ctx context.Context, id, name, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries[id] = vaultEntry{name: name, raw: raw}
	return nil
}

func (m *mockVault) Load(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return "", m.loadErr
	}
	e, ok := m.entries[id]
	if !ok {
		return "", model.ErrNotFound
	}
	if e.expired {
		return "", model.ErrExpired
	}
	return e.raw, nil
}

func (m *mockVault) IsValid(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return ok && !e.expired, nil
}

func (m *mockVault) Get(_ context.Context, id string) (*model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if e.expired {
		return nil, model.ErrExpired
	}
	return &model.CredentialRecord{AccountID: id, DisplayName: e.name}, nil
}

func (m *mockVault) UpdateDisplayName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renames++
	if e, ok := m.entries[id]; ok {
		e.name = name
		m.entries[id] = e
	}
	return nil
}

func (m *mockVault) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.entries, id)
	return nil
}

// --- upstream ---

type mockUpstream struct {
	mu sync.Mutex

	issue   func() (map[string]any, error)
	confirm func(ctx context.Context, code string) (model.ConfirmResult, error)
	profile func(path string) (*model.Profile, error)
	submit  func(spec model.JobSpec) (*model.JobSubmission, error)
	query   func(jobID string) (*model.JobState, error)
	healthy bool

	// onRegister runs inside RegisterCredentialPath, e.g. to emulate the
	// upstream writing the artifact.
	onRegister func(path string)

	confirms   int
	profiles   int
	registered []string
	submitted  []model.JobSpec
	queried    []string
}

func (m *mockUpstream) Authenticate(context.Context) error { return nil }

func (m *mockUpstream) IssueQrCode(context.Context) (map[string]any, error) {
	return m.issue()
}

func (m *mockUpstream) ConfirmQrLogin(ctx context.Context, code string) (model.ConfirmResult, error) {
	m.mu.Lock()
	m.confirms++
	m.mu.Unlock()
	return m.confirm(ctx, code)
}

func (m *mockUpstream) FetchProfile(_ context.Context, path string) (*model.Profile, error) {
	m.mu.Lock()
	m.profiles++
	m.mu.Unlock()
	if m.profile == nil {
		return &model.Profile{MID: 42, Name: "alice"}, nil
	}
	return m.profile(path)
}

func (m *mockUpstream) RegisterCredentialPath(_ context.Context, path string) {
	m.mu.Lock()
	m.registered = append(m.registered, path)
	m.mu.Unlock()
	if m.onRegister != nil {
		m.onRegister(path)
	}
}

func (m *mockUpstream) SubmitJob(_ context.Context, spec model.JobSpec) (*model.JobSubmission, error) {
	m.mu.Lock()
	m.submitted = append(m.submitted, spec)
	m.mu.Unlock()
	if m.submit == nil {
		return &model.JobSubmission{}, nil
	}
	return m.submit(spec)
}

func (m *mockUpstream) QueryJob(_ context.Context, jobID string) (*model.JobState, error) {
	m.mu.Lock()
	m.queried = append(m.queried, jobID)
	m.mu.Unlock()
	return m.query(jobID)
}

func (m *mockUpstream) HealthCheck(context.Context) bool { return m.healthy }

// --- artifacts ---

// mockArtifacts fails on a done context like the filesystem store does.

type mockArtifacts struct {
	mu       sync.Mutex
	files    map[string][]byte
	writeErr error
	writes   int
	removes  int
}

func newMockArtifacts() *mockArtifacts {
	return &mockArtifacts{files: map[string][]byte{}}
}

func (m *mockArtifacts) put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
}

func (m *mockArtifacts) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *mockArtifacts) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", path)
	}
	return data, nil
}

func (m *mockArtifacts) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = data
	return nil
}

func (m *mockArtifacts) Remove(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	delete(m.files, path)
	return nil
}

// --- tasks ---

type mockTasks struct {
	mu    sync.Mutex
	tasks map[string]model.PublishTask
}

func newMockTasks() *mockTasks {
	return &mockTasks{tasks: map[string]model.PublishTask{}}
}

func (m *mockTasks) Create(_ context.Context, task model.PublishTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.TaskID] = task
	return nil
}

func (m *mockTasks) Get(_ context.Context, id string) (*model.PublishTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &task, nil
}

func (m *mockTasks) UpdateStatus(_ context.Context, task model.PublishTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.TaskID]; !ok {
		return model.ErrNotFound
	}
	m.tasks[task.TaskID] = task
	return nil
}

func (m *mockTasks) ListByAccount(_ context.Context, accountID string, limit int) ([]model.PublishTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PublishTask
	for _, task := range m.tasks {
		if task.AccountID == accountID {
			out = append(out, task)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- media ---

type mockMedia struct {
	saved map[string]string
}

func (m *mockMedia) SaveMedia(_ context.Context, name string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	if m.saved == nil {
		m.saved = map[string]string{}
	}
	m.saved[name] = string(data)
	return "/data/videos/" + name, int64(len(data)), nil
}
