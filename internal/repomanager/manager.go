// Package repomanager implements spec.md section 4.D, the Repository
// Manager: project and repository lifecycle (create, soft-delete,
// unremove, purge, list), each mutation wrapped for replication the way
// the Replication Log expects (spec.md section 4.F). Persistence follows
// the object store's temp-file-then-rename discipline
// (internal/objectstore/ref.go), generalized here to a single JSON
// manifest per manager instance rather than one file per object, since
// project/repository metadata is small and always read as a whole.
package repomanager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
)

// RepoOpener provisions a new repository's object store shard on disk,
// called when a repository transitions from absent to created.
type RepoOpener func(project, repo string) (*objectstore.Store, error)

type state struct {
	Projects     map[string]Project    `json:"projects"`
	Repositories map[string]Repository `json:"repositories"` // keyed by Repository.ID()
}

// Manager owns project/repository metadata and registers each live
// repository's object store with the Commit Engine.
type Manager struct {
	mu     sync.Mutex
	path   string
	state  state
	engine *commit.Engine
	open   RepoOpener
}

// Open loads (or initializes) a Manager whose manifest lives under
// dataDir/projects.json, wiring newly-created repositories into engine
// via open.
func Open(dataDir string, engine *commit.Engine, open RepoOpener) (*Manager, error) {
	m := &Manager{
		path:   filepath.Join(dataDir, "projects.json"),
		engine: engine,
		open:   open,
		state: state{
			Projects:     map[string]Project{},
			Repositories: map[string]Repository{},
		},
	}
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "reading project manifest")
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding project manifest")
	}
	return m, nil
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding project manifest")
	}
	tmp := m.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating manifest directory")
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "writing project manifest")
	}
	return os.Rename(tmp, m.path)
}

// CreateProject creates an empty project with no repositories yet.
func (m *Manager) CreateProject(name string) error {
	if err := validateName("project", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.Projects[name]; ok {
		return dogmaerrors.New(dogmaerrors.AlreadyExists, "project %s already exists", name)
	}
	m.state.Projects[name] = Project{Name: name}
	return m.save()
}

// RemoveProject soft-deletes a project, retaining its data.
func (m *Manager) RemoveProject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Projects[name]
	if !ok {
		return dogmaerrors.New(dogmaerrors.NotFound, "project %s does not exist", name)
	}
	if p.Internal {
		return dogmaerrors.New(dogmaerrors.NotAllowed, "project %s is internal and cannot be removed", name)
	}
	p.Deleted = true
	m.state.Projects[name] = p
	return m.save()
}

// UnremoveProject clears a project's deletion mark.
func (m *Manager) UnremoveProject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.Projects[name]
	if !ok {
		return dogmaerrors.New(dogmaerrors.NotFound, "project %s does not exist", name)
	}
	p.Deleted = false
	m.state.Projects[name] = p
	return m.save()
}

// PurgeProject removes a project and every repository under it
// physically: their metadata and registration with the Commit Engine.
// Object store shard directories are left for the caller (typically the
// Repository Manager's owner) to remove from disk.
func (m *Manager) PurgeProject(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.Projects[name]; !ok {
		return dogmaerrors.New(dogmaerrors.NotFound, "project %s does not exist", name)
	}
	delete(m.state.Projects, name)
	for id, r := range m.state.Repositories {
		if r.Project == name {
			delete(m.state.Repositories, id)
			if m.engine != nil {
				m.engine.Unregister(id)
			}
		}
	}
	return m.save()
}

// ListProjects returns every non-deleted project visible to viewer, in
// name order, excluding internal projects for non-admin non-member
// viewers. Soft-deleted projects are invisible here (spec.md I6); see
// ListRemovedProjects.
func (m *Manager) ListProjects(viewer Viewer) []Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Project, 0, len(m.state.Projects))
	for _, p := range m.state.Projects {
		if !p.Deleted && p.visibleTo(viewer) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListRemovedProjects returns every soft-deleted project visible to
// viewer, in name order (spec.md I6).
func (m *Manager) ListRemovedProjects(viewer Viewer) []Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Project, 0)
	for _, p := range m.state.Projects {
		if p.Deleted && p.visibleTo(viewer) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllProjects returns every project regardless of deletion or visibility,
// for callers that must operate on data rather than present a listing
// (e.g. reopening every repository's live store at startup).
func (m *Manager) AllProjects() []Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Project, 0, len(m.state.Projects))
	for _, p := range m.state.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateRepository creates repo within an existing, non-deleted project
// and registers its object store shard (revision 0 / empty) with the
// Commit Engine.
func (m *Manager) CreateRepository(project, name string) error {
	if err := validateName("repository", name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.Projects[project]
	if !ok || p.Deleted {
		return dogmaerrors.New(dogmaerrors.NotFound, "project %s does not exist", project)
	}
	r := Repository{Project: project, Name: name}
	if _, ok := m.state.Repositories[r.ID()]; ok {
		return dogmaerrors.New(dogmaerrors.AlreadyExists, "repository %s already exists", r.ID())
	}

	if m.open != nil {
		store, err := m.open(project, name)
		if err != nil {
			return err
		}
		if m.engine != nil {
			m.engine.Register(r.ID(), store)
		}
	}

	m.state.Repositories[r.ID()] = r
	return m.save()
}

func (m *Manager) repoOrNotFound(project, name string) (Repository, string, error) {
	r := Repository{Project: project, Name: name}
	id := r.ID()
	existing, ok := m.state.Repositories[id]
	if !ok {
		return Repository{}, id, dogmaerrors.New(dogmaerrors.NotFound, "repository %s does not exist", id)
	}
	return existing, id, nil
}

// RemoveRepository soft-deletes a repository.
func (m *Manager) RemoveRepository(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, id, err := m.repoOrNotFound(project, name)
	if err != nil {
		return err
	}
	r.Deleted = true
	m.state.Repositories[id] = r
	return m.save()
}

// UnremoveRepository clears a repository's deletion mark.
func (m *Manager) UnremoveRepository(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, id, err := m.repoOrNotFound(project, name)
	if err != nil {
		return err
	}
	r.Deleted = false
	m.state.Repositories[id] = r
	return m.save()
}

// PurgeRepository removes a repository's metadata and its Commit Engine
// registration. As with PurgeProject, on-disk object store shard removal
// is left to the caller.
func (m *Manager) PurgeRepository(project, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, id, err := m.repoOrNotFound(project, name)
	if err != nil {
		return err
	}
	delete(m.state.Repositories, id)
	if m.engine != nil {
		m.engine.Unregister(id)
	}
	return m.save()
}

// ListRepositories returns every non-deleted repository in project, in
// name order. Soft-deleted repositories are invisible here (spec.md
// I6); see ListRemovedRepositories.
func (m *Manager) ListRepositories(project string) []Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Repository, 0)
	for _, r := range m.state.Repositories {
		if r.Project == project && !r.Deleted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListRemovedRepositories returns every soft-deleted repository in
// project, in name order (spec.md I6).
func (m *Manager) ListRemovedRepositories(project string) []Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Repository, 0)
	for _, r := range m.state.Repositories {
		if r.Project == project && r.Deleted {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AllRepositories returns every repository in project regardless of
// deletion, for callers that must operate on data rather than present a
// listing (e.g. reopening every repository's live store at startup, so
// a soft-deleted repository remains queryable and unremovable after a
// restart).
func (m *Manager) AllRepositories(project string) []Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Repository, 0)
	for _, r := range m.state.Repositories {
		if r.Project == project {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
