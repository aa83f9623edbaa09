// Package metarepo implements spec.md section 4.J, the Meta-Repo
// Indexer: an in-memory view of the well-known configuration paths
// inside a project's meta-repository (/mirrors/*.json,
// /credentials/*.json, /tokens/..., /repos/<R>/...), rebuilt from the
// Query Engine whenever a commit touches one of those prefixes.
package metarepo

import (
	"encoding/json"
	"path"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dogmahub/dogma/internal/credential"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/mirror"
	"github.com/dogmahub/dogma/internal/pathspec"
	"github.com/dogmahub/dogma/internal/query"
	"github.com/dogmahub/dogma/internal/types"
)

var (
	mirrorsPattern     = pathspec.MustCompile("/mirrors/*.json")
	credentialsPattern = pathspec.MustCompile("/credentials/*.json")
	tokensPattern      = pathspec.MustCompile("/tokens/**")
	reposPattern       = pathspec.MustCompile("/repos/**")
	relevantPattern    = pathspec.MustCompile("/mirrors/*.json, /credentials/*.json, /tokens/**, /repos/**")
)

// Indexer owns the meta-repository view for one project. It implements
// mirror.MirrorLister directly, so a Scheduler can be wired straight to
// an Indexer instance.
type Indexer struct {
	query  *query.Engine
	repoID string

	group singleflight.Group

	mu          sync.RWMutex
	built       bool
	mirrors     map[string]mirror.Mirror
	credentials map[string]credential.Credential
	tokens      map[string]json.RawMessage
	repoAccess  map[string]json.RawMessage
}

// New returns an Indexer over repoID's tree, read through query.
func New(q *query.Engine, repoID string) *Indexer {
	return &Indexer{query: q, repoID: repoID}
}

// OnCommit is wired as (one branch of) the Commit Engine's Notifier: a
// commit whose touched paths fall under any watched prefix invalidates
// the cached view so the next read rebuilds it.
func (ix *Indexer) OnCommit(repo string, _ int64, touched []string) {
	if repo != ix.repoID {
		return
	}
	for _, p := range touched {
		if relevantPattern.Match(p) {
			ix.mu.Lock()
			ix.built = false
			ix.mu.Unlock()
			return
		}
	}
}

// ensure rebuilds the view if stale, collapsing concurrent callers onto
// a single rebuild via singleflight so a burst of notifications (or
// concurrent readers racing a single invalidation) doesn't re-read the
// tree once per caller.
func (ix *Indexer) ensure() error {
	ix.mu.RLock()
	built := ix.built
	ix.mu.RUnlock()
	if built {
		return nil
	}

	_, err, _ := ix.group.Do("rebuild", func() (any, error) {
		ix.mu.RLock()
		built := ix.built
		ix.mu.RUnlock()
		if built {
			return nil, nil
		}
		return nil, ix.rebuild()
	})
	return err
}

func (ix *Indexer) rebuild() error {
	mirrorEntries, err := ix.query.Find(types.HeadRevision, mirrorsPattern)
	if err != nil {
		return err
	}
	credEntries, err := ix.query.Find(types.HeadRevision, credentialsPattern)
	if err != nil {
		return err
	}
	tokenEntries, err := ix.query.Find(types.HeadRevision, tokensPattern)
	if err != nil {
		return err
	}
	repoEntries, err := ix.query.Find(types.HeadRevision, reposPattern)
	if err != nil {
		return err
	}

	mirrors := make(map[string]mirror.Mirror, len(mirrorEntries))
	for _, e := range mirrorEntries {
		var m mirror.Mirror
		if err := json.Unmarshal(e.Content, &m); err != nil {
			return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding mirror entry %s", e.Path)
		}
		if m.ID == "" {
			m.ID = basenameWithoutExt(e.Path)
		}
		mirrors[m.ID] = m
	}

	creds := make(map[string]credential.Credential, len(credEntries))
	for _, e := range credEntries {
		var c credential.Credential
		if err := json.Unmarshal(e.Content, &c); err != nil {
			return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding credential entry %s", e.Path)
		}
		if c.ID == "" {
			c.ID = basenameWithoutExt(e.Path)
		}
		creds[c.ID] = c
	}

	tokens := make(map[string]json.RawMessage, len(tokenEntries))
	for _, e := range tokenEntries {
		tokens[e.Path] = append(json.RawMessage(nil), e.Content...)
	}
	repoAccess := make(map[string]json.RawMessage, len(repoEntries))
	for _, e := range repoEntries {
		repoAccess[e.Path] = append(json.RawMessage(nil), e.Content...)
	}

	ix.mu.Lock()
	ix.mirrors = mirrors
	ix.credentials = creds
	ix.tokens = tokens
	ix.repoAccess = repoAccess
	ix.built = true
	ix.mu.Unlock()
	return nil
}

// ListMirrors implements mirror.MirrorLister.
func (ix *Indexer) ListMirrors() ([]mirror.Mirror, error) {
	if err := ix.ensure(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]mirror.Mirror, 0, len(ix.mirrors))
	for _, m := range ix.mirrors {
		out = append(out, m)
	}
	return out, nil
}

// Credentials returns every indexed credential, redacted.
func (ix *Indexer) Credentials() ([]credential.Credential, error) {
	if err := ix.ensure(); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]credential.Credential, 0, len(ix.credentials))
	for _, c := range ix.credentials {
		out = append(out, c.Redacted())
	}
	return out, nil
}

// Token returns the raw JSON at /tokens/<path>, if indexed.
func (ix *Indexer) Token(path string) (json.RawMessage, bool, error) {
	if err := ix.ensure(); err != nil {
		return nil, false, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.tokens[path]
	return v, ok, nil
}

// RepoAccess returns the raw JSON at /repos/<path>, if indexed.
func (ix *Indexer) RepoAccess(path string) (json.RawMessage, bool, error) {
	if err := ix.ensure(); err != nil {
		return nil, false, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	v, ok := ix.repoAccess[path]
	return v, ok, nil
}

func basenameWithoutExt(p string) string {
	return strings.TrimSuffix(path.Base(p), path.Ext(p))
}
