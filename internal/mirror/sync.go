package mirror

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/credential"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/pathspec"
	"github.com/dogmahub/dogma/internal/query"
	"github.com/dogmahub/dogma/internal/types"
)

// QueryEngineFor resolves the Query Engine backing one repository id,
// so Syncer can read the tree it's mirroring against without owning
// per-repository wiring itself.
type QueryEngineFor func(repoID string) (*query.Engine, error)

// Syncer performs one Task's remote<->local sync and is the production
// value wired as a Scheduler's exec function.
type Syncer struct {
	Engine      *commit.Engine
	QueryFor    QueryEngineFor
	Credentials *credential.Store
	WorkdirRoot string
	KnownHosts  []byte
	Author      string
}

var everything = pathspec.MustCompile("/**")

// Sync implements the exec signature Scheduler.NewScheduler expects.
func (s *Syncer) Sync(task Task) (Result, error) {
	m := task.Mirror
	workdir := filepath.Join(s.WorkdirRoot, m.ID)

	var cred credential.Credential
	if m.CredentialID != "" && s.Credentials != nil {
		host := hostOf(m.RemoteURL)
		resolved, err := s.Credentials.Resolve(host)
		if err != nil {
			return Result{}, err
		}
		cred = resolved
	}
	auth, err := buildAuth(m.RemoteURL, cred, s.KnownHosts)
	if err != nil {
		return Result{}, err
	}

	repo, err := cloneOrFetch(workdir, m.RemoteURL, m.RemoteBranch, auth)
	if err != nil {
		return Result{}, err
	}
	defer cleanWorktree(repo)

	qe, err := s.QueryFor(m.RepoID)
	if err != nil {
		return Result{}, err
	}

	switch m.Direction {
	case DirectionRemoteToLocal:
		return s.syncRemoteToLocal(m, workdir, repo, qe)
	case DirectionLocalToRemote:
		return s.syncLocalToRemote(m, workdir, repo, qe, auth)
	default:
		return Result{}, dogmaerrors.New(dogmaerrors.InvalidPush, "mirror %s: unknown direction %q", m.ID, m.Direction)
	}
}

// cleanWorktree removes every untracked file left over in the scratch
// workdir once a sync completes (spec.md §5: "a bounded scratch
// directory per mirror, cleaned between runs"), keeping the cloned
// .git history so the next run can fetch incrementally instead of
// re-cloning. Best-effort: a failure to open or clean the worktree is
// ignored and not reported to the caller, so the sync that already
// completed stands.
func cleanWorktree(repo *git.Repository) {
	w, err := repo.Worktree()
	if err != nil {
		return
	}
	_ = w.Clean(&git.CleanOptions{Dir: true})
}

func hostOf(remote string) string {
	if strings.Contains(remote, "@") && !strings.Contains(remote, "://") {
		rest := remote[strings.Index(remote, "@")+1:]
		return strings.SplitN(rest, ":", 2)[0]
	}
	u, err := url.Parse(remote)
	if err != nil {
		return remote
	}
	return u.Hostname()
}

// syncRemoteToLocal diffs the cloned worktree against the repository's
// current tree and pushes the result via the Commit Engine, including
// the mirror_state.json sentinel recording the resolved remote commit
// id (spec.md 4.H) as one of the pushed entries rather than a file
// written only to the local scratch workdir, so it lands in the
// repository itself and survives a replica restart.
func (s *Syncer) syncRemoteToLocal(m Mirror, workdir string, repo *git.Repository, qe *query.Engine) (Result, error) {
	head, err := repo.Head()
	if err != nil {
		return Result{}, dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "resolving remote head for mirror %s", m.ID)
	}
	remoteCommit := head.Hash().String()

	remoteEntries, err := walkWorktree(workdir, m.MaxNumFiles, m.MaxNumBytes, m.ID)
	if err != nil {
		return Result{}, err
	}
	currentEntries, err := qe.Find(types.HeadRevision, everything)
	if err != nil {
		return Result{}, err
	}

	desired := append(remoteEntries, sentinelEntry(remoteCommit))
	changes := diffEntrySets(currentEntries, desired)
	if len(changes) == 0 {
		return Result{RemoteCommit: remoteCommit}, nil
	}

	revision, _, err := s.Engine.Push(m.RepoID, 0, true, s.author(), "mirror "+m.ID, "", types.MarkupPlaintext, changes)
	if err != nil {
		return Result{}, err
	}
	return Result{FilesChanged: len(changes), RemoteCommit: remoteCommit, Revision: revision}, nil
}

// sentinelEntry builds the /mirror_state.json entry recording
// remoteCommit, diffed and pushed through the Commit Engine alongside
// every other synced path.
func sentinelEntry(remoteCommit string) types.Entry {
	return types.Entry{
		Path:    "/" + mirrorStateFileName,
		Type:    types.EntryTypeJSON,
		Content: []byte(`{"remoteCommit":"` + remoteCommit + `"}`),
	}
}

const mirrorStateFileName = "mirror_state.json"

// syncLocalToRemote computes the diff between the repo's current tree
// and the cloned worktree, stages it, and commits + pushes to remote.
func (s *Syncer) syncLocalToRemote(m Mirror, workdir string, repo *git.Repository, qe *query.Engine, auth transport.AuthMethod) (Result, error) {
	currentEntries, err := qe.Find(types.HeadRevision, everything)
	if err != nil {
		return Result{}, err
	}

	var totalBytes int64
	for _, e := range currentEntries {
		totalBytes += int64(len(e.Content))
	}
	if m.MaxNumFiles > 0 && len(currentEntries) > m.MaxNumFiles {
		return Result{}, capError("files", m.ID, int64(m.MaxNumFiles), int64(len(currentEntries)))
	}
	if m.MaxNumBytes > 0 && totalBytes > m.MaxNumBytes {
		return Result{}, capError("bytes", m.ID, m.MaxNumBytes, totalBytes)
	}

	if err := materialize(workdir, currentEntries); err != nil {
		return Result{}, err
	}
	commitHash, err := stageCommitPush(repo, auth)
	if err != nil {
		return Result{}, err
	}

	return Result{FilesChanged: len(currentEntries), RemoteCommit: commitHash}, nil
}

func (s *Syncer) author() string {
	if s.Author != "" {
		return s.Author
	}
	return "mirror-scheduler"
}

func entryFileName(path string) string {
	return strings.TrimPrefix(path, "/")
}

// diffEntrySets returns the Changes needed to turn current into
// desired: upserts for new/changed paths, removes for paths present in
// current but absent from desired.
func diffEntrySets(current, desired []types.Entry) []types.Change {
	byPath := make(map[string]types.Entry, len(current))
	for _, e := range current {
		byPath[e.Path] = e
	}
	seen := make(map[string]bool, len(desired))

	var changes []types.Change
	for _, d := range desired {
		seen[d.Path] = true
		if existing, ok := byPath[d.Path]; ok && existing.Type == d.Type && string(existing.Content) == string(d.Content) {
			continue
		}
		changes = append(changes, upsertChange(d))
	}
	var removedPaths []string
	for path := range byPath {
		if !seen[path] {
			removedPaths = append(removedPaths, path)
		}
	}
	sort.Strings(removedPaths)
	for _, path := range removedPaths {
		changes = append(changes, types.Change{Path: path, Kind: types.ChangeRemove})
	}
	return changes
}

func upsertChange(e types.Entry) types.Change {
	switch e.Type {
	case types.EntryTypeJSON:
		return types.Change{Path: e.Path, Kind: types.ChangeUpsertJSON, Content: e.Content}
	case types.EntryTypeYAML:
		return types.Change{Path: e.Path, Kind: types.ChangeUpsertYAML, Content: e.Content}
	default:
		return types.Change{Path: e.Path, Kind: types.ChangeUpsertText, Content: e.Content}
	}
}

func entryTypeForName(name string) types.EntryType {
	switch {
	case strings.HasSuffix(name, ".json"):
		return types.EntryTypeJSON
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return types.EntryTypeYAML
	default:
		return types.EntryTypeText
	}
}

// walkWorktree reads every tracked file under workdir (skipping .git and
// the mirror_state.json sentinel) into Entries, enforcing mirrorID's
// file/byte caps as it goes.
func walkWorktree(workdir string, maxFiles int, maxBytes int64, mirrorID string) ([]types.Entry, error) {
	var entries []types.Entry
	var totalBytes int64
	err := filepath.Walk(workdir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(workdir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == mirrorStateFileName {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		totalBytes += int64(len(data))
		entries = append(entries, types.Entry{
			Path:    "/" + filepath.ToSlash(rel),
			Type:    entryTypeForName(rel),
			Content: data,
		})
		if maxFiles > 0 && len(entries) > maxFiles {
			return capError("files", mirrorID, int64(maxFiles), int64(len(entries)))
		}
		if maxBytes > 0 && totalBytes > maxBytes {
			return capError("bytes", mirrorID, maxBytes, totalBytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// materialize writes every Entry to its path under workdir, following
// the same "write files for a worktree" shape walkWorktree reads back.
func materialize(workdir string, entries []types.Entry) error {
	for _, e := range entries {
		p := filepath.Join(workdir, entryFileName(e.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "creating directory for %s", e.Path)
		}
		if err := os.WriteFile(p, e.Content, 0o644); err != nil {
			return dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "writing %s", e.Path)
		}
	}
	return nil
}

func stageCommitPush(repo *git.Repository, auth transport.AuthMethod) (string, error) {
	w, err := repo.Worktree()
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "opening worktree")
	}
	if _, err := w.Add("."); err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "staging changes")
	}
	status, err := w.Status()
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "checking worktree status")
	}
	if status.IsClean() {
		head, err := repo.Head()
		if err != nil {
			return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "resolving head")
		}
		return head.Hash().String(), nil
	}
	hash, err := w.Commit("mirror sync at "+time.Now().UTC().Format(time.RFC3339), &git.CommitOptions{
		Author: &object.Signature{Name: "dogma-mirror", Email: "mirror@dogma.local", When: time.Now()},
	})
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "committing")
	}
	if err := repo.Push(&git.PushOptions{Auth: auth}); err != nil && err != git.NoErrAlreadyUpToDate {
		return "", dogmaerrors.Wrap(dogmaerrors.MirrorError, err, "pushing")
	}
	return hash.String(), nil
}
