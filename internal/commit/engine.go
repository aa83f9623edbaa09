// Package commit implements spec.md section 4.B, the Commit Engine: the
// sole writer of new commits against the Object Store. Its per-repository
// write lock follows the same "one mutex per keyed resource" idiom the
// teacher uses for its per-bundle locking (internal/_teacherref/manifest
// guards content creation behind a single client call per id), adapted
// here to an explicit in-process sync.Mutex since there is no shared
// cluster store backing a single replica's object shard.
package commit

import (
	"sync"
	"time"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/types"
)

// PathPolicy rejects a change before it is ever applied, implementing
// spec.md's "path disallowed by repository policy" precondition (e.g.
// the Meta-Repo Indexer's reserved paths). author lets a policy carve
// out an exception for the one system component that legitimately
// writes a reserved path itself (e.g. the Mirror Scheduler writing its
// own mirror_state.json sentinel). A nil PathPolicy allows every path.
type PathPolicy func(repo, path, author string) error

// Notifier is the Watch Registry's hook: called after a push commits,
// with the new revision and the paths it touched.
type Notifier func(repo string, revision int64, touched []string)

// Engine is the Commit Engine for one replica. It holds one
// *objectstore.Store per repository and serializes Push calls per
// repository, never across repositories.
type Engine struct {
	mu     sync.Mutex // guards locks and stores
	locks  map[string]*sync.Mutex
	stores map[string]*objectstore.Store

	policy PathPolicy
	notify Notifier
	now    func() time.Time
}

// New returns an Engine with no repositories registered yet. Policy and
// notify may be nil.
func New(policy PathPolicy, notify Notifier) *Engine {
	return &Engine{
		locks:  map[string]*sync.Mutex{},
		stores: map[string]*objectstore.Store{},
		policy: policy,
		notify: notify,
		now:    time.Now,
	}
}

// Register attaches a repository's object store to the engine so Push
// can find it. Called by the Repository Manager when a repository is
// created or loaded at startup.
func (e *Engine) Register(repo string, store *objectstore.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stores[repo] = store
	if _, ok := e.locks[repo]; !ok {
		e.locks[repo] = &sync.Mutex{}
	}
}

// Unregister drops a repository, e.g. after it is purged.
func (e *Engine) Unregister(repo string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.stores, repo)
	delete(e.locks, repo)
}

func (e *Engine) lockFor(repo string) (*sync.Mutex, *objectstore.Store, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[repo]
	s, ok2 := e.stores[repo]
	return l, s, ok && ok2
}

// Push implements spec.md section 4.B's algorithm. force allows
// baseRevision to lag behind the current head (a force push); ordinary
// pushes reject a stale base with ChangeConflict.
func (e *Engine) Push(repo string, baseRevision int64, force bool, author, summary, detail string, markup types.MarkupKind, changes []types.Change) (int64, []types.Change, error) {
	if len(changes) == 0 {
		return 0, nil, dogmaerrors.New(dogmaerrors.InvalidPush, "push requires at least one change")
	}

	lock, store, ok := e.lockFor(repo)
	if !ok {
		return 0, nil, dogmaerrors.New(dogmaerrors.NotFound, "repository %s is not registered", repo)
	}

	// step 1: acquire the per-repository write lock
	lock.Lock()
	defer lock.Unlock()

	head, err := store.GetHead()
	if err != nil {
		return 0, nil, err
	}

	// step 2: resolve baseRevision against the current head
	if baseRevision <= 0 {
		baseRevision = head.Revision
	}
	if !force && baseRevision < head.Revision {
		return 0, nil, dogmaerrors.New(dogmaerrors.ChangeConflict,
			"base revision %d is behind head %d", baseRevision, head.Revision)
	}

	tree := &objectstore.Tree{Entries: map[string]objectstore.TreeEntry{}}
	if head.CommitID != "" {
		c, err := store.GetCommit(head.CommitID)
		if err != nil {
			return 0, nil, err
		}
		t, err := store.GetTree(c.TreeID)
		if err != nil {
			return 0, nil, err
		}
		tree = t
	}

	snap := newSnapshot(store, tree)

	// step 3: preview every change against the current snapshot
	var normalized []types.Change
	touched := map[string]*types.Entry{}
	touchedOrder := []string{}
	for _, ch := range changes {
		if e.policy != nil {
			if err := e.policy(repo, ch.Path, author); err != nil {
				return 0, nil, dogmaerrors.Wrap(dogmaerrors.InvalidPush, err, "path %s is not allowed", ch.Path)
			}
		}

		res, err := applyChange(snap, ch)
		if err != nil {
			return 0, nil, err
		}
		if res.noop {
			continue
		}
		for p, ent := range res.touched {
			if _, seen := touched[p]; !seen {
				touchedOrder = append(touchedOrder, p)
			}
			touched[p] = ent
			// keep subsequent changes in this push consistent with one
			// another by reflecting this effect back into the snapshot.
			if ent == nil {
				snap.tree.Entries[p] = objectstore.TreeEntry{Deleted: true}
				delete(snap.cache, p)
			} else {
				snap.cache[p] = *ent
			}
		}
		normalized = append(normalized, res.normalized)
	}

	// step 4: an empty net-change set is a redundant push
	if len(touchedOrder) == 0 {
		return 0, nil, dogmaerrors.New(dogmaerrors.RedundantChange, "push has no net effect on %s", repo)
	}

	// step 5: serialize the tree, create the commit, advance head
	newTree := &objectstore.Tree{Entries: map[string]objectstore.TreeEntry{}}
	for p, te := range tree.Entries {
		newTree.Entries[p] = te
	}
	for _, p := range touchedOrder {
		ent := touched[p]
		if ent == nil {
			if te, ok := newTree.Entries[p]; ok {
				te.Deleted = true
				newTree.Entries[p] = te
			}
			continue
		}
		blobID, err := store.Put(objectstore.KindBlob, ent.Content)
		if err != nil {
			return 0, nil, err
		}
		newTree.Entries[p] = objectstore.TreeEntry{Type: string(ent.Type), BlobID: blobID}
	}

	treeID, err := store.PutTree(newTree)
	if err != nil {
		return 0, nil, err
	}

	newRevision := head.Revision + 1
	commitObj := &objectstore.CommitObject{
		Revision:  newRevision,
		ParentID:  head.CommitID,
		TreeID:    treeID,
		Author:    author,
		Summary:   summary,
		Detail:    detail,
		Markup:    string(markup),
		Timestamp: e.now().UnixNano(),
		Touched:   touchedOrder,
	}
	commitID, err := store.PutCommit(commitObj)
	if err != nil {
		return 0, nil, err
	}

	if err := store.SetHead(objectstore.Head{Revision: newRevision, CommitID: commitID}); err != nil {
		return 0, nil, err
	}

	// step 6: release the lock (deferred) and notify watchers
	if e.notify != nil {
		e.notify(repo, newRevision, touchedOrder)
	}

	return newRevision, normalized, nil
}
