package commit

import (
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/types"
)

// snapshot is a materialized path->entry view of one revision, built
// lazily from a Tree by fetching blobs on demand. The Commit Engine's
// preview step works against one of these; the Query Engine reads trees
// through its own lookups instead.
type snapshot struct {
	store *objectstore.Store
	tree  *objectstore.Tree
	cache map[string]types.Entry
}

func newSnapshot(store *objectstore.Store, tree *objectstore.Tree) *snapshot {
	return &snapshot{store: store, tree: tree, cache: map[string]types.Entry{}}
}

// Get returns the entry at path, loading and caching its blob on first
// access. ok is false if path has no entry in this snapshot.
func (s *snapshot) Get(path string) (types.Entry, bool, error) {
	if e, ok := s.cache[path]; ok {
		return e, true, nil
	}
	te, ok := s.tree.Entries[path]
	if !ok || te.Deleted {
		return types.Entry{}, false, nil
	}
	content, err := s.store.Get(te.BlobID)
	if err != nil {
		return types.Entry{}, false, err
	}
	e := types.Entry{Path: path, Type: types.EntryType(te.Type), Content: content}
	s.cache[path] = e
	return e, true, nil
}

// Paths returns every live (non-deleted) path in the snapshot.
func (s *snapshot) Paths() []string {
	paths := make([]string, 0, len(s.tree.Entries))
	for p, te := range s.tree.Entries {
		if !te.Deleted {
			paths = append(paths, p)
		}
	}
	return paths
}
