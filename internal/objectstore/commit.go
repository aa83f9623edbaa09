package objectstore

import (
	"encoding/json"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// CommitObject is the persisted form of a commit: a parent pointer, a
// tree id, and the commit metadata from spec.md section 3.
type CommitObject struct {
	Revision  int64    `json:"revision"`
	ParentID  string   `json:"parentId,omitempty"` // empty for revision 1
	TreeID    string   `json:"treeId"`
	Author    string   `json:"author"`
	Summary   string   `json:"summary"`
	Detail    string   `json:"detail,omitempty"`
	Markup    string   `json:"markup,omitempty"`
	Timestamp int64    `json:"timestamp"`
	Touched   []string `json:"touched"`
}

// PutCommit stores c and returns its object id.
func (s *Store) PutCommit(c *CommitObject) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return s.Put(KindCommit, data)
}

// GetCommit retrieves the commit object stored under id.
func (s *Store) GetCommit(id string) (*CommitObject, error) {
	data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	var c CommitObject
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding commit object %s", id)
	}
	return &c, nil
}

// CommitList walks the parent chain starting at headID, returning
// revisions in the half-open range [fromRevision, toRevision), oldest
// first. toRevision of 0 means "up to and including head".
func (s *Store) CommitList(headID string, fromRevision, toRevision int64) ([]*CommitObject, error) {
	var chain []*CommitObject
	id := headID
	for id != "" {
		c, err := s.GetCommit(id)
		if err != nil {
			return nil, err
		}
		if toRevision == 0 || c.Revision < toRevision {
			if c.Revision >= fromRevision {
				chain = append(chain, c)
			}
		}
		if c.Revision <= fromRevision {
			break
		}
		id = c.ParentID
	}
	// reverse to oldest-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
