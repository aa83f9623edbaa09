package objectstore

import "encoding/json"

// Tree is a flat, recursive directory listing: path -> content object id.
// Unlike a real Git tree it is not nested by directory; the Commit
// Engine materializes a repository snapshot as a flat path->entry
// mapping anyway (spec.md section 3), so a flat tree keeps tree diffing
// a single map comparison.
type Tree struct {
	Entries map[string]TreeEntry `json:"entries"`
}

// TreeEntry records one path's current content object id and type, so a
// tree can be diffed without reading every blob.
type TreeEntry struct {
	Type    string `json:"type"`
	BlobID  string `json:"blobId"`
	Deleted bool   `json:"deleted,omitempty"`
}

// PutTree stores t and returns its object id.
func (s *Store) PutTree(t *Tree) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return s.Put(KindTree, data)
}

// GetTree retrieves the tree stored under id.
func (s *Store) GetTree(id string) (*Tree, error) {
	data, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
