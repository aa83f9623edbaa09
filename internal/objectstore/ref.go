package objectstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// Head is the one mutable pointer a Store carries: which commit object
// is currently at the tip, and at what revision. Everything else in the
// store is immutable and content-addressed; Head is what the Commit
// Engine's per-repository lock protects.
type Head struct {
	Revision int64  `json:"revision"`
	CommitID string `json:"commitId"`
}

func (s *Store) headPath() string {
	return filepath.Join(s.root, "HEAD.json")
}

// GetHead returns the store's current head, or the zero Head (revision
// 0, no commit) if the repository has never been pushed to.
func (s *Store) GetHead() (Head, error) {
	data, err := os.ReadFile(s.headPath())
	if os.IsNotExist(err) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "reading HEAD")
	}
	var h Head
	if err := json.Unmarshal(data, &h); err != nil {
		return Head{}, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding HEAD")
	}
	return h, nil
}

// SetHead atomically advances the store's head. Callers are responsible
// for serializing SetHead against concurrent writers (spec.md section
// 5's per-repository write lock).
func (s *Store) SetHead(h Head) error {
	data, err := json.Marshal(h)
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding HEAD")
	}
	return writeAtomic(s.headPath(), data)
}
