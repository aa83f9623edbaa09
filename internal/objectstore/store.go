// Package objectstore implements spec.md section 4.A: immutable,
// content-addressed storage of blobs, trees, and commits, one shard per
// repository. Ids are hex-encoded SHA-256 digests of the kind-prefixed
// payload, following the same content-addressing idiom the teacher uses
// for its bundle manifests (internal/_teacherref/manifest/manifest.go),
// generalized from one kind ("manifest") to three.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// Kind is one of the three item kinds the object store holds.
type Kind string

const (
	KindBlob   Kind = "blob"
	KindTree   Kind = "tree"
	KindCommit Kind = "commit"
)

// Store is a single repository's content-addressed object shard. It is
// safe for concurrent Get, but Put calls from a single writer are
// expected to be serialized by the Commit Engine's per-repository lock
// (spec.md section 5).
type Store struct {
	root string
	enc  *Encryptor // nil when encryption is disabled for this repository
}

// Open returns the object store shard rooted at dir, creating it if
// necessary. enc may be nil to disable at-rest encryption.
func Open(dir string, enc *Encryptor) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating object store at %s", dir)
	}
	return &Store{root: dir, enc: enc}, nil
}

type envelope struct {
	Kind      Kind   `json:"kind"`
	Encrypted bool   `json:"encrypted"`
	Payload   []byte `json:"payload"`
}

// ID is the content address of a (kind, payload) pair: hex(sha256(kind ||
// 0x00 || payload)). Identical input always yields an identical id, and
// re-Put of the same input is a no-op (idempotent), matching spec.md's
// contract for put.
func ID(kind Kind, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) shardPath(id string) string {
	if len(id) < 4 {
		return filepath.Join(s.root, id)
	}
	return filepath.Join(s.root, id[:2], id[2:])
}

// Put stores payload under its content address, optionally wrapped in
// per-object encryption, and returns the id. It is idempotent: re-Put of
// the same (kind, payload) is a cheap no-op.
func (s *Store) Put(kind Kind, payload []byte) (string, error) {
	id := ID(kind, payload)
	path := s.shardPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil // already present: idempotent
	}

	env := envelope{Kind: kind, Payload: payload}
	if s.enc != nil {
		sealed, err := s.enc.Seal(payload)
		if err != nil {
			return "", dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encrypting object %s", id)
		}
		env.Payload = sealed
		env.Encrypted = true
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.Corruption, err, "marshalling object %s", id)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating shard for %s", id)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.Corruption, err, "persisting object %s", id)
	}
	return id, nil
}

// Get retrieves the payload stored under id, transparently unwrapping
// encryption if the object was sealed.
func (s *Store) Get(id string) ([]byte, error) {
	path := s.shardPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, dogmaerrors.New(dogmaerrors.NotFound, "object %s not found", id)
	}
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "reading object %s", id)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "corrupt object %s", id)
	}

	payload := env.Payload
	if env.Encrypted {
		if s.enc == nil {
			return nil, dogmaerrors.New(dogmaerrors.Corruption, "object %s is encrypted but no key is configured", id)
		}
		payload, err = s.enc.Open(payload)
		if err != nil {
			return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decrypting object %s", id)
		}
	}
	return payload, nil
}

// writeAtomic writes data to path via a temp-file-then-rename, the same
// discipline the teacher's content store and spec.md's session store both
// rely on for crash-safe persistence without an in-process lock on the
// write path.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
