package credential

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// Store persists an ordered list of Credentials to a single JSON
// manifest, following the same temp-file-then-rename discipline as
// internal/repomanager and internal/session. Order matters: Resolve
// returns the first enabled credential whose pattern list matches.
type Store struct {
	mu    sync.Mutex
	path  string
	order []Credential // preserves insertion order; id is unique within
}

// Open loads (or initializes) a Store whose manifest lives at
// dataDir/credentials.json.
func Open(dataDir string) (*Store, error) {
	s := &Store{path: filepath.Join(dataDir, "credentials.json")}
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "reading credential manifest")
	}
	var creds []Credential
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding credential manifest")
	}
	for i := range creds {
		if err := s.compile(&creds[i]); err != nil {
			return nil, err
		}
	}
	s.order = creds
	return s, nil
}

func (s *Store) compile(c *Credential) error {
	globs, err := compilePatterns(c.Patterns)
	if err != nil {
		return err
	}
	c.compiled = globs
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.order, "", "  ")
	if err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "encoding credential manifest")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "creating credential directory")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return dogmaerrors.Wrap(dogmaerrors.Corruption, err, "writing credential manifest")
	}
	return os.Rename(tmp, s.path)
}

// Put inserts a new credential, or replaces an existing one with the
// same id in place (preserving its position in resolution order).
func (s *Store) Put(c Credential) error {
	if err := s.compile(&c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.order {
		if existing.ID == c.ID {
			s.order[i] = c
			return s.save()
		}
	}
	s.order = append(s.order, c)
	return s.save()
}

// Remove deletes the credential with id, if present.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.order {
		if c.ID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return s.save()
		}
	}
	return dogmaerrors.New(dogmaerrors.NotFound, "credential %s does not exist", id)
}

// List returns every credential with sensitive fields redacted, in
// resolution order.
func (s *Store) List() []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Credential, len(s.order))
	for i, c := range s.order {
		out[i] = c.Redacted()
	}
	return out
}

// Resolve returns the first enabled credential, in insertion order,
// whose pattern list matches hostname — including its sensitive fields,
// since the caller is the Mirror Scheduler about to authenticate with
// them. Returns NotFound if no credential matches.
func (s *Store) Resolve(hostname string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.order {
		if !c.Enabled {
			continue
		}
		if c.matches(hostname) {
			return c, nil
		}
	}
	return Credential{}, dogmaerrors.New(dogmaerrors.NotFound, "no credential matches hostname %q", hostname)
}
