// Package credential implements spec.md section 4.I, the Credential
// Store: a typed union of authentication material, serialized as JSON
// inside the meta-repository, resolved by matching a requested hostname
// against each credential's pattern list in insertion order.
package credential

import (
	"encoding/json"

	"github.com/gobwas/glob"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// Kind discriminates the credential payload shape.
type Kind string

const (
	KindPassword Kind = "PASSWORD"
	KindSSHKey   Kind = "SSH_KEY"
	KindToken    Kind = "TOKEN"
	KindNone     Kind = "NONE"
)

// Credential is one entry in the store: id, type, enabled flag,
// hostname patterns, and type-specific sensitive fields. Sensitive
// fields are tagged so callers can redact them everywhere except the
// single resolution path that hands auth material to the Mirror
// Scheduler.
type Credential struct {
	ID       string   `json:"id"`
	Type     Kind     `json:"type"`
	Enabled  bool     `json:"enabled"`
	Patterns []string `json:"patterns"`

	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	SSHKey     string `json:"sshKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Token      string `json:"token,omitempty"`

	compiled []glob.Glob
}

// Redacted returns a copy of c with every sensitive field cleared, safe
// to log or return from a listing operation.
func (c Credential) Redacted() Credential {
	c.Password = ""
	c.SSHKey = ""
	c.Passphrase = ""
	c.Token = ""
	c.compiled = nil
	return c
}

// MarshalJSON encodes every exported field, sensitive ones included, so
// Store can persist credentials in full; listings go through Redacted,
// which blanks the sensitive fields first. The unexported pre-compiled
// globs are never encoded.
func (c Credential) MarshalJSON() ([]byte, error) {
	type alias Credential
	return json.Marshal(alias(c))
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, dogmaerrors.New(dogmaerrors.InvalidPush, "invalid hostname pattern %q: %v", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func (c *Credential) matches(hostname string) bool {
	for _, g := range c.compiled {
		if g.Match(hostname) {
			return true
		}
	}
	return false
}
