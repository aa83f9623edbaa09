// names.go validates project and repository names against spec.md
// section 3's grammar, `[A-Za-z_][A-Za-z0-9._-]*`.
package repomanager

import (
	"regexp"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

var nameGrammar = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

const maxNameLen = 63

func validateName(kind, name string) error {
	if len(name) == 0 || len(name) > maxNameLen {
		return dogmaerrors.New(dogmaerrors.InvalidPush, "%s name must be 1-%d characters", kind, maxNameLen)
	}
	if !nameGrammar.MatchString(name) {
		return dogmaerrors.New(dogmaerrors.InvalidPush, "%s name %q must match [A-Za-z_][A-Za-z0-9._-]*", kind, name)
	}
	return nil
}
