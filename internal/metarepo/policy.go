package metarepo

import (
	"strings"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// mirrorStateFile is the sentinel the Mirror Scheduler commits alongside
// every REMOTE_TO_LOCAL sync, recording the remote commit id it last
// applied (spec.md 4.H).
const mirrorStateFile = "mirror_state.json"

// Policy returns a commit.PathPolicy implementing spec.md's "always
// rejected push paths" allowlist: "/" can never be a push target, and
// mirror_state.json may only be written by systemAuthor, the Mirror
// Scheduler's own sync author — every other push touching it is
// rejected rather than silently accepted or scattered across ad hoc
// checks at each call site.
func Policy(systemAuthor string) commit.PathPolicy {
	return func(repo, path, author string) error {
		if path == "/" {
			return dogmaerrors.New(dogmaerrors.NotAllowed, "path / cannot be written directly")
		}
		if isMirrorStatePath(path) && author != systemAuthor {
			return dogmaerrors.New(dogmaerrors.NotAllowed, "%s is reserved for the mirror subsystem", mirrorStateFile)
		}
		return nil
	}
}

func isMirrorStatePath(path string) bool {
	return path == "/"+mirrorStateFile || strings.HasSuffix(path, "/"+mirrorStateFile)
}
