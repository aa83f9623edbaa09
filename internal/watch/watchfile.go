package watch

import (
	"context"
	"time"

	"github.com/dogmahub/dogma/internal/pathspec"
)

// ContentFetcher reads an entry's content at a specific revision, used
// by WatchFile to pair the matched revision with its content. The
// Query Engine (internal/query) supplies this via Engine.Get.
type ContentFetcher func(repo string, revision int64, path string) ([]byte, error)

// WatchFile implements spec.md's watchFile primitive: watchRepository
// restricted to a single path, paired with a fetch of that path's
// content at the revision that satisfied the wait.
func (r *Registry) WatchFile(ctx context.Context, repo string, lastKnown int64, path string, timeout time.Duration, fetch ContentFetcher) (int64, []byte, error) {
	pattern, err := pathspec.Compile(path)
	if err != nil {
		return 0, nil, err
	}
	rev, err := r.WatchRepository(ctx, repo, lastKnown, pattern, timeout)
	if err != nil {
		return 0, nil, err
	}
	content, err := fetch(repo, rev, path)
	if err != nil {
		return 0, nil, err
	}
	return rev, content, nil
}
