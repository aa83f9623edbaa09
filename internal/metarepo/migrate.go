package metarepo

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/google/uuid"

	"github.com/dogmahub/dogma/internal/commit"
	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/query"
	"github.com/dogmahub/dogma/internal/types"
)

// legacyMirrorsFile/legacyCredentialsFile are the single aggregate-file
// layout spec.md 4.J says must be migrated to one-file-per-element.
const (
	legacyMirrorsFile     = "/mirrors.json"
	legacyCredentialsFile = "/credentials.json"
)

// MigrateLegacy splits any legacy aggregate file present in repoID's
// tree into one file per element under /mirrors/ and /credentials/,
// suffixing duplicate ids with "-1", "-2", ... and generating a short
// random suffix for elements with no id at all to avoid cross-project
// collisions. It is idempotent: once the aggregate file is gone, a
// second call finds nothing to do and pushes no commit.
func MigrateLegacy(engine *commit.Engine, q *query.Engine, repoID, author string) error {
	changes, err := splitAggregate(q, legacyMirrorsFile, "/mirrors")
	if err != nil {
		return err
	}
	credChanges, err := splitAggregate(q, legacyCredentialsFile, "/credentials")
	if err != nil {
		return err
	}
	changes = append(changes, credChanges...)
	if len(changes) == 0 {
		return nil
	}

	_, _, err = engine.Push(repoID, 0, true, author, "migrate legacy meta-repo aggregate files", "", types.MarkupPlaintext, changes)
	if err != nil && !dogmaerrors.Is(err, dogmaerrors.RedundantChange) {
		return err
	}
	return nil
}

// splitAggregate reads legacyPath (a JSON array of objects, each
// optionally carrying an "id" field) and returns the Changes that
// delete it and create one /<dir>/<id>.json per element.
func splitAggregate(q *query.Engine, legacyPath, dir string) ([]types.Change, error) {
	entry, err := q.Get(types.HeadRevision, legacyPath)
	if dogmaerrors.Is(err, dogmaerrors.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(entry.Content, &elements); err != nil {
		return nil, dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding legacy aggregate %s", legacyPath)
	}

	used := map[string]bool{}
	var changes []types.Change
	for _, raw := range elements {
		id, err := elementID(raw)
		if err != nil {
			return nil, err
		}
		id = dedupe(id, used)
		used[id] = true
		changes = append(changes, types.Change{
			Path:    path.Join(dir, id+".json"),
			Kind:    types.ChangeUpsertJSON,
			Content: raw,
		})
	}
	changes = append(changes, types.Change{Path: legacyPath, Kind: types.ChangeRemove})

	sort.Slice(changes[:len(changes)-1], func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func elementID(raw json.RawMessage) (string, error) {
	var withID struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &withID); err != nil {
		return "", dogmaerrors.Wrap(dogmaerrors.Corruption, err, "decoding legacy aggregate element")
	}
	if withID.ID != "" {
		return withID.ID, nil
	}
	return "gen-" + uuid.NewString()[:8], nil
}

// dedupe appends "-1", "-2", ... to id until it is unused, per spec.md
// 4.J's collision-suffixing rule.
func dedupe(id string, used map[string]bool) string {
	if !used[id] {
		return id
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if !used[candidate] {
			return candidate
		}
	}
}
