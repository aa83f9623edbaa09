// Package query implements spec.md section 4.C, the Query Engine: a
// stateless function from (repository, revision, query) to entry or set
// of entries, evaluated directly against an Object Store shard.
package query

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
	"github.com/dogmahub/dogma/internal/objectstore"
	"github.com/dogmahub/dogma/internal/pathspec"
	"github.com/dogmahub/dogma/internal/types"
)

// Engine evaluates queries against one repository's object store shard.
type Engine struct {
	store *objectstore.Store
}

// New returns an Engine reading from store.
func New(store *objectstore.Store) *Engine {
	return &Engine{store: store}
}

// resolve turns a (possibly relative) revision into an absolute one and
// the tree at that revision.
func (e *Engine) resolve(revision types.Revision) (int64, *objectstore.Tree, error) {
	head, err := e.store.GetHead()
	if err != nil {
		return 0, nil, err
	}
	abs, err := revision.Resolve(head.Revision)
	if err != nil {
		return 0, nil, err
	}
	if abs == 0 {
		return 0, &objectstore.Tree{Entries: map[string]objectstore.TreeEntry{}}, nil
	}

	// walk from head to the commit at abs to find its tree; CommitList's
	// range is half-open, so [abs, abs+1) returns exactly that commit
	// when it's in range.
	chain, err := e.store.CommitList(head.CommitID, abs, abs+1)
	if err != nil {
		return 0, nil, err
	}
	if len(chain) == 0 {
		return 0, nil, dogmaerrors.New(dogmaerrors.NotFound, "revision %d not found", abs)
	}
	tree, err := e.store.GetTree(chain[len(chain)-1].TreeID)
	if err != nil {
		return 0, nil, err
	}
	return abs, tree, nil
}

func (e *Engine) entryAt(tree *objectstore.Tree, path string) (types.Entry, bool, error) {
	te, ok := tree.Entries[path]
	if !ok || te.Deleted {
		return types.Entry{}, false, nil
	}
	content, err := e.store.Get(te.BlobID)
	if err != nil {
		return types.Entry{}, false, err
	}
	return types.Entry{Path: path, Type: types.EntryType(te.Type), Content: content}, true, nil
}

// Get is the identity query: the entry at the exact path.
func (e *Engine) Get(revision types.Revision, path string) (types.Entry, error) {
	_, tree, err := e.resolve(revision)
	if err != nil {
		return types.Entry{}, err
	}
	entry, ok, err := e.entryAt(tree, path)
	if err != nil {
		return types.Entry{}, err
	}
	if !ok {
		return types.Entry{}, dogmaerrors.New(dogmaerrors.NotFound, "no entry at %s", path)
	}
	return entry, nil
}

// GetPath is the JSON-path query: path must name a JSON or YAML entry;
// expr is evaluated against its decoded content and the matching
// sub-tree is returned as a new entry's content, re-encoded as JSON.
func (e *Engine) GetPath(revision types.Revision, path, expr string) (types.Entry, error) {
	entry, err := e.Get(revision, path)
	if err != nil {
		return types.Entry{}, err
	}
	if entry.Type != types.EntryTypeJSON && entry.Type != types.EntryTypeYAML {
		return types.Entry{}, dogmaerrors.New(dogmaerrors.InvalidPush, "%s is not a JSON or YAML entry", path)
	}

	doc := entry.Content
	if entry.Type == types.EntryTypeYAML {
		converted, err := yamlToJSON(doc)
		if err != nil {
			// invalid YAML is served as plain text rather than erroring
			return types.Entry{Path: path, Type: types.EntryTypeText, Content: entry.Content}, nil
		}
		doc = converted
	}

	sub, err := evalJSONPath(doc, expr)
	if err != nil {
		return types.Entry{}, dogmaerrors.Wrap(dogmaerrors.NotFound, err, "json-path %s against %s", expr, path)
	}
	return types.Entry{Path: path, Type: types.EntryTypeJSON, Content: sub}, nil
}

// Find returns an ordered mapping from path to entry for every live
// entry whose path matches pattern, under revision.
func (e *Engine) Find(revision types.Revision, pattern *pathspec.Pattern) ([]types.Entry, error) {
	_, tree, err := e.resolve(revision)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(tree.Entries))
	for p, te := range tree.Entries {
		if te.Deleted {
			continue
		}
		if pattern.Match(p) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	entries := make([]types.Entry, 0, len(paths))
	for _, p := range paths {
		entry, ok, err := e.entryAt(tree, p)
		if err != nil {
			return nil, err
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// GetHistory returns the commits in the half-open revision range
// [from, to) whose touched-path set intersects pattern. to of
// HeadRevision means "up to and including head".
func (e *Engine) GetHistory(from, to types.Revision, pattern *pathspec.Pattern) ([]types.Commit, error) {
	head, err := e.store.GetHead()
	if err != nil {
		return nil, err
	}
	fromAbs, err := from.Resolve(head.Revision)
	if err != nil {
		return nil, err
	}
	var toAbs int64
	if to != types.HeadRevision {
		toAbs, err = to.Resolve(head.Revision)
		if err != nil {
			return nil, err
		}
	}
	objs, err := e.store.CommitList(head.CommitID, fromAbs, toAbs)
	if err != nil {
		return nil, err
	}

	var out []types.Commit
	for _, c := range objs {
		if pattern != nil && !touches(c.Touched, pattern) {
			continue
		}
		out = append(out, types.Commit{
			Revision:  c.Revision,
			Author:    c.Author,
			Summary:   c.Summary,
			Detail:    c.Detail,
			Markup:    types.MarkupKind(c.Markup),
			Timestamp: c.Timestamp,
			Touched:   c.Touched,
		})
	}
	return out, nil
}

func touches(touched []string, pattern *pathspec.Pattern) bool {
	for _, p := range touched {
		if pattern.Match(p) {
			return true
		}
	}
	return false
}

// GetDiff returns a Change transforming the query's result at path
// between from and to: a JSON patch for JSON entries, a unified text
// diff otherwise. A path absent on one side is reported via its
// zero-value content, letting the caller distinguish create/delete.
func (e *Engine) GetDiff(from, to types.Revision, path string) (types.Change, error) {
	oldEntry, oldErr := e.Get(from, path)
	newEntry, newErr := e.Get(to, path)
	if oldErr != nil && dogmaerrors.Is(oldErr, dogmaerrors.NotFound) {
		oldEntry = types.Entry{}
	} else if oldErr != nil {
		return types.Change{}, oldErr
	}
	if newErr != nil && dogmaerrors.Is(newErr, dogmaerrors.NotFound) {
		newEntry = types.Entry{}
	} else if newErr != nil {
		return types.Change{}, newErr
	}

	typ := newEntry.Type
	if typ == "" {
		typ = oldEntry.Type
	}

	if typ == types.EntryTypeJSON {
		return diffJSON(path, oldEntry.Content, newEntry.Content)
	}
	return diffText(path, oldEntry.Content, newEntry.Content), nil
}

func yamlToJSON(doc []byte) ([]byte, error) {
	var generic any
	if err := yaml.Unmarshal(doc, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(generic))
}

// normalizeYAML converts yaml.v2's map[interface{}]interface{} decode
// shape into map[string]any so the result round-trips through
// encoding/json, matching the generic shape JSON entries already decode
// into for evalJSONPath/diffJSONPatch.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toString(k)] = normalizeYAML(val)
		}
		return out
	case []interface{}:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeYAML(val)
		}
		return out
	default:
		return v
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(bytes.Trim(b, `"`))
}
