package types

// EntryType selects how an Entry's Content is interpreted.
type EntryType string

const (
	EntryTypeJSON      EntryType = "JSON"
	EntryTypeYAML      EntryType = "YAML"
	EntryTypeText      EntryType = "TEXT"
	EntryTypeDirectory EntryType = "DIRECTORY"
)

// Entry is a (path, type, content) triple, compared structurally.
type Entry struct {
	Path    string    `json:"path"`
	Type    EntryType `json:"type"`
	Content []byte    `json:"content,omitempty"`
}

// Clone returns a deep copy of e so callers may mutate Content freely.
func (e Entry) Clone() Entry {
	if e.Content == nil {
		return e
	}
	c := make([]byte, len(e.Content))
	copy(c, e.Content)
	e.Content = c
	return e
}

// ChangeKind enumerates the kinds of edits spec.md section 3 defines.
type ChangeKind string

const (
	ChangeUpsertText  ChangeKind = "UPSERT_TEXT"
	ChangeUpsertJSON  ChangeKind = "UPSERT_JSON"
	ChangeUpsertYAML  ChangeKind = "UPSERT_YAML"
	ChangeApplyPatch  ChangeKind = "APPLY_JSON_PATCH"
	ChangeApplyTxtPch ChangeKind = "APPLY_TEXT_PATCH"
	ChangeRemove      ChangeKind = "REMOVE"
	ChangeRename      ChangeKind = "RENAME"
)

// Change is a user-supplied edit. Content holds the kind-specific
// payload: raw text/JSON/YAML bytes for upserts, an RFC 6902 document
// for ApplyPatch, a unified diff for ApplyTextPatch, and the destination
// path for Rename (stored in RenameTo, Content unused).
type Change struct {
	Path     string     `json:"path"`
	Kind     ChangeKind `json:"kind"`
	Content  []byte     `json:"content,omitempty"`
	RenameTo string     `json:"renameTo,omitempty"`
}

// MarkupKind selects how a commit's Detail is rendered.
type MarkupKind string

const (
	MarkupPlaintext MarkupKind = "PLAINTEXT"
	MarkupMarkdown  MarkupKind = "MARKDOWN"
)

// Commit is an atomic, immutable application of Changes at Revision.
type Commit struct {
	Revision  int64      `json:"revision"`
	Author    string     `json:"author"`
	Summary   string     `json:"summary"`
	Detail    string     `json:"detail,omitempty"`
	Markup    MarkupKind `json:"markup,omitempty"`
	Timestamp int64      `json:"timestamp"` // unix nanos, stamped by the caller
	// Touched holds the set of paths this commit's net changes affected,
	// used by the Watch Registry's pattern filter without re-diffing trees.
	Touched []string `json:"touched"`
}

// Revision is a signed integer; positive values are absolute (1 is the
// first commit pushed to the repository; a newly created repository has
// no commit and a head of 0), negative values are relative to head
// (-1 is HEAD). HeadRevision is the symbolic "current head" sentinel.
type Revision int64

const HeadRevision Revision = 0

// IsRelative reports whether r must be resolved against a known head
// before any storage I/O, per spec.md section 3.
func (r Revision) IsRelative() bool {
	return r <= 0
}

// Resolve normalizes r to a positive absolute revision given the
// repository's current head. HeadRevision and -1 both resolve to head.
func (r Revision) Resolve(head int64) (int64, error) {
	switch {
	case r == HeadRevision:
		return head, nil
	case r > 0:
		if int64(r) > head {
			return 0, errOutOfRange(int64(r), head)
		}
		return int64(r), nil
	case r == -1:
		return head, nil
	default:
		// other negative values are relative offsets from head: -2 is
		// one before head, and so on.
		abs := head + int64(r) + 1
		if abs < 1 {
			return 0, errOutOfRange(int64(r), head)
		}
		return abs, nil
	}
}
