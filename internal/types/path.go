// Package types defines the data model shared across the commit/query
// engine, repository manager, and watch registry: paths, entries,
// changes, commits, and revisions (spec.md section 3).
package types

import (
	"regexp"
	"strings"

	"github.com/dogmahub/dogma/internal/dogmaerrors"
)

// segmentPattern matches one path segment: spec.md section 6's grammar,
// `[A-Za-z0-9._-]+` with no leading/trailing dot and no "..".
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidatePath checks a path against the grammar in spec.md sections 3
// and 6. The root "/" is a valid directory path.
func ValidatePath(path string) error {
	if path == "/" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		return dogmaerrors.New(dogmaerrors.InvalidPush, "path %q must start with /", path)
	}
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return dogmaerrors.New(dogmaerrors.InvalidPush, "path %q has no segments", path)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == "" {
			return dogmaerrors.New(dogmaerrors.InvalidPush, "path %q has an empty segment", path)
		}
		if seg == "." || seg == ".." {
			return dogmaerrors.New(dogmaerrors.InvalidPush, "path %q contains %q", path, seg)
		}
		if strings.HasPrefix(seg, ".") || strings.HasSuffix(seg, ".") {
			return dogmaerrors.New(dogmaerrors.InvalidPush, "segment %q may not start or end with '.'", seg)
		}
		if !segmentPattern.MatchString(seg) {
			return dogmaerrors.New(dogmaerrors.InvalidPush, "segment %q contains disallowed characters", seg)
		}
	}
	return nil
}

// IsDirectory reports whether path denotes a directory (ends in "/", or
// is the root).
func IsDirectory(path string) bool {
	return path == "/" || strings.HasSuffix(path, "/")
}

// EntryTypeFor infers the entry type from a path's extension, per
// spec.md section 3: ".json" (case-insensitive) is JSON, ".yaml"/".yml"
// is YAML, anything else is text.
func EntryTypeFor(path string) EntryType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return EntryTypeJSON
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return EntryTypeYAML
	default:
		return EntryTypeText
	}
}
