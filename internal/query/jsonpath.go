// jsonpath.go implements the JSON-path query evaluation spec.md section
// 4.C names, grounded on the teacher's indirect dependency on
// github.com/exponent-io/jsonpath (pulled in by kubectl's -o jsonpath
// plumbing). That library augments encoding/json.Decoder with SeekTo,
// which streams through a document to the first token at a given path
// without decoding the rest — exactly the "extract this sub-tree"
// operation the Query Engine needs, and cheaper than unmarshalling the
// whole entry into a generic tree first.
package query

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/exponent-io/jsonpath"
)

// evalJSONPath parses expr (a dot/bracket path like ".spec.replicas" or
// ".items[2].name") and returns the JSON-encoded value found at that
// path within doc.
func evalJSONPath(doc []byte, expr string) ([]byte, error) {
	segs, err := parsePathExpr(expr)
	if err != nil {
		return nil, err
	}

	dec := jsonpath.NewDecoder(bytes.NewReader(doc))
	if len(segs) > 0 {
		ok, err := dec.SeekTo(segs...)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errNotFound(expr)
		}
	}

	var sub json.RawMessage
	if err := dec.Decode(&sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// parsePathExpr turns ".a.b[2].c" into []interface{}{"a", "b", 2, "c"},
// the segment shape jsonpath.Decoder.SeekTo expects.
func parsePathExpr(expr string) ([]interface{}, error) {
	expr = strings.TrimPrefix(expr, ".")
	if expr == "" {
		return nil, nil
	}

	var segs []interface{}
	for _, part := range strings.Split(expr, ".") {
		for part != "" {
			if idx := strings.IndexByte(part, '['); idx >= 0 {
				if idx > 0 {
					segs = append(segs, part[:idx])
				}
				end := strings.IndexByte(part, ']')
				if end < idx {
					return nil, errBadExpr(expr)
				}
				n, err := strconv.Atoi(part[idx+1 : end])
				if err != nil {
					return nil, errBadExpr(expr)
				}
				segs = append(segs, n)
				part = part[end+1:]
				continue
			}
			segs = append(segs, part)
			part = ""
		}
	}
	return segs, nil
}
