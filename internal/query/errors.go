package query

import "github.com/dogmahub/dogma/internal/dogmaerrors"

func errNotFound(expr string) error {
	return dogmaerrors.New(dogmaerrors.NotFound, "json-path %q matched nothing", expr)
}

func errBadExpr(expr string) error {
	return dogmaerrors.New(dogmaerrors.InvalidPush, "malformed json-path expression %q", expr)
}
