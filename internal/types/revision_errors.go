package types

import "github.com/dogmahub/dogma/internal/dogmaerrors"

func errOutOfRange(revision, head int64) error {
	return dogmaerrors.New(dogmaerrors.NotFound, "revision %d is out of range for head %d", revision, head)
}
