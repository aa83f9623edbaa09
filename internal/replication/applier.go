package replication

import "encoding/json"

// Applier applies one Command to local state (Repository Manager,
// Commit Engine, Session Store) and returns an informational result.
// Implementations live alongside the component they mutate; replication
// only sequences calls into them.
type Applier interface {
	Apply(cmd Command) (result json.RawMessage, err error)
}

// ApplierFunc adapts a plain function to Applier.
type ApplierFunc func(cmd Command) (json.RawMessage, error)

func (f ApplierFunc) Apply(cmd Command) (json.RawMessage, error) { return f(cmd) }
