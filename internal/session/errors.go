package session

import "fmt"

// InvalidMetadataError is the only condition that refuses to create a
// session (spec.md §7): block_size <= 0, k <= 0, or orig_len > k*block_size.
type InvalidMetadataError struct {
	Op     string
	Reason string
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("session: invalid metadata (%s): %s", e.Op, e.Reason)
}

// NotLockedError reports a symbol ingested before sync lock with no
// metadata installed by any means (spec.md §7).
type NotLockedError struct{}

func (e *NotLockedError) Error() string {
	return "session: symbol ingested before sync lock and no metadata installed"
}
