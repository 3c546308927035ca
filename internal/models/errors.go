// internal/models/errors.go
package models

import "errors"

var (
	// ErrFetchFailed covers every transport, authorization or server failure
	// talking to the match service. It is always fatal to the session.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrDesync reports a local mirror that no longer agrees with the
	// append-only remote history.
	ErrDesync = errors.New("desync detected")

	// ErrMissingField reports a snapshot without a field the client depends on.
	ErrMissingField = errors.New("snapshot missing required field")
)
