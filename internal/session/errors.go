// internal/session/errors.go
package session

import "errors"

var (
	// ErrReplayInterrupted is logged when queued replay is discarded because
	// the session is leaving or the match has ended.
	ErrReplayInterrupted = errors.New("replay interrupted")

	// ErrNotYourTurn rejects a local action outside the local player's turn.
	ErrNotYourTurn = errors.New("not your turn")
)
