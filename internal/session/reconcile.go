// internal/session/reconcile.go
package session

import (
	"fmt"

	"github.com/jason-s-yu/turnsync/internal/models"
)

// ReplayEvent is one newly observed remote action.
type ReplayEvent struct {
	Username string
	Value    int
	Index    int
}

// Desync reports a player whose local mirror was reset to the remote history.
type Desync struct {
	Username string
	Err      error
}

// Reconcile diffs every remote history in info against the local mirror.
//
// The match service only appends, so the length difference is the delta:
// re-observing a snapshot yields no events. New actions are appended to the
// mirror and returned in snapshot player order, ascending index within each
// player. A history that shrank or diverged from the mirror cannot be
// replayed; the mirror is replaced by the remote history and the player is
// reported as desynced. The local player and players missing from the
// mirror are skipped.
func Reconcile(players []*models.Player, me string, info *models.MatchInfo) ([]ReplayEvent, []Desync) {
	if info == nil {
		return nil, nil
	}

	byName := make(map[string]*models.Player, len(players))
	for _, p := range players {
		byName[p.Username] = p
	}

	var (
		events  []ReplayEvent
		desyncs []Desync
	)
	for _, remote := range info.Players {
		if remote.Username == me {
			continue
		}
		local, ok := byName[remote.Username]
		if !ok {
			continue
		}
		hist, err := remote.History()
		if err != nil {
			desyncs = append(desyncs, Desync{Username: remote.Username, Err: err})
			continue
		}

		localLen := len(local.History)
		if n := commonPrefix(local.History, hist); n < localLen {
			local.History = hist.Clone()
			desyncs = append(desyncs, Desync{
				Username: remote.Username,
				Err:      fmt.Errorf("%w: local %d actions, remote %d, agree on %d", models.ErrDesync, localLen, len(hist), n),
			})
			continue
		}

		for i := localLen; i < len(hist); i++ {
			local.History = append(local.History, hist[i])
			events = append(events, ReplayEvent{Username: remote.Username, Value: hist[i], Index: i})
		}
	}
	return events, desyncs
}

// commonPrefix returns how many leading entries a and b share.
func commonPrefix(a, b models.ActionHistory) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
