// internal/session/state.go
package session

import (
	"fmt"

	"github.com/jason-s-yu/turnsync/internal/models"
)

// State is the client-local mirror of one match. It is owned by the
// session's event loop; nothing else mutates it.
type State struct {
	Variant models.Variant
	Me      string
	Config  models.GameConfig

	Players    []*models.Player
	LocalIndex int // index of Me in Players, -1 when absent

	// Snapshot is the latest snapshot whose turn pointer is still current.
	Snapshot *models.MatchSnapshot

	Progress  models.QuizProgress
	LocalDone bool

	Ended  bool
	Winner string
}

func newState(v models.Variant, me string) *State {
	return &State{Variant: v, Me: me, LocalIndex: -1}
}

// Local returns the local player's mirror, or nil.
func (st *State) Local() *models.Player {
	if st.LocalIndex < 0 || st.LocalIndex >= len(st.Players) {
		return nil
	}
	return st.Players[st.LocalIndex]
}

// Player finds a mirror by username.
func (st *State) Player(username string) *models.Player {
	for _, p := range st.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// MatchCode returns the code of the last observed match, if any.
func (st *State) MatchCode() string {
	if st.Snapshot == nil {
		return ""
	}
	return st.Snapshot.MatchCode
}

func (st *State) setLocalIndex() {
	st.LocalIndex = -1
	for i, p := range st.Players {
		if p.Username == st.Me {
			st.LocalIndex = i
			return
		}
	}
}

// initPlayers builds the mirror from the first roster. Board tokens are
// handed out in roster order.
func (st *State) initPlayers(roster []models.Participant) {
	st.Players = make([]*models.Player, 0, len(roster))
	seen := make(map[string]bool, len(roster))
	for _, r := range roster {
		if r.Username == "" || seen[r.Username] {
			continue
		}
		seen[r.Username] = true
		p := &models.Player{Username: r.Username, History: models.ActionHistory{}}
		if st.Variant == models.VariantGoose {
			p.Token = fmt.Sprintf("goose%d", len(st.Players)+1)
		}
		st.Players = append(st.Players, p)
	}
	st.setLocalIndex()
}

// removeMissing drops every mirrored player absent from roster and returns
// their usernames. Players who joined after the first load are ignored.
func (st *State) removeMissing(roster []models.Participant) []string {
	present := make(map[string]bool, len(roster))
	for _, r := range roster {
		present[r.Username] = true
	}

	var left []string
	kept := st.Players[:0]
	for _, p := range st.Players {
		if present[p.Username] {
			kept = append(kept, p)
			continue
		}
		left = append(left, p.Username)
	}
	for i := len(kept); i < len(st.Players); i++ {
		st.Players[i] = nil
	}
	st.Players = kept
	st.setLocalIndex()
	return left
}
