// internal/models/player.go
package models

// ActionHistory is a player's ordered, append-only log of committed actions.
// For the board game each entry is a die roll, for the memory game a matched
// pair id; a zero entry marks the end of the player's turn.
type ActionHistory []int

// Clone returns an independent copy of the history.
func (h ActionHistory) Clone() ActionHistory {
	out := make(ActionHistory, len(h))
	copy(out, h)
	return out
}

// Position folds the history onto a board whose goal is lastCell. A roll that
// overshoots the goal bounces back by the excess, and never past the start.
func (h ActionHistory) Position(lastCell int) int {
	pos := 0
	for _, roll := range h {
		pos += roll
		if lastCell > 0 && pos > lastCell {
			pos = lastCell - (pos - lastCell)
		}
		if pos < 0 {
			pos = 0
		}
	}
	return pos
}

// Moves counts the non-zero entries.
func (h ActionHistory) Moves() int {
	n := 0
	for _, v := range h {
		if v != 0 {
			n++
		}
	}
	return n
}

// Player is the client-side mirror of one lobby participant.
type Player struct {
	Username string        `json:"username"`
	Token    string        `json:"token,omitempty"` // visual handle, e.g. "goose2"
	History  ActionHistory `json:"history"`

	// Position is maintained by the replayer: the board cell for the goose
	// game, the number of pairs found for the memory game.
	Position int `json:"position"`
}
