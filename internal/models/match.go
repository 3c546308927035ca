// internal/models/match.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Variant names which of the games a session is synchronizing.
type Variant string

const (
	VariantGoose  Variant = "goose"
	VariantMemory Variant = "memory"
	VariantQuiz   Variant = "quiz"
)

// ParseVariant validates a variant name read from configuration.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantGoose, VariantMemory, VariantQuiz:
		return v, nil
	}
	return "", fmt.Errorf("unknown game variant %q", s)
}

// MatchSnapshot is one polled copy of the authoritative match row.
// The client never writes these fields; it only observes successive snapshots.
type MatchSnapshot struct {
	MatchCode         string     `json:"codice"`
	LobbyCode         string     `json:"codice_lobby"`
	GameID            int        `json:"id_gioco"`
	CurrentTurnPlayer string     `json:"giocatore_corrente"`
	Info              *MatchInfo `json:"info"`   // nil until the match service initializes it
	Winner            *string    `json:"vincitore"`
}

// MatchInfo carries every player's committed data for the match.
type MatchInfo struct {
	Players []PlayerInfo `json:"giocatori"`
}

// PlayerInfo is one player's entry in MatchInfo. Data is an ActionHistory for
// the turn-based games and a QuizProgress for the quiz.
type PlayerInfo struct {
	Username string          `json:"username"`
	Data     json.RawMessage `json:"info_giocatore"`
}

// QuizProgress is the per-player payload saved by the quiz.
type QuizProgress struct {
	Answered int `json:"answered"`
	Score    int `json:"score"`
	Time     int `json:"time"` // seconds since the quiz started
}

// Validate rejects snapshots that lack fields the reconciliation depends on.
func (s MatchSnapshot) Validate() error {
	if s.MatchCode == "" {
		return fmt.Errorf("%w: codice", ErrMissingField)
	}
	if s.Info == nil {
		return nil
	}
	for i, p := range s.Info.Players {
		if p.Username == "" {
			return fmt.Errorf("%w: giocatori[%d].username", ErrMissingField, i)
		}
	}
	return nil
}

// WinnerName returns the winner recorded by the match service, if any.
func (s MatchSnapshot) WinnerName() string {
	if s.Winner == nil {
		return ""
	}
	return *s.Winner
}

// History decodes the player's data as an ActionHistory. A missing or null
// payload is an empty history.
func (p PlayerInfo) History() (ActionHistory, error) {
	if isNull(p.Data) {
		return ActionHistory{}, nil
	}
	var h ActionHistory
	if err := json.Unmarshal(p.Data, &h); err != nil {
		return nil, fmt.Errorf("%w: history of %s: %v", ErrDesync, p.Username, err)
	}
	return h, nil
}

// Progress decodes the player's data as quiz progress.
func (p PlayerInfo) Progress() (QuizProgress, error) {
	var q QuizProgress
	if isNull(p.Data) {
		return q, nil
	}
	if err := json.Unmarshal(p.Data, &q); err != nil {
		return q, fmt.Errorf("%w: progress of %s: %v", ErrDesync, p.Username, err)
	}
	return q, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// GameConfig is the static configuration of a game. The core only needs the
// sizes; the entries themselves belong to the presentation layer.
type GameConfig struct {
	Cells     []json.RawMessage `json:"cells"`
	Cards     []json.RawMessage `json:"cards"`
	Questions []json.RawMessage `json:"questions"`
}

// LastCell is the index of the goal cell on the board, or -1 without a board.
func (c GameConfig) LastCell() int {
	return len(c.Cells) - 1
}

// Participant is one entry of the lobby roster.
type Participant struct {
	Username string `json:"username"`
}
