// internal/models/ranking.go
package models

// RankingEntry is one derived row of the standings.
type RankingEntry struct {
	Username string `json:"username"`
	Finished bool   `json:"finished"`
	Score    int    `json:"score"` // quiz score, board position or pairs found
	Answered int    `json:"answered,omitempty"`
	Time     int    `json:"time"`

	// StillPlaying hides the score of an opponent who has not finished yet.
	StillPlaying bool `json:"stillPlaying,omitempty"`
}
