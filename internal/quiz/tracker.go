// internal/quiz/tracker.go
package quiz

import (
	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/ranking"
)

// Tracker follows the progress of every quiz player across snapshots.
// Players answer simultaneously, so there is no history diff: each snapshot
// fully determines the standings.
type Tracker struct {
	me    string
	total int

	decided       bool
	firstFinisher string
	standings     []models.RankingEntry
}

// Update is the result of observing one snapshot.
type Update struct {
	Ranking []models.RankingEntry

	// FirstFinisher is set only on the snapshot where a remote player is
	// first seen to have answered every question.
	FirstFinisher string
}

// NewTracker creates a tracker for the local player me on a quiz of total questions.
func NewTracker(me string, total int) *Tracker {
	return &Tracker{me: me, total: total}
}

// Observe recomputes the standings from info. Opponents who have not
// finished are listed as still playing with their score hidden.
func (t *Tracker) Observe(info *models.MatchInfo) (Update, error) {
	if info == nil {
		return Update{Ranking: t.standings}, nil
	}

	entries := make([]models.RankingEntry, 0, len(info.Players))
	var finisher string
	for _, p := range info.Players {
		prog, err := p.Progress()
		if err != nil {
			return Update{Ranking: t.standings}, err
		}
		done := t.total > 0 && prog.Answered >= t.total
		e := models.RankingEntry{
			Username: p.Username,
			Finished: done,
			Score:    prog.Score,
			Answered: prog.Answered,
			Time:     prog.Time,
		}
		if !done && p.Username != t.me {
			e.StillPlaying = true
			e.Score = 0
		}
		entries = append(entries, e)
		if done && p.Username != t.me && finisher == "" {
			finisher = p.Username
		}
	}
	t.standings = ranking.Compute(entries)

	up := Update{Ranking: t.standings}
	if finisher != "" && !t.decided {
		t.decided = true
		t.firstFinisher = finisher
		up.FirstFinisher = finisher
	}
	return up, nil
}

// Decide marks the race as settled without a remote first finisher, e.g.
// because the local player finished first.
func (t *Tracker) Decide() {
	t.decided = true
}

// Decided reports whether the first finisher is known.
func (t *Tracker) Decided() bool {
	return t.decided
}

// FirstFinisher returns the remote player who finished first, if any.
func (t *Tracker) FirstFinisher() string {
	return t.firstFinisher
}

// Ranking returns the standings from the latest snapshot.
func (t *Tracker) Ranking() []models.RankingEntry {
	return t.standings
}

// Total is the number of questions in the quiz.
func (t *Tracker) Total() int {
	return t.total
}
