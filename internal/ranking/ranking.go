// internal/ranking/ranking.go
package ranking

import (
	"sort"

	"github.com/jason-s-yu/turnsync/internal/models"
)

// Compute orders the standings: finished players first, then higher score,
// then lower time, then username so the order is total. A username that
// appears more than once keeps only its best-ranked entry. The input is not
// modified, so Compute is safe to call repeatedly on the same data.
func Compute(entries []models.RankingEntry) []models.RankingEntry {
	out := make([]models.RankingEntry, len(entries))
	copy(out, entries)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Finished != b.Finished {
			return a.Finished
		}
		if a.StillPlaying != b.StillPlaying {
			return !a.StillPlaying
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Username < b.Username
	})

	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, e := range out {
		if seen[e.Username] {
			continue
		}
		seen[e.Username] = true
		deduped = append(deduped, e)
	}
	return deduped
}

// Board derives the standings of the goose game from committed histories.
// The position is recomputed from the history rather than read from the
// animated token, so the result does not depend on replay progress.
func Board(players []*models.Player, lastCell int) []models.RankingEntry {
	entries := make([]models.RankingEntry, 0, len(players))
	for _, p := range players {
		pos := p.History.Position(lastCell)
		entries = append(entries, models.RankingEntry{
			Username: p.Username,
			Finished: lastCell > 0 && pos == lastCell,
			Score:    pos,
		})
	}
	return Compute(entries)
}

// Pairs derives the standings of the memory game: one point per matched pair.
func Pairs(players []*models.Player) []models.RankingEntry {
	entries := make([]models.RankingEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, models.RankingEntry{
			Username: p.Username,
			Finished: true,
			Score:    p.History.Moves(),
		})
	}
	return Compute(entries)
}

// NormalizeTerminal is applied once the quiz's final countdown expires.
// Players who had not finished are ranked with the winner's time plus the
// countdown, and their scores are revealed.
func NormalizeTerminal(entries []models.RankingEntry, graceSeconds int) []models.RankingEntry {
	ranked := Compute(entries)
	if len(ranked) == 0 || !ranked[0].Finished {
		return ranked
	}
	limit := ranked[0].Time + graceSeconds
	for i := range ranked {
		if ranked[i].Finished {
			continue
		}
		ranked[i].StillPlaying = false
		if ranked[i].Time < limit {
			ranked[i].Time = limit
		}
	}
	return Compute(ranked)
}
