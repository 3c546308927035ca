// internal/session/rules.go
package session

import (
	"fmt"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/ranking"
)

// gameRules is what differs between the turn-based games: how one action is
// applied step by step and when the match is over.
type gameRules interface {
	// Accepts reports whether value is a legal non-zero action.
	Accepts(value int) bool
	// Units is the number of paced steps an action takes; zero means the
	// action only marks the end of a move.
	Units(value int) int
	// Advance applies one step of mv to p.
	Advance(p *models.Player, mv *movement) StepKind
	// Winner is checked each time a player's action has been fully applied.
	Winner(arrived *models.Player, players []*models.Player) (string, bool)
	// Resync recomputes p.Position from its history after a desync.
	Resync(p *models.Player)
	Ranking(players []*models.Player) []models.RankingEntry
	// AsksQuestion reports whether the local player answers a question
	// after each move before the turn continues.
	AsksQuestion() bool
	Describe(username string, value int) string
}

func newRules(v models.Variant, cfg models.GameConfig) gameRules {
	switch v {
	case models.VariantGoose:
		return gooseRules{lastCell: cfg.LastCell()}
	case models.VariantMemory:
		return memoryRules{pairs: len(cfg.Cards)}
	}
	return nil
}

// gooseRules moves a token one cell per step. A token that reaches the goal
// with steps left walks back for the remainder.
type gooseRules struct {
	lastCell int
}

// maxRoll is the highest face of the die.
const maxRoll = 6

func (r gooseRules) Accepts(value int) bool { return value >= 1 && value <= maxRoll }

func (r gooseRules) Units(value int) int {
	if value < 0 {
		return 0
	}
	return value
}

func (r gooseRules) Advance(p *models.Player, mv *movement) StepKind {
	if p.Position >= r.lastCell {
		mv.forward = false
	}
	if mv.forward {
		p.Position++
	} else if p.Position > 0 {
		p.Position--
	}
	return StepMove
}

func (r gooseRules) Winner(arrived *models.Player, _ []*models.Player) (string, bool) {
	if r.lastCell > 0 && arrived.Position == r.lastCell {
		return arrived.Username, true
	}
	return "", false
}

func (r gooseRules) Resync(p *models.Player) {
	p.Position = p.History.Position(r.lastCell)
}

func (r gooseRules) Ranking(players []*models.Player) []models.RankingEntry {
	return ranking.Board(players, r.lastCell)
}

func (r gooseRules) AsksQuestion() bool { return true }

func (r gooseRules) Describe(username string, value int) string {
	return fmt.Sprintf("%s rolled the die and got %d!", username, value)
}

// memoryRules reveals one matched pair per action. The match is over once
// every pair on the table has been found.
type memoryRules struct {
	pairs int
}

func (r memoryRules) Accepts(value int) bool { return value > 0 }

func (r memoryRules) Units(value int) int {
	if value <= 0 {
		return 0
	}
	return 1
}

func (r memoryRules) Advance(p *models.Player, _ *movement) StepKind {
	p.Position++
	return StepReveal
}

func (r memoryRules) Winner(_ *models.Player, players []*models.Player) (string, bool) {
	if r.pairs <= 0 {
		return "", false
	}
	found := 0
	for _, p := range players {
		found += p.Position
	}
	if found < r.pairs {
		return "", false
	}
	standings := r.Ranking(players)
	if len(standings) == 0 {
		return "", false
	}
	return standings[0].Username, true
}

func (r memoryRules) Resync(p *models.Player) {
	p.Position = p.History.Moves()
}

func (r memoryRules) Ranking(players []*models.Player) []models.RankingEntry {
	return ranking.Pairs(players)
}

func (r memoryRules) AsksQuestion() bool { return false }

func (r memoryRules) Describe(username string, value int) string {
	return fmt.Sprintf("%s found pair %d!", username, value)
}
