// internal/session/interfaces.go
package session

import (
	"context"

	"github.com/jason-s-yu/turnsync/internal/models"
)

// MatchService is the REST surface of the match and lobby services.
// Every call is fire-and-observe: the session reacts to the result in a
// later event, and any error is fatal to the session.
type MatchService interface {
	FetchConfig(ctx context.Context) (models.GameConfig, error)
	FetchStatus(ctx context.Context) (models.MatchSnapshot, error)
	FetchRoster(ctx context.Context) ([]models.Participant, error)
	Save(ctx context.Context, data any) error
	EndTurn(ctx context.Context) error
	TerminateMatch(ctx context.Context) error
	Ping(ctx context.Context) error
	LeaveLobby(ctx context.Context) error
}

// Presenter receives everything the UI shows. It is called from the event
// loop and must not block.
type Presenter interface {
	ReplayStep(step ReplayStep)
	TurnChanged(state TurnState)
	PlayerLeft(username string)
	PromptQuestion(position int)
	RankingChanged(ranking []models.RankingEntry)
	MatchEnded(winner string, ranking []models.RankingEntry)
	Notice(msg string)
}

// Navigator takes the user out of the match. The session calls Leave at
// most once; err is nil when the session ended normally.
type Navigator interface {
	Leave(reason string, err error)
}

// Journal records applied actions for diagnostics. Failures are logged only.
type Journal interface {
	Record(ctx context.Context, rec models.ActionRecord) error
}

// ResultStore persists the final standings of a match.
type ResultStore interface {
	SaveResults(ctx context.Context, matchCode string, variant models.Variant, ranking []models.RankingEntry) error
}
