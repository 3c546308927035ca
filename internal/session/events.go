// internal/session/events.go
package session

import "github.com/jason-s-yu/turnsync/internal/models"

// Event is anything the event loop reacts to: timer ticks, network results
// and local commands.
type Event interface {
	event()
}

// stamp carries the session generation an asynchronous event was issued in.
// Stopping tasks bumps the generation, so late results are dropped.
type stamp struct {
	gen uint64
}

func (s stamp) generation() uint64 { return s.gen }

type stamped interface {
	generation() uint64
}

type taskKind string

const (
	taskStatus taskKind = "status"
	taskRoster taskKind = "roster"
	taskPing   taskKind = "ping"
)

type saveThen int

const (
	saveOnly saveThen = iota
	saveEndTurn
	saveTerminate
)

type (
	started struct{}

	taskFired struct {
		stamp
		kind taskKind
	}

	configFetched struct {
		stamp
		cfg models.GameConfig
		err error
	}

	statusFetched struct {
		stamp
		turnSeq uint64
		snap    models.MatchSnapshot
		err     error
	}

	rosterFetched struct {
		stamp
		roster []models.Participant
		err    error
	}

	pingDone struct {
		stamp
		err error
	}

	replayTick struct {
		stamp
		username string
	}

	finalCountdownExpired struct {
		stamp
	}

	saveDone struct {
		stamp
		then saveThen
		err  error
	}

	endTurnDone struct {
		stamp
		err error
	}

	terminateDone struct {
		stamp
		err error
	}

	leaveDone struct {
		stamp
		err error
	}

	submitRequested struct {
		value int
	}

	answerGiven struct {
		correct bool
	}

	progressSubmitted struct {
		progress models.QuizProgress
	}

	leaveRequested struct{}

	rankingAcked struct{}
)

func (started) event()               {}
func (taskFired) event()             {}
func (configFetched) event()         {}
func (statusFetched) event()         {}
func (rosterFetched) event()         {}
func (pingDone) event()              {}
func (replayTick) event()            {}
func (finalCountdownExpired) event() {}
func (saveDone) event()              {}
func (endTurnDone) event()           {}
func (terminateDone) event()         {}
func (leaveDone) event()             {}
func (submitRequested) event()       {}
func (answerGiven) event()           {}
func (progressSubmitted) event()     {}
func (leaveRequested) event()        {}
func (rankingAcked) event()          {}
