package session

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/sirupsen/logrus"
)

func (s *Session) handleSubmit(value int) {
	st := s.state
	if s.replayer == nil || st.Ended {
		s.log.WithField("value", value).Debug("ignoring action, no board game in progress")
		return
	}
	me := st.Local()
	if me == nil {
		return
	}
	if value != 0 && !s.rules.Accepts(value) {
		s.log.WithField("value", value).Warn("rejecting out-of-range action")
		return
	}

	prev := s.arbiter.State()
	if err := s.arbiter.Submit(); err != nil {
		s.log.WithError(err).WithField("state", prev).Debug("action rejected")
		return
	}
	s.observeTurn(prev)

	if value == 0 {
		s.endLocalTurn()
		return
	}

	me.History = append(me.History, value)
	idx := len(me.History) - 1
	s.log.WithFields(logrus.Fields{"index": idx, "value": value}).Debug("local action")
	s.journal(me.Username, idx, value, false)
	if s.replayer.Enqueue(me.Username, value, idx) {
		s.armReplay(me.Username)
	}
}

// localArrived runs once the local player's own move has been animated.
func (s *Session) localArrived() {
	me := s.state.Local()
	if me == nil {
		return
	}
	s.save(me.History.Clone(), saveOnly)

	if s.rules.AsksQuestion() {
		s.asking = true
		s.presenter.PromptQuestion(me.Position)
		return
	}
	prev := s.arbiter.State()
	s.arbiter.Resume()
	s.observeTurn(prev)
}

func (s *Session) handleAnswer(correct bool) {
	if !s.asking || s.state.Ended {
		s.log.Debug("ignoring answer, no question pending")
		return
	}
	s.asking = false
	if !correct {
		s.presenter.Notice("Wrong answer, your turn is over.")
		s.endLocalTurn()
		return
	}
	prev := s.arbiter.State()
	s.arbiter.Resume()
	s.observeTurn(prev)
}

// endLocalTurn appends the end-of-turn marker, saves the history and then
// hands the turn to the next player.
func (s *Session) endLocalTurn() {
	me := s.state.Local()
	if me == nil {
		return
	}
	me.History = append(me.History, 0)
	s.journal(me.Username, len(me.History)-1, 0, false)
	s.save(me.History.Clone(), saveEndTurn)
}

func (s *Session) save(data any, then saveThen) {
	s.call(func(ctx context.Context, st stamp) Event {
		return saveDone{stamp: st, then: then, err: s.svc.Save(ctx, data)}
	})
}

func (s *Session) handleSaved(e saveDone) {
	if e.err != nil {
		s.handleError("failed to save progress", e.err)
		return
	}
	switch e.then {
	case saveEndTurn:
		s.call(func(ctx context.Context, st stamp) Event {
			return endTurnDone{stamp: st, err: s.svc.EndTurn(ctx)}
		})
	case saveTerminate:
		s.call(func(ctx context.Context, st stamp) Event {
			return terminateDone{stamp: st, err: s.svc.TerminateMatch(ctx)}
		})
	}
}

// handleTurnEnded closes the local turn. Any status request issued before
// this point may still name the local player as current, so the turn
// pointer is forgotten and the sequence advanced past those requests.
func (s *Session) handleTurnEnded(e endTurnDone) {
	if e.err != nil {
		s.handleError("failed to end the turn", e.err)
		return
	}
	s.turnSeq++
	s.state.Snapshot = nil

	prev := s.arbiter.State()
	s.arbiter.Finish()
	s.observeTurn(prev)
	s.log.WithField("turn_seq", s.turnSeq).Debug("local turn ended")
}

func describeProgress(p models.QuizProgress, total int) string {
	return fmt.Sprintf("%d/%d answered, score %d", p.Answered, total, p.Score)
}
