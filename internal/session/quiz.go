package session

import (
	"fmt"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/ranking"
	"github.com/sirupsen/logrus"
)

// applyQuiz recomputes the quiz standings from a snapshot. Every player
// answers at once, so there is no replay and no turn pointer.
func (s *Session) applyQuiz(snap models.MatchSnapshot) {
	st := s.state
	st.Snapshot = &snap
	if st.Ended || s.quiz == nil {
		return
	}

	up, err := s.quiz.Observe(snap.Info)
	if err != nil {
		s.log.WithError(err).Warn("ignoring unreadable quiz progress")
		return
	}
	s.presenter.RankingChanged(up.Ranking)

	if up.FirstFinisher != "" {
		s.log.WithField("finisher", up.FirstFinisher).Info("first player finished the quiz")
		s.presenter.Notice(fmt.Sprintf("%s finished the quiz! You have %s left.", up.FirstFinisher, s.opts.FinalCountdown))
		if !st.LocalDone {
			s.startFinalCountdown()
		}
	}

	if allFinished(up.Ranking) {
		s.endMatch(up.Ranking[0].Username, up.Ranking)
	}
}

func allFinished(entries []models.RankingEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, e := range entries {
		if !e.Finished {
			return false
		}
	}
	return true
}

func (s *Session) startFinalCountdown() {
	if s.finalTask != 0 {
		return
	}
	st := stamp{gen: s.gen}
	s.finalTask = s.sched.After("final-countdown", s.opts.FinalCountdown, func() {
		s.post(finalCountdownExpired{stamp: st})
	})
}

// handleFinalCountdown closes the quiz. Players still answering are ranked
// as if they finished when the countdown ran out.
func (s *Session) handleFinalCountdown() {
	if s.state.Ended || s.quiz == nil {
		return
	}
	grace := int(s.opts.FinalCountdown.Seconds())
	standings := ranking.NormalizeTerminal(s.quiz.Ranking(), grace)
	winner := s.quiz.FirstFinisher()
	if len(standings) > 0 {
		winner = standings[0].Username
	}
	s.endMatch(winner, standings)
}

func (s *Session) handleProgress(p models.QuizProgress) {
	st := s.state
	if s.quiz == nil || st.Ended || st.LocalDone {
		s.log.Debug("ignoring quiz progress")
		return
	}
	st.Progress = p
	total := s.quiz.Total()
	s.log.WithFields(logrus.Fields{"answered": p.Answered, "score": p.Score}).
		Debug(describeProgress(p, total))

	if total == 0 || p.Answered < total {
		s.save(p, saveOnly)
		return
	}

	st.LocalDone = true
	if !s.quiz.Decided() {
		s.quiz.Decide()
		s.startFinalCountdown()
	}
	s.save(p, saveTerminate)
	s.presenter.Notice("You finished the quiz! Waiting for the other players.")
}
