// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/quiz"
	"github.com/jason-s-yu/turnsync/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// Options configures a Session. Zero durations fall back to the defaults
// used by the games' web clients.
type Options struct {
	Variant  models.Variant
	Username string

	StatusInterval time.Duration
	RosterInterval time.Duration
	PingInterval   time.Duration
	ReplayPace     time.Duration
	FinalCountdown time.Duration

	// Clock drives every timer; tests pass a scheduler.FakeClock.
	Clock scheduler.Clock
	// Executor runs blocking calls. Defaults to a new goroutine per call.
	Executor func(func())

	Logger  *logrus.Logger
	Journal Journal
	Results ResultStore
}

func (o *Options) applyDefaults() {
	if o.StatusInterval <= 0 {
		o.StatusInterval = time.Second
		if o.Variant == models.VariantQuiz {
			o.StatusInterval = 2 * time.Second
		}
	}
	if o.RosterInterval <= 0 {
		o.RosterInterval = 3 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 4 * time.Second
	}
	if o.ReplayPace <= 0 {
		o.ReplayPace = 600 * time.Millisecond
	}
	if o.FinalCountdown <= 0 {
		o.FinalCountdown = 60 * time.Second
	}
	if o.Executor == nil {
		o.Executor = func(f func()) { go f() }
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Session synchronizes one client with one match. Timer ticks, network
// results and local commands become events in a mailbox; a single loop
// drains it, so State is never touched concurrently.
type Session struct {
	ID uuid.UUID

	opts      Options
	log       *logrus.Entry
	svc       MatchService
	presenter Presenter
	nav       Navigator

	sched  *scheduler.Scheduler
	ctx    context.Context
	cancel context.CancelFunc

	state    *State
	arbiter  Arbiter
	rules    gameRules
	replayer *Replayer
	quiz     *quiz.Tracker

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}

	gen       uint64
	turnSeq   uint64
	started   bool
	asking    bool
	leaving   bool
	closed    bool
	navigated bool

	statusTask scheduler.Handle
	rosterTask scheduler.Handle
	pingTask   scheduler.Handle
	finalTask  scheduler.Handle
	pacing     map[string]scheduler.Handle
	inFlight   map[taskKind]bool
}

// New builds a session for the local player opts.Username.
func New(svc MatchService, presenter Presenter, nav Navigator, opts Options) *Session {
	opts.applyDefaults()
	id := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		ID:   id,
		opts: opts,
		log: opts.Logger.WithFields(logrus.Fields{
			"session": id,
			"player":  opts.Username,
			"variant": opts.Variant,
		}),
		svc:       svc,
		presenter: presenter,
		nav:       nav,
		sched:     scheduler.New(opts.Clock, opts.Logger),
		ctx:       ctx,
		cancel:    cancel,
		state:     newState(opts.Variant, opts.Username),
		wake:      make(chan struct{}, 1),
		pacing:    make(map[string]scheduler.Handle),
		inFlight:  make(map[taskKind]bool),
	}
}

// Start loads the configuration and starts the background tasks.
func (s *Session) Start() { s.post(started{}) }

// Submit plays a local action: a die roll for the goose game, a matched
// pair id for the memory game. Zero passes the turn.
func (s *Session) Submit(value int) { s.post(submitRequested{value: value}) }

// AnswerQuestion resolves the question asked after a local move.
func (s *Session) AnswerQuestion(correct bool) { s.post(answerGiven{correct: correct}) }

// SubmitProgress saves the local player's quiz progress.
func (s *Session) SubmitProgress(p models.QuizProgress) { s.post(progressSubmitted{progress: p}) }

// Leave abandons the match.
func (s *Session) Leave() { s.post(leaveRequested{}) }

// AckRanking closes a finished match once the standings have been shown.
func (s *Session) AckRanking() { s.post(rankingAcked{}) }

func (s *Session) post(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Step dispatches one queued event and reports whether there was one.
func (s *Session) Step() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	s.dispatch(ev)
	return true
}

// Drain dispatches events until the mailbox is empty.
func (s *Session) Drain() {
	for s.Step() {
	}
}

// Run is the event loop. It returns when the session has navigated away,
// or when ctx is done, in which case every task is stopped first.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.Drain()
		if s.closed {
			return nil
		}
		select {
		case <-ctx.Done():
			s.close()
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// call runs a blocking request on the executor and posts its result,
// stamped with the current generation.
func (s *Session) call(fn func(ctx context.Context, st stamp) Event) {
	st := stamp{gen: s.gen}
	ctx := s.ctx
	s.opts.Executor(func() { s.post(fn(ctx, st)) })
}

func (s *Session) dispatch(ev Event) {
	if s.closed {
		s.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("session closed, dropping event")
		return
	}
	if st, ok := ev.(stamped); ok && st.generation() != s.gen {
		s.log.WithField("event", fmt.Sprintf("%T", ev)).Debug("dropping result from a cancelled generation")
		return
	}
	if _, ok := ev.(leaveDone); s.leaving && !ok {
		return
	}

	switch e := ev.(type) {
	case started:
		s.handleStarted()
	case taskFired:
		switch e.kind {
		case taskStatus:
			s.fetchStatus()
		case taskRoster:
			s.fetchRoster()
		case taskPing:
			s.ping()
		}
	case configFetched:
		s.handleConfig(e)
	case rosterFetched:
		s.handleRoster(e)
	case statusFetched:
		s.handleStatus(e)
	case pingDone:
		s.inFlight[taskPing] = false
		if e.err != nil {
			s.handleError("ping failed", e.err)
		}
	case replayTick:
		s.handleReplayTick(e)
	case finalCountdownExpired:
		s.handleFinalCountdown()
	case saveDone:
		s.handleSaved(e)
	case endTurnDone:
		s.handleTurnEnded(e)
	case terminateDone:
		if e.err != nil {
			s.handleError("failed to terminate the match", e.err)
		}
	case submitRequested:
		s.handleSubmit(e.value)
	case answerGiven:
		s.handleAnswer(e.correct)
	case progressSubmitted:
		s.handleProgress(e.progress)
	case leaveRequested:
		s.handleLeave()
	case leaveDone:
		if e.err != nil {
			s.handleError("failed to leave the match", e.err)
			return
		}
		s.navigate("left the match", nil)
	case rankingAcked:
		if s.state.Ended {
			s.navigate("match over", nil)
		}
	}
}

func (s *Session) handleStarted() {
	if s.started {
		return
	}
	s.started = true
	s.pingTask = s.schedule(taskPing, s.opts.PingInterval)
	s.ping()
	s.call(func(ctx context.Context, st stamp) Event {
		cfg, err := s.svc.FetchConfig(ctx)
		return configFetched{stamp: st, cfg: cfg, err: err}
	})
}

func (s *Session) handleConfig(e configFetched) {
	if e.err != nil {
		s.handleError("missing game configuration", e.err)
		return
	}
	st := s.state
	st.Config = e.cfg
	if st.Variant == models.VariantQuiz {
		s.quiz = quiz.NewTracker(st.Me, len(e.cfg.Questions))
	} else {
		s.rules = newRules(st.Variant, e.cfg)
		s.replayer = newReplayer(s.rules, st.Me)
	}
	s.log.WithFields(logrus.Fields{
		"cells":     len(e.cfg.Cells),
		"cards":     len(e.cfg.Cards),
		"questions": len(e.cfg.Questions),
	}).Info("game configuration loaded")

	s.rosterTask = s.schedule(taskRoster, s.opts.RosterInterval)
	s.statusTask = s.schedule(taskStatus, s.opts.StatusInterval)
	s.fetchRoster()
}

// schedule starts a periodic task whose ticks become events.
func (s *Session) schedule(kind taskKind, every time.Duration) scheduler.Handle {
	st := stamp{gen: s.gen}
	return s.sched.Schedule(string(kind), every, func() {
		s.post(taskFired{stamp: st, kind: kind})
	})
}

// begin marks a task's request as outstanding. A tick that finds the
// previous request still in flight is skipped, so two snapshots are never
// processed out of order.
func (s *Session) begin(kind taskKind) bool {
	if s.inFlight[kind] {
		s.log.WithField("task", kind).Debug("request already in flight, skipping tick")
		return false
	}
	s.inFlight[kind] = true
	return true
}

func (s *Session) fetchStatus() {
	if !s.begin(taskStatus) {
		return
	}
	seq := s.turnSeq
	s.call(func(ctx context.Context, st stamp) Event {
		snap, err := s.svc.FetchStatus(ctx)
		return statusFetched{stamp: st, turnSeq: seq, snap: snap, err: err}
	})
}

func (s *Session) fetchRoster() {
	if !s.begin(taskRoster) {
		return
	}
	s.call(func(ctx context.Context, st stamp) Event {
		roster, err := s.svc.FetchRoster(ctx)
		return rosterFetched{stamp: st, roster: roster, err: err}
	})
}

func (s *Session) ping() {
	if !s.begin(taskPing) {
		return
	}
	s.call(func(ctx context.Context, st stamp) Event {
		return pingDone{stamp: st, err: s.svc.Ping(ctx)}
	})
}

func (s *Session) handleRoster(e rosterFetched) {
	s.inFlight[taskRoster] = false
	if e.err != nil {
		s.handleError("failed to load players", e.err)
		return
	}
	st := s.state
	if st.Ended {
		return
	}

	// Until the local player shows up the mirror is rebuilt from each roster;
	// nothing is replayed while LocalIndex is unset.
	if len(st.Players) == 0 || st.LocalIndex < 0 {
		retry := len(st.Players) > 0
		st.initPlayers(e.roster)
		if len(st.Players) == 0 {
			return
		}
		if st.LocalIndex < 0 {
			if !retry {
				s.log.Warn("local player not found in roster, waiting for the next one")
			}
			return
		}
		s.log.WithField("players", len(st.Players)).Info("players loaded")
		if st.Variant == models.VariantQuiz {
			prev := s.arbiter.State()
			s.arbiter.Evaluate(st.Me, st.Me, false)
			s.observeTurn(prev)
		}
		s.fetchStatus()
		return
	}

	left := st.removeMissing(e.roster)
	for _, name := range left {
		s.cancelPacing(name)
		if s.replayer != nil {
			s.replayer.Drop(name)
		}
		s.log.WithField("left", name).Info("player left the match")
		s.presenter.PlayerLeft(name)
		s.presenter.Notice(fmt.Sprintf("%s left the match.", name))
	}
	if len(left) > 0 {
		if st.LocalIndex < 0 {
			s.log.Warn("local player no longer in roster")
		}
		s.checkTurn()
	}
}

func (s *Session) handleStatus(e statusFetched) {
	s.inFlight[taskStatus] = false
	if e.err != nil {
		s.handleError("failed to fetch match status", e.err)
		return
	}
	if err := e.snap.Validate(); err != nil {
		s.log.WithError(fmt.Errorf("%w: %v", models.ErrDesync, err)).Warn("ignoring malformed snapshot")
		return
	}
	if s.state.Variant == models.VariantQuiz {
		s.applyQuiz(e.snap)
		return
	}
	s.applySnapshot(e.snap, e.turnSeq == s.turnSeq)
}

// applySnapshot reconciles the turn-based games. A snapshot requested
// before the local turn ended still has valid histories but a stale turn
// pointer, so only fresh snapshots update the pointer.
func (s *Session) applySnapshot(snap models.MatchSnapshot, fresh bool) {
	st := s.state
	if fresh {
		st.Snapshot = &snap
	} else {
		s.log.Debug("snapshot predates the end of the local turn, ignoring its turn pointer")
	}
	if st.Ended || s.replayer == nil || st.LocalIndex < 0 {
		return
	}

	if snap.Info != nil && len(st.Players) > 1 {
		events, desyncs := Reconcile(st.Players, st.Me, snap.Info)
		for _, d := range desyncs {
			s.resync(d)
		}
		for _, ev := range events {
			s.enqueueRemote(ev)
		}
	}

	if w := snap.WinnerName(); w != "" && !s.replayer.RemotePending() {
		s.endMatch(w, nil)
		return
	}
	s.checkTurn()
}

func (s *Session) resync(d Desync) {
	s.log.WithError(d.Err).WithField("opponent", d.Username).Warn("history desync, resynchronizing without replay")
	s.cancelPacing(d.Username)
	s.replayer.Drop(d.Username)
	if p := s.state.Player(d.Username); p != nil {
		s.rules.Resync(p)
	}
}

func (s *Session) enqueueRemote(ev ReplayEvent) {
	s.log.WithFields(logrus.Fields{
		"opponent": ev.Username,
		"index":    ev.Index,
		"value":    ev.Value,
	}).Debug("new remote action")
	s.journal(ev.Username, ev.Index, ev.Value, true)
	if ev.Value != 0 {
		s.presenter.Notice(s.rules.Describe(ev.Username, ev.Value))
	}
	if s.replayer.Enqueue(ev.Username, ev.Value, ev.Index) {
		s.armReplay(ev.Username)
	}
	prev := s.arbiter.State()
	s.arbiter.BeginReplay()
	s.observeTurn(prev)
}

func (s *Session) armReplay(username string) {
	st := stamp{gen: s.gen}
	s.pacing[username] = s.sched.After("replay:"+username, s.opts.ReplayPace, func() {
		s.post(replayTick{stamp: st, username: username})
	})
}

func (s *Session) cancelPacing(username string) {
	if h, ok := s.pacing[username]; ok {
		s.sched.CancelAll(h)
		delete(s.pacing, username)
	}
}

func (s *Session) handleReplayTick(e replayTick) {
	delete(s.pacing, e.username)
	st := s.state
	p := st.Player(e.username)
	if p == nil || s.replayer == nil || st.Ended {
		return
	}

	res := s.replayer.Step(p, st.Players)
	if res.Kind == StepIdle {
		return
	}
	s.presenter.ReplayStep(ReplayStep{
		Username: p.Username,
		Token:    p.Token,
		Kind:     res.Kind,
		Value:    res.Value,
		Index:    res.Index,
		Position: p.Position,
	})
	if res.Kind != StepArrived {
		s.armReplay(p.Username)
		return
	}

	if res.Ended {
		// Whoever completes the match reports it, winner or not.
		if p.Username == st.Me {
			s.save(p.History.Clone(), saveTerminate)
		}
		s.endMatch(res.Winner, nil)
		return
	}
	if res.More {
		s.armReplay(p.Username)
	}
	if p.Username == st.Me {
		s.localArrived()
		return
	}
	if !s.replayer.RemotePending() {
		s.log.WithField("opponent", p.Username).Debug("update finished")
		s.checkTurn()
	}
}

// checkTurn asks the arbiter whether the local turn has begun. The turn
// pointer comes from the match service; the client does not guess it.
func (s *Session) checkTurn() {
	st := s.state
	if st.Ended || st.LocalIndex < 0 {
		return
	}
	current := ""
	if st.Snapshot != nil {
		current = st.Snapshot.CurrentTurnPlayer
	}
	pending := s.replayer != nil && s.replayer.RemotePending()

	prev := s.arbiter.State()
	if s.arbiter.Evaluate(current, st.Me, pending) {
		s.presenter.Notice("It's your turn!")
	}
	s.observeTurn(prev)
}

func (s *Session) observeTurn(prev TurnState) {
	cur := s.arbiter.State()
	if cur == prev {
		return
	}
	s.log.WithFields(logrus.Fields{"from": prev, "to": cur}).Debug("turn state changed")
	s.presenter.TurnChanged(cur)
}

// endMatch stops polling and reports the standings. Ping keeps running
// until the ranking is acknowledged.
func (s *Session) endMatch(winner string, standings []models.RankingEntry) {
	st := s.state
	if st.Ended {
		return
	}
	st.Ended = true
	st.Winner = winner

	prev := s.arbiter.State()
	s.arbiter.Halt()
	s.observeTurn(prev)

	s.sched.CancelAll(s.statusTask, s.rosterTask, s.finalTask)
	for name := range s.pacing {
		s.cancelPacing(name)
	}
	if s.replayer != nil {
		if n := s.replayer.Discard(); n > 0 {
			s.log.WithError(ErrReplayInterrupted).WithField("dropped", n).Debug("match ended with replay queued")
		}
	}

	if standings == nil && s.rules != nil {
		standings = s.rules.Ranking(st.Players)
	}
	s.log.WithField("winner", winner).Info("match ended")
	s.presenter.MatchEnded(winner, standings)
	s.storeResults(standings)
}

func (s *Session) handleLeave() {
	if s.leaving || s.navigated {
		return
	}
	s.leaving = true
	s.halt()
	s.call(func(ctx context.Context, st stamp) Event {
		return leaveDone{stamp: st, err: s.svc.LeaveLobby(ctx)}
	})
}

// handleError is the single funnel for session-fatal failures. However
// many requests fail together, the user is navigated away once.
func (s *Session) handleError(reason string, err error) {
	if s.navigated {
		s.log.WithError(err).Debug("already leaving, suppressing error")
		return
	}
	s.log.WithError(err).WithField("reason", reason).Error("session-fatal error")
	s.navigate(reason, err)
}

func (s *Session) navigate(reason string, err error) {
	if s.navigated {
		return
	}
	s.navigated = true
	s.close()
	s.nav.Leave(reason, err)
}

// halt stops every timer, drops queued replay and invalidates in-flight
// requests.
func (s *Session) halt() {
	s.sched.Stop()
	s.pacing = make(map[string]scheduler.Handle)
	if s.replayer != nil {
		if n := s.replayer.Discard(); n > 0 {
			s.log.WithError(ErrReplayInterrupted).WithField("dropped", n).Info("discarded queued replay")
		}
	}
	s.inFlight = make(map[taskKind]bool)
	s.gen++
}

func (s *Session) close() {
	if s.closed {
		return
	}
	s.halt()
	s.closed = true
	s.cancel()
}

func (s *Session) journal(username string, index, value int, remote bool) {
	j := s.opts.Journal
	if j == nil {
		return
	}
	rec := models.ActionRecord{
		SessionID: s.ID,
		MatchCode: s.state.MatchCode(),
		Username:  username,
		Index:     index,
		Value:     value,
		Remote:    remote,
		Timestamp: s.sched.Clock().Now().UnixMilli(),
	}
	ctx, log := s.ctx, s.log
	s.opts.Executor(func() {
		if err := j.Record(ctx, rec); err != nil {
			log.WithError(err).Warn("failed to journal action")
		}
	})
}

func (s *Session) storeResults(standings []models.RankingEntry) {
	rs := s.opts.Results
	if rs == nil || len(standings) == 0 {
		return
	}
	code, variant := s.state.MatchCode(), s.state.Variant
	ctx, log := s.ctx, s.log
	s.opts.Executor(func() {
		if err := rs.SaveResults(ctx, code, variant, standings); err != nil {
			log.WithError(err).Warn("failed to store match results")
		}
	})
}
