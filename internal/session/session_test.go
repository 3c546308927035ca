package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService serves canned responses and records every call.
type fakeService struct {
	mu     sync.Mutex
	cfg    models.GameConfig
	snap   models.MatchSnapshot
	roster []models.Participant
	errs   map[string]error
	calls  []string
	saves  []any
}

func (f *fakeService) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.errs[op]
}

func (f *fakeService) FetchConfig(ctx context.Context) (models.GameConfig, error) {
	err := f.record("config")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg, err
}

func (f *fakeService) FetchStatus(ctx context.Context) (models.MatchSnapshot, error) {
	err := f.record("status")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, err
}

func (f *fakeService) FetchRoster(ctx context.Context) ([]models.Participant, error) {
	err := f.record("roster")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Participant(nil), f.roster...), err
}

func (f *fakeService) Save(ctx context.Context, data any) error {
	err := f.record("save")
	f.mu.Lock()
	f.saves = append(f.saves, data)
	f.mu.Unlock()
	return err
}

func (f *fakeService) EndTurn(ctx context.Context) error        { return f.record("end_turn") }
func (f *fakeService) TerminateMatch(ctx context.Context) error { return f.record("terminate") }
func (f *fakeService) Ping(ctx context.Context) error           { return f.record("ping") }
func (f *fakeService) LeaveLobby(ctx context.Context) error     { return f.record("leave") }

func (f *fakeService) setSnap(snap models.MatchSnapshot) {
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
}

func (f *fakeService) setRoster(names ...string) {
	f.mu.Lock()
	f.roster = participants(names...)
	f.mu.Unlock()
}

func (f *fakeService) setErr(op string, err error) {
	f.mu.Lock()
	f.errs[op] = err
	f.mu.Unlock()
}

func (f *fakeService) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeService) lastSave() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saves) == 0 {
		return nil
	}
	return f.saves[len(f.saves)-1]
}

type recordingPresenter struct {
	mu        sync.Mutex
	steps     []ReplayStep
	turns     []TurnState
	left      []string
	questions []int
	rankings  [][]models.RankingEntry
	winners   []string
	final     []models.RankingEntry
	notices   []string
}

func (p *recordingPresenter) ReplayStep(step ReplayStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, step)
}

func (p *recordingPresenter) TurnChanged(state TurnState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns = append(p.turns, state)
}

func (p *recordingPresenter) PlayerLeft(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, username)
}

func (p *recordingPresenter) PromptQuestion(position int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.questions = append(p.questions, position)
}

func (p *recordingPresenter) RankingChanged(ranking []models.RankingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rankings = append(p.rankings, ranking)
}

func (p *recordingPresenter) MatchEnded(winner string, ranking []models.RankingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.winners = append(p.winners, winner)
	p.final = ranking
}

func (p *recordingPresenter) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, msg)
}

type navCall struct {
	reason string
	err    error
}

type recordingNavigator struct {
	mu    sync.Mutex
	calls []navCall
}

func (n *recordingNavigator) Leave(reason string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, navCall{reason: reason, err: err})
}

// deferredExecutor holds blocking calls until the test releases them, so
// responses can be delivered in any order.
type deferredExecutor struct {
	pending []func()
}

func (d *deferredExecutor) exec(f func()) { d.pending = append(d.pending, f) }

func (d *deferredExecutor) run(i int) {
	f := d.pending[i]
	d.pending = append(d.pending[:i], d.pending[i+1:]...)
	f()
}

type harness struct {
	s        *Session
	svc      *fakeService
	pres     *recordingPresenter
	nav      *recordingNavigator
	clock    *scheduler.FakeClock
	deferred *deferredExecutor
}

func participants(names ...string) []models.Participant {
	out := make([]models.Participant, 0, len(names))
	for _, n := range names {
		out = append(out, models.Participant{Username: n})
	}
	return out
}

func entries(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{}`)
	}
	return out
}

func snapshot(current string, data map[string]string, order ...string) models.MatchSnapshot {
	return models.MatchSnapshot{
		MatchCode:         "M1",
		CurrentTurnPlayer: current,
		Info:              infoOf(data, order...),
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newHarness(t *testing.T, v models.Variant, deferred bool, roster ...string) *harness {
	t.Helper()
	h := &harness{
		svc: &fakeService{
			cfg:    models.GameConfig{Cells: entries(11), Cards: entries(4), Questions: entries(3)},
			roster: participants(roster...),
			errs:   make(map[string]error),
		},
		pres:  &recordingPresenter{},
		nav:   &recordingNavigator{},
		clock: scheduler.NewFakeClock(time.Unix(0, 0)),
	}
	h.svc.snap = snapshot(roster[len(roster)-1], nil, roster...)

	exec := func(f func()) { f() }
	if deferred {
		h.deferred = &deferredExecutor{}
		exec = h.deferred.exec
	}
	h.s = New(h.svc, h.pres, h.nav, Options{
		Variant:        v,
		Username:       roster[0],
		FinalCountdown: 10 * time.Second,
		Clock:          h.clock,
		Executor:       exec,
		Logger:         quietLogger(),
	})
	return h
}

// flush releases every deferred call until the session is quiescent.
func (h *harness) flush() {
	h.s.Drain()
	for h.deferred != nil && len(h.deferred.pending) > 0 {
		h.deferred.run(0)
		h.s.Drain()
	}
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.flush()
}

// tick advances one replay pace n times.
func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.advance(600 * time.Millisecond)
	}
}

func (h *harness) start() {
	h.s.Start()
	h.flush()
}

func (h *harness) turn() TurnState { return h.s.arbiter.State() }

func TestSessionStartLoadsConfigRosterAndStatus(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()

	assert.Equal(t, 1, h.svc.count("ping"))
	assert.Equal(t, 1, h.svc.count("config"))
	assert.Equal(t, 1, h.svc.count("roster"))
	assert.Equal(t, 1, h.svc.count("status"))

	st := h.s.state
	require.Len(t, st.Players, 2)
	assert.Equal(t, 0, st.LocalIndex)
	assert.Equal(t, "goose1", st.Players[0].Token)
	assert.Equal(t, "goose2", st.Players[1].Token)
	assert.Equal(t, Waiting, h.turn())
	assert.Equal(t, 3, h.s.sched.Active(), "ping, roster and status")
}

func TestSessionReplaysRemoteActionsBeforeTurn(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()

	h.svc.setSnap(snapshot("alice", map[string]string{"bob": `[3,0]`}, "alice", "bob"))
	h.advance(time.Second)

	bob := h.s.state.Player("bob")
	assert.Equal(t, models.ActionHistory{3, 0}, bob.History)
	assert.Equal(t, Replaying, h.turn())
	assert.Contains(t, h.pres.notices, "bob rolled the die and got 3!")

	for i := 0; i < 4; i++ {
		h.tick(1)
		assert.Equal(t, Replaying, h.turn(), "tick %d: the turn waits for the replay", i)
	}
	assert.Equal(t, 3, bob.Position)

	h.tick(1)
	assert.Equal(t, MyTurn, h.turn())
	assert.Contains(t, h.pres.notices, "It's your turn!")
	assert.Equal(t, []TurnState{Replaying, MyTurn}, h.pres.turns)

	var moves []int
	for _, step := range h.pres.steps {
		if step.Kind == StepMove {
			moves = append(moves, step.Position)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, moves)
}

func TestSessionRepeatedSnapshotDoesNotReplayAgain(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()
	h.svc.setSnap(snapshot("bob", map[string]string{"bob": `[2]`}, "alice", "bob"))

	h.advance(time.Second)
	h.tick(10)

	arrivals := 0
	for _, step := range h.pres.steps {
		if step.Kind == StepArrived {
			arrivals++
		}
	}
	assert.Equal(t, 1, arrivals)
	assert.Equal(t, 2, h.s.state.Player("bob").Position)
	assert.Equal(t, Waiting, h.turn())
}

func TestSessionLocalTurnWithWrongAnswer(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()
	require.Equal(t, MyTurn, h.turn())

	h.s.Submit(4)
	h.s.Drain()
	assert.Equal(t, Acting, h.turn())

	h.tick(5)
	assert.Equal(t, []int{4}, h.pres.questions)
	assert.Equal(t, models.ActionHistory{4}, h.svc.lastSave())
	assert.Equal(t, Acting, h.turn())

	h.svc.setSnap(snapshot("bob", nil, "alice", "bob"))
	h.s.AnswerQuestion(false)
	h.flush()

	assert.Equal(t, models.ActionHistory{4, 0}, h.svc.lastSave())
	assert.Equal(t, 1, h.svc.count("end_turn"))
	assert.Equal(t, Waiting, h.turn())
	assert.Nil(t, h.s.state.Snapshot)
}

func TestSessionCorrectAnswerKeepsTurn(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()

	h.s.Submit(2)
	h.flush()
	h.tick(3)
	h.s.AnswerQuestion(true)
	h.flush()

	assert.Equal(t, MyTurn, h.turn())
	assert.Equal(t, 0, h.svc.count("end_turn"))

	h.s.Submit(3)
	h.flush()
	assert.Equal(t, models.ActionHistory{2, 3}, h.s.state.Local().History)
}

func TestSessionRejectsActionOutsideTurn(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()

	h.s.Submit(5)
	h.flush()

	assert.Empty(t, h.s.state.Local().History)
	assert.Equal(t, Waiting, h.turn())
}

func TestSessionStaleStatusAfterEndTurnIsIgnored(t *testing.T) {
	h := newHarness(t, models.VariantMemory, true, "alice", "bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()
	require.Equal(t, MyTurn, h.turn())

	// pass the turn; the save is held
	h.s.Submit(0)
	h.s.Drain()
	require.Len(t, h.deferred.pending, 1)

	// a status request goes out while the server still names alice
	h.clock.Advance(time.Second)
	h.s.Drain()
	require.Len(t, h.deferred.pending, 2)

	h.deferred.run(0) // save
	h.s.Drain()
	h.deferred.run(1) // end turn
	h.s.Drain()
	require.Equal(t, Waiting, h.turn())

	h.deferred.run(0) // stale status
	h.s.Drain()
	assert.Equal(t, Waiting, h.turn(), "stale turn pointer must not restart the turn")
	assert.Nil(t, h.s.state.Snapshot)
}

func TestSessionRosterShrinkRemovesPlayer(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob", "carla")
	h.start()

	h.svc.setSnap(snapshot("bob", map[string]string{"bob": `[5]`}, "alice", "bob", "carla"))
	h.advance(time.Second)
	require.Equal(t, Replaying, h.turn())

	h.svc.setRoster("alice", "carla")
	h.advance(2 * time.Second)

	st := h.s.state
	require.Len(t, st.Players, 2)
	assert.Equal(t, "alice", st.Players[0].Username)
	assert.Equal(t, "carla", st.Players[1].Username)
	assert.Equal(t, 0, st.LocalIndex)
	assert.Nil(t, st.Player("bob"))
	assert.Equal(t, []string{"bob"}, h.pres.left)
	assert.Contains(t, h.pres.notices, "bob left the match.")
	assert.Equal(t, Waiting, h.turn())

	steps := len(h.pres.steps)
	h.tick(5)
	assert.Equal(t, steps, len(h.pres.steps), "no replay for a departed player")
}

func TestSessionRemoteWinEndsMatch(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()

	snap := snapshot("alice", map[string]string{"bob": `[6,4]`}, "alice", "bob")
	winner := "bob"
	snap.Winner = &winner
	h.svc.setSnap(snap)
	h.advance(time.Second)
	assert.Empty(t, h.pres.winners, "the winner is announced after the replay")

	h.tick(12)
	assert.Equal(t, []string{"bob"}, h.pres.winners)
	require.NotEmpty(t, h.pres.final)
	assert.Equal(t, "bob", h.pres.final[0].Username)
	assert.True(t, h.pres.final[0].Finished)
	assert.Equal(t, Over, h.turn())
	assert.NotEqual(t, MyTurn, h.pres.turns[len(h.pres.turns)-1])
	assert.Equal(t, 1, h.s.sched.Active(), "only the ping keeps running")
	assert.Empty(t, h.nav.calls)

	h.s.AckRanking()
	h.flush()
	require.Len(t, h.nav.calls, 1)
	assert.Equal(t, "match over", h.nav.calls[0].reason)
	assert.NoError(t, h.nav.calls[0].err)
	assert.Equal(t, 0, h.s.sched.Active())
}

func TestSessionLocalWinTerminatesMatch(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.cfg.Cells = entries(5)
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()

	h.s.Submit(4)
	h.flush()
	h.tick(5)

	assert.Equal(t, []string{"alice"}, h.pres.winners)
	assert.Equal(t, 1, h.svc.count("terminate"))
	assert.Equal(t, models.ActionHistory{4}, h.svc.lastSave())
	assert.Empty(t, h.pres.questions)
}

func TestSessionMemoryPairKeepsTurn(t *testing.T) {
	h := newHarness(t, models.VariantMemory, false, "alice", "bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()

	h.s.Submit(3)
	h.flush()
	h.tick(2)

	assert.Equal(t, MyTurn, h.turn())
	assert.Equal(t, 1, h.s.state.Local().Position)
	assert.Contains(t, h.pres.notices, "It's your turn!")
	assert.Empty(t, h.pres.questions)
}

// callIndex returns the position of the last call to op, or -1.
func (f *fakeService) callIndex(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i] == op {
			return i
		}
	}
	return -1
}

func TestSessionMemoryLastPairByLoserIsReported(t *testing.T) {
	h := newHarness(t, models.VariantMemory, false, "alice", "bob")
	h.svc.snap = snapshot("alice", map[string]string{"bob": `[1,2,3,0]`}, "alice", "bob")
	h.start()
	h.tick(8)
	require.Equal(t, MyTurn, h.turn())
	require.Equal(t, 3, h.s.state.Player("bob").Position)

	h.s.Submit(4)
	h.flush()
	h.tick(2)

	assert.Equal(t, []string{"bob"}, h.pres.winners)
	assert.Equal(t, 1, h.svc.count("save"))
	assert.Equal(t, models.ActionHistory{4}, h.svc.lastSave())
	assert.Equal(t, 1, h.svc.count("terminate"))
	assert.Less(t, h.svc.callIndex("save"), h.svc.callIndex("terminate"))
	assert.Equal(t, Over, h.turn())
}

func TestSessionMemoryLastPairByWinnerTerminates(t *testing.T) {
	h := newHarness(t, models.VariantMemory, false, "alice", "bob")
	h.svc.snap = snapshot("alice", map[string]string{"bob": `[1,0]`}, "alice", "bob")
	h.start()
	h.tick(4)
	require.Equal(t, MyTurn, h.turn())

	for _, pair := range []int{3, 2} {
		h.s.Submit(pair)
		h.flush()
		h.tick(2)
		require.Equal(t, MyTurn, h.turn())
	}
	assert.Equal(t, 0, h.svc.count("terminate"))

	h.s.Submit(5)
	h.flush()
	h.tick(2)

	assert.Equal(t, []string{"alice"}, h.pres.winners)
	assert.Equal(t, models.ActionHistory{3, 2, 5}, h.svc.lastSave())
	assert.Equal(t, 3, h.svc.count("save"))
	assert.Equal(t, 1, h.svc.count("terminate"))
	assert.Less(t, h.svc.callIndex("save"), h.svc.callIndex("terminate"))
}

func TestSessionRejectsRollOffTheDie(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()

	for _, v := range []int{7, 25, -2} {
		h.s.Submit(v)
		h.flush()
		assert.Equal(t, MyTurn, h.turn(), "roll %d", v)
	}
	assert.Empty(t, h.s.state.Local().History)
	assert.Empty(t, h.pres.steps)
	assert.Equal(t, 0, h.svc.count("save"))

	h.s.Submit(6)
	h.s.Drain()
	assert.Equal(t, Acting, h.turn())
	assert.Equal(t, models.ActionHistory{6}, h.s.state.Local().History)
}

func TestSessionLocalPlayerJoinsLaterRoster(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.roster = participants("bob")
	h.svc.snap = snapshot("alice", nil, "alice", "bob")
	h.start()

	require.Equal(t, -1, h.s.state.LocalIndex)
	assert.Equal(t, 0, h.svc.count("status"), "no snapshot is applied without the local player")
	assert.NotEqual(t, MyTurn, h.turn())

	h.svc.setRoster("alice", "bob")
	h.advance(3 * time.Second)

	assert.Equal(t, 0, h.s.state.LocalIndex)
	require.Len(t, h.s.state.Players, 2)
	assert.Equal(t, "goose1", h.s.state.Local().Token)
	assert.Equal(t, MyTurn, h.turn())
	assert.Empty(t, h.nav.calls)

	h.s.Submit(2)
	h.flush()
	assert.Equal(t, models.ActionHistory{2}, h.s.state.Local().History)
}

func TestSessionDesyncResetsWithoutReplay(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.start()
	h.svc.setSnap(snapshot("bob", map[string]string{"bob": `[2,3]`}, "alice", "bob"))
	h.advance(time.Second)
	h.tick(10)
	steps := len(h.pres.steps)

	h.svc.setSnap(snapshot("bob", map[string]string{"bob": `[4]`}, "alice", "bob"))
	h.advance(time.Second)

	bob := h.s.state.Player("bob")
	assert.Equal(t, models.ActionHistory{4}, bob.History)
	assert.Equal(t, 4, bob.Position)
	assert.Equal(t, steps, len(h.pres.steps))
	assert.Empty(t, h.nav.calls, "desync is recoverable")
}

func TestSessionTwoFailuresNavigateOnce(t *testing.T) {
	h := newHarness(t, models.VariantGoose, true, "alice", "bob")
	h.start()

	h.clock.Advance(3 * time.Second)
	h.s.Drain()
	require.Len(t, h.deferred.pending, 2, "status and roster in flight")

	boom := fmt.Errorf("%w: connection refused", models.ErrFetchFailed)
	h.svc.setErr("status", boom)
	h.svc.setErr("roster", boom)
	h.deferred.run(0)
	h.deferred.run(0)
	h.s.Drain()

	require.Len(t, h.nav.calls, 1)
	assert.ErrorIs(t, h.nav.calls[0].err, models.ErrFetchFailed)
	assert.Equal(t, 0, h.s.sched.Active())

	h.s.handleError("again", boom)
	assert.Len(t, h.nav.calls, 1)
}

func TestSessionPingFailureIsFatal(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.setErr("ping", fmt.Errorf("%w: 401", models.ErrFetchFailed))
	h.start()

	require.Len(t, h.nav.calls, 1)
	assert.Equal(t, "ping failed", h.nav.calls[0].reason)
	assert.Equal(t, 0, h.svc.count("roster"), "config result arrives after navigation")
}

func TestSessionMissingConfigNavigatesAway(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	h.svc.setErr("config", fmt.Errorf("%w: 404", models.ErrFetchFailed))
	h.start()

	require.Len(t, h.nav.calls, 1)
	assert.Equal(t, "missing game configuration", h.nav.calls[0].reason)
}

func TestSessionLateResponseAfterLeaveIsDropped(t *testing.T) {
	h := newHarness(t, models.VariantGoose, true, "alice", "bob")
	h.start()

	h.clock.Advance(time.Second)
	h.s.Drain()
	require.Len(t, h.deferred.pending, 1)

	h.s.Leave()
	h.s.Drain()
	assert.Equal(t, 0, h.s.sched.Active())
	require.Len(t, h.deferred.pending, 2)

	h.svc.setSnap(snapshot("alice", map[string]string{"bob": `[5]`}, "alice", "bob"))
	h.deferred.run(0) // status
	h.s.Drain()
	assert.Empty(t, h.s.state.Player("bob").History)
	assert.Empty(t, h.pres.steps)

	h.deferred.run(0) // leave
	h.s.Drain()
	require.Len(t, h.nav.calls, 1)
	assert.Equal(t, "left the match", h.nav.calls[0].reason)
	assert.Equal(t, 1, h.svc.count("leave"))
	assert.Equal(t, 0, h.clock.Pending())
}

func TestSessionQuizFinalCountdown(t *testing.T) {
	h := newHarness(t, models.VariantQuiz, false, "alice", "bob")
	h.start()
	assert.Equal(t, MyTurn, h.turn())

	h.svc.setSnap(snapshot("", map[string]string{
		"alice": `{"answered":1,"score":1,"time":20}`,
		"bob":   `{"answered":3,"score":2,"time":40}`,
	}, "alice", "bob"))
	h.advance(2 * time.Second)

	require.NotEmpty(t, h.pres.rankings)
	assert.Equal(t, "bob", h.pres.rankings[len(h.pres.rankings)-1][0].Username)
	assert.Contains(t, h.pres.notices, "bob finished the quiz! You have 10s left.")
	assert.Empty(t, h.pres.winners)

	h.advance(10 * time.Second)
	assert.Equal(t, []string{"bob"}, h.pres.winners)
	require.Len(t, h.pres.final, 2)
	assert.Equal(t, "alice", h.pres.final[1].Username)
	assert.Equal(t, 50, h.pres.final[1].Time, "cut off at the end of the countdown")
	assert.Equal(t, Over, h.turn())
}

func TestSessionQuizLocalCompletion(t *testing.T) {
	h := newHarness(t, models.VariantQuiz, false, "alice", "bob")
	h.start()

	h.s.SubmitProgress(models.QuizProgress{Answered: 1, Score: 1, Time: 10})
	h.flush()
	assert.Equal(t, 1, h.svc.count("save"))
	assert.Equal(t, 0, h.svc.count("terminate"))

	done := models.QuizProgress{Answered: 3, Score: 2, Time: 30}
	h.s.SubmitProgress(done)
	h.flush()
	assert.True(t, h.s.state.LocalDone)
	assert.Equal(t, done, h.svc.lastSave())
	assert.Equal(t, 1, h.svc.count("terminate"))

	h.s.SubmitProgress(models.QuizProgress{Answered: 3, Score: 3, Time: 31})
	h.flush()
	assert.Equal(t, 2, h.svc.count("save"), "progress after completion is ignored")
}

func TestSessionRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, models.VariantGoose, false, "alice", "bob")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, h.s.closed)
	assert.Equal(t, 0, h.s.sched.Active())
}
