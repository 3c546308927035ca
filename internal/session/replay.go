// internal/session/replay.go
package session

import "github.com/jason-s-yu/turnsync/internal/models"

// StepKind classifies one paced replay step.
type StepKind string

const (
	StepIdle    StepKind = "idle"
	StepMove    StepKind = "move"    // token advanced one cell
	StepReveal  StepKind = "reveal"  // a matched pair was turned over
	StepArrived StepKind = "arrived" // the action is fully applied
)

// ReplayStep is what the presenter renders for one step.
type ReplayStep struct {
	Username string   `json:"username"`
	Token    string   `json:"token,omitempty"`
	Kind     StepKind `json:"kind"`
	Value    int      `json:"value"`
	Index    int      `json:"index"`
	Position int      `json:"position"`
}

type movement struct {
	value     int
	index     int
	remaining int
	forward   bool
	started   bool
}

// StepResult describes what one Step did.
type StepResult struct {
	Kind  StepKind
	Value int
	Index int
	More  bool // the player's queue has more work

	Ended  bool // the arrival ended the match
	Winner string
}

// Replayer keeps one FIFO of actions per player. Each Step applies one unit
// of the head action; an action is complete one step after its last unit,
// which is when its arrival (and a zero action's end-of-move) is reported.
// Players are independent; a single player's actions never reorder.
type Replayer struct {
	rules  gameRules
	me     string
	queues map[string][]*movement
}

func newReplayer(rules gameRules, me string) *Replayer {
	return &Replayer{
		rules:  rules,
		me:     me,
		queues: make(map[string][]*movement),
	}
}

// Enqueue appends an action to the player's queue and reports whether the
// queue was idle, in which case the caller must arm the pacing timer.
func (r *Replayer) Enqueue(username string, value, index int) bool {
	q := r.queues[username]
	r.queues[username] = append(q, &movement{value: value, index: index})
	return len(q) == 0
}

// Step applies the next unit of p's queue.
func (r *Replayer) Step(p *models.Player, players []*models.Player) StepResult {
	q := r.queues[p.Username]
	if len(q) == 0 {
		return StepResult{Kind: StepIdle}
	}

	mv := q[0]
	if !mv.started {
		mv.started = true
		mv.forward = true
		mv.remaining = r.rules.Units(mv.value)
	}
	if mv.remaining > 0 {
		kind := r.rules.Advance(p, mv)
		mv.remaining--
		return StepResult{Kind: kind, Value: mv.value, Index: mv.index, More: true}
	}

	rest := q[1:]
	if len(rest) == 0 {
		delete(r.queues, p.Username)
	} else {
		r.queues[p.Username] = rest
	}
	res := StepResult{Kind: StepArrived, Value: mv.value, Index: mv.index, More: len(rest) > 0}
	if winner, ok := r.rules.Winner(p, players); ok {
		r.Discard()
		res.Ended = true
		res.Winner = winner
		res.More = false
	}
	return res
}

// Pending reports whether the player has queued work.
func (r *Replayer) Pending(username string) bool {
	return len(r.queues[username]) > 0
}

// RemotePending reports whether any opponent is still being replayed.
// This is the end-of-update flag the turn check waits on.
func (r *Replayer) RemotePending() bool {
	for name, q := range r.queues {
		if name != r.me && len(q) > 0 {
			return true
		}
	}
	return false
}

// Drop discards the player's queue and returns how many actions were dropped.
func (r *Replayer) Drop(username string) int {
	n := len(r.queues[username])
	delete(r.queues, username)
	return n
}

// Discard empties every queue.
func (r *Replayer) Discard() int {
	n := 0
	for name, q := range r.queues {
		n += len(q)
		delete(r.queues, name)
	}
	return n
}
