// internal/session/arbiter.go
package session

// TurnState is the local player's position in the turn cycle.
type TurnState int

const (
	Waiting   TurnState = iota // not my turn, nothing to replay
	Replaying                  // remote actions are being applied
	MyTurn                     // the local player may act
	Acting                     // a local action is being resolved
	Over                       // the match has ended
)

func (s TurnState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Replaying:
		return "replaying"
	case MyTurn:
		return "my_turn"
	case Acting:
		return "acting"
	case Over:
		return "over"
	}
	return "unknown"
}

// Arbiter decides when the local player may act.
type Arbiter struct {
	state TurnState
}

func (a *Arbiter) State() TurnState {
	return a.state
}

// BeginReplay records that remote actions were detected.
func (a *Arbiter) BeginReplay() bool {
	if a.state != Waiting {
		return false
	}
	a.state = Replaying
	return true
}

// Evaluate runs the turn check and reports whether the local turn began.
// While remote replay is pending the check is deferred: the arbiter stays
// in Replaying and the caller evaluates again once the queue drains.
func (a *Arbiter) Evaluate(currentTurn, me string, replayPending bool) bool {
	switch a.state {
	case MyTurn, Acting, Over:
		return false
	}
	if replayPending {
		a.state = Replaying
		return false
	}
	if me != "" && currentTurn == me {
		a.state = MyTurn
		return true
	}
	a.state = Waiting
	return false
}

// Submit starts resolving a local action.
func (a *Arbiter) Submit() error {
	if a.state != MyTurn {
		return ErrNotYourTurn
	}
	a.state = Acting
	return nil
}

// Resume hands control back to the local player within the same turn.
func (a *Arbiter) Resume() bool {
	if a.state != Acting {
		return false
	}
	a.state = MyTurn
	return true
}

// Finish closes the local turn once it is saved and signalled.
func (a *Arbiter) Finish() bool {
	if a.state != Acting {
		return false
	}
	a.state = Waiting
	return true
}

// Halt suppresses every further transition.
func (a *Arbiter) Halt() {
	a.state = Over
}
