package service

// State is the position of one transfer attempt.
//
//	Received -> Validated -> Applied -> Recorded -> Completed
//	    \            \
//	     +------------+--> Rejected
//
// A store failure after Validated rolls the unit of work back, so the attempt
// ends Rejected with nothing applied.
type State int

const (
	StateReceived State = iota
	StateValidated
	StateApplied
	StateRecorded
	StateCompleted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateValidated:
		return "validated"
	case StateApplied:
		return "applied"
	case StateRecorded:
		return "recorded"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	}
	return "unknown"
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRejected
}

type attempt struct {
	state    State
	failedAt State
}

// advance moves the attempt forward. Terminal states are sticky and forward
// moves must be to the next state in line.
func (a *attempt) advance(next State) {
	if a.state.Terminal() {
		return
	}
	if next == StateRejected {
		a.failedAt = a.state
		a.state = StateRejected
		return
	}
	if next == a.state+1 {
		a.state = next
	}
}
