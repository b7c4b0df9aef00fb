package service

import "testing"

func TestAttemptTransitions(t *testing.T) {
	at := &attempt{state: StateReceived}
	for _, next := range []State{StateValidated, StateApplied, StateRecorded, StateCompleted} {
		at.advance(next)
		if at.state != next {
			t.Fatalf("state=%s want=%s", at.state, next)
		}
	}
	at.advance(StateRejected)
	if at.state != StateCompleted {
		t.Fatalf("completed attempt moved to %s", at.state)
	}
}

func TestAttemptRejectRecordsWhere(t *testing.T) {
	at := &attempt{state: StateReceived}
	at.advance(StateValidated)
	at.advance(StateRejected)
	if at.state != StateRejected || at.failedAt != StateValidated {
		t.Fatalf("state=%s failedAt=%s", at.state, at.failedAt)
	}
	at.advance(StateApplied)
	if at.state != StateRejected {
		t.Fatalf("rejected attempt moved to %s", at.state)
	}
}

func TestAttemptCannotSkip(t *testing.T) {
	at := &attempt{state: StateReceived}
	at.advance(StateRecorded)
	if at.state != StateReceived {
		t.Fatalf("skipped to %s", at.state)
	}
}
