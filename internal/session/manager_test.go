package session

import (
	"errors"
	"testing"
	"time"
)

func TestAdvanceFollowsLifecycle(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("lobby")

	path := []State{
		StateConnected,
		StateGreeting,
		StateListening,
		StateReasoning,
		StateToolDispatch,
		StateReasoning,
		StateResponding,
		StateListening,
	}
	for _, next := range path {
		if err := m.Advance(s.ID, next); err != nil {
			t.Fatalf("Advance(%s) error = %v", next, err)
		}
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != StateListening {
		t.Fatalf("State = %s, want %s", got.State, StateListening)
	}
}

func TestAdvanceRejectsIllegalTransition(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("lobby")

	err := m.Advance(s.ID, StateResponding)
	var bad *ErrBadTransition
	if !errors.As(err, &bad) {
		t.Fatalf("Advance() error = %v, want *ErrBadTransition", err)
	}
}

func TestStartTurnIncrementsCounter(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("lobby")

	if err := m.StartTurn(s.ID, "turn-1"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if err := m.StartTurn(s.ID, "turn-2"); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	got, _ := m.Get(s.ID)
	if got.TurnCount != 2 {
		t.Fatalf("TurnCount = %d, want 2", got.TurnCount)
	}
	if got.ActiveTurnID != "turn-2" {
		t.Fatalf("ActiveTurnID = %q, want %q", got.ActiveTurnID, "turn-2")
	}
}

func TestEndIsTerminal(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create("lobby")
	_ = m.Advance(s.ID, StateConnected)

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.State != StateDisconnected {
		t.Fatalf("State = %s, want %s", ended.State, StateDisconnected)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(time.Minute)
	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}
