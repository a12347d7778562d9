package lifecycle

import (
	"errors"
	"testing"

	"github.com/lifetrack/slawatch/internal/models"
)

func TestParsePhase(t *testing.T) {
	cases := map[string]models.Phase{
		"OPEN":        models.PhaseOpen,
		"dispatched":  models.PhaseDispatched,
		"in-service":  models.PhaseInService,
		" IN_SERVICE": models.PhaseInService,
		"Concluded":   models.PhaseConcluded,
		"cancelled":   models.PhaseCancelled,
	}
	for in, want := range cases {
		got, err := ParsePhase(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", in, want, got)
		}
	}
	if _, err := ParsePhase("ARCHIVED"); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
}

func TestTimerEligibility(t *testing.T) {
	for _, phase := range []models.Phase{models.PhaseOpen, models.PhaseDispatched, models.PhaseInService, models.PhaseConcluded} {
		if !TimerEligible(phase) {
			t.Fatalf("expected %s to be timer eligible", phase)
		}
	}
	if TimerEligible(models.PhaseCancelled) {
		t.Fatalf("cancelled occurrences must not show a timer")
	}
	if TimerEligible("") {
		t.Fatalf("empty phase must not be eligible")
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]models.Phase{
		{models.PhaseOpen, models.PhaseDispatched},
		{models.PhaseDispatched, models.PhaseInService},
		{models.PhaseInService, models.PhaseConcluded},
		{models.PhaseOpen, models.PhaseCancelled},
		{models.PhaseInService, models.PhaseCancelled},
		{models.PhaseConcluded, models.PhaseConcluded},
	}
	for _, step := range allowed {
		if !CanTransition(step[0], step[1]) {
			t.Fatalf("expected %s -> %s to be allowed", step[0], step[1])
		}
	}

	denied := [][2]models.Phase{
		{models.PhaseOpen, models.PhaseInService},
		{models.PhaseConcluded, models.PhaseOpen},
		{models.PhaseConcluded, models.PhaseCancelled},
		{models.PhaseCancelled, models.PhaseOpen},
	}
	for _, step := range denied {
		if CanTransition(step[0], step[1]) {
			t.Fatalf("expected %s -> %s to be rejected", step[0], step[1])
		}
	}
}

func TestMachineAdvance(t *testing.T) {
	m := NewMachine(models.PhaseOpen)
	changed, err := m.Advance(models.PhaseDispatched)
	if err != nil || !changed {
		t.Fatalf("expected change to dispatched, got changed=%v err=%v", changed, err)
	}
	if _, err := m.Advance(models.PhaseConcluded); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if m.Current() != models.PhaseDispatched {
		t.Fatalf("rejected transition must not move the machine, got %s", m.Current())
	}
}

func TestMachineObserveSkipsForwardOnly(t *testing.T) {
	m := NewMachine(models.PhaseOpen)
	if changed, err := m.Observe(models.PhaseInService); err != nil || !changed {
		t.Fatalf("expected forward skip to be accepted, changed=%v err=%v", changed, err)
	}
	if _, err := m.Observe(models.PhaseDispatched); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected backwards observation to fail, got %v", err)
	}
	if changed, err := m.Observe(models.PhaseCancelled); err != nil || !changed {
		t.Fatalf("expected cancel to be accepted, changed=%v err=%v", changed, err)
	}
	if _, err := m.Observe(models.PhaseOpen); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled is terminal, got %v", err)
	}
}

func TestHardTerminal(t *testing.T) {
	returned := models.Snapshot{ReturnedToBase: true}
	if !HardTerminal(models.PhaseConcluded, returned) {
		t.Fatalf("concluded + returned is hard terminal")
	}
	if HardTerminal(models.PhaseConcluded, models.Snapshot{WasConcluded: true}) {
		t.Fatalf("concluded without return keeps polling")
	}
	if !HardTerminal(models.PhaseCancelled, models.Snapshot{}) {
		t.Fatalf("cancelled is hard terminal")
	}
	if HardTerminal(models.PhaseInService, returned) {
		t.Fatalf("in-service phase is never hard terminal")
	}
}

func TestPhaseFromSnapshot(t *testing.T) {
	cases := []struct {
		snap models.Snapshot
		want models.Phase
	}{
		{models.Snapshot{}, models.PhaseOpen},
		{models.Snapshot{WasDispatched: true}, models.PhaseDispatched},
		{models.Snapshot{ArrivedOnScene: true}, models.PhaseInService},
		{models.Snapshot{ReturnedToBase: true}, models.PhaseConcluded},
	}
	for _, tc := range cases {
		if got := PhaseFromSnapshot(tc.snap); got != tc.want {
			t.Fatalf("expected %s, got %s for %+v", tc.want, got, tc.snap)
		}
	}
}
