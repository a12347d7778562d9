// Package lifecycle holds the occurrence phase state machine that gates which
// refresh schedulers are allowed to run for an occurrence.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/utils"
)

// ErrInvalidTransition is returned when a phase change skips or reverses the lifecycle.
var ErrInvalidTransition = errors.New("invalid phase transition")

// ErrUnknownPhase is returned by ParsePhase for unrecognised status strings.
var ErrUnknownPhase = errors.New("unknown phase")

var order = map[models.Phase]int{
	models.PhaseOpen:       0,
	models.PhaseDispatched: 1,
	models.PhaseInService:  2,
	models.PhaseConcluded:  3,
}

// ParsePhase maps an upstream status string onto a Phase.
func ParsePhase(value string) (models.Phase, error) {
	normalised := strings.ToUpper(strings.TrimSpace(value))
	normalised = strings.ReplaceAll(normalised, "-", "_")
	normalised = strings.ReplaceAll(normalised, " ", "_")
	phase := models.Phase(normalised)
	if phase == models.PhaseCancelled {
		return phase, nil
	}
	if _, ok := order[phase]; ok {
		return phase, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPhase, value)
}

// TimerEligible reports whether the SLA timer is shown (and polled) in phase.
func TimerEligible(phase models.Phase) bool {
	_, ok := order[phase]
	return ok
}

// Terminal reports whether no further transition is possible from phase.
func Terminal(phase models.Phase) bool {
	return phase == models.PhaseConcluded || phase == models.PhaseCancelled
}

// CanTransition reports whether from → to is a legal lifecycle step.
func CanTransition(from, to models.Phase) bool {
	if from == to {
		return true
	}
	if to == models.PhaseCancelled {
		return !Terminal(from) && TimerEligible(from)
	}
	fi, okFrom := order[from]
	ti, okTo := order[to]
	return okFrom && okTo && ti == fi+1
}

// HardTerminal reports whether polling for the occurrence can stop for good.
func HardTerminal(phase models.Phase, snap models.Snapshot) bool {
	switch phase {
	case models.PhaseCancelled:
		return true
	case models.PhaseConcluded:
		return snap.Terminal()
	default:
		return false
	}
}

// PhaseFromSnapshot derives the furthest phase implied by the snapshot flags.
// Used when the occurrence record cannot be read.
func PhaseFromSnapshot(snap models.Snapshot) models.Phase {
	snap = snap.Normalize()
	switch {
	case snap.WasConcluded:
		return models.PhaseConcluded
	case snap.ArrivedOnScene:
		return models.PhaseInService
	case snap.WasDispatched:
		return models.PhaseDispatched
	default:
		return models.PhaseOpen
	}
}

// Machine tracks the current phase of one occurrence.
type Machine struct {
	mu      sync.RWMutex
	current models.Phase
}

// NewMachine starts a machine in phase.
func NewMachine(phase models.Phase) *Machine {
	return &Machine{current: phase}
}

// Current returns the tracked phase.
func (m *Machine) Current() models.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Advance moves to phase `to`, reporting whether the phase actually changed.
func (m *Machine) Advance(to models.Phase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !CanTransition(m.current, to) {
		return false, utils.NewAppError("advance phase",
			fmt.Sprintf("%s cannot move to %s", m.current, to), ErrInvalidTransition)
	}
	changed := m.current != to
	m.current = to
	return changed, nil
}

// Observe accepts an externally reported phase. Phases are only ever reported
// by the authoritative record, so skipped steps are accepted as long as the
// lifecycle does not move backwards.
func (m *Machine) Observe(to models.Phase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return false, nil
	}
	if Terminal(m.current) {
		return false, utils.NewAppError("observe phase",
			fmt.Sprintf("%s is terminal", m.current), ErrInvalidTransition)
	}
	if to != models.PhaseCancelled {
		fi, okFrom := order[m.current]
		ti, okTo := order[to]
		if !okFrom || !okTo || ti < fi {
			return false, utils.NewAppError("observe phase",
				fmt.Sprintf("%s cannot move back to %s", m.current, to), ErrInvalidTransition)
		}
	}
	m.current = to
	return true, nil
}
