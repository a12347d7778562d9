package models

import (
	"math"
	"time"
)

// Snapshot is one point-in-time read of an occurrence's SLA timer.
type Snapshot struct {
	OccurrenceID string
	Status       string

	SLAMinutes        *float64
	ElapsedSLAMinutes float64

	OpenedAt     time.Time
	DispatchedAt *time.Time
	ArrivedAt    *time.Time
	ConcludedAt  *time.Time
	ReturnedAt   *time.Time

	WasDispatched  bool
	ArrivedOnScene bool
	WasConcluded   bool
	ReturnedToBase bool

	TravelToArrivalMinutes    *float64
	RemainingToArrivalMinutes *float64
	ReturnElapsedMinutes      *float64
	ReturnRemainingMinutes    *float64
	TotalElapsedMinutes       *float64
	RemainingMinutes          *float64

	DistanceKm   *float64
	VehiclePlate string

	SLAExceeded bool
	SLAAtRisk   bool

	TotalFormatted     string
	RemainingFormatted string

	FetchedAt time.Time
}

// Terminal reports whether the responding unit is back at base. A terminal
// snapshot never changes on later reads of the same occurrence.
func (s Snapshot) Terminal() bool {
	return s.ReturnedToBase
}

// HasBudget reports whether a positive SLA budget is known.
func (s Snapshot) HasBudget() bool {
	return s.SLAMinutes != nil && finite(*s.SLAMinutes) && *s.SLAMinutes > 0
}

// Normalize enforces the phase flag chain and non-negative elapsed time.
// A later phase flag forces all earlier flags true; exceeded wins over at-risk.
func (s Snapshot) Normalize() Snapshot {
	if s.ReturnedToBase {
		s.WasConcluded = true
	}
	if s.WasConcluded {
		s.ArrivedOnScene = true
	}
	if s.ArrivedOnScene {
		s.WasDispatched = true
	}
	if !finite(s.ElapsedSLAMinutes) || s.ElapsedSLAMinutes < 0 {
		s.ElapsedSLAMinutes = 0
	}
	if s.SLAExceeded {
		s.SLAAtRisk = false
	}
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Float returns a pointer to v; convenience for optional snapshot fields.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t.
func Time(t time.Time) *time.Time {
	return &t
}
