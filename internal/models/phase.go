package models

// Phase enumerates occurrence lifecycle statuses.
type Phase string

const (
	PhaseOpen       Phase = "OPEN"
	PhaseDispatched Phase = "DISPATCHED"
	PhaseInService  Phase = "IN_SERVICE"
	PhaseConcluded  Phase = "CONCLUDED"
	PhaseCancelled  Phase = "CANCELLED"
)

// Occurrence is the subset of the occurrence record the engine reads.
type Occurrence struct {
	ID       string
	Phase    Phase
	Type     string
	Severity string
}
