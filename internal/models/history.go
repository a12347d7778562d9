package models

import "time"

// HistoryAction enumerates audit actions recorded for an occurrence.
type HistoryAction string

const (
	ActionOpened       HistoryAction = "OPENED"
	ActionDispatched   HistoryAction = "DISPATCHED"
	ActionArrived      HistoryAction = "ARRIVED"
	ActionConcluded    HistoryAction = "CONCLUDED"
	ActionStatusChange HistoryAction = "STATUS_CHANGE"
	ActionCancelled    HistoryAction = "CANCELLED"
)

// Known reports whether the action is one of the enumerated values.
func (a HistoryAction) Known() bool {
	switch a {
	case ActionOpened, ActionDispatched, ActionArrived, ActionConcluded, ActionStatusChange, ActionCancelled:
		return true
	default:
		return false
	}
}

// HistoryEvent records one transition of an occurrence as produced by the audit log.
type HistoryEvent struct {
	ID             string
	OccurrenceID   string
	Action         HistoryAction
	Timestamp      time.Time
	PreviousStatus string
	NewStatus      string
	Description    string
	ActorName      string
	ActorRole      string
	OccurrenceType string
	VehiclePlate   string
	VehicleAction  string
}

// StatusChanged reports whether both ends of a status transition are present.
func (e HistoryEvent) StatusChanged() bool {
	return e.PreviousStatus != "" && e.NewStatus != ""
}
