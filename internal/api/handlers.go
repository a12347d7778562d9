package api

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/watch"
)

// FromProtoOccurrenceID validates the occurrence id carried by a request.
func FromProtoOccurrenceID(req *wrapperspb.StringValue) (string, error) {
	if req == nil {
		return "", fmt.Errorf("request is nil")
	}
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return "", fmt.Errorf("occurrence id is required")
	}
	return id, nil
}

// ToProtoProgress converts a progress result into its Struct representation.
func ToProtoProgress(res models.ProgressResult) (*structpb.Struct, error) {
	return structpb.NewStruct(ProgressView(res))
}

// ToProtoEvent converts a watch event into its Struct representation.
func ToProtoEvent(ev watch.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(EventView(ev))
}

// EventView is the JSON-shaped form of a watch event shared by gRPC and websocket feeds.
func EventView(ev watch.Event) map[string]interface{} {
	view := map[string]interface{}{
		"type":         string(ev.Kind),
		"occurrenceId": ev.OccurrenceID,
	}
	if !ev.At.IsZero() {
		view["at"] = ev.At.UTC().Format(time.RFC3339Nano)
	}
	switch ev.Kind {
	case watch.EventPhase:
		view["phase"] = string(ev.Phase)
	case watch.EventProgress, watch.EventTerminated:
		if ev.Progress != nil {
			view["progress"] = ProgressView(*ev.Progress)
		}
	case watch.EventHistory:
		view["events"] = HistoryView(ev.History)
	case watch.EventError:
		view["source"] = ev.Source
		view["message"] = ev.Err
	}
	return view
}

// ProgressView is the JSON-shaped form of a progress result.
func ProgressView(res models.ProgressResult) map[string]interface{} {
	view := map[string]interface{}{
		"occurrenceId": res.OccurrenceID,
		"usedPercent":  res.UsedPercent,
		"segments": map[string]interface{}{
			"toDispatch": res.Segments.ToDispatch,
			"toArrival":  res.Segments.ToArrival,
			"return":     res.Segments.Return,
		},
		"risk":        string(res.Risk),
		"awaitingSla": res.AwaitingSLA,
		"display": map[string]interface{}{
			"branch":         string(res.Display.Branch),
			"minutes":        res.Display.Minutes,
			"tone":           string(res.Display.Tone),
			"reached":        res.Display.Reached,
			"availableAgain": res.Display.AvailableAgain,
		},
		"slaMinutes": res.SLAMinutes,
		"terminal":   res.Terminal,
	}
	if res.DistanceKm != nil {
		view["distanceKm"] = *res.DistanceKm
	}
	if res.TotalFormatted != "" {
		view["totalFormatted"] = res.TotalFormatted
	}
	if res.RemainingFormatted != "" {
		view["remainingFormatted"] = res.RemainingFormatted
	}
	if !res.ComputedFrom.IsZero() {
		view["computedFrom"] = res.ComputedFrom.UTC().Format(time.RFC3339Nano)
	}
	return view
}

// HistoryView renders events in the order given. Unknown actions keep their
// raw name and are flagged so clients can style them neutrally.
func HistoryView(events []models.HistoryEvent) []interface{} {
	out := make([]interface{}, 0, len(events))
	for _, e := range events {
		item := map[string]interface{}{
			"id":           e.ID,
			"occurrenceId": e.OccurrenceID,
			"action":       string(e.Action),
			"knownAction":  e.Action.Known(),
		}
		if !e.Timestamp.IsZero() {
			item["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		optional(item, "previousStatus", e.PreviousStatus)
		optional(item, "newStatus", e.NewStatus)
		optional(item, "description", e.Description)
		optional(item, "actorName", e.ActorName)
		optional(item, "actorRole", e.ActorRole)
		optional(item, "occurrenceType", e.OccurrenceType)
		optional(item, "vehiclePlate", e.VehiclePlate)
		optional(item, "vehicleAction", e.VehicleAction)
		out = append(out, item)
	}
	return out
}

func optional(m map[string]interface{}, key, value string) {
	if value != "" {
		m[key] = value
	}
}
