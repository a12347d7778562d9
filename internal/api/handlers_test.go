package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/watch"
)

func TestFromProtoOccurrenceID(t *testing.T) {
	id, err := FromProtoOccurrenceID(wrapperspb.String(" 42 "))
	if err != nil || id != "42" {
		t.Fatalf("unexpected result %q, %v", id, err)
	}
	if _, err := FromProtoOccurrenceID(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
	if _, err := FromProtoOccurrenceID(wrapperspb.String("")); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestToProtoProgress(t *testing.T) {
	computed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	res := models.ProgressResult{
		OccurrenceID: "42",
		UsedPercent:  20,
		Segments:     models.Segments{ToDispatch: 5, ToArrival: 15},
		Risk:         models.RiskAtRisk,
		Display: models.Display{
			Branch:  models.DisplayCountdownToArrival,
			Minutes: 3,
			Tone:    models.ToneGreen,
		},
		SLAMinutes:     20,
		DistanceKm:     models.Float(4.5),
		TotalFormatted: "4m",
		ComputedFrom:   computed,
	}

	proto, err := ToProtoProgress(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := proto.GetFields()
	if fields["usedPercent"].GetNumberValue() != 20 || fields["risk"].GetStringValue() != "AT_RISK" {
		t.Fatalf("unexpected fields %v", fields)
	}
	segments := fields["segments"].GetStructValue().GetFields()
	if segments["toDispatch"].GetNumberValue() != 5 || segments["toArrival"].GetNumberValue() != 15 {
		t.Fatalf("unexpected segments %v", segments)
	}
	if fields["distanceKm"].GetNumberValue() != 4.5 || fields["computedFrom"].GetStringValue() != "2024-05-01T10:00:00Z" {
		t.Fatalf("unexpected optional fields %v", fields)
	}
	if _, ok := fields["remainingFormatted"]; ok {
		t.Fatalf("empty strings must be omitted")
	}
}

func TestAwaitingSLAProgressView(t *testing.T) {
	view := ProgressView(models.ProgressResult{OccurrenceID: "7", AwaitingSLA: true, Display: models.Display{Branch: models.DisplayNone}})
	if view["awaitingSla"] != true || view["usedPercent"] != 0.0 {
		t.Fatalf("unexpected view %v", view)
	}
	if _, ok := view["distanceKm"]; ok {
		t.Fatalf("missing distance must be omitted")
	}
}

func TestToProtoEventHistory(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ev := watch.Event{
		Kind:         watch.EventHistory,
		OccurrenceID: "42",
		History: []models.HistoryEvent{
			{ID: "1", Action: models.ActionOpened, Timestamp: at, ActorName: "Ana"},
			{ID: "2", Action: models.ActionStatusChange, Timestamp: at.Add(time.Minute), PreviousStatus: "OPEN", NewStatus: "DISPATCHED"},
		},
		At: at,
	}

	proto, err := ToProtoEvent(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := proto.GetFields()
	if fields["type"].GetStringValue() != "history" {
		t.Fatalf("unexpected type %v", fields["type"])
	}
	events := fields["events"].GetListValue().GetValues()
	if len(events) != 2 {
		t.Fatalf("expected two events, got %d", len(events))
	}
	first := events[0].GetStructValue().GetFields()
	if first["id"].GetStringValue() != "1" || first["actorName"].GetStringValue() != "Ana" || !first["knownAction"].GetBoolValue() {
		t.Fatalf("unexpected first event %v", first)
	}
	second := events[1].GetStructValue().GetFields()
	if second["previousStatus"].GetStringValue() != "OPEN" || second["newStatus"].GetStringValue() != "DISPATCHED" {
		t.Fatalf("unexpected status change %v", second)
	}
}

func TestToProtoEventError(t *testing.T) {
	proto, err := ToProtoEvent(watch.Event{Kind: watch.EventError, OccurrenceID: "42", Source: watch.SourceTimer, Err: "upstream returned 503"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fields := proto.GetFields()
	if fields["source"].GetStringValue() != "timer" || fields["message"].GetStringValue() != "upstream returned 503" {
		t.Fatalf("unexpected error event %v", fields)
	}
}
