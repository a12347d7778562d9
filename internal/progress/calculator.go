// Package progress turns SLA timer snapshots into bounded percentages, phase
// segments, a risk class and the remaining-time display line. Everything here
// is pure: out-of-range inputs are clamped, never rejected.
package progress

import (
	"math"

	"github.com/lifetrack/slawatch/internal/models"
	"github.com/lifetrack/slawatch/internal/utils"
)

// Calculate renders snap. Calling it twice with the same snapshot yields the
// same result.
func Calculate(snap models.Snapshot) models.ProgressResult {
	snap = snap.Normalize()

	result := models.ProgressResult{
		OccurrenceID:       snap.OccurrenceID,
		UsedPercent:        UsedPercent(snap),
		Segments:           PhaseSegments(snap),
		Risk:               Classify(snap),
		AwaitingSLA:        !snap.HasBudget(),
		Display:            SelectDisplay(snap),
		DistanceKm:         nonNegative(snap.DistanceKm),
		TotalFormatted:     snap.TotalFormatted,
		RemainingFormatted: snap.RemainingFormatted,
		Terminal:           snap.Terminal(),
		ComputedFrom:       snap.FetchedAt,
	}
	if snap.HasBudget() {
		result.SLAMinutes = *snap.SLAMinutes
	}
	if result.TotalFormatted == "" && snap.TotalElapsedMinutes != nil {
		result.TotalFormatted = utils.FormatMinutes(*snap.TotalElapsedMinutes)
	}
	if result.RemainingFormatted == "" && snap.RemainingMinutes != nil {
		result.RemainingFormatted = utils.FormatMinutes(*snap.RemainingMinutes)
	}
	return result
}

// UsedPercent is elapsed/budget as a percentage clamped to [0,100]; 0 without a budget.
func UsedPercent(snap models.Snapshot) float64 {
	if !snap.HasBudget() {
		return 0
	}
	return clampPercent(value(snap.ElapsedSLAMinutes) / *snap.SLAMinutes * 100)
}

// PhaseSegments computes the stacked-bar bands. To-dispatch and to-arrival are
// scaled down so their sum never overstates UsedPercent; the return band does
// not count against the SLA and is never scaled.
func PhaseSegments(snap models.Snapshot) models.Segments {
	snap = snap.Normalize()
	if !snap.HasBudget() {
		return models.Segments{}
	}
	budget := *snap.SLAMinutes

	var toDispatch, toArrival, ret float64
	if snap.WasDispatched && snap.DispatchedAt != nil && !snap.OpenedAt.IsZero() {
		if snap.DispatchedAt.After(snap.OpenedAt) {
			toDispatch = utils.DurationMinutes(snap.OpenedAt, *snap.DispatchedAt) / budget * 100
		}
	}
	if snap.WasDispatched && snap.TravelToArrivalMinutes != nil {
		toArrival = value(*snap.TravelToArrivalMinutes) / budget * 100
	}
	if snap.WasConcluded && snap.ReturnElapsedMinutes != nil {
		ret = value(*snap.ReturnElapsedMinutes) / budget * 100
	}

	toDispatch = clampPercent(toDispatch)
	toArrival = clampPercent(toArrival)

	used := UsedPercent(snap)
	if sum := toDispatch + toArrival; sum > 0 {
		factor := math.Min(1, used/sum)
		toDispatch *= factor
		toArrival *= factor
	}

	return models.Segments{
		ToDispatch: clampPercent(toDispatch),
		ToArrival:  clampPercent(toArrival),
		Return:     clampPercent(ret),
	}
}

// Classify maps the upstream risk flags onto a Risk. Thresholds are not re-derived.
func Classify(snap models.Snapshot) models.Risk {
	switch {
	case snap.SLAExceeded:
		return models.RiskExceeded
	case snap.SLAAtRisk:
		return models.RiskAtRisk
	default:
		return models.RiskOK
	}
}

// SelectDisplay picks the remaining-time line; the first matching branch wins.
func SelectDisplay(snap models.Snapshot) models.Display {
	snap = snap.Normalize()

	switch {
	case !snap.WasConcluded && !snap.ArrivedOnScene && snap.RemainingToArrivalMinutes != nil:
		remaining := value(*snap.RemainingToArrivalMinutes)
		tone := models.ToneGreen
		if remaining <= 0 {
			tone = models.ToneRed
		}
		return models.Display{
			Branch:  models.DisplayCountdownToArrival,
			Minutes: math.Max(0, remaining),
			Tone:    tone,
			Reached: remaining <= 0,
		}
	case snap.WasConcluded && !snap.ReturnedToBase && snap.ReturnRemainingMinutes != nil:
		remaining := value(*snap.ReturnRemainingMinutes)
		return models.Display{
			Branch:  models.DisplayCountdownToReturn,
			Minutes: math.Max(0, remaining),
			Tone:    models.ToneAmber,
			Reached: remaining <= 0,
		}
	case snap.ArrivedOnScene && !snap.WasConcluded:
		return models.Display{
			Branch:  models.DisplayFixedArrival,
			Minutes: math.Max(0, optional(snap.TravelToArrivalMinutes)),
			Tone:    models.ToneNeutral,
		}
	case snap.WasConcluded && snap.ReturnedToBase:
		return models.Display{
			Branch:         models.DisplayReturned,
			Minutes:        math.Max(0, optional(snap.ReturnElapsedMinutes)),
			Tone:           models.ToneGreen,
			AvailableAgain: true,
		}
	default:
		return models.Display{Branch: models.DisplayNone, Tone: models.ToneNeutral}
	}
}

func clampPercent(v float64) float64 {
	v = value(v)
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// value maps NaN and ±Inf onto 0.
func value(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func optional(v *float64) float64 {
	if v == nil {
		return 0
	}
	return value(*v)
}

func nonNegative(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := math.Max(0, value(*v))
	return &out
}
