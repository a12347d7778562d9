package models

import "time"

// Risk classifies SLA consumption as reported upstream.
type Risk string

const (
	RiskOK       Risk = "OK"
	RiskAtRisk   Risk = "AT_RISK"
	RiskExceeded Risk = "EXCEEDED"
)

// DisplayBranch selects which remaining-time line the view shows.
type DisplayBranch string

const (
	DisplayNone               DisplayBranch = "none"
	DisplayCountdownToArrival DisplayBranch = "countdown_to_arrival"
	DisplayCountdownToReturn  DisplayBranch = "countdown_to_return"
	DisplayFixedArrival       DisplayBranch = "fixed_arrival"
	DisplayReturned           DisplayBranch = "returned"
)

// Tone is the colour hint attached to a display line.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneGreen   Tone = "green"
	ToneAmber   Tone = "amber"
	ToneRed     Tone = "red"
)

// Segments holds the stacked-bar phase percentages.
type Segments struct {
	ToDispatch float64
	ToArrival  float64
	Return     float64
}

// Display is the remaining-time line chosen for the current snapshot.
type Display struct {
	Branch         DisplayBranch
	Minutes        float64
	Tone           Tone
	Reached        bool
	AvailableAgain bool
}

// ProgressResult is the rendered view of one snapshot.
type ProgressResult struct {
	OccurrenceID       string
	UsedPercent        float64
	Segments           Segments
	Risk               Risk
	AwaitingSLA        bool
	Display            Display
	SLAMinutes         float64
	DistanceKm         *float64
	TotalFormatted     string
	RemainingFormatted string
	Terminal           bool
	ComputedFrom       time.Time
}
