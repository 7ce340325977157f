// Package measurement turns raw scale readings into the quantities shown to
// the operator.
package measurement

import (
	"math"
	"strconv"

	"codeberg.org/mutker/co2scale/internal/scale"
)

// State is the derived view of one reading. It is recomputed for every
// sample and never stored.
type State struct {
	UsedMass      float64 `json:"used_mass"`
	RemainingMass float64 `json:"remaining_mass"`
}

// Derive computes used and remaining CO2 from a reading and the confirmed
// baseline. Tension and compression both count as usage, and the remaining
// mass is not clamped: a negative value means the baseline is too low.
func Derive(r scale.Reading, baseline float64) State {
	used := math.Abs(r.Load)

	return State{
		UsedMass:      used,
		RemainingMass: baseline - used,
	}
}

// FormatGrams renders a mass the way the dashboard shows it, e.g. "120g" or
// "-3.5g".
func FormatGrams(v float64) string {
	if v == 0 {
		v = 0 // normalizes -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + "g"
}
