// Package units converts between metric and imperial positions.
//
// Machine positions are always stored in millimeters; conversion to
// inches only happens when a value is shown to the operator.
package units

import (
	"math"
	"strings"

	"github.com/mastercactapus/gsend/coord"
)

// MMPerInch is the exact inch definition.
const MMPerInch = 25.4

// System is a unit system.
type System int

const (
	Metric System = iota
	Imperial
)

func (s System) String() string {
	if s == Imperial {
		return "in"
	}
	return "mm"
}

func (s System) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Modal returns the G-code that selects s.
func (s System) Modal() string {
	if s == Imperial {
		return "G20"
	}
	return "G21"
}

// FromModal maps "G20"/"G21" to a System. ok is false for anything else.
func FromModal(code string) (s System, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "G20":
		return Imperial, true
	case "G21":
		return Metric, true
	}
	return Metric, false
}

func InToMM(in float64) float64 { return in * MMPerInch }
func MMToIn(mm float64) float64 { return mm / MMPerInch }

// PositionToMM converts a position reported in s to millimeters.
func PositionToMM(p coord.Point, s System) coord.Point {
	if s != Imperial {
		return p
	}
	return p.Mul(MMPerInch)
}

// MapPositionToUnits converts a millimeter value for display in s,
// rounded to the precision the operator sees (3 places for mm, 4 for in).
func MapPositionToUnits(mm float64, s System) float64 {
	if s == Imperial {
		return round(MMToIn(mm), 4)
	}
	return round(mm, 3)
}

// MapPointToUnits applies MapPositionToUnits to every axis.
func MapPointToUnits(p coord.Point, s System) coord.Point {
	return p.Map(func(v float64) float64 { return MapPositionToUnits(v, s) })
}

func round(v float64, places int) float64 {
	m := math.Pow(10, float64(places))
	return math.Round(v*m) / m
}
