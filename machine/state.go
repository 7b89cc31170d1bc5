package machine

import (
	"strings"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/units"
)

// FirmwareKind identifies the controller dialect.
type FirmwareKind int

const (
	Unknown FirmwareKind = iota
	Grbl
	Marlin
	Smoothie
	TinyG
)

var firmwareNames = [...]string{"Unknown", "Grbl", "Marlin", "Smoothie", "TinyG"}

func (k FirmwareKind) String() string {
	if k < 0 || int(k) >= len(firmwareNames) {
		return firmwareNames[Unknown]
	}
	return firmwareNames[k]
}

func (k FirmwareKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseFirmwareKind is case insensitive; unrecognized names return Unknown.
func ParseFirmwareKind(name string) FirmwareKind {
	for i, n := range firmwareNames {
		if strings.EqualFold(n, name) {
			return FirmwareKind(i)
		}
	}
	return Unknown
}

// ActiveState is the controller's own run state.
type ActiveState string

const (
	StateIdle         ActiveState = "Idle"
	StateRun          ActiveState = "Run"
	StateHold         ActiveState = "Hold"
	StateJog          ActiveState = "Jog"
	StateCheck        ActiveState = "Check"
	StateHome         ActiveState = "Home"
	StateSleep        ActiveState = "Sleep"
	StateAlarm        ActiveState = "Alarm"
	StateDisconnected ActiveState = "Disconnected"
)

var stateLabels = map[ActiveState]string{
	StateIdle:         "Idle",
	StateRun:          "Running",
	StateHold:         "Hold",
	StateJog:          "Jogging",
	StateCheck:        "Check",
	StateHome:         "Homing",
	StateSleep:        "Sleep",
	StateAlarm:        "Alarm",
	StateDisconnected: "Disconnected",
}

// Label is the operator facing name of the state.
func (s ActiveState) Label() string {
	if l, ok := stateLabels[s]; ok {
		return l
	}
	return string(StateDisconnected)
}

// parseActiveState maps a Grbl/Smoothie state string, which may carry a
// sub-code ("Hold:0", "Door:1").
func parseActiveState(s string) (ActiveState, bool) {
	s = strings.SplitN(strings.TrimSpace(s), ":", 2)[0]
	switch s {
	case "Idle":
		return StateIdle, true
	case "Run":
		return StateRun, true
	case "Hold", "Door":
		return StateHold, true
	case "Jog":
		return StateJog, true
	case "Check":
		return StateCheck, true
	case "Home":
		return StateHome, true
	case "Sleep":
		return StateSleep, true
	case "Alarm":
		return StateAlarm, true
	}
	return "", false
}

// DefaultWCS is assumed until a controller reports otherwise.
const DefaultWCS = "G54"

// State is the canonical machine snapshot. Positions are always millimeters.
//
// A State is a value; it is replaced, never modified, when a new report
// arrives.
type State struct {
	Firmware    FirmwareKind
	ActiveState ActiveState
	AlarmCode   int

	MPos coord.Point
	WPos coord.Point

	// Units is the active modal unit system, used for display only.
	Units units.System
	// ReportInches is the controller setting that makes it report
	// positions in inches (Grbl $13).
	ReportInches bool

	WCS string
}

// Disconnected is the state used before a port is open and after it closes.
func Disconnected() State {
	return State{
		ActiveState: StateDisconnected,
		WCS:         DefaultWCS,
	}
}

// WCO is the active work coordinate offset.
func (s State) WCO() coord.Point {
	return s.MPos.Sub(s.WPos)
}

// Connected reports whether the state came from a live controller.
func (s State) Connected() bool {
	return s.ActiveState != StateDisconnected && s.ActiveState != ""
}

// WCSIndex maps G54..G59 to the P number used by G10 L20 (1..6), or 0.
func (s State) WCSIndex() int {
	switch s.WCS {
	case "G54":
		return 1
	case "G55":
		return 2
	case "G56":
		return 3
	case "G57":
		return 4
	case "G58":
		return 5
	case "G59":
		return 6
	}
	return 0
}
