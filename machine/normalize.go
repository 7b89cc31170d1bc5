package machine

import "reflect"

// Normalize maps a dialect report onto the previous canonical state.
//
// Fields missing from the report keep their previous value. A nil report,
// including a nil pointer of a dialect type, returns prev unchanged.
func Normalize(prev State, r Report) State {
	if r == nil || reflect.ValueOf(r).IsNil() {
		return prev
	}
	switch r.Kind() {
	case Grbl, Marlin, Smoothie, TinyG:
	default:
		return prev
	}

	s := r.normalize(prev)
	s.Firmware = r.Kind()
	if !s.Connected() {
		// a report proves the controller is there
		s.ActiveState = StateIdle
	}
	if s.ActiveState != StateAlarm {
		s.AlarmCode = 0
	}
	if s.WCS == "" {
		s.WCS = DefaultWCS
	}
	return s
}

// NormalizeRaw decodes a JSON report for kind and normalizes it. Unknown
// kinds and malformed payloads return prev unchanged.
func NormalizeRaw(prev State, kind FirmwareKind, data []byte) State {
	r, err := DecodeReport(kind, data)
	if err != nil {
		return prev
	}
	return Normalize(prev, r)
}
