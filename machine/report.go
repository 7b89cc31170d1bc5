package machine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/units"
)

// ErrUnknownFirmware is returned when decoding a report for an unsupported kind.
var ErrUnknownFirmware = errors.New("unknown firmware kind")

// A Report is a raw status report in one firmware dialect. Only the
// dialect types in this package implement it.
type Report interface {
	Kind() FirmwareKind
	normalize(prev State) State
}

var (
	_ Report = &GrblReport{}
	_ Report = &MarlinReport{}
	_ Report = &SmoothieReport{}
	_ Report = &TinyGReport{}
)

// DecodeReport decodes the JSON controller-state shape of the given dialect.
func DecodeReport(kind FirmwareKind, data []byte) (Report, error) {
	var r Report
	switch kind {
	case Grbl:
		r = &GrblReport{}
	case Marlin:
		r = &MarlinReport{}
	case Smoothie:
		r = &SmoothieReport{}
	case TinyG:
		r = &TinyGReport{}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFirmware, kind)
	}
	err := json.Unmarshal(data, r)
	if err != nil {
		return nil, fmt.Errorf("decode %s report: %w", kind, err)
	}
	return r, nil
}

// Value is a JSON number or numeric string, as controllers send both.
type Value json.RawMessage

func (v *Value) UnmarshalJSON(data []byte) error {
	*v = append((*v)[:0], data...)
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if len(v) == 0 {
		return []byte("null"), nil
	}
	return v, nil
}

// Float parses the value. ok is false when absent or not numeric.
func (v Value) Float() (float64, bool) {
	data := bytes.TrimSpace(v)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	s := string(data)
	if data[0] == '"' {
		err := json.Unmarshal(data, &s)
		if err != nil {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int parses the value as an integer.
func (v Value) Int() (int, bool) {
	f, ok := v.Float()
	if !ok {
		return 0, false
	}
	return int(f), true
}

// NumberValue encodes f as a Value.
func NumberValue(f float64) Value {
	return Value(strconv.FormatFloat(f, 'f', -1, 64))
}

// Axes is a position payload keyed by lower-case axis letter.
type Axes map[string]Value

// AxesOf builds Axes from values in X, Y, Z, A, B, C order.
func AxesOf(vals ...float64) Axes {
	a := make(Axes, len(vals))
	for i, v := range vals {
		if i >= len(coord.Axes) {
			break
		}
		a[strings.ToLower(coord.Axes[i:i+1])] = NumberValue(v)
	}
	return a
}

// merge overlays every present, parseable axis onto prev, converting
// from the reporting unit system to mm. Absent axes keep prev's value.
func (a Axes) merge(prev coord.Point, report units.System) coord.Point {
	for key, val := range a {
		if len(key) != 1 {
			continue
		}
		if _, ok := prev.Axis(key[0]); !ok {
			// e.g. Marlin's extruder "e"
			continue
		}
		f, ok := val.Float()
		if !ok {
			continue
		}
		if report == units.Imperial {
			f = units.InToMM(f)
		}
		prev = prev.SetAxis(key[0], f)
	}
	return prev
}

// Modal is the parser-state subset the normalizer reads.
type Modal struct {
	WCS   *string `json:"wcs,omitempty"`
	Units *string `json:"units,omitempty"`
}

func (m Modal) apply(s State) State {
	if m.WCS != nil && *m.WCS != "" {
		s.WCS = strings.ToUpper(*m.WCS)
	}
	if m.Units != nil {
		if u, ok := units.FromModal(*m.Units); ok {
			s.Units = u
		}
	}
	return s
}

func reportSystem(inches bool) units.System {
	if inches {
		return units.Imperial
	}
	return units.Metric
}
