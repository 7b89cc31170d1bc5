package workflow

import (
	"strings"

	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/transport"
)

// HoldReason is the cause of a firmware-initiated pause.
type HoldReason int

const (
	HoldNone HoldReason = iota
	HoldProgramError
	HoldM0ProgramPause
	HoldM1ProgramPause
	HoldM2ProgramEnd
	HoldM30ProgramEnd
	HoldToolChange
	HoldSetExtruderTemp
	HoldSetBedTemp
)

var holdNames = [...]string{
	HoldNone:            "None",
	HoldProgramError:    "ProgramError",
	HoldM0ProgramPause:  "M0ProgramPause",
	HoldM1ProgramPause:  "M1ProgramPause",
	HoldM2ProgramEnd:    "M2ProgramEnd",
	HoldM30ProgramEnd:   "M30ProgramEnd",
	HoldToolChange:      "ToolChange",
	HoldSetExtruderTemp: "SetExtruderTemp",
	HoldSetBedTemp:      "SetBedTemp",
}

func (r HoldReason) String() string {
	if r < 0 || int(r) >= len(holdNames) {
		return "Unknown"
	}
	return holdNames[r]
}

// MarshalText allows HoldReason to be used directly in JSON snapshots.
func (r HoldReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

var holdCodes = map[float64]HoldReason{
	0:   HoldM0ProgramPause,
	1:   HoldM1ProgramPause,
	2:   HoldM2ProgramEnd,
	30:  HoldM30ProgramEnd,
	6:   HoldToolChange,
	109: HoldSetExtruderTemp,
	190: HoldSetBedTemp,
}

// ReasonFor maps a sender hold payload to a HoldReason. An error always
// wins over the data token.
func ReasonFor(h transport.HoldReason) HoldReason {
	if strings.TrimSpace(h.Err) != "" {
		return HoldProgramError
	}

	b, err := gcode.ParseLine(h.Data)
	if err != nil {
		return HoldNone
	}
	for _, w := range b {
		if w.W != 'M' {
			continue
		}
		if r, ok := holdCodes[w.Arg]; ok {
			return r
		}
	}

	return HoldNone
}

// A Notification is raised once for each transition into a hold with a
// reason.
type Notification struct {
	Reason HoldReason
	Detail string
}
