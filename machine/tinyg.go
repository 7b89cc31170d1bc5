package machine

import "github.com/mastercactapus/gsend/units"

// TinyGReport is the TinyG/g2core status report ("sr"). Positions are in
// the active modal units.
type TinyGReport struct {
	SR struct {
		MachineState Value `json:"machineState,omitempty"`
		MPos         Axes  `json:"mpos,omitempty"`
		WPos         Axes  `json:"wpos,omitempty"`
		Modal        Modal `json:"modal"`
	} `json:"sr"`
}

func (r *TinyGReport) Kind() FirmwareKind { return TinyG }

// TinyG machine states (stat).
const (
	tinygInitializing = iota
	tinygReady
	tinygAlarm
	tinygStop
	tinygEnd
	tinygRun
	tinygHold
	tinygProbe
	tinygCycle
	tinygHoming
	tinygJog
	tinygInterlock
	tinygShutdown
	tinygPanic
)

func tinygActiveState(stat int) (ActiveState, bool) {
	switch stat {
	case tinygInitializing, tinygReady, tinygStop, tinygEnd:
		return StateIdle, true
	case tinygAlarm, tinygShutdown, tinygPanic:
		return StateAlarm, true
	case tinygRun, tinygProbe, tinygCycle:
		return StateRun, true
	case tinygHold, tinygInterlock:
		return StateHold, true
	case tinygHoming:
		return StateHome, true
	case tinygJog:
		return StateJog, true
	}
	return "", false
}

func (r *TinyGReport) normalize(prev State) State {
	if r == nil {
		return prev
	}
	s := r.SR.Modal.apply(prev)
	s.ReportInches = s.Units == units.Imperial

	if stat, ok := r.SR.MachineState.Int(); ok {
		if st, ok := tinygActiveState(stat); ok {
			s.ActiveState = st
		}
	}

	sys := reportSystem(s.ReportInches)
	s.MPos = r.SR.MPos.merge(prev.MPos, sys)
	s.WPos = r.SR.WPos.merge(prev.WPos, sys)
	return s
}
