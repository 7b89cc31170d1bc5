package machine

import "github.com/mastercactapus/gsend/units"

// MarlinReport is the Marlin controller state. Marlin has no work
// coordinate report, so Pos is used for both machine and work position,
// and no run state, so the previous one is kept.
type MarlinReport struct {
	Pos   Axes  `json:"pos,omitempty"`
	Modal Modal `json:"modal"`
}

func (r *MarlinReport) Kind() FirmwareKind { return Marlin }

func (r *MarlinReport) normalize(prev State) State {
	if r == nil {
		return prev
	}
	s := r.Modal.apply(prev)
	s.ReportInches = s.Units == units.Imperial

	sys := reportSystem(s.ReportInches)
	s.MPos = r.Pos.merge(prev.MPos, sys)
	s.WPos = r.Pos.merge(prev.WPos, sys)
	return s
}
