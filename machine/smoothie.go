package machine

import "github.com/mastercactapus/gsend/units"

// SmoothieReport is the Smoothieware controller state. Smoothie reports
// positions in the active modal units.
type SmoothieReport struct {
	Status struct {
		ActiveState *string `json:"activeState,omitempty"`
		MPos        Axes    `json:"mpos,omitempty"`
		WPos        Axes    `json:"wpos,omitempty"`
	} `json:"status"`
	ParserState struct {
		Modal Modal `json:"modal"`
	} `json:"parserstate"`
}

func (r *SmoothieReport) Kind() FirmwareKind { return Smoothie }

func (r *SmoothieReport) normalize(prev State) State {
	if r == nil {
		return prev
	}
	s := r.ParserState.Modal.apply(prev)
	s.ReportInches = s.Units == units.Imperial

	if r.Status.ActiveState != nil {
		if st, ok := parseActiveState(*r.Status.ActiveState); ok {
			s.ActiveState = st
		}
	}

	sys := reportSystem(s.ReportInches)
	s.MPos = r.Status.MPos.merge(prev.MPos, sys)
	s.WPos = r.Status.WPos.merge(prev.WPos, sys)
	return s
}
