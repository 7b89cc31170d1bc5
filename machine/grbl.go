package machine

// GrblReport is the Grbl controller state.
//
// Settings carries the controller settings ($13 selects inch reporting);
// they are usually sent separately from status and may be omitted.
type GrblReport struct {
	Status struct {
		ActiveState *string `json:"activeState,omitempty"`
		MPos        Axes    `json:"mpos,omitempty"`
		WPos        Axes    `json:"wpos,omitempty"`
		AlarmCode   Value   `json:"alarmCode,omitempty"`
	} `json:"status"`
	ParserState struct {
		Modal Modal `json:"modal"`
	} `json:"parserstate"`
	Settings map[string]Value `json:"settings,omitempty"`
}

func (r *GrblReport) Kind() FirmwareKind { return Grbl }

func (r *GrblReport) normalize(prev State) State {
	if r == nil {
		return prev
	}
	s := prev
	if v, ok := r.Settings["$13"]; ok {
		if n, ok := v.Int(); ok {
			s.ReportInches = n > 0
		}
	}
	s = r.ParserState.Modal.apply(s)

	if r.Status.ActiveState != nil {
		if st, ok := parseActiveState(*r.Status.ActiveState); ok {
			s.ActiveState = st
		}
	}
	if code, ok := r.Status.AlarmCode.Int(); ok {
		s.AlarmCode = code
	}

	sys := reportSystem(s.ReportInches)
	s.MPos = r.Status.MPos.merge(prev.MPos, sys)
	s.WPos = r.Status.WPos.merge(prev.WPos, sys)
	return s
}
