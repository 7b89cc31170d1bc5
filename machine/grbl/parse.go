package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/machine"
)

// parseCoords returns the point and the number of axes reported.
func parseCoords(data string) (p coord.Point, n int, err error) {
	parts := strings.Split(data, ",")
	if len(parts) < 3 || len(parts) > len(coord.Axes) {
		return p, 0, errors.New("invalid number of elements")
	}
	for i, s := range parts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return p, 0, err
		}
		p = p.SetAxis(coord.Axes[i], v)
	}
	return p, len(parts), nil
}

// axesOf returns the first n axes of p.
func axesOf(p coord.Point, n int) machine.Axes {
	vals := make([]float64, n)
	for i := range vals {
		vals[i], _ = p.Axis(coord.Axes[i])
	}
	return machine.AxesOf(vals...)
}

// A Parser turns Grbl text responses into reports. It remembers the last
// work coordinate offset, since Grbl only sends it every few reports.
type Parser struct {
	wco      coord.Point
	knownWCO bool
}

// ParseStatus parses a single realtime status line with no prior state.
func ParseStatus(line string) (*machine.GrblReport, error) {
	var p Parser
	return p.Status(line)
}

// Status parses a realtime status line, e.g.
// `<Idle|MPos:1.000,2.000,3.000|FS:0,0|WCO:0.000,0.000,0.000>`.
func (p *Parser) Status(data string) (*machine.GrblReport, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return nil, errors.New("invalid status report: " + data)
	}
	data = strings.TrimPrefix(data, "<")
	data = strings.TrimSuffix(data, ">")
	parts := strings.Split(data, "|")

	var (
		r          machine.GrblReport
		mpos, wpos *coord.Point
		axes       int
	)
	state := parts[0]
	r.Status.ActiveState = &state

	for _, s := range parts[1:] {
		sParts := strings.SplitN(s, ":", 2)
		if len(sParts) != 2 {
			continue
		}
		switch sParts[0] {
		case "MPos", "WPos", "WCO":
			pt, n, err := parseCoords(sParts[1])
			if err != nil {
				return nil, err
			}
			switch sParts[0] {
			case "MPos":
				mpos = &pt
				axes = n
			case "WPos":
				wpos = &pt
				axes = n
			case "WCO":
				p.wco = pt
				p.knownWCO = true
			}
		}
	}

	switch {
	case mpos != nil && wpos == nil && p.knownWCO:
		w := mpos.Sub(p.wco)
		wpos = &w
	case wpos != nil && mpos == nil && p.knownWCO:
		m := wpos.Add(p.wco)
		mpos = &m
	}
	if mpos != nil {
		r.Status.MPos = axesOf(*mpos, axes)
	}
	if wpos != nil {
		r.Status.WPos = axesOf(*wpos, axes)
	}

	return &r, nil
}

// ParseAlarm parses an `ALARM:<code>` message.
func ParseAlarm(data string) (*machine.GrblReport, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "ALARM:") {
		return nil, errors.New("invalid alarm: " + data)
	}
	code, err := strconv.Atoi(strings.TrimPrefix(data, "ALARM:"))
	if err != nil {
		return nil, err
	}

	var r machine.GrblReport
	state := string(machine.StateAlarm)
	r.Status.ActiveState = &state
	r.Status.AlarmCode = machine.NumberValue(float64(code))
	return &r, nil
}

// ParseSetting parses a `$<n>=<value>` settings line.
func ParseSetting(data string) (*machine.GrblReport, error) {
	data = strings.TrimSpace(data)
	parts := strings.SplitN(data, "=", 2)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "$") {
		return nil, errors.New("invalid setting: " + data)
	}
	if _, err := strconv.ParseFloat(parts[1], 64); err != nil {
		return nil, err
	}

	var r machine.GrblReport
	r.Settings = map[string]machine.Value{parts[0]: machine.Value(parts[1])}
	return &r, nil
}

// ParseParserState parses a `[GC:G0 G54 G17 G21 G90 ...]` message.
func ParseParserState(data string) (*machine.GrblReport, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "[GC:") || !strings.HasSuffix(data, "]") {
		return nil, errors.New("invalid parser state: " + data)
	}
	data = strings.TrimSuffix(strings.TrimPrefix(data, "[GC:"), "]")

	var r machine.GrblReport
	for _, code := range strings.Fields(data) {
		code := code
		switch code {
		case "G20", "G21":
			r.ParserState.Modal.Units = &code
		case "G54", "G55", "G56", "G57", "G58", "G59":
			r.ParserState.Modal.WCS = &code
		}
	}
	return &r, nil
}

// Line parses any state-bearing response. It returns nil and no error for
// lines that carry no state, such as "ok".
func (p *Parser) Line(data string) (*machine.GrblReport, error) {
	data = strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(data, "<"):
		return p.Status(data)
	case strings.HasPrefix(data, "ALARM:"):
		return ParseAlarm(data)
	case strings.HasPrefix(data, "[GC:"):
		return ParseParserState(data)
	case strings.HasPrefix(data, "$") && strings.Contains(data, "="):
		return ParseSetting(data)
	}
	return nil, nil
}
