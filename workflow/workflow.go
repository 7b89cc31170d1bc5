// Package workflow tracks the job-level state of the sender: whether a
// program is running, paused (and why) or idle.
//
// State values are never modified in place; every operation returns the
// next State along with the commands to issue, so a single owner can apply
// them in arrival order.
package workflow

import (
	"errors"
	"fmt"

	"github.com/mastercactapus/gsend/transport"
)

var (
	// ErrInvalidTransition is returned when an operation is not valid in
	// the current phase.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrNotConnected is returned for any operation while disconnected.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidLinePending is returned when a job would run before the
	// operator resolved a rejected line.
	ErrInvalidLinePending = errors.New("invalid line must be resolved first")
)

// Phase is the job execution phase.
type Phase int

const (
	Disconnected Phase = iota
	Idle
	Running
	Paused
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	}
	return "Disconnected"
}

// MarshalText allows Phase to be used directly in JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// State is the workflow state. Hold and HoldDetail are only set while
// Paused.
type State struct {
	Phase      Phase
	Hold       HoldReason
	HoldDetail string

	// InvalidLine is the last line rejected by the firmware, waiting for
	// the operator to continue, ignore or cancel.
	InvalidLine string

	// Progress is the last job progress report, as received.
	Progress transport.Progress

	Port                 string
	SuppressLineWarnings bool
}

// New returns a disconnected State.
func New(suppressLineWarnings bool) State {
	return State{SuppressLineWarnings: suppressLineWarnings}
}

// CanJog reports whether manual motion is allowed.
func (s State) CanJog() bool { return s.Phase == Idle }

func (s State) transitionErr(op string) error {
	if s.Phase == Disconnected {
		return fmt.Errorf("%s: %w", op, ErrNotConnected)
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, s.Phase)
}

func (s State) running() State {
	s.Phase = Running
	s.Hold = HoldNone
	s.HoldDetail = ""
	return s
}

func (s State) idle() State {
	s.Phase = Idle
	s.Hold = HoldNone
	s.HoldDetail = ""
	s.InvalidLine = ""
	return s
}

// Start begins the loaded program from Idle, or continues it when Paused.
func (s State) Start() (State, transport.Command, error) {
	switch s.Phase {
	case Idle:
		if s.InvalidLine != "" {
			return s, transport.Command{}, ErrInvalidLinePending
		}
		return s.running(), transport.Command{Name: transport.CmdStart}, nil
	case Paused:
		return s.Resume()
	}
	return s, transport.Command{}, s.transitionErr("start")
}

// Pause holds a running job.
func (s State) Pause() (State, transport.Command, error) {
	if s.Phase != Running {
		return s, transport.Command{}, s.transitionErr("pause")
	}
	s.Phase = Paused
	s.Hold = HoldNone
	s.HoldDetail = ""
	return s, transport.Command{Name: transport.CmdPause}, nil
}

// Resume continues a paused job.
func (s State) Resume() (State, transport.Command, error) {
	if s.Phase != Paused {
		return s, transport.Command{}, s.transitionErr("resume")
	}
	if s.InvalidLine != "" {
		return s, transport.Command{}, ErrInvalidLinePending
	}
	return s.running(), transport.Command{Name: transport.CmdResume}, nil
}

// Stop ends the job from any connected phase.
func (s State) Stop(force bool) (State, transport.Command, error) {
	if s.Phase == Disconnected {
		return s, transport.Command{}, s.transitionErr("stop")
	}
	return s.idle(), transport.Command{Name: transport.CmdStop, Force: force}, nil
}

func (s State) run() (State, transport.Command, error) {
	if s.Phase == Paused {
		return s.Resume()
	}
	return s.Start()
}

// ContinueInvalidLine acknowledges the rejected line and runs the job.
func (s State) ContinueInvalidLine() (State, []transport.Command, error) {
	if s.InvalidLine == "" {
		return s, nil, s.transitionErr("continue invalid line")
	}
	s.InvalidLine = ""
	s, cmd, err := s.run()
	if err != nil {
		return s, nil, err
	}
	return s, []transport.Command{cmd}, nil
}

// IgnoreLineWarnings acknowledges the rejected line, turns off further
// line warnings and runs the job.
func (s State) IgnoreLineWarnings() (State, []transport.Command, error) {
	if s.InvalidLine == "" {
		return s, nil, s.transitionErr("ignore line warnings")
	}
	s.InvalidLine = ""
	s.SuppressLineWarnings = true
	s, cmd, err := s.run()
	if err != nil {
		return s, nil, err
	}

	return s, []transport.Command{
		{Name: transport.CmdSettingsUpdated, Settings: map[string]interface{}{"showLineWarnings": false}},
		cmd,
	}, nil
}

// CancelInvalidLine discards the rejected line and stops the job.
func (s State) CancelInvalidLine() (State, transport.Command, error) {
	if s.InvalidLine == "" {
		return s, transport.Command{}, s.transitionErr("cancel invalid line")
	}
	return s.Stop(true)
}

// Handle applies a transport event. A Notification is returned for each
// transition into a hold with a reason.
func (s State) Handle(ev transport.Event) (State, *Notification) {
	switch e := ev.(type) {
	case transport.Opened:
		if s.Phase == Disconnected {
			s = New(s.SuppressLineWarnings)
			s.Phase = Idle
		}
		s.Port = e.Port
	case transport.Closed:
		s = New(s.SuppressLineWarnings)
	case transport.Progress:
		if s.Phase == Disconnected {
			return s, nil
		}
		return s.progress(e)
	case transport.StateChanged:
		if s.Phase == Disconnected {
			return s, nil
		}
		s = s.stateChanged(e)
	}

	return s, nil
}

func (s State) progress(p transport.Progress) (State, *Notification) {
	s.Progress = p

	if p.Hold {
		reason := ReasonFor(p.HoldReason)
		detail := p.HoldReason.Err
		if detail == "" {
			detail = p.HoldReason.Data
		}
		if s.Phase == Paused && s.Hold == reason {
			return s, nil
		}
		s.Phase = Paused
		s.Hold = reason
		s.HoldDetail = detail
		if reason == HoldNone {
			return s, nil
		}
		return s, &Notification{Reason: reason, Detail: detail}
	}

	if s.Phase == Running && p.FinishTime > 0 {
		s = s.idle()
	}

	return s, nil
}

func (s State) stateChanged(e transport.StateChanged) State {
	switch e.Phase {
	case transport.PhaseIdle:
		s = s.idle()
	case transport.PhaseRunning:
		s = s.running()
	case transport.PhasePaused:
		if s.Phase != Paused {
			s.Phase = Paused
			s.Hold = HoldNone
			s.HoldDetail = ""
		}
		if e.Line != "" && !s.SuppressLineWarnings {
			s.InvalidLine = e.Line
		}
	}
	return s
}
