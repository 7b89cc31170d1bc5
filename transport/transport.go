// Package transport defines the events and commands exchanged with the
// controller link. The link itself (serial port, serial-port-json-server,
// a remote sender) is supplied by an adapter.
package transport

import (
	"context"
	"errors"

	"github.com/mastercactapus/gsend/machine"
)

// ErrUnsupported is returned by adapters for commands they cannot perform.
var ErrUnsupported = errors.New("not supported by transport")

// Command names.
const (
	CmdGCode           = "gcode"
	CmdLoad            = "gcode:load"
	CmdUnload          = "gcode:unload"
	CmdStart           = "gcode:start"
	CmdPause           = "gcode:pause"
	CmdResume          = "gcode:resume"
	CmdStop            = "gcode:stop"
	CmdSettingsUpdated = "settings:updated"
)

// A Command is issued to the transport.
type Command struct {
	Name string

	// Lines holds raw G-code for CmdGCode and the program for CmdLoad.
	Lines []string
	// Program is the name of a loaded program.
	Program string

	// Force applies to CmdStop.
	Force bool

	// Settings applies to CmdSettingsUpdated.
	Settings map[string]interface{}
}

// GCode builds a CmdGCode command.
func GCode(lines ...string) Command {
	return Command{Name: CmdGCode, Lines: lines}
}

// An Event is anything the transport reports. It is one of Opened,
// Closed, Status, Progress or StateChanged.
type Event interface {
	event()
}

// Opened is sent when the port is open.
type Opened struct{ Port string }

// Closed is sent when the port closes.
type Closed struct{}

// Status carries a firmware status report.
type Status struct{ Report machine.Report }

// HoldReason is the cause the sender gives for holding a job.
type HoldReason struct {
	// Err is set when the firmware rejected a line.
	Err string
	// Data is the held M-code, e.g. "M6".
	Data string
}

// Progress is a job progress report. Times are milliseconds.
type Progress struct {
	Name string
	Size int64

	Total, Sent, Received int

	Hold       bool
	HoldReason HoldReason

	StartTime, FinishTime      int64
	ElapsedTime, RemainingTime int64
}

// Workflow phase names used by StateChanged.
const (
	PhaseIdle    = "idle"
	PhaseRunning = "running"
	PhasePaused  = "paused"
)

// StateChanged is the sender's own workflow state; Line is set when the
// change was caused by the firmware rejecting that line.
type StateChanged struct {
	Phase string
	Line  string
}

func (Opened) event()       {}
func (Closed) event()       {}
func (Status) event()       {}
func (Progress) event()     {}
func (StateChanged) event() {}

// A Transport is a controller link.
type Transport interface {
	Events() <-chan Event
	Send(ctx context.Context, cmd Command) error
	Close() error
}
