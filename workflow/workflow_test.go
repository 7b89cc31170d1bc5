package workflow

import (
	"testing"

	"github.com/mastercactapus/gsend/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected() State {
	s, _ := New(false).Handle(transport.Opened{Port: "/dev/ttyUSB0"})
	return s
}

func hold(data, err string) transport.Progress {
	return transport.Progress{Total: 10, Sent: 4, Received: 3, Hold: true, HoldReason: transport.HoldReason{Data: data, Err: err}}
}

func TestState_Cycle(t *testing.T) {
	s := connected()
	require.Equal(t, Idle, s.Phase)
	assert.Equal(t, "/dev/ttyUSB0", s.Port)
	assert.True(t, s.CanJog())

	s, cmd, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdStart, cmd.Name)
	assert.Equal(t, Running, s.Phase)
	assert.False(t, s.CanJog())

	s, cmd, err = s.Pause()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdPause, cmd.Name)
	assert.Equal(t, Paused, s.Phase)
	assert.Equal(t, HoldNone, s.Hold)

	s, cmd, err = s.Resume()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdResume, cmd.Name)
	assert.Equal(t, Running, s.Phase)

	// holds along the way do not prevent reaching Idle
	s, _ = s.Handle(hold("M6", ""))
	assert.Equal(t, Paused, s.Phase)

	s, cmd, err = s.Stop(true)
	require.NoError(t, err)
	assert.Equal(t, transport.Command{Name: transport.CmdStop, Force: true}, cmd)
	assert.Equal(t, Idle, s.Phase)
	assert.Equal(t, HoldNone, s.Hold)
}

func TestState_Guards(t *testing.T) {
	s := connected()

	_, _, err := s.Pause()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = s.Resume()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	running, _, err := s.Start()
	require.NoError(t, err)
	_, _, err = running.Start()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	paused, _, err := running.Pause()
	require.NoError(t, err)
	s, cmd, err := paused.Start()
	require.NoError(t, err)
	assert.Equal(t, transport.CmdResume, cmd.Name)
	assert.Equal(t, Running, s.Phase)

	off := New(false)
	for _, op := range []func() (State, transport.Command, error){off.Start, off.Pause, off.Resume} {
		_, _, err = op()
		assert.ErrorIs(t, err, ErrNotConnected)
	}
	_, _, err = off.Stop(false)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestState_HoldNotifications(t *testing.T) {
	cases := []struct {
		data, err string
		exp       HoldReason
	}{
		{"M6", "", HoldToolChange},
		{"M109", "", HoldSetExtruderTemp},
		{"M190", "", HoldSetBedTemp},
		{"M0", "", HoldM0ProgramPause},
		{"M1", "", HoldM1ProgramPause},
		{"M2", "", HoldM2ProgramEnd},
		{"M30", "", HoldM30ProgramEnd},
		{"M6", "error:20", HoldProgramError},
	}

	for _, c := range cases {
		t.Run(c.exp.String(), func(t *testing.T) {
			s, _, err := connected().Start()
			require.NoError(t, err)

			var notes []Notification
			for i := 0; i < 3; i++ {
				var n *Notification
				s, n = s.Handle(hold(c.data, c.err))
				if n != nil {
					notes = append(notes, *n)
				}
			}

			require.Len(t, notes, 1)
			assert.Equal(t, c.exp, notes[0].Reason)
			assert.Equal(t, Paused, s.Phase)
			assert.Equal(t, c.exp, s.Hold)
		})
	}
}

func TestState_ReasonlessHold(t *testing.T) {
	s, _, err := connected().Start()
	require.NoError(t, err)

	s, n := s.Handle(hold("", ""))
	assert.Nil(t, n)
	assert.Equal(t, Paused, s.Phase)
	assert.Equal(t, HoldNone, s.Hold)
}

func TestState_HoldAfterResumeNotifiesAgain(t *testing.T) {
	s, _, _ := connected().Start()
	s, n := s.Handle(hold("M6", ""))
	require.NotNil(t, n)

	s, _, err := s.Resume()
	require.NoError(t, err)
	s, n = s.Handle(hold("M6", ""))
	require.NotNil(t, n)
	assert.Equal(t, HoldToolChange, n.Reason)
}

func TestState_ProgressFinish(t *testing.T) {
	s, _, _ := connected().Start()

	s, _ = s.Handle(transport.Progress{Total: 10, Sent: 10, Received: 9, StartTime: 1000})
	assert.Equal(t, Running, s.Phase)
	assert.Equal(t, 9, s.Progress.Received)

	s, _ = s.Handle(transport.Progress{Total: 10, Sent: 10, Received: 10, StartTime: 1000, FinishTime: 5000, ElapsedTime: 4000})
	assert.Equal(t, Idle, s.Phase)
	assert.EqualValues(t, 4000, s.Progress.ElapsedTime)
}

func TestState_Disconnect(t *testing.T) {
	s, _, _ := connected().Start()
	s, _ = s.Handle(hold("M6", ""))

	s, _ = s.Handle(transport.Closed{})
	assert.Equal(t, New(false), s)

	s, n := s.Handle(hold("M6", ""))
	assert.Nil(t, n)
	assert.Equal(t, Disconnected, s.Phase)

	s, _ = s.Handle(transport.Opened{Port: "COM3"})
	assert.Equal(t, Idle, s.Phase)
	assert.Equal(t, HoldNone, s.Hold)
}

func pausedOnLine(t *testing.T, suppress bool) State {
	t.Helper()
	s, _ := New(suppress).Handle(transport.Opened{Port: "p"})
	s, _, err := s.Start()
	require.NoError(t, err)
	s, _ = s.Handle(transport.StateChanged{Phase: transport.PhasePaused, Line: "G38.9 X1"})
	require.Equal(t, Paused, s.Phase)
	return s
}

func TestState_InvalidLine(t *testing.T) {
	s := pausedOnLine(t, false)
	assert.Equal(t, "G38.9 X1", s.InvalidLine)

	_, _, err := s.Resume()
	assert.ErrorIs(t, err, ErrInvalidLinePending)
	_, _, err = s.Start()
	assert.ErrorIs(t, err, ErrInvalidLinePending)

	next, cmds, err := s.ContinueInvalidLine()
	require.NoError(t, err)
	assert.Equal(t, []transport.Command{{Name: transport.CmdResume}}, cmds)
	assert.Equal(t, Running, next.Phase)
	assert.Empty(t, next.InvalidLine)

	next, cmds, err = s.IgnoreLineWarnings()
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, transport.CmdSettingsUpdated, cmds[0].Name)
	assert.Equal(t, false, cmds[0].Settings["showLineWarnings"])
	assert.Equal(t, transport.CmdResume, cmds[1].Name)
	assert.True(t, next.SuppressLineWarnings)

	next, cmd, err := s.CancelInvalidLine()
	require.NoError(t, err)
	assert.Equal(t, transport.Command{Name: transport.CmdStop, Force: true}, cmd)
	assert.Equal(t, Idle, next.Phase)
	assert.Empty(t, next.InvalidLine)

	_, _, err = next.ContinueInvalidLine()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestState_InvalidLineSuppressed(t *testing.T) {
	s := pausedOnLine(t, true)
	assert.Empty(t, s.InvalidLine)

	_, _, err := s.Resume()
	assert.NoError(t, err)
}

func TestReasonFor(t *testing.T) {
	assert.Equal(t, HoldToolChange, ReasonFor(transport.HoldReason{Data: "M06"}))
	assert.Equal(t, HoldToolChange, ReasonFor(transport.HoldReason{Data: "m6 t2"}))
	assert.Equal(t, HoldNone, ReasonFor(transport.HoldReason{Data: "G4 P1"}))
	assert.Equal(t, HoldNone, ReasonFor(transport.HoldReason{Data: "%wait"}))
	assert.Equal(t, HoldProgramError, ReasonFor(transport.HoldReason{Data: "M0", Err: "error:9"}))
}
