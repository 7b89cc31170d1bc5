package grbl

import (
	"context"
	"testing"
	"time"

	"github.com/mastercactapus/gsend/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines    []string
	realtime []byte
}

func (r *recorder) Write(p []byte) (int, error) {
	r.lines = append(r.lines, string(p))
	return len(p), nil
}

func (r *recorder) WriteByte(b byte) error {
	r.realtime = append(r.realtime, b)
	return nil
}

type nopSink struct{}

func (nopSink) Stream(ctx context.Context, lines []string, ack func(error)) (int, error) {
	for range lines {
		ack(nil)
	}
	return len(lines), nil
}

func TestSendCommand(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := transport.NewStreamer(nopSink{}, func(transport.Event) {})

	require.NoError(t, sendCommand(ctx, s, rec, transport.GCode("G91", "G1 F500 X1", "G90")))
	assert.Equal(t, []string{"G91\nG1 F500 X1\nG90\n"}, rec.lines)

	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdLoad, Program: "a.nc", Lines: []string{"M0", "G0 X1"}}))
	assert.Equal(t, 2, s.Progress().Total)

	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdPause}))
	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdStop}))
	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdStop, Force: true}))
	assert.Equal(t, []byte{'!', 0x18}, rec.realtime)

	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdSettingsUpdated}))
	assert.ErrorIs(t, sendCommand(ctx, s, rec, transport.Command{Name: "bogus"}), transport.ErrUnsupported)

	require.NoError(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdUnload}))
	assert.ErrorIs(t, sendCommand(ctx, s, rec, transport.Command{Name: transport.CmdStart}), transport.ErrNoProgram)
}

type rejectSink struct{ bad string }

func (r rejectSink) Stream(ctx context.Context, lines []string, ack func(error)) (int, error) {
	for _, l := range lines {
		if l == r.bad {
			ack(ResponseError("error:20"))
			continue
		}
		ack(nil)
	}
	return len(lines), nil
}

func TestSendCommand_LineWarnings(t *testing.T) {
	ctx := context.Background()
	events := make(chan transport.Event, 100)
	s := transport.NewStreamer(rejectSink{bad: "G5 X1"}, func(e transport.Event) { events <- e })

	settings := transport.Command{
		Name:     transport.CmdSettingsUpdated,
		Settings: map[string]interface{}{"showLineWarnings": false},
	}
	require.NoError(t, sendCommand(ctx, s, &recorder{}, settings))
	require.NoError(t, sendCommand(ctx, s, &recorder{}, transport.Command{Name: transport.CmdLoad, Program: "a.nc", Lines: []string{"G0 X1", "G5 X1", "G0 X2"}}))
	require.NoError(t, sendCommand(ctx, s, &recorder{}, transport.Command{Name: transport.CmdStart}))

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			sc, ok := e.(transport.StateChanged)
			if !ok {
				continue
			}
			assert.Equal(t, transport.StateChanged{Phase: transport.PhaseIdle}, sc)
			assert.False(t, s.Progress().Hold)
			return
		case <-timeout:
			t.Fatal("job did not finish")
		}
	}
}
