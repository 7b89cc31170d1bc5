// Package session runs the sender: one goroutine owns the machine,
// workflow and jog state, applies transport events, operator requests and
// analysis results in arrival order, and publishes snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gsend/analysis"
	"github.com/mastercactapus/gsend/logging"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/shuttle"
	"github.com/mastercactapus/gsend/transport"
	"github.com/mastercactapus/gsend/workflow"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by requests made after Close.
	ErrClosed = errors.New("session closed")
	// ErrJogDisabled is returned for manual motion outside of Idle.
	ErrJogDisabled = errors.New("manual motion is only allowed while idle")
	// ErrInvalidAxis is returned for axis letters other than XYZABC.
	ErrInvalidAxis = errors.New("invalid axis")
)

// Config holds the session settings.
type Config struct {
	Analysis analysis.Config
	Shuttle  shuttle.Config

	// JogSteps replaces the default keypad step distances.
	JogSteps JogSteps

	ShowLineWarnings bool
}

// Snapshot is the published sender state. It is a value; each change
// produces a new one.
type Snapshot struct {
	Machine  machine.State
	Workflow workflow.State

	// Analysis is nil while the loaded program is being analyzed.
	Analysis   *analysis.Analysis
	Generation uint64

	// JogAxis is the axis the jog wheel moves, or empty.
	JogAxis string
	// JogStep is the selected keypad step index for each unit system and
	// JogDistance the distance it selects in the active units.
	JogStep     JogStep
	JogDistance float64
}

type request struct {
	fn    func() error
	reply chan error
}

// Session drives a Transport.
type Session struct {
	t      transport.Transport
	cfg    Config
	runner *analysis.Runner
	log    *logrus.Entry

	inbox    chan request
	cmds     chan transport.Command
	rejected chan transport.Command

	// owned by loop
	snap    Snapshot
	shuttle shuttle.State
	loaded  bool

	mu    sync.Mutex
	last  Snapshot
	subs  map[chan Snapshot]struct{}
	notes map[chan workflow.Notification]struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}
}

// New starts a session on t.
func New(t transport.Transport, cfg Config) *Session {
	s := &Session{
		t:      t,
		cfg:    cfg,
		runner: analysis.NewRunner(),
		log:    logging.NewLogger("session"),

		inbox:    make(chan request, 64),
		cmds:     make(chan transport.Command, 256),
		rejected: make(chan transport.Command, 16),

		snap: Snapshot{
			Machine:  machine.Disconnected(),
			Workflow: workflow.New(!cfg.ShowLineWarnings),
			Analysis: analysis.Empty(),
			JogStep:  cfg.jogSteps().defaultStep(),
		},

		subs:  make(map[chan Snapshot]struct{}),
		notes: make(map[chan workflow.Notification]struct{}),

		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.snap.JogDistance = s.jogDistance()
	s.last = s.snap

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.closeCh
		cancel()
	}()
	go s.dispatch(ctx)
	go s.loop()

	return s
}

// Close stops the session. The transport is not closed.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	<-s.done
	s.runner.Close()
	return nil
}

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Subscribe returns a channel that receives the current snapshot and every
// later one. A slow reader only sees the most recent snapshot.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	ch <- s.last
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

// Notifications returns a channel of operator notifications.
func (s *Session) Notifications() (<-chan workflow.Notification, func()) {
	ch := make(chan workflow.Notification, 16)
	s.mu.Lock()
	s.notes[ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.notes, ch)
		s.mu.Unlock()
	}
}

func (s *Session) publish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.JogDistance = s.jogDistance()
	s.last = s.snap
	for ch := range s.subs {
		select {
		case ch <- s.snap:
			continue
		default:
		}
		// replace the stale snapshot
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.snap:
		default:
		}
	}
}

func (s *Session) notify(n workflow.Notification) {
	s.log.WithField("reason", n.Reason).Info(n.Detail)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.notes {
		select {
		case ch <- n:
		default:
			s.log.Warn("notification dropped")
		}
	}
}

// send queues cmds for the transport in order.
func (s *Session) send(cmds ...transport.Command) {
	for _, cmd := range cmds {
		select {
		case s.cmds <- cmd:
		default:
			s.log.WithField("command", cmd.Name).Error("command queue full, dropped")
		}
	}
}

func (s *Session) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			err := s.t.Send(ctx, cmd)
			if err == nil || ctx.Err() != nil {
				continue
			}
			s.log.WithError(err).WithField("command", cmd.Name).Warn("send")
			switch cmd.Name {
			case transport.CmdStart, transport.CmdResume, transport.CmdPause:
			default:
				continue
			}
			select {
			case s.rejected <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}
}

// do runs fn on the loop and returns its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.inbox <- req:
	case <-s.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-s.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop() {
	defer close(s.done)

	hz := s.cfg.Shuttle.Hertz
	if hz <= 0 {
		hz = shuttle.DefaultConfig().Hertz
	}
	tick := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer tick.Stop()

	events := s.t.Events()
	for {
		select {
		case <-s.closeCh:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				s.handle(transport.Closed{})
				continue
			}
			s.handle(ev)
		case res := <-s.runner.Results():
			if !s.runner.Accept(res) {
				continue
			}
			s.snap.Analysis = res.Analysis
			s.snap.Generation = res.Generation
			s.publish()
		case cmd := <-s.rejected:
			s.reject(cmd)
		case req := <-s.inbox:
			err := req.fn()
			s.publish()
			req.reply <- err
		case <-tick.C:
			if !s.shuttle.Active() {
				continue
			}
			var f *shuttle.Flush
			s.shuttle, f = shuttle.Step(s.shuttle, shuttle.Tick{}, s.cfg.Shuttle)
			s.flush(f)
		}
	}
}

func (s *Session) handle(ev transport.Event) {
	if _, ok := ev.(transport.Opened); ok {
		s.send(transport.Command{
			Name:     transport.CmdSettingsUpdated,
			Settings: map[string]interface{}{"showLineWarnings": !s.snap.Workflow.SuppressLineWarnings},
		})
	}
	if st, ok := ev.(transport.Status); ok {
		s.snap.Machine = machine.Normalize(s.snap.Machine, st.Report)
		s.checkAlarm()
	}
	if _, ok := ev.(transport.Closed); ok {
		s.snap.Machine = machine.Disconnected()
	}

	var n *workflow.Notification
	s.snap.Workflow, n = s.snap.Workflow.Handle(ev)
	if n != nil {
		s.notify(*n)
	}

	if !s.snap.Workflow.CanJog() {
		s.snap.JogAxis = ""
		s.shuttle = shuttle.State{}
	}

	s.publish()
}

// reject puts the workflow back where the transport left it after it
// refused cmd.
func (s *Session) reject(cmd transport.Command) {
	wf := s.snap.Workflow
	var ev transport.StateChanged
	switch {
	case cmd.Name == transport.CmdStart && wf.Phase == workflow.Running:
		ev.Phase = transport.PhaseIdle
	case cmd.Name == transport.CmdResume && wf.Phase == workflow.Running:
		ev.Phase = transport.PhasePaused
	case cmd.Name == transport.CmdPause && wf.Phase == workflow.Paused && wf.Hold == workflow.HoldNone:
		ev.Phase = transport.PhaseRunning
	default:
		return
	}
	s.log.WithField("command", cmd.Name).WithField("phase", ev.Phase).Warn("command rejected, restoring phase")
	s.handle(ev)
}

// checkAlarm stops a running job when the controller reports a hard
// limit alarm.
func (s *Session) checkAlarm() {
	m := s.snap.Machine
	if m.ActiveState != machine.StateAlarm || m.AlarmCode != 1 || s.snap.Workflow.Phase != workflow.Running {
		return
	}
	s.log.WithField("alarm", m.AlarmCode).Error("alarm while running, stopping job")

	wf, cmd, err := s.snap.Workflow.Stop(true)
	if err != nil {
		s.log.WithError(err).Error("stop")
		return
	}
	s.snap.Workflow = wf
	s.send(cmd)
}

func (s *Session) flush(f *shuttle.Flush) {
	if f == nil {
		return
	}
	s.send(transport.GCode(f.Lines()...))
}

// Load replaces the program and starts analyzing it.
func (s *Session) Load(ctx context.Context, name, text string) error {
	return s.do(ctx, func() error {
		switch s.snap.Workflow.Phase {
		case workflow.Running, workflow.Paused:
			return transport.ErrBusy
		}
		s.snap.Generation = s.runner.Submit(name, text, s.cfg.Analysis)
		s.snap.Analysis = nil
		s.loaded = true
		s.send(transport.Command{
			Name:    transport.CmdLoad,
			Program: name,
			Lines:   strings.Split(text, "\n"),
		})
		return nil
	})
}

// Unload removes the program.
func (s *Session) Unload(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch s.snap.Workflow.Phase {
		case workflow.Running, workflow.Paused:
			return transport.ErrBusy
		}
		s.snap.Generation = s.runner.Invalidate()
		s.snap.Analysis = analysis.Empty()
		s.loaded = false
		s.send(transport.Command{Name: transport.CmdUnload})
		return nil
	})
}

func (s *Session) transition(ctx context.Context, fn func(workflow.State) (workflow.State, transport.Command, error)) error {
	return s.do(ctx, func() error {
		wf, cmd, err := fn(s.snap.Workflow)
		if err != nil {
			return err
		}
		s.snap.Workflow = wf
		if !wf.CanJog() {
			s.snap.JogAxis = ""
			s.shuttle = shuttle.State{}
		}
		s.send(cmd)
		return nil
	})
}

// Start runs the loaded program, or resumes it when paused.
func (s *Session) Start(ctx context.Context) error {
	return s.transition(ctx, func(wf workflow.State) (workflow.State, transport.Command, error) {
		if wf.Phase == workflow.Idle && !s.loaded {
			return wf, transport.Command{}, transport.ErrNoProgram
		}
		return wf.Start()
	})
}

func (s *Session) Pause(ctx context.Context) error {
	return s.transition(ctx, workflow.State.Pause)
}

func (s *Session) Resume(ctx context.Context) error {
	return s.transition(ctx, workflow.State.Resume)
}

// Stop ends the job. A forced stop also resets the controller.
func (s *Session) Stop(ctx context.Context, force bool) error {
	return s.transition(ctx, func(wf workflow.State) (workflow.State, transport.Command, error) {
		return wf.Stop(force)
	})
}

func (s *Session) resolve(ctx context.Context, fn func(workflow.State) (workflow.State, []transport.Command, error)) error {
	return s.do(ctx, func() error {
		wf, cmds, err := fn(s.snap.Workflow)
		if err != nil {
			return err
		}
		s.snap.Workflow = wf
		s.send(cmds...)
		return nil
	})
}

// ContinueInvalidLine resumes after a rejected line.
func (s *Session) ContinueInvalidLine(ctx context.Context) error {
	return s.resolve(ctx, workflow.State.ContinueInvalidLine)
}

// IgnoreLineWarnings resumes after a rejected line and stops reporting
// further ones.
func (s *Session) IgnoreLineWarnings(ctx context.Context) error {
	return s.resolve(ctx, workflow.State.IgnoreLineWarnings)
}

// CancelInvalidLine stops the job after a rejected line.
func (s *Session) CancelInvalidLine(ctx context.Context) error {
	return s.transition(ctx, workflow.State.CancelInvalidLine)
}

// GCode sends manual (MDI) lines.
func (s *Session) GCode(ctx context.Context, lines ...string) error {
	return s.manual(ctx, func() error {
		s.send(transport.GCode(lines...))
		return nil
	})
}

func (s *Session) manual(ctx context.Context, fn func() error) error {
	return s.do(ctx, func() error {
		if !s.snap.Workflow.CanJog() {
			return ErrJogDisabled
		}
		return fn()
	})
}

func parseAxes(axes string) (string, error) {
	axes = strings.ToUpper(axes)
	if axes == "" {
		return "", ErrInvalidAxis
	}
	for _, a := range axes {
		if !strings.ContainsRune("XYZABC", a) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAxis, a)
		}
	}
	return axes, nil
}

// SelectJogAxis sets the axis moved by the jog wheel. An empty axis
// deselects.
func (s *Session) SelectJogAxis(ctx context.Context, axis string) error {
	return s.manual(ctx, func() error {
		if axis != "" {
			a, err := parseAxes(axis)
			if err != nil {
				return err
			}
			if len(a) != 1 {
				return fmt.Errorf("%w: %q", ErrInvalidAxis, axis)
			}
			axis = a
		}
		if axis != s.snap.JogAxis && s.shuttle.Active() {
			var f *shuttle.Flush
			s.shuttle, f = shuttle.Step(s.shuttle, shuttle.Sample{Zone: 0}, s.cfg.Shuttle)
			s.flush(f)
		}
		s.snap.JogAxis = axis
		return nil
	})
}

// Shuttle feeds a jog wheel zone sample for the selected axis.
func (s *Session) Shuttle(ctx context.Context, zone int) error {
	return s.manual(ctx, func() error {
		var axis byte
		if s.snap.JogAxis != "" {
			axis = s.snap.JogAxis[0]
		}
		var f *shuttle.Flush
		s.shuttle, f = shuttle.Step(s.shuttle, shuttle.Sample{Zone: zone, Axis: axis}, s.cfg.Shuttle)
		s.flush(f)
		return nil
	})
}

// ZeroAxes sets the current work position of axes to zero in the active
// coordinate system.
func (s *Session) ZeroAxes(ctx context.Context, axes string) error {
	return s.SetWorkOffset(ctx, axes, 0)
}

// SetWorkOffset sets the current work position of axes to value, in the
// active units and coordinate system.
func (s *Session) SetWorkOffset(ctx context.Context, axes string, value float64) error {
	axes, err := parseAxes(axes)
	if err != nil {
		return err
	}
	v := formatDistance(value)
	return s.manual(ctx, func() error {
		var b strings.Builder
		fmt.Fprintf(&b, "G10 L20 P%d", s.snap.Machine.WCSIndex())
		for _, a := range axes {
			fmt.Fprintf(&b, " %c%s", a, v)
		}
		s.send(transport.GCode(b.String()))
		return nil
	})
}

// GoToZero moves axes to work zero.
func (s *Session) GoToZero(ctx context.Context, axes string) error {
	axes, err := parseAxes(axes)
	if err != nil {
		return err
	}
	return s.manual(ctx, func() error {
		var b strings.Builder
		b.WriteString("G0")
		for _, a := range axes {
			fmt.Fprintf(&b, " %c0", a)
		}
		s.send(transport.GCode("G90", b.String()))
		return nil
	})
}
