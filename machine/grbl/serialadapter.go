package grbl

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gsend/logging"
	"github.com/mastercactapus/gsend/transport"
	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// Realtime commands.
const (
	cmdStatus     = '?'
	cmdFeedHold   = '!'
	cmdCycleStart = '~'
	cmdReset      = 0x18
)

// PollInterval is how often status is requested.
const PollInterval = 250 * time.Millisecond

// SerialAdapter drives a Grbl controller attached directly to a port.
type SerialAdapter struct {
	conn     *Conn
	port     string
	streamer *transport.Streamer
	log      *logrus.Entry

	events chan transport.Event

	closeOnce sync.Once
	closeCh   chan struct{}
}

var _ transport.Transport = &SerialAdapter{}

// OpenSerial opens a port and returns an adapter for it.
func OpenSerial(name string, baud int) (*SerialAdapter, error) {
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialAdapter(p, name), nil
}

// NewSerialAdapter uses rw to talk to a Grbl controller.
func NewSerialAdapter(rw io.ReadWriter, port string) *SerialAdapter {
	adapter := &SerialAdapter{
		conn:    NewConn(rw),
		port:    port,
		log:     logging.NewLogger("grbl").WithField("port", port),
		events:  make(chan transport.Event, 100),
		closeCh: make(chan struct{}),
	}
	adapter.streamer = transport.NewStreamer(adapter.conn, adapter.emit)

	adapter.emit(transport.Opened{Port: port})
	go adapter.pollLoop()
	go adapter.readLoop()
	go adapter.queryState()

	return adapter
}

func (adapter *SerialAdapter) emit(e transport.Event) {
	select {
	case adapter.events <- e:
	case <-adapter.closeCh:
	}
}

// queryState requests settings and parser state.
func (adapter *SerialAdapter) queryState() {
	_, err := adapter.conn.Write([]byte("$$\n$G\n"))
	if err != nil {
		adapter.log.WithError(err).Warn("query settings")
	}
}

func (adapter *SerialAdapter) pollLoop() {
	t := time.NewTicker(PollInterval)
	defer t.Stop()
	for {
		select {
		case <-adapter.closeCh:
			return
		case <-t.C:
			if err := adapter.conn.WriteByte(cmdStatus); err != nil {
				adapter.log.WithError(err).Debug("poll status")
			}
		}
	}
}

func (adapter *SerialAdapter) readLoop() {
	var p Parser
	buf := make([]byte, 1024)
	for {
		n, err := adapter.conn.Read(buf)
		if errors.Is(err, io.ErrShortBuffer) {
			buf = make([]byte, len(buf)*2)
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				adapter.log.WithError(err).Error("read from port")
			}
			adapter.Close()
			return
		}
		line := strings.TrimSpace(string(buf[:n]))
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Grbl") {
			adapter.log.WithField("banner", line).Info("controller reset")
			go adapter.queryState()
			continue
		}

		r, err := p.Line(line)
		if err != nil {
			adapter.log.WithError(err).Warn("parse response")
			continue
		}
		if r != nil {
			adapter.emit(transport.Status{Report: r})
		}
	}
}

func (adapter *SerialAdapter) open() bool {
	select {
	case <-adapter.closeCh:
		return false
	default:
		return true
	}
}

// Events delivers the adapter events.
func (adapter *SerialAdapter) Events() <-chan transport.Event { return adapter.events }

// Send performs a command.
func (adapter *SerialAdapter) Send(ctx context.Context, cmd transport.Command) error {
	if !adapter.open() {
		return io.ErrClosedPipe
	}
	return sendCommand(ctx, adapter.streamer, adapter.conn, cmd)
}

// Close closes the port.
func (adapter *SerialAdapter) Close() error {
	var err error
	adapter.closeOnce.Do(func() {
		close(adapter.closeCh)
		adapter.streamer.Stop()
		err = adapter.conn.Close()
		// Closed must not be lost even if nobody is reading right now.
		go func() { adapter.events <- transport.Closed{} }()
	})
	return err
}

// lineWriter is how ad-hoc lines and realtime commands reach a controller.
type lineWriter interface {
	Write(p []byte) (int, error)
	WriteByte(b byte) error
}

func sendCommand(ctx context.Context, s *transport.Streamer, w lineWriter, cmd transport.Command) error {
	switch cmd.Name {
	case transport.CmdGCode:
		if len(cmd.Lines) == 0 {
			return nil
		}
		_, err := w.Write([]byte(strings.Join(cmd.Lines, "\n") + "\n"))
		return err
	case transport.CmdLoad:
		return s.Load(cmd.Program, strings.Join(cmd.Lines, "\n"))
	case transport.CmdUnload:
		s.Unload()
		return nil
	case transport.CmdStart:
		return s.Start()
	case transport.CmdPause:
		s.Pause()
		return w.WriteByte(cmdFeedHold)
	case transport.CmdResume:
		if err := w.WriteByte(cmdCycleStart); err != nil {
			return err
		}
		return s.Resume()
	case transport.CmdStop:
		s.Stop()
		if cmd.Force {
			return w.WriteByte(cmdReset)
		}
		return nil
	case transport.CmdSettingsUpdated:
		if show, ok := cmd.Settings["showLineWarnings"].(bool); ok {
			s.SetShowLineWarnings(show)
		}
		return nil
	}

	return transport.ErrUnsupported
}
