package grbl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/gsend/logging"
	"github.com/mastercactapus/gsend/spjs"
	"github.com/mastercactapus/gsend/transport"
	"github.com/sirupsen/logrus"
)

// ErrQueueWiped is returned for lines the server discarded.
var ErrQueueWiped = errors.New("wiped queue")

// sendjson batch size
const batchSize = 100

var lastID int64

func nextID() string {
	id := atomic.AddInt64(&lastID, 1)
	return "cmd_" + strconv.FormatInt(id, 36)
}

// SPJSAdapter drives a Grbl controller through serial-port-json-server.
type SPJSAdapter struct {
	sp       *spjs.SPJS
	port     string
	baud     int
	streamer *transport.Streamer
	log      *logrus.Entry

	cmds   chan adapterMessage
	events chan transport.Event

	// owned by loop
	waiting map[string]chan error
	lastErr error
	isOpen  bool
	parser  Parser

	closeOnce sync.Once
	closeCh   chan struct{}
}

var (
	_ transport.Transport = &SPJSAdapter{}
	_ transport.Sink      = &SPJSAdapter{}
)

type adapterMessage struct {
	spjs.JSON
	// wait receives one result per line
	wait chan error
}

// NewSPJSAdapter opens port (if needed) through sp.
func NewSPJSAdapter(sp *spjs.SPJS, port string, baud int) *SPJSAdapter {
	adapter := &SPJSAdapter{
		sp:      sp,
		port:    port,
		baud:    baud,
		log:     logging.NewLogger("grbl").WithField("port", port).WithField("via", "spjs"),
		waiting: make(map[string]chan error, batchSize),
		cmds:    make(chan adapterMessage, 1000),
		events:  make(chan transport.Event, 100),
		closeCh: make(chan struct{}),
	}
	adapter.streamer = transport.NewStreamer(adapter, adapter.emit)
	go adapter.loop()

	return adapter
}

func (adapter *SPJSAdapter) emit(e transport.Event) {
	select {
	case adapter.events <- e:
	case <-adapter.closeCh:
	}
}

func (adapter *SPJSAdapter) setOpen(open bool) {
	if open == adapter.isOpen {
		return
	}
	adapter.isOpen = open
	if !open {
		adapter.wipe()
		adapter.emit(transport.Closed{})
		return
	}

	adapter.emit(transport.Opened{Port: adapter.port})
	go func() {
		_, err := adapter.Write([]byte("$$\n$G\n"))
		if err != nil {
			adapter.log.WithError(err).Warn("query settings")
		}
	}()
}

func (adapter *SPJSAdapter) wipe() {
	for key, ch := range adapter.waiting {
		ch <- ErrQueueWiped
		delete(adapter.waiting, key)
	}
	adapter.lastErr = nil
}

func (adapter *SPJSAdapter) data(frame string) {
	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "error:") {
			adapter.lastErr = ResponseError(line)
			continue
		}

		r, err := adapter.parser.Line(line)
		if err != nil {
			adapter.log.WithError(err).Warn("parse response")
			continue
		}
		if r != nil {
			adapter.emit(transport.Status{Report: r})
		}
	}
}

func (adapter *SPJSAdapter) loop() {
	t := time.NewTicker(PollInterval)
	defer t.Stop()

	for {
		select {
		case <-adapter.closeCh:
			adapter.wipe()
			return
		case <-t.C:
			if !adapter.isOpen {
				continue
			}
			err := adapter.sp.SendNoBuf(adapter.port, string(cmdStatus))
			if err != nil {
				adapter.log.WithError(err).Debug("poll status")
			}
		case resp := <-adapter.sp.Messages():
			switch msg := resp.(type) {
			case spjs.Disconnected:
				adapter.setOpen(false)
			case *spjs.ErrorMessage:
				adapter.log.WithField("error", msg.Error).Warn("server error")
			case *spjs.DataFrame:
				if msg.Port != adapter.port || msg.Data == "" {
					continue
				}
				adapter.data(msg.Data)
			case *spjs.CmdStatus:
				switch msg.Cmd {
				case "WipedQueue":
					adapter.wipe()
				case "Complete":
					if ch := adapter.waiting[msg.ID]; ch != nil {
						ch <- adapter.lastErr
						adapter.lastErr = nil
						delete(adapter.waiting, msg.ID)
					}
				case "Open":
					adapter.setOpen(true)
				case "Close":
					adapter.setOpen(false)
				}
			case *spjs.SerialPortList:
				for _, port := range msg.SerialPorts {
					if port.Name != adapter.port {
						continue
					}
					if !port.IsOpen {
						err := adapter.sp.WriteString("open " + adapter.port + " grbl " + strconv.Itoa(adapter.baud))
						if err != nil {
							adapter.log.WithError(err).Error("open port")
						}
					}
					adapter.setOpen(port.IsOpen)
				}
			}
		case msg := <-adapter.cmds:
			if err := adapter.sp.SendJSON(msg.JSON); err != nil {
				for range msg.Data {
					msg.wait <- err
				}
				continue
			}
			for _, d := range msg.Data {
				adapter.waiting[d.ID] = msg.wait
			}
		}
	}
}

// Stream queues lines in sendjson batches, waiting for each batch to
// complete before sending the next.
func (adapter *SPJSAdapter) Stream(ctx context.Context, lines []string, ack func(error)) (int, error) {
	var sent int
	for sent < len(lines) && ctx.Err() == nil {
		end := sent + batchSize
		if end > len(lines) {
			end = len(lines)
		}

		j := spjs.JSON{Port: adapter.port}
		for _, l := range lines[sent:end] {
			j.Data = append(j.Data, spjs.Data{
				Data: strings.TrimSpace(l) + "\n",
				ID:   nextID(),
			})
		}
		wait := make(chan error, len(j.Data))
		select {
		case adapter.cmds <- adapterMessage{JSON: j, wait: wait}:
		case <-adapter.closeCh:
			return sent, io.ErrClosedPipe
		}
		sent = end

		for range j.Data {
			select {
			case err := <-wait:
				var resp ResponseError
				if err != nil && !errors.As(err, &resp) {
					return sent, err
				}
				ack(err)
			case <-adapter.closeCh:
				return sent, io.ErrClosedPipe
			}
		}
	}

	return sent, nil
}

// Write sends lines and returns once all completed, with the first error
// response, if any.
func (adapter *SPJSAdapter) Write(p []byte) (int, error) {
	var lines []string
	for _, l := range strings.Split(string(bytes.TrimSpace(p)), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var first error
	_, err := adapter.Stream(context.Background(), lines, func(e error) {
		if first == nil {
			first = e
		}
	})
	if err == nil {
		err = first
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte sends a realtime command.
func (adapter *SPJSAdapter) WriteByte(b byte) error {
	return adapter.sp.SendNoBuf(adapter.port, string(b))
}

// Events delivers the adapter events.
func (adapter *SPJSAdapter) Events() <-chan transport.Event { return adapter.events }

// Send performs a command.
func (adapter *SPJSAdapter) Send(ctx context.Context, cmd transport.Command) error {
	select {
	case <-adapter.closeCh:
		return io.ErrClosedPipe
	default:
	}
	return sendCommand(ctx, adapter.streamer, adapter, cmd)
}

// Close stops the adapter. The server connection is left to its owner.
func (adapter *SPJSAdapter) Close() error {
	adapter.closeOnce.Do(func() {
		close(adapter.closeCh)
		adapter.streamer.Stop()
		go func() { adapter.events <- transport.Closed{} }()
	})
	return nil
}
