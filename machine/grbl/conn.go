package grbl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/mastercactapus/gsend/transport"
)

const bufferSize = 128

// ErrGrblReset will be returned from write methods if a reset is encountered
// before all commands are run.
var ErrGrblReset = errors.New("grbl reset")

// ResponseError is an `error:<code>` response to a line.
type ResponseError string

func (e ResponseError) Error() string { return string(e) }

var _ transport.Sink = &Conn{}

// Conn represents a direct connection to a Grbl controller.
type Conn struct {
	rw io.ReadWriter

	readBuf []byte
	scan    *bufio.Scanner
	ackCh   chan error
	resetCh chan struct{}

	closeOnce sync.Once
	closeCh   chan struct{}

	mx  sync.Mutex
	wMx sync.Mutex

	// inFlight holds the size of each unacknowledged line.
	inFlight []int
}

// NewConn creates a new Conn using the provided ReadWriter for data.
func NewConn(rw io.ReadWriter) *Conn {
	return &Conn{
		scan:    bufio.NewScanner(rw),
		rw:      rw,
		ackCh:   make(chan error, bufferSize),
		resetCh: make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Close will abort any in-progress writes and close the
// underlying ReadWriter, if it implements io.Closer.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// next waits for one acknowledgement and frees the buffer space of the
// oldest line in flight.
func (c *Conn) next() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		c.inFlight = nil
		return ErrGrblReset
	case e := <-c.ackCh:
		if len(c.inFlight) > 0 {
			c.inFlight = c.inFlight[1:]
		}
		return e
	}
}

func (c *Conn) buffered() (n int) {
	for _, size := range c.inFlight {
		n += size
	}
	return n
}

// Stream writes lines using the device buffer for flow control, so several
// lines are in flight at once. Error responses are passed to ack and do
// not stop the stream; a reset or closed connection does.
func (c *Conn) Stream(ctx context.Context, lines []string, ack func(error)) (int, error) {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	handle := func(err error) error {
		var resp ResponseError
		if err != nil && !errors.As(err, &resp) {
			return err
		}
		ack(err)
		return nil
	}
	nextAck := func() error { return handle(c.next()) }
	// drain reports acknowledgements that already arrived
	drain := func() error {
		for len(c.inFlight) > 0 {
			select {
			case e := <-c.ackCh:
				c.inFlight = c.inFlight[1:]
				if err := handle(e); err != nil {
					return err
				}
			default:
				return nil
			}
		}
		return nil
	}

	var sent int
	for _, l := range lines {
		if ctx.Err() != nil {
			break
		}
		line := []byte(strings.TrimSpace(l) + "\n")
		if err := drain(); err != nil {
			return sent, err
		}
		for c.buffered()+len(line) > bufferSize {
			if err := nextAck(); err != nil {
				return sent, err
			}
		}
		c.mx.Lock()
		_, err := c.rw.Write(line)
		c.mx.Unlock()
		if err != nil {
			return sent, err
		}
		c.inFlight = append(c.inFlight, len(line))
		sent++
	}

	for len(c.inFlight) > 0 {
		if err := nextAck(); err != nil {
			return sent, err
		}
	}

	return sent, nil
}

// Write sends each line of p and returns once all of them were
// acknowledged, with the first error response if any.
func (c *Conn) Write(p []byte) (int, error) {
	var lines []string
	for _, l := range strings.Split(string(p), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	var respErr error
	_, err := c.Stream(context.Background(), lines, func(e error) {
		if respErr == nil {
			respErr = e
		}
	})
	if err == nil {
		err = respErr
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte will write directly to the serial device without
// accounting for buffering.
//
// Use for realtime commands like `?`.
func (c *Conn) WriteByte(p byte) (err error) {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}
	c.mx.Lock()
	_, err = c.rw.Write([]byte{p})
	c.mx.Unlock()
	return err
}

// Read will read the next line from the device.
func (c *Conn) Read(p []byte) (n int, err error) {
	select {
	case <-c.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}

	if c.readBuf != nil {
		if len(p) < len(c.readBuf) {
			return 0, io.ErrShortBuffer
		}
		n = copy(p, c.readBuf)
		c.readBuf = nil
		return n, nil
	}
	if !c.scan.Scan() {
		if err := c.scan.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	data := c.scan.Bytes()

	if bytes.Equal(data, []byte("ok")) {
		select {
		case c.ackCh <- nil:
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("error:")) {
		select {
		case c.ackCh <- ResponseError(strings.TrimSpace(string(data))):
		case <-c.closeCh:
			return n, io.ErrClosedPipe
		}
	} else if bytes.HasPrefix(data, []byte("Grbl")) {
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	}

	if len(p) < len(data) {
		c.readBuf = data
		return 0, io.ErrShortBuffer
	}

	return copy(p, data), nil
}
