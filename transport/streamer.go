package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/gsend/gcode"
)

var (
	// ErrNoProgram is returned when starting without a loaded program.
	ErrNoProgram = errors.New("no program loaded")
	// ErrBusy is returned when loading while a program is running.
	ErrBusy = errors.New("program is running")
)

// A Sink delivers program lines to a controller.
//
// Stream writes lines in order until all are written or ctx is done, and
// returns once every written line was acknowledged. ack is called once per
// acknowledged line, in order, with the firmware error for that line if
// it was rejected.
type Sink interface {
	Stream(ctx context.Context, lines []string, ack func(error)) (int, error)
}

var holdCodes = map[float64]bool{0: true, 1: true, 2: true, 30: true, 6: true, 109: true, 190: true}

// HoldCode returns the M-code in line the sender holds after, e.g. "M6".
func HoldCode(line string) (string, bool) {
	b, err := gcode.ParseLine(line)
	if err != nil {
		return "", false
	}
	for _, w := range b {
		if w.W == 'M' && holdCodes[w.Arg] {
			return w.String(), true
		}
	}
	return "", false
}

// ProgramLines strips comments and blank lines from program text.
func ProgramLines(text string) []string {
	var res []string
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		for {
			start := strings.IndexByte(line, '(')
			if start < 0 {
				break
			}
			end := strings.IndexByte(line[start:], ')')
			if end < 0 {
				line = line[:start]
				break
			}
			line = line[:start] + line[start+end+1:]
		}
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '%' {
			continue
		}
		res = append(res, line)
	}
	return res
}

// Streamer sends a loaded program through a Sink, holding after program
// pauses and tool changes and when the firmware rejects a line.
type Streamer struct {
	sink Sink
	emit func(Event)
	now  func() time.Time

	mx       sync.Mutex
	name     string
	size     int64
	lines    []string
	sent     int
	received int

	start, finish time.Time

	hold       bool
	holdReason HoldReason

	// quiet skips rejected lines instead of holding on them.
	quiet bool

	gen    int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewStreamer creates a Streamer that reports Progress and StateChanged
// events through emit.
func NewStreamer(sink Sink, emit func(Event)) *Streamer {
	return &Streamer{sink: sink, emit: emit, now: time.Now}
}

func ms(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano() / int64(time.Millisecond)
}

// progress must be called with mx held.
func (s *Streamer) progress() Progress {
	p := Progress{
		Name:       s.name,
		Size:       s.size,
		Total:      len(s.lines),
		Sent:       s.sent,
		Received:   s.received,
		Hold:       s.hold,
		HoldReason: s.holdReason,
		StartTime:  ms(s.start),
		FinishTime: ms(s.finish),
	}
	if s.start.IsZero() {
		return p
	}

	end := s.finish
	if end.IsZero() {
		end = s.now()
	}
	elapsed := end.Sub(s.start)
	p.ElapsedTime = int64(elapsed / time.Millisecond)
	if s.received > 0 && s.finish.IsZero() {
		per := elapsed / time.Duration(s.received)
		p.RemainingTime = int64(per * time.Duration(len(s.lines)-s.received) / time.Millisecond)
	}
	return p
}

// SetShowLineWarnings controls whether a line rejected by the firmware
// holds the job. When off, the rejection is counted and streaming goes on.
func (s *Streamer) SetShowLineWarnings(show bool) {
	s.mx.Lock()
	s.quiet = !show
	s.mx.Unlock()
}

// Progress returns the current job progress.
func (s *Streamer) Progress() Progress {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.progress()
}

func (s *Streamer) reset() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = nil
	s.done = nil
	s.sent = 0
	s.received = 0
	s.start = time.Time{}
	s.finish = time.Time{}
	s.hold = false
	s.holdReason = HoldReason{}
}

// Load replaces the program.
func (s *Streamer) Load(name, text string) error {
	s.mx.Lock()
	if s.cancel != nil {
		s.mx.Unlock()
		return ErrBusy
	}
	s.reset()
	s.name = name
	s.size = int64(len(text))
	s.lines = ProgramLines(text)
	p := s.progress()
	s.mx.Unlock()

	s.emit(p)
	return nil
}

// Unload stops and removes the program.
func (s *Streamer) Unload() {
	s.mx.Lock()
	s.reset()
	s.name = ""
	s.size = 0
	s.lines = nil
	p := s.progress()
	s.mx.Unlock()

	s.emit(p)
}

// Start runs the program from the beginning.
func (s *Streamer) Start() error {
	s.mx.Lock()
	if len(s.lines) == 0 {
		s.mx.Unlock()
		return ErrNoProgram
	}
	if s.cancel != nil {
		s.mx.Unlock()
		return ErrBusy
	}
	name, size, lines := s.name, s.size, s.lines
	s.reset()
	s.name, s.size, s.lines = name, size, lines
	s.start = s.now()
	s.mx.Unlock()

	s.resume()
	return nil
}

// Pause stops sending after the lines already in flight and marks the job
// held.
func (s *Streamer) Pause() {
	s.mx.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.hold = true
	s.holdReason = HoldReason{}
	p := s.progress()
	s.mx.Unlock()

	s.emit(p)
}

// Resume continues a held or paused job.
func (s *Streamer) Resume() error {
	s.mx.Lock()
	done := s.done
	if len(s.lines) == 0 || s.start.IsZero() {
		s.mx.Unlock()
		return ErrNoProgram
	}
	if !s.hold {
		s.mx.Unlock()
		return nil
	}
	s.mx.Unlock()

	if done != nil {
		<-done
	}
	s.resume()
	return nil
}

// Stop abandons the job. In-flight acknowledgements are discarded.
func (s *Streamer) Stop() {
	s.mx.Lock()
	s.reset()
	p := s.progress()
	s.mx.Unlock()

	s.emit(p)
}

func (s *Streamer) resume() {
	s.mx.Lock()
	if s.cancel != nil || !s.finish.IsZero() {
		s.mx.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.hold = false
	s.holdReason = HoldReason{}
	gen, done := s.gen, s.done
	p := s.progress()
	s.mx.Unlock()

	s.emit(p)
	go s.run(ctx, gen, done)
}

// nextChunk returns the lines up to and including the next hold line.
func (s *Streamer) nextChunk() ([]string, string) {
	for i := s.sent; i < len(s.lines); i++ {
		if code, ok := HoldCode(s.lines[i]); ok {
			return s.lines[s.sent : i+1], code
		}
	}
	return s.lines[s.sent:], ""
}

func (s *Streamer) run(ctx context.Context, gen int, done chan struct{}) {
	defer close(done)

	for {
		s.mx.Lock()
		if gen != s.gen {
			s.mx.Unlock()
			return
		}
		chunk, code := s.nextChunk()
		base := s.sent
		s.mx.Unlock()

		var (
			failed  error
			badLine string
			acked   int
		)
		ack := func(err error) {
			s.mx.Lock()
			if gen != s.gen {
				s.mx.Unlock()
				return
			}
			if err != nil && failed == nil && !s.quiet {
				failed = err
				badLine = chunk[acked]
				s.cancel()
			}
			acked++
			s.received++
			if s.sent < base+acked {
				s.sent = base + acked
			}
			p := s.progress()
			s.mx.Unlock()
			s.emit(p)
		}

		n, err := s.sink.Stream(ctx, chunk, ack)

		s.mx.Lock()
		if gen != s.gen {
			s.mx.Unlock()
			return
		}
		s.sent = base + n
		var events []Event
		switch {
		case failed != nil:
			s.hold = true
			s.holdReason = HoldReason{Err: failed.Error()}
			events = append(events, StateChanged{Phase: PhasePaused, Line: badLine})
		case err != nil:
			s.hold = true
			s.holdReason = HoldReason{Err: err.Error()}
		case ctx.Err() != nil:
			// paused
		case s.sent == len(s.lines):
			s.finish = s.now()
			events = append(events, StateChanged{Phase: PhaseIdle})
		case code != "":
			s.hold = true
			s.holdReason = HoldReason{Data: code}
		default:
			s.mx.Unlock()
			continue
		}
		s.cancel = nil
		p := s.progress()
		s.mx.Unlock()

		s.emit(p)
		for _, e := range events {
			s.emit(e)
		}
		return
	}
}
