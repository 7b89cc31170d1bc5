// Package shuttle turns the deflection of a jog wheel into relative moves.
//
// Samples of the wheel zone are accumulated and released as a single
// G91/G1/G90 sequence on each timer tick, after one second of input, when
// the direction or axis changes, or when the wheel returns to neutral.
package shuttle

import (
	"math"

	"github.com/mastercactapus/gsend/gcode"
)

// Config controls the jog rate.
type Config struct {
	// FeedrateMin and FeedrateMax bound the feed in units/min.
	FeedrateMin float64
	FeedrateMax float64

	// Hertz is the sampling rate of the wheel.
	Hertz float64
	// Overshoot scales the distance of each sample.
	Overshoot float64

	MaxZone int

	// StepDistance scales the feed range. It is clamped to (0,1].
	StepDistance float64
}

// DefaultConfig returns the default jog rates.
func DefaultConfig() Config {
	return Config{
		FeedrateMin:  500,
		FeedrateMax:  2000,
		Hertz:        10,
		Overshoot:    1,
		MaxZone:      7,
		StepDistance: 1,
	}
}

func (cfg Config) hertz() float64 {
	if cfg.Hertz <= 0 {
		return 10
	}
	return cfg.Hertz
}

func (cfg Config) step() float64 {
	if cfg.StepDistance <= 0 || cfg.StepDistance > 1 {
		return 1
	}
	return cfg.StepDistance
}

// Feedrate returns the feed for a zone.
func (cfg Config) Feedrate(zone int) float64 {
	z := math.Abs(float64(zone))
	maxZone := float64(cfg.MaxZone)
	if maxZone <= 1 {
		return cfg.FeedrateMax
	}
	z = math.Min(z, maxZone)
	return (cfg.FeedrateMax-cfg.FeedrateMin)*cfg.step()*((z-1)/(maxZone-1)) + cfg.FeedrateMin
}

// An Event is a Sample or a Tick.
type Event interface{ event() }

// Sample is a reading of the wheel. Zone is signed, 0 is neutral.
type Sample struct {
	Zone int
	Axis byte
}

// Tick is fired by the caller every 1/Hertz seconds.
type Tick struct{}

func (Sample) event() {}
func (Tick) event()   {}

// State is the accumulator. The zero value is neutral.
type State struct {
	Axis     byte
	Distance float64
	Zone     int

	feedSum float64
	samples int
}

// Active reports whether a jog gesture is in progress.
func (s State) Active() bool { return s.Axis != 0 }

// A Move is an accumulated relative move.
type Move struct {
	Axis     byte
	Feedrate float64
	Distance float64
}

// A Flush is released by Step.
type Flush struct {
	// Move is nil if nothing was pending.
	Move *Move

	// RestoreAbsolute is set when the gesture ended.
	RestoreAbsolute bool
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Blocks renders the flush as G-code. A move is always followed by G90.
func (f *Flush) Blocks() []gcode.Block {
	if f.Move == nil {
		if f.RestoreAbsolute {
			return []gcode.Block{{{W: 'G', Arg: 90}}}
		}
		return nil
	}

	return []gcode.Block{
		{{W: 'G', Arg: 91}},
		{{W: 'G', Arg: 1}, {W: 'F', Arg: round(f.Move.Feedrate, 3)}, {W: f.Move.Axis, Arg: round(f.Move.Distance, 4)}},
		{{W: 'G', Arg: 90}},
	}
}

// Lines renders the flush as G-code lines.
func (f *Flush) Lines() []string {
	blocks := f.Blocks()
	res := make([]string, len(blocks))
	for i, b := range blocks {
		res[i] = b.Line()
	}
	return res
}

func (s State) pending() *Move {
	if s.samples == 0 {
		return nil
	}
	return &Move{
		Axis:     s.Axis,
		Feedrate: s.feedSum / float64(s.samples),
		Distance: s.Distance,
	}
}

func (s State) drain() State {
	s.Distance = 0
	s.feedSum = 0
	s.samples = 0
	return s
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}

// Step applies an event to the accumulator.
func Step(s State, ev Event, cfg Config) (State, *Flush) {
	switch e := ev.(type) {
	case Tick:
		if m := s.pending(); m != nil {
			return s.drain(), &Flush{Move: m}
		}
	case Sample:
		if e.Zone == 0 {
			if !s.Active() {
				return State{}, nil
			}
			return State{}, &Flush{Move: s.pending(), RestoreAbsolute: true}
		}
		if e.Axis == 0 {
			return s, nil
		}

		var f *Flush
		if s.Active() && (e.Axis != s.Axis || sign(e.Zone) != sign(s.Zone)) {
			if m := s.pending(); m != nil {
				f = &Flush{Move: m}
			}
			s = s.drain()
		}

		feed := cfg.Feedrate(e.Zone)
		s.Axis = e.Axis
		s.Zone = e.Zone
		s.feedSum += feed
		s.samples++
		s.Distance += float64(sign(e.Zone)) * cfg.Overshoot * (feed / 60) / cfg.hertz()

		if f == nil && float64(s.samples) >= cfg.hertz() {
			f = &Flush{Move: s.pending()}
			s = s.drain()
		}
		return s, f
	}

	return s, nil
}
