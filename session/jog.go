package session

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mastercactapus/gsend/transport"
	"github.com/mastercactapus/gsend/units"
)

// Keypad step distances, in the active units.
var (
	MetricSteps   = []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500}
	ImperialSteps = []float64{0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20}
)

// JogSteps are the keypad step distances for each unit system.
type JogSteps struct {
	Metric   []float64
	Imperial []float64
}

// JogStep is the selected index into JogSteps for each unit system.
type JogStep struct {
	Metric   int
	Imperial int
}

func (cfg Config) jogSteps() JogSteps {
	steps := cfg.JogSteps
	if len(steps.Metric) == 0 {
		steps.Metric = MetricSteps
	}
	if len(steps.Imperial) == 0 {
		steps.Imperial = ImperialSteps
	}
	return steps
}

func indexOf(list []float64, v float64) int {
	for i, d := range list {
		if d == v {
			return i
		}
	}
	return 0
}

func (j JogSteps) defaultStep() JogStep {
	return JogStep{Metric: indexOf(j.Metric, 1), Imperial: indexOf(j.Imperial, 0.1)}
}

func (j JogSteps) list(sys units.System) []float64 {
	if sys == units.Imperial {
		return j.Imperial
	}
	return j.Metric
}

func (st JogStep) index(sys units.System) int {
	if sys == units.Imperial {
		return st.Imperial
	}
	return st.Metric
}

// move returns st with the index for sys replaced by fn(index, len).
func (st JogStep) move(sys units.System, n int, fn func(i, n int) int) JogStep {
	if sys == units.Imperial {
		st.Imperial = fn(st.Imperial, n)
	} else {
		st.Metric = fn(st.Metric, n)
	}
	return st
}

// jogDistance is the selected step distance in the active units.
func (s *Session) jogDistance() float64 {
	sys := s.snap.Machine.Units
	list := s.cfg.jogSteps().list(sys)
	i := s.snap.JogStep.index(sys)
	if i < 0 || i >= len(list) {
		return 0
	}
	return list[i]
}

func (s *Session) step(ctx context.Context, fn func(i, n int) int) error {
	return s.do(ctx, func() error {
		sys := s.snap.Machine.Units
		n := len(s.cfg.jogSteps().list(sys))
		s.snap.JogStep = s.snap.JogStep.move(sys, n, fn)
		return nil
	})
}

// StepForward selects the next larger keypad step, stopping at the largest.
func (s *Session) StepForward(ctx context.Context) error {
	return s.step(ctx, func(i, n int) int { return clamp(i+1, 0, n-1) })
}

// StepBackward selects the next smaller keypad step, stopping at the
// smallest.
func (s *Session) StepBackward(ctx context.Context) error {
	return s.step(ctx, func(i, n int) int { return clamp(i-1, 0, n-1) })
}

// NextStep cycles through the keypad steps.
func (s *Session) NextStep(ctx context.Context) error {
	return s.step(ctx, func(i, n int) int { return (i + 1) % n })
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Jog moves each axis in dirs by its multiple of the selected keypad step,
// relative to the current position.
func (s *Session) Jog(ctx context.Context, dirs map[string]float64) error {
	mult := make(map[rune]float64, len(dirs))
	for axis, m := range dirs {
		a, err := parseAxes(axis)
		if err != nil {
			return err
		}
		if len(a) != 1 {
			return fmt.Errorf("%w: %q", ErrInvalidAxis, axis)
		}
		mult[rune(a[0])] += m
	}

	return s.manual(ctx, func() error {
		dist := s.jogDistance()

		var b strings.Builder
		b.WriteString("G0")
		for _, a := range "XYZABC" {
			m := mult[a]
			if m == 0 {
				continue
			}
			fmt.Fprintf(&b, " %c%s", a, formatDistance(m*dist))
		}
		if b.Len() == 2 {
			return ErrInvalidAxis
		}

		s.send(transport.GCode("G91", b.String(), "G90"))
		return nil
	})
}

// formatDistance renders v with at most four decimals.
func formatDistance(v float64) string {
	v = math.Round(v*1e4) / 1e4
	if v == 0 {
		// drop negative zero
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
