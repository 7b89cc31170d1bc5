// Package analysis inspects a G-code program before it runs: the extents
// of its motion, the tools, spindle speeds and feeds it uses, the lines a
// firmware will reject and an estimate of its run time.
package analysis

import (
	"sort"
	"strings"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/units"
)

// Config holds the machine limits used for estimation.
type Config struct {
	// FeedLimits is the maximum rate of X, Y and Z in mm/min.
	FeedLimits [3]float64
	// AccelLimits is the acceleration of X, Y and Z in mm/s².
	AccelLimits [3]float64

	Firmware machine.FirmwareKind
}

// DefaultConfig returns limits typical of a hobby router.
func DefaultConfig() Config {
	return Config{
		FeedLimits:  [3]float64{4000, 4000, 3000},
		AccelLimits: [3]float64{750, 750, 500},
		Firmware:    machine.Grbl,
	}
}

// BoundingBox is the extent of commanded motion, in program units.
type BoundingBox struct {
	Min, Max coord.Point
}

// Delta returns the size of the box along each axis.
func (b BoundingBox) Delta() coord.Point { return b.Max.Sub(b.Min) }

// An InvalidLine is a line the target firmware will not accept.
type InvalidLine struct {
	// Line is the 1-based line number in the source text.
	Line int
	Text string
}

// Analysis is the result of analyzing a program. It is never modified
// after being returned.
type Analysis struct {
	Name string
	Size int64

	// TotalLines counts the lines that will be sent.
	TotalLines   int
	BoundingBox  BoundingBox
	InvalidLines []InvalidLine

	ToolsUsed    []int
	SpindleRates []float64
	FeedRates    []float64

	EstimatedSeconds float64

	// Units is the unit mode active at the end of the program.
	Units units.System
}

// Empty returns the analysis of no program.
func Empty() *Analysis { return &Analysis{} }

func isComment(line string) bool {
	return strings.ContainsAny(line, "#;(%")
}

type bounds struct {
	box  BoundingBox
	seen [len(coord.Axes)]bool
}

func (b *bounds) add(axes gcode.Block, p coord.Point) {
	for _, w := range axes {
		i := strings.IndexByte(coord.Axes, w.W)
		v, _ := p.Axis(w.W)
		if !b.seen[i] {
			b.seen[i] = true
			b.box.Min = b.box.Min.SetAxis(w.W, v)
			b.box.Max = b.box.Max.SetAxis(w.W, v)
			continue
		}
		if lo, _ := b.box.Min.Axis(w.W); v < lo {
			b.box.Min = b.box.Min.SetAxis(w.W, v)
		}
		if hi, _ := b.box.Max.Axis(w.W); v > hi {
			b.box.Max = b.box.Max.SetAxis(w.W, v)
		}
	}
}

// Analyze inspects program text. It always returns a result; lines that
// fail to parse are reported as invalid and skipped.
func Analyze(text string, cfg Config) *Analysis {
	var (
		res       Analysis
		bb        bounds
		supported = SupportedCodes(cfg.Firmware)
		vm        = gcode.NewVM()

		tools    = make(map[int]struct{})
		spindles = make(map[float64]struct{})
		feeds    = make(map[float64]struct{})
	)

	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isComment(line) {
			continue
		}
		res.TotalLines++

		b, err := gcode.ParseLine(line)
		if err != nil {
			res.InvalidLines = append(res.InvalidLines, InvalidLine{Line: i + 1, Text: line})
			continue
		}

		invalid := false
		for _, w := range b {
			if !supported.Supports(w) {
				invalid = true
			}
			switch w.W {
			case 'T':
				tools[int(w.Arg)] = struct{}{}
			case 'S':
				spindles[w.Arg] = struct{}{}
			case 'F':
				feeds[w.Arg] = struct{}{}
			}
		}

		m, err := vm.Run(b)
		if err != nil {
			invalid = true
		}
		if invalid {
			res.InvalidLines = append(res.InvalidLines, InvalidLine{Line: i + 1, Text: line})
		}
		if err != nil {
			continue
		}

		res.EstimatedSeconds += vm.Dwell()
		if m == nil {
			continue
		}
		bb.add(b.Axes(), m.To)
		res.EstimatedSeconds += cfg.estimate(m)
	}

	res.BoundingBox = bb.box
	res.ToolsUsed = sortedInts(tools)
	res.SpindleRates = sortedFloats(spindles)
	res.FeedRates = sortedFloats(feeds)
	if vm.Inches() {
		res.Units = units.Imperial
	}

	return &res
}

func sortedInts(set map[int]struct{}) []int {
	res := make([]int, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	sort.Ints(res)
	return res
}

func sortedFloats(set map[float64]struct{}) []float64 {
	res := make([]float64, 0, len(set))
	for v := range set {
		res = append(res, v)
	}
	sort.Float64s(res)
	return res
}
