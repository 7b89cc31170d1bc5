package analysis

import (
	"testing"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/gcode"
	"github.com/mastercactapus/gsend/machine"
	"github.com/mastercactapus/gsend/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		FeedLimits:  [3]float64{6000, 6000, 6000},
		AccelLimits: [3]float64{1000, 1000, 1000},
		Firmware:    machine.Grbl,
	}
}

func TestAnalyze_Example(t *testing.T) {
	a := Analyze("G1 X10\nG1 X-5\n; comment\nM6 T1 S1000\n", DefaultConfig())

	assert.Equal(t, -5.0, a.BoundingBox.Min.X)
	assert.Equal(t, 10.0, a.BoundingBox.Max.X)
	assert.Equal(t, 15.0, a.BoundingBox.Delta().X)
	assert.Equal(t, []int{1}, a.ToolsUsed)
	assert.Equal(t, []float64{1000}, a.SpindleRates)
	assert.Empty(t, a.FeedRates)
	assert.Equal(t, 3, a.TotalLines)
	assert.Empty(t, a.InvalidLines)
	assert.Equal(t, units.Metric, a.Units)
}

func TestAnalyze_CommentsExcluded(t *testing.T) {
	a := Analyze("%\n(T9 S500)\nG0 X1 ; T8\n#1=2\nG1 X2 F100", testConfig())
	assert.Equal(t, 1, a.TotalLines)
	assert.Empty(t, a.ToolsUsed)
	assert.Empty(t, a.SpindleRates)
	assert.Equal(t, []float64{100}, a.FeedRates)
	assert.Equal(t, BoundingBox{Min: coord.Point{X: 2}, Max: coord.Point{X: 2}}, a.BoundingBox)
}

func TestAnalyze_Idempotent(t *testing.T) {
	text := "G21 G90\nT2 M6\nS12000 M3\nG0 Z5\nG1 X10 Y10 F800\nG2 X20 Y0 I5 J-5\nT1\nG91 G1 Z-1 F50\nS9000\nM5\n"
	a := Analyze(text, DefaultConfig())
	b := Analyze(text, DefaultConfig())
	assert.Equal(t, a, b)
	assert.Equal(t, []int{1, 2}, a.ToolsUsed)
	assert.Equal(t, []float64{9000, 12000}, a.SpindleRates)
	assert.Equal(t, []float64{50, 800}, a.FeedRates)
	assert.Equal(t, 4.0, a.BoundingBox.Min.Z)
	assert.Equal(t, 5.0, a.BoundingBox.Max.Z)
}

func TestAnalyze_InvalidLines(t *testing.T) {
	a := Analyze("G1 X1\nM104 S200\nG1 X\nG5.1 X3\nG1 X4", testConfig())

	assert.Equal(t, []InvalidLine{
		{Line: 2, Text: "M104 S200"},
		{Line: 3, Text: "G1 X"},
		{Line: 4, Text: "G5.1 X3"},
	}, a.InvalidLines)
	// still processed when parseable
	assert.Equal(t, []float64{200}, a.SpindleRates)
	assert.Equal(t, 5, a.TotalLines)

	a = Analyze("M104 S200", Config{Firmware: machine.Marlin})
	assert.Empty(t, a.InvalidLines)
}

func TestAnalyze_AllInvalid(t *testing.T) {
	a := Analyze("hello\nworld", testConfig())
	require.NotNil(t, a)
	assert.Len(t, a.InvalidLines, 2)
	assert.Zero(t, a.EstimatedSeconds)
}

func TestAnalyze_Inches(t *testing.T) {
	a := Analyze("G20\nG0 X1", testConfig())
	assert.Equal(t, 1.0, a.BoundingBox.Max.X)
	assert.Equal(t, units.Imperial, a.Units)
	// timed as 25.4mm
	assert.InDelta(t, moveTime(25.4, 100, 1000), a.EstimatedSeconds, 1e-9)
}

func TestAnalyze_Estimate(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		text string
		exp  float64
	}{
		{"G0 X100", 1.1},
		{"G1 X10 F600", 1.01},
		{"G1 X0.01 F6000", 0.0063245553},
		{"G1 X10 F600\nG4 P2", 3.01},
		// slowest axis decides, not the sum
		{"G0 X100 Y10", 1.1},
		// half circle of radius 5
		{"G2 X10 Y0 I5 J0 F600", 0.02 + (5*3.141592653589793-0.1)/10},
		{"G2 X10 Y0 R5 F600", 0.02 + (5*3.141592653589793-0.1)/10},
	}

	for _, c := range cases {
		a := Analyze(c.text, cfg)
		assert.InDelta(t, c.exp, a.EstimatedSeconds, 1e-6, c.text)
	}
}

func TestMoveTime(t *testing.T) {
	assert.Zero(t, moveTime(0, 100, 1000))
	assert.Zero(t, moveTime(10, 0, 1000))
	assert.Equal(t, 0.1, moveTime(10, 100, 0))
	assert.Equal(t, moveTime(10, 10, 1000), moveTime(-10, 10, 1000))
}

func TestSupportedCodes(t *testing.T) {
	grbl := SupportedCodes(machine.Grbl)
	assert.True(t, grbl.Supports(gcode.Word{W: 'G', Arg: 38.2}))
	assert.True(t, grbl.Supports(gcode.Word{W: 'M', Arg: 6}))
	assert.False(t, grbl.Supports(gcode.Word{W: 'M', Arg: 109}))
	assert.False(t, grbl.Supports(gcode.Word{W: 'E', Arg: 1}))

	assert.True(t, SupportedCodes(machine.Marlin).Supports(gcode.Word{W: 'E', Arg: 1}))
	assert.True(t, SupportedCodes(machine.TinyG).Supports(gcode.Word{W: 'G', Arg: 28.3}))
	assert.True(t, SupportedCodes(machine.Unknown).Supports(gcode.Word{W: 'Q', Arg: 1}))
}
