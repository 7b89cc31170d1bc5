package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	b, err := ParseLine("g1 x-5.5 Y+2 f1200 ; cut")
	require.NoError(t, err)
	assert.Equal(t, Block{{W: 'G', Arg: 1}, {W: 'X', Arg: -5.5}, {W: 'Y', Arg: 2}, {W: 'F', Arg: 1200}}, b)

	b, err = ParseLine("   ; only a comment")
	assert.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseLine("$H")
	assert.Error(t, err)

	_, err = ParseLine("G1 X1.2.3")
	assert.Error(t, err)
}

func mustLine(t *testing.T, s string) Block {
	t.Helper()
	b, err := ParseLine(s)
	require.NoError(t, err)
	return b
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, mustLine(t, "G90 G1 X1 Y2").Validate())
	assert.Equal(t, ErrModalConflict, mustLine(t, "G0 G1 X1").Validate())
	assert.Equal(t, ErrRepeatedWord, mustLine(t, "G1 X1 X2").Validate())
}

func TestBlock_Line(t *testing.T) {
	b := Block{{W: 'G', Arg: 1}, {W: 'F', Arg: 750.5}, {W: 'X', Arg: -0.125}}
	assert.Equal(t, "G1 F750.5 X-0.125", b.Line())
	assert.Equal(t, "G1F750.5X-0.125", b.String())
}
