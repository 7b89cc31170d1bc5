package units

import (
	"testing"

	"github.com/mastercactapus/gsend/coord"
	"github.com/stretchr/testify/assert"
)

func TestPositionToMM(t *testing.T) {
	p := coord.Point{X: 1, Y: -2, Z: 0.5}

	assert.Equal(t, p, PositionToMM(p, Metric))
	assert.Equal(t, coord.Point{X: 25.4, Y: -50.8, Z: 12.7}, PositionToMM(p, Imperial))
}

func TestMapPositionToUnits(t *testing.T) {
	assert.Equal(t, 1.0, MapPositionToUnits(25.4, Imperial))
	assert.Equal(t, 12.346, MapPositionToUnits(12.3456, Metric))
	assert.Equal(t, 0.3937, MapPositionToUnits(10, Imperial))
}

func TestFromModal(t *testing.T) {
	s, ok := FromModal("g20")
	assert.True(t, ok)
	assert.Equal(t, Imperial, s)

	s, ok = FromModal("G21")
	assert.True(t, ok)
	assert.Equal(t, Metric, s)

	_, ok = FromModal("")
	assert.False(t, ok)
}
