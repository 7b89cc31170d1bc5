package machine

import (
	"testing"

	"github.com/mastercactapus/gsend/coord"
	"github.com/mastercactapus/gsend/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRaw_Imperial(t *testing.T) {
	cases := []struct {
		kind FirmwareKind
		data string
	}{
		{Grbl, `{"status":{"activeState":"Idle","mpos":{"x":"1.000","y":"-2.000","z":"0.500"}},"settings":{"$13":"1"}}`},
		{Marlin, `{"pos":{"x":"1","y":"-2","z":"0.5","e":"3"},"modal":{"units":"G20"}}`},
		{Smoothie, `{"status":{"activeState":"Idle","mpos":{"x":1,"y":-2,"z":0.5}},"parserstate":{"modal":{"units":"G20"}}}`},
		{TinyG, `{"sr":{"machineState":1,"mpos":{"x":1,"y":-2,"z":0.5},"modal":{"units":"G20"}}}`},
	}

	for _, c := range cases {
		t.Run(c.kind.String(), func(t *testing.T) {
			s := NormalizeRaw(Disconnected(), c.kind, []byte(c.data))
			assert.Equal(t, c.kind, s.Firmware)
			assert.Equal(t, coord.Point{X: 25.4, Y: -50.8, Z: 12.7}, s.MPos)
		})
	}
}

func TestNormalizeRaw_Metric(t *testing.T) {
	s := NormalizeRaw(Disconnected(), Grbl, []byte(`{"status":{"activeState":"Run","mpos":{"x":"1.5","y":"2","z":"3"},"wpos":{"x":"0.5","y":"1","z":"2"}},"parserstate":{"modal":{"wcs":"G55","units":"G20"}}}`))

	assert.Equal(t, StateRun, s.ActiveState)
	assert.Equal(t, coord.Point{X: 1.5, Y: 2, Z: 3}, s.MPos)
	assert.Equal(t, coord.Point{X: 1, Y: 1, Z: 1}, s.WCO())
	assert.Equal(t, "G55", s.WCS)
	assert.Equal(t, 2, s.WCSIndex())
	// modal inches is display only, Grbl reports per $13
	assert.Equal(t, units.Imperial, s.Units)
	assert.False(t, s.ReportInches)
}

func TestNormalizeRaw_PartialKeepsPrevious(t *testing.T) {
	prev := State{
		Firmware:    Grbl,
		ActiveState: StateRun,
		MPos:        coord.Point{X: 10, Y: 20, Z: 30},
		WPos:        coord.Point{X: 1, Y: 2, Z: 3},
		WCS:         "G56",
	}

	reports := []string{
		`{}`,
		`{"status":{}}`,
		`{"status":{"mpos":{"x":"11"}}}`,
		`{"status":{"mpos":{"x":"11","y":"bogus"}}}`,
		`{"status":{"activeState":"Nonsense","mpos":{"x":"11","z":null}}}`,
	}

	for _, data := range reports {
		s := NormalizeRaw(prev, Grbl, []byte(data))
		assert.Equal(t, StateRun, s.ActiveState, data)
		assert.Equal(t, 20.0, s.MPos.Y, data)
		assert.Equal(t, 30.0, s.MPos.Z, data)
		assert.Equal(t, prev.WPos, s.WPos, data)
		assert.Equal(t, "G56", s.WCS, data)
	}

	s := NormalizeRaw(prev, Grbl, []byte(`{"status":{"mpos":{"x":"11"}}}`))
	assert.Equal(t, 11.0, s.MPos.X)
}

func TestNormalizeRaw_Malformed(t *testing.T) {
	prev := State{Firmware: Grbl, ActiveState: StateIdle, MPos: coord.Point{X: 1}, WCS: DefaultWCS}

	assert.Equal(t, prev, NormalizeRaw(prev, Grbl, []byte(`{"status":`)))
	assert.Equal(t, prev, NormalizeRaw(prev, Unknown, []byte(`{}`)))
	assert.Equal(t, prev, NormalizeRaw(prev, FirmwareKind(42), []byte(`{}`)))
	assert.Equal(t, prev, Normalize(prev, nil))

	var r *GrblReport
	assert.Equal(t, prev, Normalize(prev, r))
}

func TestNormalize_NilDialectReport(t *testing.T) {
	for _, r := range []Report{(*GrblReport)(nil), (*MarlinReport)(nil), (*SmoothieReport)(nil), (*TinyGReport)(nil)} {
		assert.Equal(t, Disconnected(), Normalize(Disconnected(), r))
	}
}

func TestNormalize_Alarm(t *testing.T) {
	s := NormalizeRaw(Disconnected(), Grbl, []byte(`{"status":{"activeState":"Alarm","alarmCode":1}}`))
	assert.Equal(t, StateAlarm, s.ActiveState)
	assert.Equal(t, 1, s.AlarmCode)

	s = NormalizeRaw(s, Grbl, []byte(`{"status":{"activeState":"Idle"}}`))
	assert.Equal(t, StateIdle, s.ActiveState)
	assert.Equal(t, 0, s.AlarmCode)
}

func TestNormalize_SubStates(t *testing.T) {
	s := NormalizeRaw(Disconnected(), Smoothie, []byte(`{"status":{"activeState":"Door:1"}}`))
	assert.Equal(t, StateHold, s.ActiveState)

	s = NormalizeRaw(s, TinyG, []byte(`{"sr":{"machineState":9}}`))
	assert.Equal(t, StateHome, s.ActiveState)
	assert.Equal(t, TinyG, s.Firmware)
}

func TestNormalize_MarlinKeepsState(t *testing.T) {
	s := NormalizeRaw(Disconnected(), Marlin, []byte(`{"pos":{"x":"1"}}`))
	assert.Equal(t, StateIdle, s.ActiveState)
	assert.Equal(t, s.MPos, s.WPos)

	s.ActiveState = StateRun
	s = NormalizeRaw(s, Marlin, []byte(`{"pos":{"x":"2"}}`))
	assert.Equal(t, StateRun, s.ActiveState)
	assert.Equal(t, 2.0, s.MPos.X)
}

func TestDecodeReport(t *testing.T) {
	r, err := DecodeReport(TinyG, []byte(`{"sr":{"machineState":"5"}}`))
	require.NoError(t, err)
	assert.Equal(t, TinyG, r.Kind())

	_, err = DecodeReport(Unknown, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownFirmware)
}

func TestActiveState_Label(t *testing.T) {
	assert.Equal(t, "Running", StateRun.Label())
	assert.Equal(t, "Jogging", StateJog.Label())
	assert.Equal(t, "Disconnected", ActiveState("").Label())
}

func TestParseFirmwareKind(t *testing.T) {
	assert.Equal(t, Grbl, ParseFirmwareKind("grbl"))
	assert.Equal(t, TinyG, ParseFirmwareKind("TinyG"))
	assert.Equal(t, Unknown, ParseFirmwareKind("fanuc"))
}
