package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mastercactapus/gsend/machine"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, machine.Grbl, cfg.FirmwareKind())
}

func TestLoad_File(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TEST_GSEND_PORT", "/dev/ttyUSB1")

	p := writeFile(t, "gsend.yml", `
firmware: smoothie
port: ${TEST_GSEND_PORT}
limits:
  feed: [1000, 1000, 500]
  accel: [100, 100, 50]
shuttle:
  hertz: 5
showLineWarnings: false
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, machine.Smoothie, cfg.FirmwareKind())
	assert.Equal(t, "/dev/ttyUSB1", cfg.Port)
	assert.Equal(t, [3]float64{1000, 1000, 500}, cfg.Limits.Feed)
	assert.Equal(t, 5.0, cfg.ShuttleConfig().Hertz)
	// unset keys keep their defaults
	assert.Equal(t, 2000.0, cfg.Shuttle.FeedrateMax)
	assert.Equal(t, 115200, cfg.Baud)
	assert.False(t, cfg.ShowLineWarnings)

	a := cfg.Analysis()
	assert.Equal(t, [3]float64{100, 100, 50}, a.AccelLimits)
	assert.Equal(t, machine.Smoothie, a.Firmware)
}

func TestLoad_Env(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GSEND_FIRMWARE", "marlin")
	t.Setenv("GSEND_BAUD", "250000")
	t.Setenv("GSEND_FEED_LIMITS", "100, 200, 300")
	t.Setenv("GSEND_SHOW_LINE_WARNINGS", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, machine.Marlin, cfg.FirmwareKind())
	assert.Equal(t, 250000, cfg.Baud)
	assert.Equal(t, [3]float64{100, 200, 300}, cfg.Limits.Feed)
	assert.False(t, cfg.ShowLineWarnings)

	t.Setenv("GSEND_BAUD", "fast")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yml", "firmware: [nope"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "fw.yml", "firmware: fanuc"))
	assert.Error(t, err)
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GSEND_PORT='unterminated\n"), 0o644))

	_, err := Load("")
	assert.ErrorContains(t, err, ".env")
}

func TestApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-p", "COM4", "--jog-step", "0.5", "--config", "x.yml"}))

	cfg := Default()
	cfg.Addr = ":9000"
	require.NoError(t, cfg.ApplyFlags(fs))

	assert.Equal(t, "COM4", cfg.Port)
	assert.Equal(t, 0.5, cfg.ShuttleConfig().StepDistance)
	// untouched flags do not override loaded values
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "x.yml", ConfigPath(fs))

	require.NoError(t, fs.Parse([]string{"--firmware", "bogus"}))
	assert.Error(t, cfg.ApplyFlags(fs))
}
