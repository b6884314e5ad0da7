package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geo-assembler/internal/config"
	"geo-assembler/internal/render"
)

func TestFlagsOverrideConfig(t *testing.T) {
	opts, err := parseFlags([]string{"-det", "lpd", "-clen", "0.2", "-level", "10,900", "-nb-file", "x.ipynb", "-rundir", "/data/r0005"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	require.NoError(t, opts.apply(cfg))
	assert.Equal(t, "LPD", cfg.Detector)
	assert.Equal(t, 0.2, cfg.Experiment.Clen)
	assert.Equal(t, config.DefaultConfig().Experiment.PhotonEnergy, cfg.Experiment.PhotonEnergy)
	assert.Equal(t, render.Levels{Min: 10, Max: 900}, cfg.Display.Levels)

	nb := opts.notebookOptions(cfg)
	assert.Equal(t, "/data/r0005", nb.RunDir)
	assert.Equal(t, "x.ipynb", nb.File)
	require.NotNil(t, nb.Levels)
	assert.Equal(t, 900.0, nb.Levels.Max)
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	require.NoError(t, opts.apply(cfg))
	assert.Equal(t, config.DefaultConfig(), cfg)
	assert.Nil(t, opts.notebookOptions(cfg).Levels)
	assert.Empty(t, opts.session)
}

func TestBadFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-det", "jungfrau"})
	require.NoError(t, err)
	assert.Error(t, opts.apply(config.DefaultConfig()))

	opts, err = parseFlags([]string{"-energy", "-5"})
	require.NoError(t, err)
	assert.Error(t, opts.apply(config.DefaultConfig()))

	_, err = parseFlags([]string{"a.geoproj", "b.geoproj"})
	assert.Error(t, err)
}

func TestSessionArgument(t *testing.T) {
	opts, err := parseFlags([]string{"-test", "cal.geoproj"})
	require.NoError(t, err)
	assert.True(t, opts.test)
	assert.Equal(t, "cal.geoproj", opts.session)
}
