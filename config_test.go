package aec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"default", func(*Config) {}, true},
		{"8 kHz narrowband", func(c *Config) { c.SampleRate = 8000 }, true},
		{"44.1 kHz", func(c *Config) { c.SampleRate = 44100 }, true},
		{"64-sample blocks", func(c *Config) { c.BlockSize = 64 }, true},
		{"512-sample blocks", func(c *Config) { c.BlockSize = 512 }, true},
		{"odd sample rate", func(c *Config) { c.SampleRate = 22050 }, false},
		{"odd block size", func(c *Config) { c.BlockSize = 96 }, false},
		{"negative filter length", func(c *Config) { c.FilterLength = -1 }, false},
		{"zero step size", func(c *Config) { c.StepSize = 0 }, false},
		{"leakage above one", func(c *Config) { c.LeakageFactor = 1.01 }, false},
		{"zero regularization", func(c *Config) { c.Regularization = 0 }, false},
		{"zero power ratio", func(c *Config) { c.PowerRatioThreshold = 0 }, false},
		{"correlation above one", func(c *Config) { c.CorrelationThreshold = 1.2 }, false},
		{"negative hangover", func(c *Config) { c.HangoverTime = -1 }, false},
		{"zero window", func(c *Config) { c.WindowSize = 0 }, false},
		{"suppression of one", func(c *Config) { c.ResidualSuppression = 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfiguration)
			}
		})
	}
}

func TestDelayLineCapacityCoversFilterAndDelay(t *testing.T) {
	cfg := DefaultConfig()
	capacity := cfg.delayLineCapacity()
	assert.GreaterOrEqual(t, capacity, cfg.FilterLength)
	assert.GreaterOrEqual(t, capacity, cfg.MaxDelay+cfg.BlockSize)
	// The filter reads FilterLength samples past the largest aligned
	// offset; the capacity must cover the whole window.
	assert.GreaterOrEqual(t, capacity, cfg.MaxDelay+cfg.BlockSize+cfg.FilterLength)
}

func TestConfigDeltaLogFields(t *testing.T) {
	step := float32(0.2)
	hangover := 1200
	fields := ConfigDelta{StepSize: &step, HangoverTime: &hangover}.logFields()
	assert.Equal(t, step, fields["step_size"])
	assert.Equal(t, hangover, fields["hangover_time"])
	assert.NotContains(t, fields, "leakage_factor")
}
