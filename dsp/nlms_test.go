package dsp

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewNlmsFilter(t *testing.T) {
	tests := []struct {
		name           string
		length         int
		stepSize       float32
		leakage        float32
		regularization float32
		wantErr        bool
	}{
		{
			name:           "valid defaults",
			length:         512,
			stepSize:       0.1,
			leakage:        0.99999,
			regularization: 1e-6,
		},
		{
			name:           "zero length",
			length:         0,
			stepSize:       0.1,
			leakage:        0.99999,
			regularization: 1e-6,
			wantErr:        true,
		},
		{
			name:           "step size too large",
			length:         512,
			stepSize:       2.5,
			leakage:        0.99999,
			regularization: 1e-6,
			wantErr:        true,
		},
		{
			name:           "zero leakage",
			length:         512,
			stepSize:       0.1,
			leakage:        0,
			regularization: 1e-6,
			wantErr:        true,
		},
		{
			name:           "zero regularization",
			length:         512,
			stepSize:       0.1,
			leakage:        0.99999,
			regularization: 0,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewNlmsFilter(tt.length, tt.stepSize, tt.leakage, tt.regularization)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Errorf("NewNlmsFilter() error = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewNlmsFilter() unexpected error: %v", err)
			}
			if f.Length() != tt.length {
				t.Errorf("Length() = %d, want %d", f.Length(), tt.length)
			}
		})
	}
}

// runEcho drives the filter with white-noise reference and mic = echo(ref)
// built from the given impulse response, returning the output blocks.
func runEcho(t *testing.T, f *NlmsFilter, line *DelayLine, impulse []float32, blocks, blockSize int, adapt bool, seed int64) [][]float32 {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	history := make([]float32, 0, blocks*blockSize)
	mic := make([]float32, blockSize)
	ref := make([]float32, blockSize)
	outputs := make([][]float32, 0, blocks)

	for b := 0; b < blocks; b++ {
		for i := range ref {
			ref[i] = rng.Float32() - 0.5
		}
		history = append(history, ref...)
		line.WriteBlock(ref)

		base := len(history) - blockSize
		for i := range mic {
			var acc float32
			for k, h := range impulse {
				idx := base + i - k
				if idx >= 0 {
					acc += h * history[idx]
				}
			}
			mic[i] = acc
		}

		out := make([]float32, blockSize)
		f.ProcessBlock(mic, line, 0, adapt, out)
		outputs = append(outputs, out)
	}
	return outputs
}

func TestNlmsIdentifiesDelayedEcho(t *testing.T) {
	const (
		blockSize = 128
		length    = 128
	)

	f, err := NewNlmsFilter(length, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}
	line, err := NewDelayLine(length + blockSize)
	if err != nil {
		t.Fatalf("NewDelayLine() error: %v", err)
	}

	// Echo path: pure delay of 16 samples scaled by 0.5.
	impulse := make([]float32, 17)
	impulse[16] = 0.5

	outputs := runEcho(t, f, line, impulse, 400, blockSize, true, 1)

	taps := f.Taps()
	if math.Abs(float64(taps[16])-0.5) > 0.05 {
		t.Errorf("taps[16] = %v, want 0.5 +/- 0.05", taps[16])
	}
	for i, w := range taps {
		if i == 16 {
			continue
		}
		if math.Abs(float64(w)) > 0.05 {
			t.Errorf("taps[%d] = %v, want |w| < 0.05", i, w)
		}
	}

	// Residual energy over the last blocks should be well below the echo.
	var residual float64
	for _, out := range outputs[len(outputs)-10:] {
		for _, s := range out {
			residual += float64(s) * float64(s)
		}
	}
	var echo float64
	for b := 0; b < 10; b++ {
		for _, s := range outputs[b] {
			echo += float64(s) * float64(s)
		}
	}
	if residual >= echo/100 {
		t.Errorf("late residual energy %g not at least 20 dB below early energy %g", residual, echo)
	}
}

func TestNlmsConvergesOnDispersedEcho(t *testing.T) {
	const (
		blockSize = 128
		length    = 128
	)

	f, err := NewNlmsFilter(length, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}
	line, err := NewDelayLine(length + blockSize)
	if err != nil {
		t.Fatalf("NewDelayLine() error: %v", err)
	}

	// Dominant direct path with a decaying tail, all inside the filter span.
	rng := rand.New(rand.NewSource(9))
	impulse := make([]float32, 64)
	impulse[0] = 0.6
	decay := float32(1)
	for k := 1; k < len(impulse); k++ {
		decay *= 0.9
		impulse[k] = (rng.Float32() - 0.5) * 0.2 * decay
	}

	outputs := runEcho(t, f, line, impulse, 800, blockSize, true, 2)

	var micPower, outPower float64
	for _, out := range outputs[len(outputs)-40:] {
		for _, s := range out {
			outPower += float64(s) * float64(s)
		}
	}
	// Compare against the echo level before adaptation had traction.
	for _, out := range outputs[:4] {
		for _, s := range out {
			micPower += float64(s) * float64(s)
		}
	}
	micPower /= 4 * blockSize
	outPower /= 40 * blockSize

	erle := 10 * math.Log10(micPower/math.Max(outPower, 1e-12))
	if erle < 25 {
		t.Errorf("steady-state ERLE = %.1f dB, want >= 25 dB", erle)
	}
}

func TestNlmsSilenceLeavesTapsUntouched(t *testing.T) {
	f, err := NewNlmsFilter(64, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}
	line, err := NewDelayLine(256)
	if err != nil {
		t.Fatalf("NewDelayLine() error: %v", err)
	}

	zeros := make([]float32, 128)
	out := make([]float32, 128)
	for b := 0; b < 20; b++ {
		line.WriteBlock(zeros)
		f.ProcessBlock(zeros, line, 0, true, out)
	}

	for i, s := range out {
		if s != 0 {
			t.Errorf("out[%d] = %v, want 0", i, s)
		}
	}
	if f.TapNorm() != 0 {
		t.Errorf("TapNorm() = %v, want 0 after silence", f.TapNorm())
	}
}

func TestNlmsFrozenWhenAdaptDisabled(t *testing.T) {
	const blockSize = 128

	f, err := NewNlmsFilter(64, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}
	line, err := NewDelayLine(256)
	if err != nil {
		t.Fatalf("NewDelayLine() error: %v", err)
	}

	impulse := []float32{0.4}
	runEcho(t, f, line, impulse, 100, blockSize, true, 5)

	before := f.Taps()
	runEcho(t, f, line, impulse, 100, blockSize, false, 6)
	after := f.Taps()

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("taps[%d] changed while adaptation disabled: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestNlmsReset(t *testing.T) {
	f, err := NewNlmsFilter(64, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}
	line, err := NewDelayLine(256)
	if err != nil {
		t.Fatalf("NewDelayLine() error: %v", err)
	}

	runEcho(t, f, line, []float32{0.4}, 50, 128, true, 11)
	if f.TapNorm() == 0 {
		t.Fatal("taps did not move before reset")
	}

	f.Reset()
	if f.TapNorm() != 0 {
		t.Errorf("TapNorm() after Reset() = %v, want 0", f.TapNorm())
	}
}

func TestNlmsSetters(t *testing.T) {
	f, err := NewNlmsFilter(64, 0.2, 0.99999, 1e-6)
	if err != nil {
		t.Fatalf("NewNlmsFilter() error: %v", err)
	}

	if err := f.SetStepSize(3); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetStepSize(3) error = %v, want ErrConfiguration", err)
	}
	if err := f.SetStepSize(0.3); err != nil {
		t.Errorf("SetStepSize(0.3) unexpected error: %v", err)
	}
	if err := f.SetLeakage(1.5); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetLeakage(1.5) error = %v, want ErrConfiguration", err)
	}
	if err := f.SetRegularization(-1); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetRegularization(-1) error = %v, want ErrConfiguration", err)
	}
}
