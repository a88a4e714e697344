package dsp

import (
	"errors"
	"math"
	"testing"
)

func TestNewResidualSuppressor(t *testing.T) {
	if _, err := NewResidualSuppressor(-0.1); !errors.Is(err, ErrConfiguration) {
		t.Errorf("NewResidualSuppressor(-0.1) error = %v, want ErrConfiguration", err)
	}
	if _, err := NewResidualSuppressor(1.0); !errors.Is(err, ErrConfiguration) {
		t.Errorf("NewResidualSuppressor(1.0) error = %v, want ErrConfiguration", err)
	}
	if _, err := NewResidualSuppressor(0.1); err != nil {
		t.Errorf("NewResidualSuppressor(0.1) unexpected error: %v", err)
	}
}

func TestResidualSuppressorGatesOnReference(t *testing.T) {
	s := NewDefaultResidualSuppressor()

	out := []float32{0.5, 0.5, -0.5, -0.5}
	ref := []float32{0.2, 0.0005, -0.2, 0}
	s.Apply(out, ref)

	// Samples with an active reference are attenuated by 10%.
	if math.Abs(float64(out[0])-0.45) > 1e-6 {
		t.Errorf("out[0] = %v, want 0.45", out[0])
	}
	if math.Abs(float64(out[2])+0.45) > 1e-6 {
		t.Errorf("out[2] = %v, want -0.45", out[2])
	}
	// Samples with a silent reference pass unchanged.
	if out[1] != 0.5 {
		t.Errorf("out[1] = %v, want 0.5", out[1])
	}
	if out[3] != -0.5 {
		t.Errorf("out[3] = %v, want -0.5", out[3])
	}
}

func TestResidualSuppressorZeroSuppression(t *testing.T) {
	s, err := NewResidualSuppressor(0)
	if err != nil {
		t.Fatalf("NewResidualSuppressor(0) error: %v", err)
	}

	out := []float32{0.25, -0.75}
	ref := []float32{0.5, 0.5}
	s.Apply(out, ref)

	if out[0] != 0.25 || out[1] != -0.75 {
		t.Errorf("Apply() with zero suppression altered output: %v", out)
	}
}

func TestResidualSuppressorSetSuppression(t *testing.T) {
	s := NewDefaultResidualSuppressor()
	if err := s.SetSuppression(0.5); err != nil {
		t.Fatalf("SetSuppression(0.5) error: %v", err)
	}
	if err := s.SetSuppression(1.2); !errors.Is(err, ErrConfiguration) {
		t.Errorf("SetSuppression(1.2) error = %v, want ErrConfiguration", err)
	}

	out := []float32{1}
	s.Apply(out, []float32{0.5})
	if math.Abs(float64(out[0])-0.5) > 1e-6 {
		t.Errorf("out[0] = %v, want 0.5 after 50%% suppression", out[0])
	}
}
