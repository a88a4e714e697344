package dsp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// suppressorGate is the reference magnitude above which the output is
	// attenuated.
	suppressorGate = 1e-3

	// defaultSuppression is the fraction of the output removed while the
	// reference is active.
	defaultSuppression = 0.1
)

// ResidualSuppressor applies a deterministic per-sample gain that further
// attenuates the linear canceller's output while the far-end reference is
// active.
//
// There is no lookahead and no spectral processing at this layer; the
// attenuation is a plain scalar so the stage adds zero latency. Systems
// that need deeper residual reduction can substitute spectral subtraction
// behind the same (in, ref) -> out contract.
type ResidualSuppressor struct {
	suppression float32
}

// NewResidualSuppressor creates a suppressor removing the given fraction of
// the output during far-end activity.
//
// Returns ErrConfiguration if suppression is outside [0, 1).
func NewResidualSuppressor(suppression float32) (*ResidualSuppressor, error) {
	if suppression < 0 || suppression >= 1 {
		logrus.WithFields(logrus.Fields{
			"function":    "NewResidualSuppressor",
			"suppression": suppression,
		}).Error("Residual suppressor validation failed")
		return nil, fmt.Errorf("%w: suppression must be in [0, 1), got %g", ErrConfiguration, suppression)
	}
	return &ResidualSuppressor{suppression: suppression}, nil
}

// NewDefaultResidualSuppressor creates a suppressor with the standard 10%
// attenuation.
func NewDefaultResidualSuppressor() *ResidualSuppressor {
	return &ResidualSuppressor{suppression: defaultSuppression}
}

// SetSuppression updates the attenuation fraction.
func (s *ResidualSuppressor) SetSuppression(suppression float32) error {
	if suppression < 0 || suppression >= 1 {
		return fmt.Errorf("%w: suppression must be in [0, 1), got %g", ErrConfiguration, suppression)
	}
	s.suppression = suppression
	return nil
}

// Apply attenuates out in place wherever the aligned reference is active.
// out and ref must be the same length.
func (s *ResidualSuppressor) Apply(out, ref []float32) {
	gain := 1 - s.suppression
	for i := range out {
		r := ref[i]
		if r > suppressorGate || r < -suppressorGate {
			out[i] *= gain
		}
	}
}
