package simulator

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// DistributionType selects how a recurring gap is drawn around its mean
type DistributionType int

const (
	DistFixed DistributionType = iota
	DistUniform
	DistGaussian
	DistExponential
)

// String returns the string representation of DistributionType
func (dt DistributionType) String() string {
	switch dt {
	case DistFixed:
		return "fixed"
	case DistUniform:
		return "uniform"
	case DistGaussian:
		return "gaussian"
	case DistExponential:
		return "exponential"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// ParseDistributionType parses a string into a DistributionType
func ParseDistributionType(s string) (DistributionType, error) {
	switch s {
	case "fixed", "":
		return DistFixed, nil
	case "uniform":
		return DistUniform, nil
	case "gaussian":
		return DistGaussian, nil
	case "exponential":
		return DistExponential, nil
	default:
		return DistFixed, fmt.Errorf("invalid DistributionType: %s (must be 'fixed', 'uniform', 'gaussian', or 'exponential')", s)
	}
}

// MarshalJSON implements json.Marshaler for DistributionType
func (dt DistributionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.String())
}

// UnmarshalJSON implements json.Unmarshaler for DistributionType
func (dt *DistributionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDistributionType(s)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler for DistributionType
func (dt *DistributionType) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseDistributionType(node.Value)
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}

// Distribution draws a gap around mean. Spread is the half-width for uniform
// draws and the standard deviation for Gaussian draws; it is ignored by the
// fixed and exponential distributions.
type Distribution interface {
	Sample(rng *RNG, mean, spread time.Duration) time.Duration
}

// FixedDistribution always returns the mean
type FixedDistribution struct{}

func (d *FixedDistribution) Sample(_ *RNG, mean, _ time.Duration) time.Duration {
	return mean
}

// UniformDistribution samples uniformly in [mean-spread, mean+spread), never
// below zero
type UniformDistribution struct{}

func (d *UniformDistribution) Sample(rng *RNG, mean, spread time.Duration) time.Duration {
	lo := mean - spread
	if lo < 0 {
		lo = 0
	}
	return rng.RangeDuration(lo, mean+spread)
}

// GaussianDistribution samples a normal gap truncated at zero
type GaussianDistribution struct{}

func (d *GaussianDistribution) Sample(rng *RNG, mean, spread time.Duration) time.Duration {
	return rng.GaussDuration(mean, spread)
}

// ExponentialDistribution samples memoryless gaps (Poisson arrivals) with the
// given mean
type ExponentialDistribution struct{}

func (d *ExponentialDistribution) Sample(rng *RNG, mean, _ time.Duration) time.Duration {
	return time.Duration(rng.Exponential(float64(mean)))
}

// NewDistribution creates a distribution based on type
func NewDistribution(distType DistributionType) Distribution {
	switch distType {
	case DistUniform:
		return &UniformDistribution{}
	case DistGaussian:
		return &GaussianDistribution{}
	case DistExponential:
		return &ExponentialDistribution{}
	default:
		return &FixedDistribution{}
	}
}

// GapFunc adapts a distribution to the Scheduler.ScheduleRepeating signature.
// Gaps of zero are bumped to one millisecond so a repeating event can never
// spin at a single instant.
func GapFunc(rng *RNG, dist Distribution, mean, spread time.Duration) func() time.Duration {
	return func() time.Duration {
		gap := dist.Sample(rng, mean, spread)
		if gap <= 0 {
			gap = time.Millisecond
		}
		return gap
	}
}
