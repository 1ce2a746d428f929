package tiltmeter

import "math"

const (
	// DefaultSensitivity is the number of raw counts per g.
	DefaultSensitivity = 980.0
	// DefaultFilterWeight is the weight given to each new sample.
	DefaultFilterWeight = 0.1
	// DefaultClampLimit is the upper bound of the smoothed value, the top of
	// the arcsine domain.
	DefaultClampLimit = 1.0
	// DefaultSeed is the smoothed value before the first sample.
	DefaultSeed = 0.1
)

// EstimatorConfig holds the tunables of a TiltEstimator.
type EstimatorConfig struct {
	Sensitivity  float64 `yaml:"sensitivity" json:"sensitivity"`
	FilterWeight float64 `yaml:"filter_weight" json:"filter_weight"`
	ClampLimit   float64 `yaml:"clamp_limit" json:"clamp_limit"`
	Seed         float64 `yaml:"seed" json:"seed"`
}

// DefaultEstimatorConfig returns the configuration used by the tilt
// firmware example.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		Sensitivity:  DefaultSensitivity,
		FilterWeight: DefaultFilterWeight,
		ClampLimit:   DefaultClampLimit,
		Seed:         DefaultSeed,
	}
}

// AngleReport is the result of feeding one sample to a TiltEstimator.
type AngleReport struct {
	SmoothedX    float64 `json:"smoothed_x"`
	AngleDegrees float64 `json:"angle_degrees"`
}

// TiltEstimator tracks the magnitude of the x axis with an exponential
// moving average and turns it into a tilt angle. It is not safe for
// concurrent use.
type TiltEstimator struct {
	cfg       EstimatorConfig
	smoothedX float64
}

// NewTiltEstimator returns an estimator seeded with cfg.Seed. Zero fields
// in cfg fall back to the defaults.
func NewTiltEstimator(cfg EstimatorConfig) *TiltEstimator {
	def := DefaultEstimatorConfig()
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = def.Sensitivity
	}
	if cfg.FilterWeight == 0 {
		cfg.FilterWeight = def.FilterWeight
	}
	if cfg.ClampLimit == 0 {
		cfg.ClampLimit = def.ClampLimit
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}

	return &TiltEstimator{
		cfg:       cfg,
		smoothedX: cfg.Seed,
	}
}

// Update folds the raw x axis reading into the estimate and returns the
// new smoothed value together with the derived angle.
func (e *TiltEstimator) Update(x int) AngleReport {
	normalized := float64(x) / e.cfg.Sensitivity

	k := e.cfg.FilterWeight
	e.smoothedX = e.smoothedX*(1-k) + math.Abs(normalized)*k

	// asin is undefined above 1; rounding can push the average past it.
	e.smoothedX = ClampUpper(e.smoothedX, math.Min(e.cfg.ClampLimit, 1))

	return AngleReport{
		SmoothedX:    e.smoothedX,
		AngleDegrees: Degrees(math.Asin(e.smoothedX)),
	}
}

// SmoothedX returns the current estimate without changing it.
func (e *TiltEstimator) SmoothedX() float64 {
	return e.smoothedX
}

// Config returns the configuration the estimator was built with.
func (e *TiltEstimator) Config() EstimatorConfig {
	return e.cfg
}

// Degrees converts radians to degrees. It scales linearly and does not wrap.
func Degrees(radians float64) float64 {
	return radians * 180 / math.Pi
}

// ClampUpper returns limit if value is above it, value otherwise.
func ClampUpper(value, limit float64) float64 {
	if value > limit {
		return limit
	}
	return value
}
