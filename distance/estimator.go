package distance

import (
	"fmt"
	"math"
	"sync"
)

const (
	// MaxDistanceJump is the change in meters between consecutive estimates
	// that is treated as a possible outlier
	MaxDistanceJump = 3.0
	// JumpStabilityThreshold is the number of consecutive jumps needed before
	// the new distance is accepted
	JumpStabilityThreshold = 3
	// minAngleDeg is the smallest total angle below the horizon accepted,
	// flatter angles put the ground point too far away to be meaningful
	minAngleDeg = 0.5
)

// Config defines the camera geometry used for estimation
type Config struct {
	// CameraHeight is the height of the camera above the ground in meters
	CameraHeight float64 `yaml:"camera_height" json:"camera_height"`
	// VerticalFOV is the camera's vertical field of view in degrees
	VerticalFOV float64 `yaml:"vertical_fov" json:"vertical_fov"`
}

// DefaultConfig returns a Config for a handheld phone camera
// - Camera Height: 1.5m
// - Vertical FOV: 60 degrees
func DefaultConfig() Config {
	return Config{
		CameraHeight: 1.5,
		VerticalFOV:  60,
	}
}

// Validate checks the geometry is usable
func (c Config) Validate() error {

	if !(c.CameraHeight > 0) {
		return fmt.Errorf("camera height %f must be positive", c.CameraHeight)
	}

	if !(c.VerticalFOV > 0 && c.VerticalFOV < 180) {
		return fmt.Errorf("vertical FOV %f must be in (0,180)", c.VerticalFOV)
	}

	return nil
}

// Estimator calculates object distances and holds the per object jump filter
// state
type Estimator struct {
	mu       sync.Mutex
	cfg      Config
	counters map[string]int
}

// NewEstimator returns an Estimator with the given camera geometry
func NewEstimator(cfg Config) (*Estimator, error) {

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Estimator{
		cfg:      cfg,
		counters: make(map[string]int),
	}, nil
}

// Config returns the current camera geometry
func (e *Estimator) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetConfig replaces the camera geometry
func (e *Estimator) SetConfig(cfg Config) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()

	return nil
}

// SetCameraHeight sets the camera height in meters
func (e *Estimator) SetCameraHeight(height float64) error {
	cfg := e.Config()
	cfg.CameraHeight = height
	return e.SetConfig(cfg)
}

// SetVerticalFOV sets the vertical field of view in degrees
func (e *Estimator) SetVerticalFOV(fov float64) error {
	cfg := e.Config()
	cfg.VerticalFOV = fov
	return e.SetConfig(cfg)
}

// ClearHistory resets the jump counters of every object
func (e *Estimator) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.counters)
}

// Estimate returns the ground distance in meters to a point at pixel row
// bottomY of a frame frameHeight pixels tall, with the camera tilted
// zenithRad radians below the horizon.  False is returned if the point is
// at or above the horizon or too close to it.
func (e *Estimator) Estimate(bottomY float64, frameHeight int, zenithRad float64) (float64, bool) {
	return estimate(e.Config(), bottomY, frameHeight, zenithRad)
}

// EstimateTracked is Estimate followed by the jump filter for the object
// identified by key.  previous is the last distance returned for that object,
// zero or less when there is none.  While a new estimate differs from
// previous by more than MaxDistanceJump, previous is returned until the jump
// has been seen JumpStabilityThreshold times in a row.
func (e *Estimator) EstimateTracked(bottomY float64, frameHeight int, zenithRad float64,
	previous float64, key string) (float64, bool) {

	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := estimate(e.cfg, bottomY, frameHeight, zenithRad)

	if !ok || previous <= 0 || key == "" {
		return d, ok
	}

	if math.Abs(d-previous) <= MaxDistanceJump {
		e.counters[key] = 0
		return d, true
	}

	e.counters[key]++

	if e.counters[key] >= JumpStabilityThreshold {
		e.counters[key] = 0
		return d, true
	}

	return previous, true
}

// estimate implements the distance formula for the given geometry
func estimate(cfg Config, bottomY float64, frameHeight int, zenithRad float64) (float64, bool) {

	if frameHeight <= 0 {
		return 0, false
	}

	h := float64(frameHeight)
	offsetDeg := ((bottomY - h/2) / h) * cfg.VerticalFOV
	total := zenithRad + toRadians(offsetDeg)

	// NaN fails both comparisons and is rejected
	if !(total >= toRadians(minAngleDeg) && total < math.Pi/2) {
		return 0, false
	}

	d := cfg.CameraHeight / math.Tan(total)

	if !(d > 0) {
		return 0, false
	}

	return d, true
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
