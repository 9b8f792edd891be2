package pipeline

import (
	"fmt"

	"github.com/swdee/go-segdist/distance"
	"github.com/swdee/go-segdist/postprocess"
)

// Config is the runtime configurable surface of a Detector.  Changes take
// effect from the next frame.
type Config struct {
	// CameraHeight is the camera height above the ground in meters
	CameraHeight float64 `yaml:"camera_height" json:"camera_height"`
	// VerticalFOV is the camera vertical field of view in degrees
	VerticalFOV float64 `yaml:"vertical_fov" json:"vertical_fov"`
	// ConfidenceThreshold is the class score a detection must exceed
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	// IoUThreshold is the NMS overlap at which a detection is suppressed
	IoUThreshold float64 `yaml:"iou_threshold" json:"iou_threshold"`
	// MaxResults caps the number of detections per frame
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// DefaultConfig returns the default detector configuration
func DefaultConfig() Config {

	d := distance.DefaultConfig()
	p := postprocess.DefaultParams()

	return Config{
		CameraHeight:        d.CameraHeight,
		VerticalFOV:         d.VerticalFOV,
		ConfidenceThreshold: p.ConfidenceThreshold,
		IoUThreshold:        p.IoUThreshold,
		MaxResults:          p.MaxResults,
	}
}

// Validate checks every setting is in range
func (c Config) Validate() error {

	if err := c.distance().Validate(); err != nil {
		return fmt.Errorf("invalid distance config: %w", err)
	}

	if err := c.params().Validate(); err != nil {
		return fmt.Errorf("invalid detection config: %w", err)
	}

	return nil
}

func (c Config) distance() distance.Config {
	return distance.Config{
		CameraHeight: c.CameraHeight,
		VerticalFOV:  c.VerticalFOV,
	}
}

func (c Config) params() postprocess.Params {
	return postprocess.Params{
		ConfidenceThreshold: c.ConfidenceThreshold,
		IoUThreshold:        c.IoUThreshold,
		MaxResults:          c.MaxResults,
	}
}
