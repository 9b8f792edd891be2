package pipeline

import (
	"fmt"
	"time"

	"github.com/swdee/go-segdist/postprocess"
)

// Status identifies which variant a FrameResult holds
type Status int

const (
	// StatusDetections means at least one object was detected
	StatusDetections Status = iota
	// StatusEmpty means the frame was processed and nothing was found
	StatusEmpty
	// StatusError means the frame could not be processed
	StatusError
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusDetections:
		return "detections"
	case StatusEmpty:
		return "empty"
	case StatusError:
		return "error"
	}

	return fmt.Sprintf("status(%d)", int(s))
}

// Detection is a segmented object with its estimated ground distance
type Detection struct {
	postprocess.Segmentation
	// Distance is the ground distance in meters, only set when HasDistance
	// is true
	Distance float64
	// HasDistance is false when no distance could be estimated, eg: no
	// device angle yet or the object is above the horizon
	HasDistance bool
	// ObjectKey identifies the object for distance tracking between frames.
	// It is the class name and the object's left to right rank within its
	// class, eg: "car#1"
	ObjectKey string
}

// Timings records how long each stage of a frame took
type Timings struct {
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// String returns the timings in readable format
func (t Timings) String() string {
	return fmt.Sprintf("preprocess=%s, inference=%s, postprocess=%s, total=%s",
		t.Preprocess, t.Inference, t.Postprocess, t.Total)
}

// FrameResult is the outcome of processing one frame
type FrameResult struct {
	// FrameID uniquely identifies the frame
	FrameID string
	// Status selects the variant
	Status Status
	// Detections are set for StatusDetections in descending confidence order
	Detections []Detection
	// Timings are set for StatusDetections and StatusEmpty
	Timings Timings
	// Err is set for StatusError
	Err error
	// FrameWidth and FrameHeight are the original frame dimensions
	FrameWidth  int
	FrameHeight int
}

// Listener receives frame results
type Listener interface {
	OnDetect(dets []Detection, timings Timings)
	OnEmpty()
	OnError(err error)
}

// Dispatch calls the one Listener method matching the result variant
func Dispatch(res FrameResult, l Listener) {

	if l == nil {
		return
	}

	switch res.Status {
	case StatusDetections:
		l.OnDetect(res.Detections, res.Timings)
	case StatusEmpty:
		l.OnEmpty()
	default:
		l.OnError(res.Err)
	}
}

// ListenerFuncs adapts plain functions to a Listener, nil functions are
// skipped
type ListenerFuncs struct {
	Detect func(dets []Detection, timings Timings)
	Empty  func()
	Error  func(err error)
}

func (f ListenerFuncs) OnDetect(dets []Detection, timings Timings) {
	if f.Detect != nil {
		f.Detect(dets, timings)
	}
}

func (f ListenerFuncs) OnEmpty() {
	if f.Empty != nil {
		f.Empty()
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}
