package server

import (
	"math"

	"github.com/swdee/go-segdist/pipeline"
	"github.com/swdee/go-segdist/postprocess"
)

// BoxResponse is a box in original frame normalized coordinates
type BoxResponse struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectionResponse is a single detection
type DetectionResponse struct {
	ID         int64       `json:"id"`
	Class      string      `json:"class"`
	ClassID    int         `json:"class_id"`
	Confidence float64     `json:"confidence"`
	Box        BoxResponse `json:"box"`
	// Distance is in meters, omitted when it could not be estimated
	Distance *float64 `json:"distance,omitempty"`
	MaskArea int      `json:"mask_area"`
}

// TimingsResponse are the stage timings in milliseconds
type TimingsResponse struct {
	Preprocess  float64 `json:"preprocess_ms"`
	Inference   float64 `json:"inference_ms"`
	Postprocess float64 `json:"postprocess_ms"`
	Total       float64 `json:"total_ms"`
}

// DetectResponse is the body returned by /v1/detect
type DetectResponse struct {
	FrameID    string              `json:"frame_id"`
	Status     string              `json:"status"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Detections []DetectionResponse `json:"detections"`
	Timings    TimingsResponse     `json:"timings"`
}

// OrientationRequest is a device orientation reading in degrees
type OrientationRequest struct {
	Pitch *float64 `json:"pitch"`
	Roll  *float64 `json:"roll"`
}

// OrientationResponse reports if the reading was accepted and the zenith
// angle now in use
type OrientationResponse struct {
	Accepted  bool     `json:"accepted"`
	ZenithDeg *float64 `json:"zenith_deg,omitempty"`
}

// ErrorResponse is returned with every non 2xx status
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toDetectResponse(res pipeline.FrameResult) DetectResponse {

	out := DetectResponse{
		FrameID:    res.FrameID,
		Status:     res.Status.String(),
		Width:      res.FrameWidth,
		Height:     res.FrameHeight,
		Detections: make([]DetectionResponse, 0, len(res.Detections)),
		Timings: TimingsResponse{
			Preprocess:  ms(res.Timings.Preprocess.Seconds()),
			Inference:   ms(res.Timings.Inference.Seconds()),
			Postprocess: ms(res.Timings.Postprocess.Seconds()),
			Total:       ms(res.Timings.Total.Seconds()),
		},
	}

	for _, d := range res.Detections {
		dr := DetectionResponse{
			ID:         d.ID,
			Class:      d.Box.ClassName,
			ClassID:    d.Box.ClassID,
			Confidence: d.Box.Confidence,
			Box: BoxResponse{
				X1: d.Box.X1,
				Y1: d.Box.Y1,
				X2: d.Box.X2,
				Y2: d.Box.Y2,
			},
			MaskArea: postprocess.MaskArea(d.Mask),
		}

		if d.HasDistance {
			dist := d.Distance
			dr.Distance = &dist
		}

		out.Detections = append(out.Detections, dr)
	}

	return out
}

// ms converts seconds to milliseconds rounded to microseconds
func ms(seconds float64) float64 {
	return math.Round(seconds*1e6) / 1e3
}
