package postprocess

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Candidate is a single decoded detection.  Coordinates are normalized to
// [0,1] in model input space when produced by the Decoder and in original
// frame space once mapped back by the YOLOv8Seg processor.
type Candidate struct {
	// X1, Y1 is the top left corner and X2, Y2 the bottom right
	X1, Y1, X2, Y2 float64
	// CX, CY is the box center and W, H the box size
	CX, CY, W, H float64
	// Confidence is the best class score
	Confidence float64
	// ClassID is the index of the best class
	ClassID int
	// ClassName is the label for ClassID
	ClassName string
	// MaskWeights are the per prototype coefficients used to build the
	// instance mask
	MaskWeights []float64
	// Index is the anchor column the candidate was decoded from, used to keep
	// NMS ordering deterministic
	Index int
}

// Valid returns true if the box corners are ordered and inside the unit
// square
func (c Candidate) Valid() bool {
	return c.X1 >= 0 && c.Y1 >= 0 && c.X2 <= 1 && c.Y2 <= 1 &&
		c.X1 < c.X2 && c.Y1 < c.Y2
}

// String returns the candidate in readable format
func (c Candidate) String() string {
	return fmt.Sprintf("%s (%.2f) [%.3f,%.3f,%.3f,%.3f]",
		c.ClassName, c.Confidence, c.X1, c.Y1, c.X2, c.Y2)
}

// Segmentation is a kept detection with its instance mask
type Segmentation struct {
	// ID is a unique ID assigned to the detection result
	ID int64
	// Box is the detection in original frame normalized coordinates
	Box Candidate
	// Mask is the instance mask at frame height x width, values above
	// MaskThreshold are inside the object
	Mask *mat.Dense
}
