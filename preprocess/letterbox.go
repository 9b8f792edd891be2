package preprocess

import (
	"fmt"
	"math"
)

// Axis selects which letterbox dimension a coordinate is mapped along
type Axis int

const (
	AxisX Axis = 0
	AxisY Axis = 1
)

// LetterboxInfo holds the parameters of a letterbox resize from an original
// frame to the model input.  It is created once per frame and never mutated.
type LetterboxInfo struct {
	// Scale is the uniform scale factor applied to the original frame
	Scale float64
	// PadX and PadY are the padding added to each side of the resized frame.
	// These are not rounded and may be a half pixel
	PadX float64
	PadY float64
	// InputWidth and InputHeight are the model input dimensions
	InputWidth  int
	InputHeight int
}

// ComputeLetterbox works out the scale and padding needed to fit a frame of
// frameW x frameH into a model input of targetW x targetH without distorting
// its aspect ratio
func ComputeLetterbox(frameW, frameH, targetW, targetH int) LetterboxInfo {

	scale := math.Min(
		float64(targetW)/float64(frameW),
		float64(targetH)/float64(frameH),
	)

	resizedW := math.Round(float64(frameW) * scale)
	resizedH := math.Round(float64(frameH) * scale)

	return LetterboxInfo{
		Scale:       scale,
		PadX:        (float64(targetW) - resizedW) / 2,
		PadY:        (float64(targetH) - resizedH) / 2,
		InputWidth:  targetW,
		InputHeight: targetH,
	}
}

// ResizedSize returns the dimensions of the frame after scaling, before
// padding is added
func (l LetterboxInfo) ResizedSize() (int, int) {
	return l.InputWidth - int(math.Round(l.PadX*2)),
		l.InputHeight - int(math.Round(l.PadY*2))
}

// padOffsets returns the whole pixel left and top padding, any odd pixel of
// padding goes to the right and bottom
func (l LetterboxInfo) padOffsets() (int, int) {
	return int(math.Floor(l.PadX)), int(math.Floor(l.PadY))
}

// axis returns the input dimension and padding for the given axis
func (l LetterboxInfo) axis(a Axis) (float64, float64) {
	if a == AxisY {
		return float64(l.InputHeight), l.PadY
	}

	return float64(l.InputWidth), l.PadX
}

// ToOriginal maps a normalized model input coordinate back to a normalized
// coordinate of the original frame.  Coordinates that fall in the padding are
// clamped to the frame edge rather than dropped.
func ToOriginal(coord float64, a Axis, info LetterboxInfo, originalDim int) float64 {

	inputDim, pad := info.axis(a)

	pixel := coord*inputDim - pad
	res := pixel / info.Scale / float64(originalDim)

	return clamp(res, 0, 1)
}

// ToModel is the forward letterbox mapping of a normalized original frame
// coordinate into normalized model input space
func ToModel(coord float64, a Axis, info LetterboxInfo, originalDim int) float64 {

	inputDim, pad := info.axis(a)

	return (coord*float64(originalDim)*info.Scale + pad) / inputDim
}

// String returns the LetterboxInfo in readable format
func (l LetterboxInfo) String() string {
	return fmt.Sprintf("scale=%.4f, padX=%.1f, padY=%.1f, input=%dx%d",
		l.Scale, l.PadX, l.PadY, l.InputWidth, l.InputHeight)
}

// clamp restricts val to be within the range min and max
func clamp(val, min, max float64) float64 {

	if val > min {

		if val < max {
			return val
		}

		return max
	}

	return min
}
