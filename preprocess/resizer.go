package preprocess

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-segdist"
	"gocv.io/x/gocv"
)

// Resizer defines the struct used for letterbox resizing gocv Mats into the
// model input tensor
type Resizer struct {
	// srcWidth is the width of the source image
	srcWidth int
	// srcHeight is the height of the source image
	srcHeight int
	// info holds the letterbox parameters used in scaling
	info LetterboxInfo
	// tempMat is a Mat used during the resize process
	tempMat gocv.Mat
	// rgbMat holds the color converted source
	rgbMat gocv.Mat
	// padMat holds the letterboxed image
	padMat gocv.Mat
	// floatMat holds the normalized float32 image
	floatMat gocv.Mat
}

// NewResizer returns a resizer used for scaling an image to the needed
// dimensions for input tensor size
func NewResizer(srcWidth, srcHeight, destWidth, destHeight int) *Resizer {
	return &Resizer{
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		info:      ComputeLetterbox(srcWidth, srcHeight, destWidth, destHeight),
		tempMat:   gocv.NewMat(),
		rgbMat:    gocv.NewMat(),
		padMat:    gocv.NewMat(),
		floatMat:  gocv.NewMat(),
	}
}

// Close frees memory allocated during resize process
func (r *Resizer) Close() error {
	for _, m := range []*gocv.Mat{&r.tempMat, &r.rgbMat, &r.padMat, &r.floatMat} {
		if err := m.Close(); err != nil {
			return err
		}
	}

	return nil
}

// LetterBoxResize resizes the input image to the dimensions needed for the input
// tensor size whilst maintaining image aspect.  Color is that used for letter
// box padding.
func (r *Resizer) LetterBoxResize(src gocv.Mat, dest *gocv.Mat, color color.RGBA) {

	resizeW, resizeH := r.info.ResizedSize()
	left, top := r.info.padOffsets()

	gocv.Resize(src, &r.tempMat, image.Pt(resizeW, resizeH),
		0, 0, gocv.InterpolationNearestNeighbor)

	gocv.CopyMakeBorder(r.tempMat, dest, top, r.info.InputHeight-resizeH-top,
		left, r.info.InputWidth-resizeW-left, gocv.BorderConstant, color)
}

// Tensor converts a BGR source Mat into a letterboxed, x/255 normalized
// float32 input tensor in the given layout
func (r *Resizer) Tensor(src gocv.Mat, layout segdist.InputLayout) ([]float32, error) {

	if src.Cols() != r.srcWidth || src.Rows() != r.srcHeight {
		return nil, fmt.Errorf("source is %dx%d, resizer expects %dx%d",
			src.Cols(), src.Rows(), r.srcWidth, r.srcHeight)
	}

	gocv.CvtColor(src, &r.rgbMat, gocv.ColorBGRToRGB)
	r.LetterBoxResize(r.rgbMat, &r.padMat, color.RGBA{A: 255})

	r.padMat.ConvertToWithParams(&r.floatMat, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	// make mat continuous
	if !r.floatMat.IsContinuous() {
		r.floatMat = r.floatMat.Clone()
	}

	data, err := r.floatMat.DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	out := make([]float32, len(data))

	if layout == segdist.InputNCHW {
		hwcToCHW(data, out, r.info.InputWidth, r.info.InputHeight)
	} else {
		copy(out, data)
	}

	return out, nil
}

// Info returns the letterbox parameters
func (r *Resizer) Info() LetterboxInfo {
	return r.info
}

// ScaleFactor returns the scale factor used in letterbox resize
func (r *Resizer) ScaleFactor() float64 {
	return r.info.Scale
}

// XPad returns the x padding used in letterbox resize
func (r *Resizer) XPad() float64 {
	return r.info.PadX
}

// YPad returns the y padding used in letterbox resize
func (r *Resizer) YPad() float64 {
	return r.info.PadY
}

// SrcWidth returns the width of the source image
func (r *Resizer) SrcWidth() int {
	return r.srcWidth
}

// SrcHeight returns the height of the source image
func (r *Resizer) SrcHeight() int {
	return r.srcHeight
}

// hwcToCHW transposes an interleaved 3 channel buffer to planar order
func hwcToCHW(src, dst []float32, width, height int) {
	plane := width * height

	for i := 0; i < plane; i++ {
		dst[i] = src[i*3]
		dst[plane+i] = src[i*3+1]
		dst[plane*2+i] = src[i*3+2]
	}
}
