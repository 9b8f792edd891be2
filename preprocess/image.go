package preprocess

import (
	"image"

	"github.com/swdee/go-segdist"
	"golang.org/x/image/draw"
)

// ImageTensor letterboxes img onto a black canvas of the model input size
// using nearest neighbour scaling and returns the x/255 normalized RGB pixels
// as a float32 tensor in the given layout.  It is the pure Go counterpart of
// Resizer.Tensor for callers that hold an image.Image rather than a gocv Mat.
func ImageTensor(img image.Image, info LetterboxInfo, layout segdist.InputLayout) []float32 {

	canvas := image.NewRGBA(image.Rect(0, 0, info.InputWidth, info.InputHeight))

	resizeW, resizeH := info.ResizedSize()
	left, top := info.padOffsets()

	dstRect := image.Rect(left, top, left+resizeW, top+resizeH)
	draw.NearestNeighbor.Scale(canvas, dstRect, img, img.Bounds(), draw.Src, nil)

	return rgbaToTensor(canvas, layout)
}

// rgbaToTensor normalizes the RGB channels of an RGBA image, alpha is dropped
func rgbaToTensor(img *image.RGBA, layout segdist.InputLayout) []float32 {

	width := img.Rect.Dx()
	height := img.Rect.Dy()
	plane := width * height

	out := make([]float32, plane*3)

	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]

		for x := 0; x < width; x++ {
			px := row[x*4 : x*4+3]
			i := y*width + x

			if layout == segdist.InputNCHW {
				out[i] = float32(px[0]) / 255
				out[plane+i] = float32(px[1]) / 255
				out[plane*2+i] = float32(px[2]) / 255
				continue
			}

			out[i*3] = float32(px[0]) / 255
			out[i*3+1] = float32(px[1]) / 255
			out[i*3+2] = float32(px[2]) / 255
		}
	}

	return out
}
