package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-segdist/pipeline"
	"github.com/swdee/go-segdist/postprocess"
	"gocv.io/x/gocv"
)

// SegmentMask renders the detection masks as a transparent overlay on top of
// the whole image.  Masks must be the same size as the image.
func SegmentMask(img *gocv.Mat, dets []pipeline.Detection, alpha float64) error {

	// get dimensions
	width := img.Cols()
	height := img.Rows()

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()

	for _, det := range dets {
		if det.Mask == nil {
			continue
		}

		rows, cols := det.Mask.Dims()

		if rows != height || cols != width {
			return fmt.Errorf("mask is %dx%d, image is %dx%d", cols, rows, width, height)
		}

		clr := ClassColor(det.Box.ClassID)

		for j := 0; j < height; j++ {
			row := det.Mask.RawRowView(j)

			for k := 0; k < width; k++ {

				if row[k] <= postprocess.MaskThreshold {
					continue
				}

				// calculate position in the byte slice, Mat is BGR
				pixelPos := j*width*3 + k*3

				base := color.RGBA{
					R: imgData[pixelPos+2],
					G: imgData[pixelPos+1],
					B: imgData[pixelPos+0],
					A: 255,
				}

				out := Blend(base, clr, alpha)

				imgData[pixelPos+0] = out.B
				imgData[pixelPos+1] = out.G
				imgData[pixelPos+2] = out.R
			}
		}
	}

	// copy back to the original mat
	tmpImg, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)

	if err != nil {
		return fmt.Errorf("error creating overlay Mat: %w", err)
	}

	defer tmpImg.Close()
	tmpImg.CopyTo(img)

	return nil
}

// binaryMask returns an 8 bit Mat that is 255 where the mask is inside the
// object
func binaryMask(det pipeline.Detection) (gocv.Mat, error) {

	rows, cols := det.Mask.Dims()
	data := make([]byte, rows*cols)

	for y := 0; y < rows; y++ {
		for x, v := range det.Mask.RawRowView(y)[:cols] {
			if v > postprocess.MaskThreshold {
				data[y*cols+x] = 255
			}
		}
	}

	return gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8U, data)
}

// isContourInsideBoxRect checks if the bounding box of a contour fits
// inside the bounding box of the detection result plus a pad
func isContourInsideBoxRect(contourRect, bbox image.Rectangle, pad int) bool {
	return contourRect.Min.X >= bbox.Min.X-pad &&
		contourRect.Min.Y >= bbox.Min.Y-pad &&
		contourRect.Max.X <= bbox.Max.X+pad &&
		contourRect.Max.Y <= bbox.Max.Y+pad
}

// findTopPoint finds the highest point (Y axis) of the given point vector
func findTopPoint(approx gocv.PointVector) image.Point {
	topPoint := approx.At(0)

	for i := 1; i < approx.Size(); i++ {
		pt := approx.At(i)

		if pt.Y < topPoint.Y {
			topPoint = pt
		}
	}

	return topPoint
}

// SegmentOutline renders the outline of each detection mask with its label
// placed above the top most point of the outline.  Contours smaller than
// minArea pixels are ignored as noise.
func SegmentOutline(img *gocv.Mat, dets []pipeline.Detection, minArea float64,
	font Font, lineThickness int) error {

	width := img.Cols()
	height := img.Rows()

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {
		if det.Mask == nil {
			continue
		}

		objMask, err := binaryMask(det)

		if err != nil {
			return fmt.Errorf("error creating mask Mat: %w", err)
		}

		contours := gocv.FindContours(objMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		objMask.Close()

		useClr := ClassColor(det.Box.ClassID)
		bbox := PixelRect(det, width, height)
		text := Label(det)
		labelled := false

		for i := 0; i < contours.Size(); i++ {
			contour := contours.At(i)

			// filter out small contours picked up from aliasing/noise in binary mask
			if gocv.ContourArea(contour) < minArea {
				continue
			}

			if !isContourInsideBoxRect(gocv.BoundingRect(contour), bbox, 10) {
				continue
			}

			approx := gocv.ApproxPolyDP(contour, 3, true)

			ptsVec := gocv.NewPointsVector()
			ptsVec.Append(approx)

			gocv.Polylines(img, ptsVec, true, useClr, lineThickness)

			// label only the first outline of each object
			if !labelled {
				top := findTopPoint(approx)
				textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

				font := font
				font.Alignment = Center

				bRect, pos := font.placeLabel(text, textSize, bbox.Min.X, bbox.Max.X,
					top.Y, lineThickness)

				boxLabels = append(boxLabels, boxLabel{
					rect:    bRect,
					clr:     useClr,
					text:    text,
					textPos: pos,
				})

				labelled = true
			}

			approx.Close()
			ptsVec.Close()
		}

		contours.Close()
	}

	drawLabels(img, boxLabels, font)

	return nil
}

// MaskImage flattens the detection masks into a single grayscale image where
// each object's pixels hold its 1 based position in dets, later detections
// are painted over earlier ones.  Background is zero.
func MaskImage(dets []pipeline.Detection, width, height int) *image.Gray {

	out := image.NewGray(image.Rect(0, 0, width, height))

	for i, det := range dets {
		if det.Mask == nil {
			continue
		}

		rows, cols := det.Mask.Dims()
		id := uint8((i % 255) + 1)

		for y := 0; y < rows && y < height; y++ {
			row := det.Mask.RawRowView(y)

			for x := 0; x < cols && x < width; x++ {
				if row[x] > postprocess.MaskThreshold {
					out.Pix[y*out.Stride+x] = id
				}
			}
		}
	}

	return out
}
