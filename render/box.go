package render

import (
	"fmt"
	"image"

	"github.com/swdee/go-segdist/pipeline"
	"gocv.io/x/gocv"
)

// Label returns the text shown for a detection, eg: "person 0.87 | 3.2 m"
func Label(det pipeline.Detection) string {

	text := fmt.Sprintf("%s %.2f", det.Box.ClassName, det.Box.Confidence)

	if det.HasDistance {
		text += fmt.Sprintf(" | %.1f m", det.Distance)
	}

	return text
}

// PixelRect converts a detection's normalized box to pixel coordinates of a
// width x height image
func PixelRect(det pipeline.Detection, width, height int) image.Rectangle {
	return image.Rect(
		int(det.Box.X1*float64(width)),
		int(det.Box.Y1*float64(height)),
		int(det.Box.X2*float64(width)),
		int(det.Box.Y2*float64(height)),
	)
}

// DetectionBoxes renders the bounding boxes around the objects detected with
// their class, confidence and distance
func DetectionBoxes(img *gocv.Mat, dets []pipeline.Detection, font Font,
	lineThickness int) {

	width := img.Cols()
	height := img.Rows()

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(dets))

	for _, det := range dets {

		useClr := ClassColor(det.Box.ClassID)

		// draw rectangle around detected object
		rect := PixelRect(det, width, height)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := Label(det)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		bRect, pos := font.placeLabel(text, textSize, rect.Min.X, rect.Max.X,
			rect.Min.Y, lineThickness)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: pos,
		})
	}

	drawLabels(img, boxLabels, font)
}
