package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the text label to the bounding box
	Alignment Alignment
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// boxLabel defines where a detection label should be rendered on the
// source image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// placeLabel works out the background box and text origin of a label sitting
// on top of the span left..right at row top
func (f Font) placeLabel(text string, textSize image.Point, left, right, top,
	lineThickness int) (image.Rectangle, image.Point) {

	var centerX int

	switch f.Alignment {
	case Center:
		centerX = (left + right) / 2

	case Right:
		centerX = right - (textSize.X / 2) - f.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = left + (textSize.X / 2) + f.LeftPad - (lineThickness / 2)
	}

	// keep labels of boxes touching the top edge inside the image
	if top-textSize.Y-f.TopPad-f.BottomPad < 0 {
		top = textSize.Y + f.TopPad + f.BottomPad
	}

	pos := image.Pt(centerX-textSize.X/2, top-f.BottomPad)

	rect := image.Rect(centerX-textSize.X/2-f.LeftPad,
		top-textSize.Y-f.TopPad-f.BottomPad,
		centerX+textSize.X/2+f.RightPad, top)

	return rect, pos
}

// drawLabels draws precalculated labels so they are the top most layer on the
// image and don't get overlapped with masks or outlines
func drawLabels(img *gocv.Mat, labels []boxLabel, f Font) {
	for _, l := range labels {
		// draw box text gets written on
		gocv.Rectangle(img, l.rect, l.clr, -1)

		// Draw the label over box
		gocv.PutTextWithParams(img, l.text, l.textPos,
			f.Face, f.Scale, TextColor(l.clr), f.Thickness,
			f.LineType, false)
	}
}
