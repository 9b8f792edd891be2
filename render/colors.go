package render

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, B: 50, A: 255}

	// classColors is the palette used to paint boxes and masks, indexed by
	// class ID
	classColors = Palette(80)
)

// goldenAngle spreads consecutive hues as far apart as possible
var goldenAngle = 180 * (3 - math.Sqrt(5))

// Palette returns n distinct, saturated colors.  Hues step around the color
// wheel by the golden angle so neighbouring class IDs never get similar
// colors, brightness alternates to separate hues that land close together.
func Palette(n int) []color.RGBA {

	out := make([]color.RGBA, n)

	for i := 0; i < n; i++ {
		hue := math.Mod(float64(i)*goldenAngle, 360)
		value := 0.95

		if i%2 == 1 {
			value = 0.75
		}

		out[i] = toRGBA(colorful.Hsv(hue, 0.8, value))
	}

	return out
}

// ClassColor returns the palette color for a class ID
func ClassColor(classID int) color.RGBA {

	if classID < 0 {
		classID = -classID
	}

	return classColors[classID%len(classColors)]
}

// TextColor returns black or white, whichever reads better on background
func TextColor(background color.RGBA) color.RGBA {

	c, _ := colorful.MakeColor(background)
	l, _, _ := c.Lab()

	if l > 0.6 {
		return Black
	}

	return White
}

// Blend mixes overlay into base by alpha
func Blend(base, overlay color.RGBA, alpha float64) color.RGBA {

	b, _ := colorful.MakeColor(base)
	o, _ := colorful.MakeColor(overlay)

	return toRGBA(b.BlendRgb(o, alpha))
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
