package preprocess

import (
	"image/color"
	"math"
	"testing"

	"github.com/swdee/go-segdist"
	"gocv.io/x/gocv"
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  float64
		expectedYPad  float64
		expectedScale float64
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
		{641, 640, 640, 640, 0, 0.5, 640.0 / 641.0},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSize(tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC3)

		resizedImg := gocv.NewMat()

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)

		resizer.LetterBoxResize(img, &resizedImg, black)

		if resizer.XPad() != tc.expectedXPad || resizer.YPad() != tc.expectedYPad {
			t.Errorf("Test failed for src (%d, %d): Padding values wrong, expected XPad=%.1f, YPad=%.1f, got xPad=%.1f, yPad=%.1f",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, resizer.XPad(), resizer.YPad())
		}

		if math.Abs(resizer.ScaleFactor()-tc.expectedScale) > 1e-9 {
			t.Errorf("Test failed for src (%d, %d): Scalefactor incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, resizer.ScaleFactor())
		}

		if resizedImg.Cols() != tc.resizeWidth || resizedImg.Rows() != tc.resizeHeight {
			t.Errorf("Test failed for src (%d, %d): output is %dx%d, expected %dx%d",
				tc.srcWidth, tc.srcHeight, resizedImg.Cols(), resizedImg.Rows(),
				tc.resizeWidth, tc.resizeHeight)
		}

		img.Close()
		resizedImg.Close()
		resizer.Close()
	}
}

func TestResizerTensor(t *testing.T) {

	// solid blue in BGR order
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), 4, 8, gocv.MatTypeCV8UC3)
	defer img.Close()

	resizer := NewResizer(8, 4, 8, 8)
	defer resizer.Close()

	data, err := resizer.Tensor(img, segdist.InputNHWC)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(data) != 8*8*3 {
		t.Fatalf("expected %d values, got %d", 8*8*3, len(data))
	}

	// row 0 is padding, row 4 is inside the image
	if data[0] != 0 || data[1] != 0 || data[2] != 0 {
		t.Errorf("expected black padding, got %v", data[0:3])
	}

	i := (4*8 + 3) * 3
	if data[i] != 0 || data[i+1] != 0 || data[i+2] != 1 {
		t.Errorf("expected RGB blue pixel (0,0,1), got %v", data[i:i+3])
	}

	if _, err := resizer.Tensor(gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3), segdist.InputNHWC); err == nil {
		t.Error("expected error for wrong source size")
	}
}
