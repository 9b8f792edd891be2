package postprocess

import (
	"fmt"
	"math"

	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/preprocess"
	"gonum.org/v1/gonum/mat"
)

// MaskThreshold is the value above which a mask cell is inside the object
const MaskThreshold = 0.5

const (
	// buffers
	bufAccum = "accum"
)

// MaskReconstructor builds per instance masks from the prototype tensor and
// each candidate's mask weights
type MaskReconstructor struct {
	info    segdist.ModelInfo
	bufPool *bufferPool
}

// NewMaskReconstructor returns a MaskReconstructor for the given model
func NewMaskReconstructor(info segdist.ModelInfo) *MaskReconstructor {

	pool := newBufferPool()
	pool.Create(bufAccum, info.MaskHeight*info.MaskWidth)

	return &MaskReconstructor{
		info:    info,
		bufPool: pool,
	}
}

// Reconstruct returns one mask of height x width for each candidate, in the
// same order.  Candidates must be in model input normalized coordinates.
// The prototype tensor is read only and may be shared between frames.
func (m *MaskReconstructor) Reconstruct(cands []Candidate, protos segdist.RawTensor,
	lb preprocess.LetterboxInfo, width, height int) ([]*mat.Dense, error) {

	if len(cands) == 0 {
		return []*mat.Dense{}, nil
	}

	protoW := m.info.MaskWidth
	protoH := m.info.MaskHeight
	count := m.info.MaskCount

	if protos.Empty() {
		return nil, maskConfigError("prototype tensor is empty")
	}

	if protoW <= 0 || protoH <= 0 || count <= 0 {
		return nil, maskConfigError("prototype grid is %dx%dx%d", count, protoH, protoW)
	}

	if len(protos.Data) != count*protoH*protoW {
		return nil, maskConfigError("prototype tensor has %d values, expected %d",
			len(protos.Data), count*protoH*protoW)
	}

	if width <= 0 || height <= 0 {
		return nil, maskConfigError("invalid mask target size %dx%d", width, height)
	}

	for _, c := range cands {
		if len(c.MaskWeights) != count {
			return nil, maskConfigError("candidate %d has %d mask weights, expected %d",
				c.Index, len(c.MaskWeights), count)
		}
	}

	// padding expressed in prototype cells
	padX := int(math.Round(lb.PadX * float64(protoW) / float64(lb.InputWidth)))
	padY := int(math.Round(lb.PadY * float64(protoH) / float64(lb.InputHeight)))

	crop := cropRect{
		x: padX,
		y: padY,
		w: protoW - padX*2,
		h: protoH - padY*2,
	}

	if crop.w <= 0 || crop.h <= 0 {
		return nil, maskConfigError("letterbox padding %dx%d leaves no prototype area", padX, padY)
	}

	planes := reshapePrototypes(protos.Data, m.info)
	masks := make([]*mat.Dense, len(cands))

	build := func(i int) {
		acc := m.bufPool.Get(bufAccum, protoH*protoW)
		defer m.bufPool.Put(bufAccum, acc)

		accumulateMask(cands[i], planes, protoW, protoH, acc)
		masks[i] = rescaleNearest(acc, protoW, crop, width, height)
	}

	// goroutines only pay off once there are enough boxes
	if len(cands) > 6 {
		parallelRows(len(cands), build)
	} else {
		for i := range cands {
			build(i)
		}
	}

	return masks, nil
}

// maskConfigError wraps ErrMaskConfig as a configuration error
func maskConfigError(format string, args ...any) error {
	return segdist.NewConfigError("mask",
		fmt.Errorf("%w: %s", segdist.ErrMaskConfig, fmt.Sprintf(format, args...)))
}

// cropRect is the un-padded region of the prototype grid
type cropRect struct {
	x, y, w, h int
}

// reshapePrototypes splits the prototype tensor into MaskCount flat planes
// of MaskHeight x MaskWidth in row major order
func reshapePrototypes(data []float32, info segdist.ModelInfo) [][]float64 {

	count := info.MaskCount
	size := info.MaskHeight * info.MaskWidth
	planes := make([][]float64, count)

	for k := 0; k < count; k++ {
		plane := make([]float64, size)

		if info.MaskLayout == segdist.MaskChannelsFirst {
			src := data[k*size : (k+1)*size]

			for i, v := range src {
				plane[i] = float64(v)
			}

		} else {
			for i := 0; i < size; i++ {
				plane[i] = float64(data[i*count+k])
			}
		}

		planes[k] = plane
	}

	return planes
}

// insideRange returns the half open range of cells i where i+1 lies strictly
// between lo and hi
func insideRange(lo, hi float64, n int) (int, int) {

	start := n
	end := 0

	for i := 0; i < n; i++ {
		p := float64(i + 1)

		if p > lo && p < hi {
			if i < start {
				start = i
			}

			end = i + 1
		}
	}

	if start > end {
		return 0, 0
	}

	return start, end
}

// rescaleNearest crops the accumulated prototype grid and scales it to
// width x height by nearest neighbour sampling
func rescaleNearest(acc []float64, stride int, crop cropRect, width, height int) *mat.Dense {

	out := mat.NewDense(height, width, nil)

	colMap := make([]int, width)

	for x := 0; x < width; x++ {
		sx := x * crop.w / width

		if sx >= crop.w {
			sx = crop.w - 1
		}

		colMap[x] = crop.x + sx
	}

	row := make([]float64, width)

	for y := 0; y < height; y++ {
		sy := y * crop.h / height

		if sy >= crop.h {
			sy = crop.h - 1
		}

		base := (crop.y + sy) * stride

		for x, sx := range colMap {
			row[x] = acc[base+sx]
		}

		out.SetRow(y, row)
	}

	return out
}

// MaskArea returns the number of cells above MaskThreshold
func MaskArea(mask *mat.Dense) int {

	if mask == nil {
		return 0
	}

	rows, cols := mask.Dims()
	area := 0

	for y := 0; y < rows; y++ {
		for _, v := range mask.RawRowView(y)[:cols] {
			if v > MaskThreshold {
				area++
			}
		}
	}

	return area
}
