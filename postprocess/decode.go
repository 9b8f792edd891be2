package postprocess

import (
	"fmt"

	"github.com/swdee/go-segdist"
)

// Decoder turns the channel major detection tensor of a YOLOv8 segmentation
// model into candidates.  Each anchor column holds
// [cx, cy, w, h, classScore_0..N, maskWeight_0..M].
type Decoder struct {
	info   segdist.ModelInfo
	labels []string
}

// NewDecoder returns a Decoder for the given model and class labels
func NewDecoder(info segdist.ModelInfo, labels []string) *Decoder {
	return &Decoder{
		info:   info,
		labels: labels,
	}
}

// Decode returns every anchor whose best class score is above threshold and
// whose box lies within the unit square.  Candidates come back in anchor
// order.  An empty tensor gives an empty result.
func (d *Decoder) Decode(dets segdist.RawTensor, threshold float64) ([]Candidate, error) {

	cands := make([]Candidate, 0)

	if dets.Empty() {
		return cands, nil
	}

	rows := d.info.NumChannels
	cols := d.info.NumElements

	if len(dets.Data) != rows*cols {
		return nil, segdist.NewConfigError("decode",
			fmt.Errorf("detection tensor has %d values, expected %d (%d x %d)",
				len(dets.Data), rows*cols, rows, cols))
	}

	data := dets.Data
	classEnd := 4 + d.info.NumClasses()

	for c := 0; c < cols; c++ {

		maxConf := threshold
		maxIdx := -1

		for j := 4; j < classEnd; j++ {
			if conf := float64(data[j*cols+c]); conf > maxConf {
				maxConf = conf
				maxIdx = j - 4
			}
		}

		if maxIdx == -1 {
			continue
		}

		if maxIdx >= len(d.labels) {
			return nil, segdist.NewConfigError("decode",
				fmt.Errorf("%w: class %d, have %d labels",
					segdist.ErrMissingLabel, maxIdx, len(d.labels)))
		}

		cx := float64(data[c])
		cy := float64(data[cols+c])
		w := float64(data[2*cols+c])
		h := float64(data[3*cols+c])

		cand := Candidate{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			CX:         cx,
			CY:         cy,
			W:          w,
			H:          h,
			Confidence: maxConf,
			ClassID:    maxIdx,
			ClassName:  d.labels[maxIdx],
			Index:      c,
		}

		if !cand.Valid() {
			continue
		}

		weights := make([]float64, 0, rows-classEnd)

		for j := classEnd; j < rows; j++ {
			weights = append(weights, float64(data[j*cols+c]))
		}

		cand.MaskWeights = weights
		cands = append(cands, cand)
	}

	return cands, nil
}
