package postprocess

import (
	"fmt"
	"sync"

	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/postprocess/result"
	"github.com/swdee/go-segdist/preprocess"
)

// YOLOv8Seg defines the struct for YOLOv8 segmentation model post processing,
// it decodes candidates, suppresses overlaps, rebuilds instance masks and
// maps boxes back onto the original frame
type YOLOv8Seg struct {
	// params are the post processing thresholds
	params Params
	// mu guards params
	mu sync.RWMutex
	// info is the resolved model tensor geometry
	info segdist.ModelInfo
	// decoder turns the detection tensor into candidates
	decoder *Decoder
	// masks rebuilds instance masks from the prototypes
	masks *MaskReconstructor
	// idGen provides the next number for each detection result ID
	idGen *result.IDGenerator
}

// Params defines the struct containing the YOLOv8Seg parameters to use
// for post processing operations
type Params struct {
	// ConfidenceThreshold is the class score a candidate must exceed to be
	// kept
	ConfidenceThreshold float64
	// IoUThreshold is the Non-Maximum Suppression threshold, a candidate
	// overlapping a kept one by this much or more is removed
	IoUThreshold float64
	// MaxResults is the maximum number of detections returned after NMS,
	// zero for no limit
	MaxResults int
}

// DefaultParams returns an instance of Params configured with default
// values:
// - Confidence Threshold: 0.3
// - IoU Threshold: 0.5
// - Maximum Results: 10
func DefaultParams() Params {
	return Params{
		ConfidenceThreshold: 0.3,
		IoUThreshold:        0.5,
		MaxResults:          10,
	}
}

// Validate checks the parameters are within range
func (p Params) Validate() error {

	if !(p.ConfidenceThreshold >= 0 && p.ConfidenceThreshold < 1) {
		return fmt.Errorf("confidence threshold %f must be in [0,1)", p.ConfidenceThreshold)
	}

	if !(p.IoUThreshold > 0 && p.IoUThreshold <= 1) {
		return fmt.Errorf("IoU threshold %f must be in (0,1]", p.IoUThreshold)
	}

	if p.MaxResults < 0 {
		return fmt.Errorf("max results %d must not be negative", p.MaxResults)
	}

	return nil
}

// NewYOLOv8Seg returns an instance of the YOLOv8Seg post processor
func NewYOLOv8Seg(info segdist.ModelInfo, labels []string, p Params) (*YOLOv8Seg, error) {

	if err := info.Validate(); err != nil {
		return nil, err
	}

	if err := p.Validate(); err != nil {
		return nil, segdist.NewConfigError("params", err)
	}

	return &YOLOv8Seg{
		params:  p,
		info:    info,
		decoder: NewDecoder(info, labels),
		masks:   NewMaskReconstructor(info),
		idGen:   result.NewIDGenerator(),
	}, nil
}

// Params returns the current post processing parameters
func (y *YOLOv8Seg) Params() Params {
	y.mu.RLock()
	defer y.mu.RUnlock()
	return y.params
}

// SetParams replaces the post processing parameters, they take effect on the
// next call to DetectObjects
func (y *YOLOv8Seg) SetParams(p Params) error {

	if err := p.Validate(); err != nil {
		return err
	}

	y.mu.Lock()
	y.params = p
	y.mu.Unlock()

	return nil
}

// DetectObjects runs decode, NMS and mask reconstruction on the model outputs
// and returns the kept detections in descending confidence order with boxes
// and masks in original frame space
func (y *YOLOv8Seg) DetectObjects(dets, protos segdist.RawTensor,
	lb preprocess.LetterboxInfo, frameW, frameH int) ([]Segmentation, error) {

	p := y.Params()

	cands, err := y.decoder.Decode(dets, p.ConfidenceThreshold)

	if err != nil {
		return nil, err
	}

	if len(cands) == 0 {
		return []Segmentation{}, nil
	}

	kept := NMS(cands, p.IoUThreshold, p.MaxResults)

	// masks are built from model space boxes before they are mapped back
	masks, err := y.masks.Reconstruct(kept, protos, lb, frameW, frameH)

	if err != nil {
		return nil, err
	}

	group := make([]Segmentation, 0, len(kept))

	for i, c := range kept {
		box, ok := toOriginalBox(c, lb, frameW, frameH)

		if !ok {
			continue
		}

		group = append(group, Segmentation{
			ID:   y.idGen.GetNext(),
			Box:  box,
			Mask: masks[i],
		})
	}

	return group, nil
}

// ResetIDs restarts detection result numbering
func (y *YOLOv8Seg) ResetIDs() {
	y.idGen.Reset()
}

// toOriginalBox maps a model space candidate onto the original frame.  Boxes
// in the letterbox padding are clamped to the frame edge, a box with no area
// left afterwards is dropped.
func toOriginalBox(c Candidate, lb preprocess.LetterboxInfo, frameW, frameH int) (Candidate, bool) {

	c.X1 = preprocess.ToOriginal(c.X1, preprocess.AxisX, lb, frameW)
	c.X2 = preprocess.ToOriginal(c.X2, preprocess.AxisX, lb, frameW)
	c.Y1 = preprocess.ToOriginal(c.Y1, preprocess.AxisY, lb, frameH)
	c.Y2 = preprocess.ToOriginal(c.Y2, preprocess.AxisY, lb, frameH)

	c.CX = (c.X1 + c.X2) / 2
	c.CY = (c.Y1 + c.Y2) / 2
	c.W = c.X2 - c.X1
	c.H = c.Y2 - c.Y1

	return c, c.Valid()
}
