package pipeline

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/distance"
	"github.com/swdee/go-segdist/postprocess"
	"github.com/swdee/go-segdist/preprocess"
	"gocv.io/x/gocv"
)

// Options are the construction settings of a Detector
type Options struct {
	// Labels are the class names indexed by class ID, the COCO labels are
	// used when empty
	Labels []string
	// Config is the initial runtime configuration
	Config Config
	// Angles supplies the device zenith angle, distances are not estimated
	// when nil or before the first reading
	Angles *distance.AngleFeed
	// Logger receives per frame logging, defaults to the logrus standard
	// logger
	Logger logrus.FieldLogger
}

// Detector runs single frames through the engine, post processing and
// distance estimation.  Calls are serialized so a Detector may be shared
// but processes one frame at a time.
type Detector struct {
	mu        sync.Mutex
	engine    segdist.Engine
	info      segdist.ModelInfo
	labels    []string
	proc      *postprocess.YOLOv8Seg
	estimator *distance.Estimator
	angles    *distance.AngleFeed
	cfg       Config
	// previous holds the last distance returned per object key
	previous map[string]float64
	// fatal is a latched configuration error, every frame fails with it
	// until Reset
	fatal error
	// resizer is reused between gocv frames of the same size
	resizer *preprocess.Resizer
	log     logrus.FieldLogger
}

// NewDetector returns a Detector for the given engine.  An engine whose
// tensor shapes can not be resolved still gives a Detector, but every frame
// it processes returns an error result.
func NewDetector(engine segdist.Engine, opts Options) (*Detector, error) {

	if engine == nil {
		return nil, errors.New("engine is required")
	}

	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	labels := opts.Labels

	if len(labels) == 0 {
		labels = segdist.COCOLabels()
	}

	log := opts.Logger

	if log == nil {
		log = logrus.StandardLogger()
	}

	est, err := distance.NewEstimator(opts.Config.distance())

	if err != nil {
		return nil, err
	}

	d := &Detector{
		labels:    labels,
		estimator: est,
		angles:    opts.Angles,
		cfg:       opts.Config,
		previous:  make(map[string]float64),
		log:       log,
	}

	d.setEngine(engine)

	return d, nil
}

// setEngine resolves the processing stages for engine, a failure is latched
func (d *Detector) setEngine(engine segdist.Engine) {

	d.engine = engine
	d.info = engine.Info()
	d.fatal = nil

	proc, err := postprocess.NewYOLOv8Seg(d.info, d.labels, d.cfg.params())

	if err != nil {
		d.fatal = err
		d.proc = nil
		d.log.WithError(err).Error("detector disabled, model shapes could not be used")
		return
	}

	d.proc = proc
}

// Reset swaps in a new engine, clearing any latched configuration error and
// all distance history.  The previous engine is not closed.
func (d *Detector) Reset(engine segdist.Engine) error {

	if engine == nil {
		return errors.New("engine is required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeResizer()
	d.setEngine(engine)
	d.clearHistory()

	return d.fatal
}

// Info returns the resolved model geometry
func (d *Detector) Info() segdist.ModelInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Config returns the current runtime configuration
func (d *Detector) Config() Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// SetConfig applies a new runtime configuration from the next frame and
// clears distance history
func (d *Detector) SetConfig(cfg Config) error {

	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.estimator.SetConfig(cfg.distance()); err != nil {
		return err
	}

	if d.proc != nil {
		if err := d.proc.SetParams(cfg.params()); err != nil {
			return err
		}
	}

	d.cfg = cfg
	d.clearHistory()

	return nil
}

// ClearHistory forgets previous distances and jump counters of every object
// and restarts detection ID numbering
func (d *Detector) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.clearHistory()

	if d.proc != nil {
		d.proc.ResetIDs()
	}
}

func (d *Detector) clearHistory() {
	d.estimator.ClearHistory()
	clear(d.previous)
}

// ProcessImage runs a frame held as an image.Image
func (d *Detector) ProcessImage(img image.Image) FrameResult {

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	frameW := img.Bounds().Dx()
	frameH := img.Bounds().Dy()

	res := d.newResult(frameW, frameH)

	if d.fatal != nil {
		return d.failed(res, d.fatal)
	}

	if frameW <= 0 || frameH <= 0 {
		return d.failed(res, fmt.Errorf("invalid frame size %dx%d", frameW, frameH))
	}

	lb := preprocess.ComputeLetterbox(frameW, frameH, d.info.InputWidth, d.info.InputHeight)
	input := preprocess.ImageTensor(img, lb, d.info.InputLayout)
	res.Timings.Preprocess = time.Since(start)

	return d.run(res, input, lb, start)
}

// ProcessMat runs a frame held as a BGR gocv Mat
func (d *Detector) ProcessMat(src gocv.Mat) FrameResult {

	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	frameW := src.Cols()
	frameH := src.Rows()

	res := d.newResult(frameW, frameH)

	if d.fatal != nil {
		return d.failed(res, d.fatal)
	}

	if src.Empty() {
		return d.failed(res, errors.New("frame Mat is empty"))
	}

	if d.resizer == nil || d.resizer.SrcWidth() != frameW || d.resizer.SrcHeight() != frameH {
		d.closeResizer()
		d.resizer = preprocess.NewResizer(frameW, frameH, d.info.InputWidth, d.info.InputHeight)
	}

	input, err := d.resizer.Tensor(src, d.info.InputLayout)

	if err != nil {
		return d.failed(res, fmt.Errorf("error preprocessing frame: %w", err))
	}

	res.Timings.Preprocess = time.Since(start)

	return d.run(res, input, d.resizer.Info(), start)
}

// run performs inference, post processing and distance estimation
func (d *Detector) run(res FrameResult, input []float32, lb preprocess.LetterboxInfo,
	start time.Time) FrameResult {

	inferStart := time.Now()
	dets, protos, err := d.infer(input)
	res.Timings.Inference = time.Since(inferStart)

	if err != nil {
		return d.failed(res, err)
	}

	postStart := time.Now()
	segs, err := d.proc.DetectObjects(dets, protos, lb, res.FrameWidth, res.FrameHeight)

	if err != nil {
		if segdist.IsConfigError(err) {
			d.fatal = err
		}

		return d.failed(res, err)
	}

	res.Detections = d.measure(segs, res.FrameHeight)
	res.Timings.Postprocess = time.Since(postStart)
	res.Timings.Total = time.Since(start)

	if len(res.Detections) == 0 {
		res.Status = StatusEmpty
	} else {
		res.Status = StatusDetections
	}

	d.log.WithFields(logrus.Fields{
		"frame_id":    res.FrameID,
		"detections":  len(res.Detections),
		"preprocess":  res.Timings.Preprocess,
		"inference":   res.Timings.Inference,
		"postprocess": res.Timings.Postprocess,
		"total":       res.Timings.Total,
	}).Debug("frame processed")

	return res
}

// infer runs the engine, a panic inside the engine is returned as an error
func (d *Detector) infer(input []float32) (dets, protos segdist.RawTensor, err error) {

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: engine panic: %v", segdist.ErrInference, r)
		}
	}()

	return d.engine.Run(input)
}

// measure estimates the distance of each segmentation
func (d *Detector) measure(segs []postprocess.Segmentation, frameH int) []Detection {

	dets := make([]Detection, 0, len(segs))

	var zenith float64
	var haveAngle bool

	if d.angles != nil {
		zenith, haveAngle = d.angles.Current()
	}

	keys := objectKeys(segs)

	for i, s := range segs {
		det := Detection{
			Segmentation: s,
			ObjectKey:    keys[i],
		}

		if haveAngle {
			bottomY := s.Box.Y2 * float64(frameH)
			dist, ok := d.estimator.EstimateTracked(bottomY, frameH, zenith,
				d.previous[det.ObjectKey], det.ObjectKey)

			if ok {
				det.Distance = dist
				det.HasDistance = true
				d.previous[det.ObjectKey] = dist
			}
		}

		dets = append(dets, det)
	}

	return dets
}

// objectKeys names each segmentation by its class and its rank among the
// objects of that class ordered left to right, eg: "person#0", "person#1"
func objectKeys(segs []postprocess.Segmentation) []string {

	order := make([]int, len(segs))

	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(a, b int) bool {
		return segs[order[a]].Box.CX < segs[order[b]].Box.CX
	})

	keys := make([]string, len(segs))
	rank := make(map[string]int)

	for _, i := range order {
		class := segs[i].Box.ClassName
		keys[i] = fmt.Sprintf("%s#%d", class, rank[class])
		rank[class]++
	}

	return keys
}

func (d *Detector) newResult(frameW, frameH int) FrameResult {
	return FrameResult{
		FrameID:     uuid.NewString(),
		FrameWidth:  frameW,
		FrameHeight: frameH,
	}
}

// failed turns res into an error result
func (d *Detector) failed(res FrameResult, err error) FrameResult {

	res.Status = StatusError
	res.Err = err
	res.Detections = nil

	d.log.WithFields(logrus.Fields{
		"frame_id": res.FrameID,
		"fatal":    segdist.IsConfigError(err),
	}).WithError(err).Warn("frame failed")

	return res
}

func (d *Detector) closeResizer() {
	if d.resizer != nil {
		d.resizer.Close()
		d.resizer = nil
	}
}

// Close releases the engine and any gocv buffers
func (d *Detector) Close() error {

	d.mu.Lock()
	defer d.mu.Unlock()

	d.closeResizer()

	return d.engine.Close()
}
