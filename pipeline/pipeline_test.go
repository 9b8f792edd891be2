package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist"
	"github.com/swdee/go-segdist/distance"
	"github.com/swdee/go-segdist/postprocess"
)

// fakeEngine returns canned tensors
type fakeEngine struct {
	mu     sync.Mutex
	info   segdist.ModelInfo
	dets   segdist.RawTensor
	protos segdist.RawTensor
	err    error
	panic  string
	runs   int
	closed bool
}

func (f *fakeEngine) Info() segdist.ModelInfo {
	return f.info
}

func (f *fakeEngine) Run(input []float32) (segdist.RawTensor, segdist.RawTensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs++

	if f.panic != "" {
		panic(f.panic)
	}

	if f.err != nil {
		return segdist.RawTensor{}, segdist.RawTensor{}, f.err
	}

	return f.dets, f.protos, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func (f *fakeEngine) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// newFakeEngine returns an 8x8 input model with one anchor whose box spans
// the top half of the frame, so its bottom edge sits on the frame center
func newFakeEngine(t *testing.T, score float32, classes int) *fakeEngine {
	t.Helper()

	info := segdist.ModelInfo{
		InputWidth: 8, InputHeight: 8, InputLayout: segdist.InputNHWC,
		NumChannels: 4 + classes + 1, NumElements: 1,
		MaskCount: 1, MaskHeight: 4, MaskWidth: 4,
		MaskLayout: segdist.MaskChannelsFirst,
	}

	col := []float32{0.5, 0.25, 0.5, 0.5}

	for c := 0; c < classes; c++ {
		if c == classes-1 {
			col = append(col, score)
		} else {
			col = append(col, 0)
		}
	}

	col = append(col, 1)

	dets, err := segdist.NewRawTensor(col, segdist.Shape{1, len(col), 1})

	if err != nil {
		t.Fatalf("failed building detections: %v", err)
	}

	protoData := make([]float32, 16)

	for i := range protoData {
		protoData[i] = 1
	}

	protos, err := segdist.NewRawTensor(protoData, segdist.Shape{1, 1, 4, 4})

	if err != nil {
		t.Fatalf("failed building prototypes: %v", err)
	}

	return &fakeEngine{info: info, dets: dets, protos: protos}
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newDetector(t *testing.T, engine segdist.Engine, labels []string, angles *distance.AngleFeed) *Detector {
	t.Helper()

	det, err := NewDetector(engine, Options{
		Labels: labels,
		Config: DefaultConfig(),
		Angles: angles,
		Logger: quietLogger(),
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return det
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

// zenithFor returns the tilt that puts the frame center at distance d for
// the default camera height
func zenithFor(d float64) float64 {
	return math.Atan(1.5 / d)
}

func TestProcessImageDetections(t *testing.T) {

	angles := distance.NewAngleFeed()
	angles.Set(zenithFor(4))

	det := newDetector(t, newFakeEngine(t, 0.9, 1), []string{"person"}, angles)

	res := det.ProcessImage(frame())

	if res.Status != StatusDetections {
		t.Fatalf("expected detections, got %s (err=%v)", res.Status, res.Err)
	}

	if res.FrameID == "" || res.FrameWidth != 8 || res.FrameHeight != 8 {
		t.Errorf("unexpected frame details %+v", res)
	}

	if len(res.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(res.Detections))
	}

	d := res.Detections[0]

	if d.Box.ClassName != "person" || d.ObjectKey != "person#0" {
		t.Errorf("unexpected detection %+v", d.Box)
	}

	if !d.HasDistance || math.Abs(d.Distance-4) > 1e-9 {
		t.Errorf("expected distance 4, got %f (has=%v)", d.Distance, d.HasDistance)
	}

	if rows, cols := d.Mask.Dims(); rows != 8 || cols != 8 {
		t.Errorf("expected 8x8 mask, got %dx%d", rows, cols)
	}

	if res.Timings.Total < res.Timings.Inference {
		t.Errorf("total %s shorter than inference %s", res.Timings.Total, res.Timings.Inference)
	}
}

func TestProcessImageWithoutAngle(t *testing.T) {

	det := newDetector(t, newFakeEngine(t, 0.9, 1), []string{"person"}, distance.NewAngleFeed())

	res := det.ProcessImage(frame())

	if res.Status != StatusDetections || res.Detections[0].HasDistance {
		t.Errorf("expected detection without distance, got %+v", res)
	}
}

func TestProcessImageEmpty(t *testing.T) {

	det := newDetector(t, newFakeEngine(t, 0.1, 1), []string{"person"}, nil)

	res := det.ProcessImage(frame())

	if res.Status != StatusEmpty || res.Err != nil || len(res.Detections) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestProcessImageUnresolvedShapes(t *testing.T) {

	engine := &fakeEngine{}
	det := newDetector(t, engine, nil, nil)

	for i := 0; i < 2; i++ {
		res := det.ProcessImage(frame())

		if res.Status != StatusError || !errors.Is(res.Err, segdist.ErrShapeUnresolved) {
			t.Fatalf("expected unresolved shape error, got %s (err=%v)", res.Status, res.Err)
		}
	}

	if engine.runCount() != 0 {
		t.Errorf("engine should never run, ran %d times", engine.runCount())
	}
}

func TestProcessImageRecoversEnginePanic(t *testing.T) {

	engine := newFakeEngine(t, 0.9, 1)
	engine.panic = "boom"

	det := newDetector(t, engine, []string{"person"}, nil)

	res := det.ProcessImage(frame())

	if res.Status != StatusError || !errors.Is(res.Err, segdist.ErrInference) {
		t.Fatalf("expected inference error, got %s (err=%v)", res.Status, res.Err)
	}

	engine.panic = ""

	if res := det.ProcessImage(frame()); res.Status != StatusDetections {
		t.Errorf("expected detector usable after panic, got %s (err=%v)", res.Status, res.Err)
	}
}

func TestProcessImageEngineErrorNotLatched(t *testing.T) {

	engine := newFakeEngine(t, 0.9, 1)
	engine.err = errors.New("device busy")

	det := newDetector(t, engine, []string{"person"}, nil)

	if res := det.ProcessImage(frame()); res.Status != StatusError {
		t.Fatalf("expected error, got %s", res.Status)
	}

	engine.err = nil

	if res := det.ProcessImage(frame()); res.Status != StatusDetections {
		t.Errorf("expected detections after transient error, got %s (err=%v)", res.Status, res.Err)
	}
}

func TestProcessImageMissingLabelLatched(t *testing.T) {

	engine := newFakeEngine(t, 0.9, 2)
	det := newDetector(t, engine, []string{"only"}, nil)

	res := det.ProcessImage(frame())

	if res.Status != StatusError || !errors.Is(res.Err, segdist.ErrMissingLabel) {
		t.Fatalf("expected missing label error, got %s (err=%v)", res.Status, res.Err)
	}

	res = det.ProcessImage(frame())

	if !errors.Is(res.Err, segdist.ErrMissingLabel) || engine.runCount() != 1 {
		t.Errorf("expected latched error without running engine, got %v after %d runs",
			res.Err, engine.runCount())
	}

	if err := det.Reset(newFakeEngine(t, 0.9, 1)); err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}

	if res := det.ProcessImage(frame()); res.Status != StatusDetections {
		t.Errorf("expected detections after reset, got %s (err=%v)", res.Status, res.Err)
	}
}

func TestDistanceTrackingAndClearHistory(t *testing.T) {

	angles := distance.NewAngleFeed()
	det := newDetector(t, newFakeEngine(t, 0.9, 1), []string{"person"}, angles)

	distanceOf := func() float64 {
		t.Helper()
		res := det.ProcessImage(frame())

		if res.Status != StatusDetections || !res.Detections[0].HasDistance {
			t.Fatalf("expected detection with distance, got %+v", res)
		}

		return res.Detections[0].Distance
	}

	angles.Set(zenithFor(5))

	if d := distanceOf(); math.Abs(d-5) > 1e-6 {
		t.Fatalf("expected 5, got %f", d)
	}

	angles.Set(zenithFor(9))

	// the jump is held back on the first frame
	if d := distanceOf(); math.Abs(d-5) > 1e-6 {
		t.Fatalf("expected held distance 5, got %f", d)
	}

	det.ClearHistory()

	res := det.ProcessImage(frame())

	// with no history the new distance is taken as the first sample
	if d := res.Detections[0].Distance; math.Abs(d-9) > 1e-6 {
		t.Errorf("expected 9 after clearing history, got %f", d)
	}

	if id := res.Detections[0].ID; id != 1 {
		t.Errorf("expected detection ID numbering to restart, got %d", id)
	}
}

// newTwoPersonEngine returns a model seeing two people, a near one on the
// right whose box bottom is below the frame center and a far one on the left
// standing on the frame center
func newTwoPersonEngine(t *testing.T) *fakeEngine {
	t.Helper()

	engine := newFakeEngine(t, 0.9, 1)
	engine.info.NumElements = 2

	// channel major, one column per anchor
	data := []float32{
		0.25, 0.75, // cx
		0.25, 0.6, // cy
		0.25, 0.25, // w
		0.5, 0.5, // h
		0.9, 0.8, // person score
		1, 1, // mask weight
	}

	dets, err := segdist.NewRawTensor(data, segdist.Shape{1, 6, 2})

	if err != nil {
		t.Fatalf("failed building detections: %v", err)
	}

	engine.dets = dets

	return engine
}

func TestDistanceTrackingSameClass(t *testing.T) {

	angles := distance.NewAngleFeed()
	zenith := 30 * math.Pi / 180
	angles.Set(zenith)

	det := newDetector(t, newTwoPersonEngine(t), []string{"person"}, angles)

	for frameNo := 0; frameNo < 5; frameNo++ {
		res := det.ProcessImage(frame())

		if res.Status != StatusDetections || len(res.Detections) != 2 {
			t.Fatalf("frame %d: expected 2 detections, got %+v", frameNo, res)
		}

		for _, d := range res.Detections {
			if !d.HasDistance {
				t.Fatalf("frame %d: %s has no distance", frameNo, d.ObjectKey)
			}

			offset := (d.Box.Y2*8 - 4) / 8 * 60 * math.Pi / 180
			expected := 1.5 / math.Tan(zenith+offset)

			if math.Abs(d.Distance-expected) > 1e-6 {
				t.Errorf("frame %d: %s expected distance %f, got %f",
					frameNo, d.ObjectKey, expected, d.Distance)
			}
		}

		far, near := res.Detections[0], res.Detections[1]

		if far.ObjectKey != "person#0" || near.ObjectKey != "person#1" {
			t.Errorf("unexpected keys %q %q", far.ObjectKey, near.ObjectKey)
		}

		if near.Distance >= far.Distance {
			t.Errorf("expected near person closer, got near=%f far=%f",
				near.Distance, far.Distance)
		}
	}
}

func TestObjectKeys(t *testing.T) {

	seg := func(class string, cx float64) postprocess.Segmentation {
		return postprocess.Segmentation{
			Box: postprocess.Candidate{ClassName: class, CX: cx},
		}
	}

	keys := objectKeys([]postprocess.Segmentation{
		seg("person", 0.8),
		seg("car", 0.5),
		seg("person", 0.1),
		seg("person", 0.4),
	})

	expected := []string{"person#2", "car#0", "person#0", "person#1"}

	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("index %d expected %q, got %q", i, expected[i], keys[i])
		}
	}
}

func TestSetConfig(t *testing.T) {

	det := newDetector(t, newFakeEngine(t, 0.9, 1), []string{"person"}, nil)

	bad := DefaultConfig()
	bad.IoUThreshold = 0

	if err := det.SetConfig(bad); err == nil {
		t.Error("expected invalid config error")
	}

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.95
	cfg.CameraHeight = 2

	if err := det.SetConfig(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := det.Config(); got != cfg {
		t.Errorf("expected %+v, got %+v", cfg, got)
	}

	if res := det.ProcessImage(frame()); res.Status != StatusEmpty {
		t.Errorf("expected new threshold to apply on next frame, got %s", res.Status)
	}
}

// recorder is a Listener that records which method was called
type recorder struct {
	mu     sync.Mutex
	calls  []string
	frames chan struct{}
}

func (r *recorder) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	if r.frames != nil {
		r.frames <- struct{}{}
	}
}

func (r *recorder) OnDetect(dets []Detection, timings Timings) { r.record("detect") }
func (r *recorder) OnEmpty()                                   { r.record("empty") }
func (r *recorder) OnError(err error)                          { r.record("error") }

func TestDispatch(t *testing.T) {

	r := &recorder{}

	Dispatch(FrameResult{Status: StatusDetections}, r)
	Dispatch(FrameResult{Status: StatusEmpty}, r)
	Dispatch(FrameResult{Status: StatusError, Err: errors.New("x")}, r)
	Dispatch(FrameResult{Status: StatusEmpty}, nil)

	expected := []string{"detect", "empty", "error"}

	if len(r.calls) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, r.calls)
	}

	for i := range expected {
		if r.calls[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, r.calls)
		}
	}
}

// blockingProcessor holds the first frame until released and records the
// width of every frame it processes as its identity
type blockingProcessor struct {
	started chan int
	release chan struct{}
	once    sync.Once
}

func (b *blockingProcessor) ProcessImage(img image.Image) FrameResult {
	id := img.Bounds().Dx()
	b.started <- id

	b.once.Do(func() {
		<-b.release
	})

	return FrameResult{Status: StatusEmpty}
}

func sized(id int) image.Image {
	return image.NewGray(image.Rect(0, 0, id, 1))
}

func TestWorkerKeepsLatest(t *testing.T) {

	proc := &blockingProcessor{
		started: make(chan int, 10),
		release: make(chan struct{}),
	}

	r := &recorder{frames: make(chan struct{}, 10)}
	w := NewWorker(proc, r, WorkerOptions{Logger: quietLogger()})
	defer w.Close()

	w.Submit(sized(1))

	if id := <-proc.started; id != 1 {
		t.Fatalf("expected frame 1 first, got %d", id)
	}

	// worker is busy, only the last of these survives
	w.Submit(sized(2))
	w.Submit(sized(3))
	w.Submit(sized(4))

	close(proc.release)

	select {
	case id := <-proc.started:
		if id != 4 {
			t.Errorf("expected latest frame 4, got %d", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for second frame")
	}

	if w.Dropped() != 2 {
		t.Errorf("expected 2 dropped frames, got %d", w.Dropped())
	}

	for i := 0; i < 2; i++ {
		select {
		case <-r.frames:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for listener")
		}
	}

	select {
	case id := <-proc.started:
		t.Errorf("unexpected extra frame %d", id)
	default:
	}
}

func TestWorkerCloseIgnoresSubmit(t *testing.T) {

	proc := &blockingProcessor{
		started: make(chan int, 10),
		release: make(chan struct{}),
	}
	close(proc.release)

	w := NewWorker(proc, nil, WorkerOptions{Logger: quietLogger()})
	w.Close()
	w.Close()

	w.Submit(sized(1))

	select {
	case id := <-proc.started:
		t.Errorf("frame %d processed after close", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPool(t *testing.T) {

	var engines []*fakeEngine

	factory := func(i int) (segdist.Engine, error) {
		e := newFakeEngine(t, 0.9, 1)
		engines = append(engines, e)
		return e, nil
	}

	pool, err := NewPool(2, factory, Options{
		Labels: []string{"person"},
		Config: DefaultConfig(),
		Logger: quietLogger(),
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()

	a, err := pool.Get(ctx)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := pool.Get(ctx)

	if err != nil || a == b {
		t.Fatalf("expected two distinct detectors, err=%v", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Get(timeout); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded from empty pool, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.MaxResults = 1

	if err := pool.Each(func(d *Detector) error { return d.SetConfig(cfg) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a.Config().MaxResults != 1 || b.Config().MaxResults != 1 {
		t.Error("expected config applied to checked out detectors")
	}

	pool.Return(a)
	pool.Return(b)

	if err := pool.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	for i, e := range engines {
		if !e.closed {
			t.Errorf("engine %d not closed", i)
		}
	}

	if _, err := pool.Get(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected pool closed error, got %v", err)
	}

	if err := pool.Each(func(*Detector) error { return nil }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("expected pool closed error from Each, got %v", err)
	}

	factoryErr := errors.New("no model")

	if _, err := NewPool(1, func(int) (segdist.Engine, error) { return nil, factoryErr }, Options{Config: DefaultConfig()}); !errors.Is(err, factoryErr) {
		t.Errorf("expected factory error, got %v", err)
	}
}
