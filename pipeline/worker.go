package pipeline

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/swdee/go-segdist"
)

// FrameProcessor processes a single frame, it is satisfied by Detector
type FrameProcessor interface {
	ProcessImage(img image.Image) FrameResult
}

// WorkerOptions are the settings of a Worker
type WorkerOptions struct {
	// CPUCores pins the worker goroutine to these cores when set, eg:
	// []int{4,5,6,7}
	CPUCores []int
	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger
}

// Worker analyses frames on its own goroutine.  It holds at most one pending
// frame, submitting a new frame before the pending one has been picked up
// replaces it.
type Worker struct {
	proc     FrameProcessor
	listener Listener
	// inbox holds the single pending frame
	inbox   chan image.Image
	done    chan struct{}
	wg      sync.WaitGroup
	close   sync.Once
	dropped atomic.Uint64
	log     logrus.FieldLogger
}

// NewWorker starts a Worker sending every result to listener
func NewWorker(proc FrameProcessor, listener Listener, opts WorkerOptions) *Worker {

	log := opts.Logger

	if log == nil {
		log = logrus.StandardLogger()
	}

	w := &Worker{
		proc:     proc,
		listener: listener,
		inbox:    make(chan image.Image, 1),
		done:     make(chan struct{}),
		log:      log,
	}

	w.wg.Add(1)
	go w.run(opts.CPUCores)

	return w
}

// Submit queues a frame for analysis without blocking.  A frame still
// waiting from an earlier Submit is discarded.  Frames submitted after Close
// are ignored.
func (w *Worker) Submit(img image.Image) {

	for {
		select {
		case <-w.done:
			return
		default:
		}

		select {
		case w.inbox <- img:
			return
		default:
			// inbox is full
		}

		select {
		case <-w.inbox:
			w.dropped.Add(1)
		default:
			// worker took the frame first
		}
	}
}

// Dropped returns the number of frames replaced before being analysed
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// run is the worker loop
func (w *Worker) run(cores []int) {

	defer w.wg.Done()

	if len(cores) > 0 {
		if err := segdist.SetCPUAffinity(cores); err != nil {
			w.log.WithError(err).Warn("could not pin frame worker")
		}
	}

	for {
		select {
		case <-w.done:
			return

		case img := <-w.inbox:
			Dispatch(w.proc.ProcessImage(img), w.listener)
		}
	}
}

// Close stops the worker and waits for any frame in progress to finish, a
// pending frame is discarded
func (w *Worker) Close() {
	w.close.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}
