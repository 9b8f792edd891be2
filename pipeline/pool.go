package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/swdee/go-segdist"
)

// ErrPoolClosed is returned by Get once the pool has been closed
var ErrPoolClosed = errors.New("detector pool closed")

// EngineFactory creates the engine for the i'th detector of a pool
type EngineFactory func(i int) (segdist.Engine, error)

// Pool is a simple pool of Detectors so concurrent callers each get their
// own engine and distance history
type Pool struct {
	// pool of detectors
	detectors chan *Detector
	// all holds every detector for pool wide operations
	all []*Detector
	// size of pool
	size   int
	closed chan struct{}
	close  sync.Once
}

// NewPool creates a new detector pool of the given size
func NewPool(size int, factory EngineFactory, opts Options) (*Pool, error) {

	if size < 1 {
		return nil, errors.New("pool size must be at least 1")
	}

	p := &Pool{
		detectors: make(chan *Detector, size),
		size:      size,
		closed:    make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		engine, err := factory(i)

		if err != nil {
			// close any instances that may have been created before receiving
			// the error
			p.Close()
			return nil, err
		}

		det, err := NewDetector(engine, opts)

		if err != nil {
			engine.Close()
			p.Close()
			return nil, err
		}

		p.all = append(p.all, det)

		// attach to pool
		p.Return(det)
	}

	return p, nil
}

// Get waits for a free detector until ctx is done
func (p *Pool) Get(ctx context.Context) (*Detector, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case det := <-p.detectors:
		return det, nil
	}
}

// Return a detector to the pool
func (p *Pool) Return(det *Detector) {
	select {
	case p.detectors <- det:
	default:
		// pool is full
	}
}

// Size returns the number of detectors in the pool
func (p *Pool) Size() int {
	return p.size
}

// Each calls fn for every detector in the pool, including those checked
// out.  Detectors serialize their own calls so this is safe alongside
// frames in progress.  ErrPoolClosed is returned once the pool is closed.
func (p *Pool) Each(fn func(det *Detector) error) error {

	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}

	var errs []error

	for _, det := range p.all {
		if err := fn(det); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close the pool and all detectors in it
func (p *Pool) Close() error {

	var errs []error

	p.close.Do(func() {
		close(p.closed)

		for _, det := range p.all {
			if err := det.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}
