package postprocess

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// accumulateMask sums weight_k * prototype_k into acc for the grid cells that
// fall inside the candidate's box, every other cell is left at zero
func accumulateMask(c Candidate, planes [][]float64, protoW, protoH int, acc []float64) {

	x0, x1 := insideRange(c.X1*float64(protoW), c.X2*float64(protoW), protoW)
	y0, y1 := insideRange(c.Y1*float64(protoH), c.Y2*float64(protoH), protoH)

	if x0 == x1 || y0 == y1 {
		return
	}

	for k, w := range c.MaskWeights {
		plane := planes[k]

		for y := y0; y < y1; y++ {
			base := y * protoW
			floats.AddScaled(acc[base+x0:base+x1], w, plane[base+x0:base+x1])
		}
	}
}

// parallelRows splits n jobs across NumCPU workers, each job writes to its
// own disjoint output so no locking is required
func parallelRows(n int, job func(i int)) {

	numWorkers := runtime.NumCPU()

	if numWorkers > n {
		numWorkers = n
	}

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	// each worker handles jobs i = w, w+numWorkers, w+2*numWorkers
	for w := 0; w < numWorkers; w++ {
		go func(w int) {
			defer wg.Done()

			for i := w; i < n; i += numWorkers {
				job(i)
			}
		}(w)
	}

	wg.Wait()
}
