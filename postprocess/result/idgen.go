package result

import "sync/atomic"

// IDGenerator hands out incremental detection IDs and is safe for concurrent
// use
type IDGenerator struct {
	id atomic.Int64
}

// NewIDGenerator returns an IDGenerator starting at 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next incremental number
func (g *IDGenerator) GetNext() int64 {
	return g.id.Add(1)
}

// Reset restarts numbering so the next ID returned is 1
func (g *IDGenerator) Reset() {
	g.id.Store(0)
}
