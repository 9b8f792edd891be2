package distance

import (
	"math"
	"sync"
	"sync/atomic"
)

const (
	// MinZenithDeg and MaxZenithDeg bound the zenith angles accepted from the
	// orientation sensor
	MinZenithDeg = 0.1
	MaxZenithDeg = 89.9
	// landscapeRollDeg is the roll beyond which the device is treated as held
	// in landscape
	landscapeRollDeg = 45.0
)

// ResolveZenith picks the camera tilt below the horizon from the device pitch
// and roll in degrees.  In portrait the tilt is the pitch, in landscape it is
// the roll.  The angle is returned in radians, false if it is outside
// [MinZenithDeg, MaxZenithDeg].
func ResolveZenith(pitchDeg, rollDeg float64) (float64, bool) {

	zenith := math.Abs(pitchDeg)

	if !(math.Abs(rollDeg) < landscapeRollDeg) {
		zenith = math.Abs(rollDeg)
	}

	if !(zenith >= MinZenithDeg && zenith <= MaxZenithDeg) {
		return 0, false
	}

	return toRadians(zenith), true
}

// AngleFeed holds the latest accepted zenith angle.  It is written by the
// sensor goroutine and read by frame analysis without blocking.
type AngleFeed struct {
	bits  atomic.Uint64
	valid atomic.Bool

	mu     sync.Mutex
	nextID int
	subs   map[int]func(float64)
}

// NewAngleFeed returns an AngleFeed with no angle yet
func NewAngleFeed() *AngleFeed {
	return &AngleFeed{
		subs: make(map[int]func(float64)),
	}
}

// Update resolves the zenith from a sensor reading.  When it is accepted the
// value is published and subscribers are called with it, otherwise the
// previous value is kept and false is returned.
func (a *AngleFeed) Update(pitchDeg, rollDeg float64) bool {

	rad, ok := ResolveZenith(pitchDeg, rollDeg)

	if !ok {
		return false
	}

	a.Set(rad)
	return true
}

// Set publishes a zenith angle in radians directly
func (a *AngleFeed) Set(rad float64) {

	a.bits.Store(math.Float64bits(rad))
	a.valid.Store(true)

	a.mu.Lock()
	subs := make([]func(float64), 0, len(a.subs))

	for _, fn := range a.subs {
		subs = append(subs, fn)
	}

	a.mu.Unlock()

	for _, fn := range subs {
		fn(rad)
	}
}

// Current returns the latest zenith angle in radians, false if no reading
// has been accepted yet
func (a *AngleFeed) Current() (float64, bool) {

	if !a.valid.Load() {
		return 0, false
	}

	return math.Float64frombits(a.bits.Load()), true
}

// Subscribe registers fn to be called with every accepted angle.  The
// returned function removes the subscription.
func (a *AngleFeed) Subscribe(fn func(rad float64)) (cancel func()) {

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.subs[id] = fn
	a.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}
