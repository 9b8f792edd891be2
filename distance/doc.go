// Package distance estimates the ground distance to a detected object from a
// single camera.
//
// The camera is assumed to be held at a known height above flat ground and
// tilted down by the zenith angle reported by the device orientation sensor.
// The angle from the optical axis to the bottom edge of an object's bounding
// box is added to that tilt, and the ground distance follows from
//
//	distance = cameraHeight / tan(zenith + offset)
//
// where offset is the bottom edge's fraction of the frame height away from
// the center, multiplied by the vertical field of view.
//
// Consecutive estimates for the same object are passed through a jump filter
// that holds the previous distance until a large change has been seen several
// frames in a row.
package distance
