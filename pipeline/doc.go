// Package pipeline runs frames through the model engine and the post
// processing stages and attaches a ground distance to every detection.
//
// A Detector processes one frame at a time and returns a FrameResult which is
// either a set of detections, empty, or an error.  Results can be routed to a
// Listener with Dispatch.  A Worker wraps a Detector with a one frame inbox
// that keeps only the latest frame submitted, so a slow model drops frames
// rather than queueing them.  A Pool holds several detectors for concurrent
// callers.
package pipeline
