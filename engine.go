package segdist

// Engine is the opaque model execution engine.  The core only depends on the
// declared tensor shapes and the raw float buffers it returns.
type Engine interface {
	// Info returns the resolved model tensor dimensions
	Info() ModelInfo
	// Run executes the model on a normalized float32 input tensor laid out
	// according to Info().InputLayout and returns the detection and mask
	// prototype tensors
	Run(input []float32) (detections, protos RawTensor, err error)
	// Close releases the engine resources
	Close() error
}
