package segdist

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeUnresolved is returned when the model tensor shapes could not be
	// resolved into a usable ModelInfo
	ErrShapeUnresolved = errors.New("model tensor shapes not resolved")
	// ErrMissingLabel is returned when a class index has no matching label
	ErrMissingLabel = errors.New("missing class label")
	// ErrMaskConfig is returned when the mask prototype tensor can not be used
	// to reconstruct masks, eg: zero sized grid or weight count mismatch
	ErrMaskConfig = errors.New("invalid mask prototype configuration")
	// ErrInference is returned when the model engine fails to run a frame
	ErrInference = errors.New("inference failed")
)

// ConfigError is a configuration failure that is fatal to the detector
// instance it occurred in.  It can only be recovered from by initializing
// the model again.
type ConfigError struct {
	// Op is the operation that detected the configuration problem
	Op string
	// Err is the underlying cause, normally one of the sentinel errors
	Err error
}

// NewConfigError returns a ConfigError for the given operation
func NewConfigError(op string, err error) *ConfigError {
	return &ConfigError{Op: op, Err: err}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports if err is, or wraps, a ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
