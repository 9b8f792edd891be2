package segdist

import (
	"fmt"
)

// InputLayout is the memory layout of the model input tensor
type InputLayout int

const (
	// InputNHWC is a [1, H, W, 3] input tensor
	InputNHWC InputLayout = iota
	// InputNCHW is a [1, 3, H, W] input tensor
	InputNCHW
)

// String returns a readable description of the InputLayout
func (l InputLayout) String() string {
	switch l {
	case InputNHWC:
		return "NHWC"
	case InputNCHW:
		return "NCHW"
	default:
		return "UNKNOW"
	}
}

// MaskLayout is the memory layout of the mask prototype tensor.  It is
// resolved once when the model is loaded and consumed thereafter.
type MaskLayout int

const (
	// MaskChannelsFirst is a [1, M, Ph, Pw] prototype tensor
	MaskChannelsFirst MaskLayout = iota
	// MaskChannelsLast is a [1, Ph, Pw, M] prototype tensor
	MaskChannelsLast
)

// String returns a readable description of the MaskLayout
func (l MaskLayout) String() string {
	switch l {
	case MaskChannelsFirst:
		return "channels-first"
	case MaskChannelsLast:
		return "channels-last"
	default:
		return "UNKNOW"
	}
}

// protoChannels is the prototype channel count used to detect a channels
// first prototype tensor
const protoChannels = 32

// Shape is the dimensions of a tensor
type Shape []int

// NumElements returns the total number of elements a tensor of this shape
// holds
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 0
	}

	n := 1

	for _, d := range s {
		n *= d
	}

	return n
}

// String returns the shape formatted as [d0, d1, ...]
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}

// RawTensor is a flat float32 buffer produced by the model together with its
// logical shape.  It is treated as immutable once produced.
type RawTensor struct {
	Data  []float32
	Shape Shape
}

// NewRawTensor returns a RawTensor, checking the data length matches the shape
func NewRawTensor(data []float32, shape Shape) (RawTensor, error) {

	if len(data) != shape.NumElements() {
		return RawTensor{}, fmt.Errorf("tensor data length %d does not match shape %s",
			len(data), shape)
	}

	return RawTensor{Data: data, Shape: shape}, nil
}

// Empty reports if the tensor holds no data
func (t RawTensor) Empty() bool {
	return len(t.Data) == 0
}

// ModelInfo holds the tensor dimensions of a segmentation model resolved from
// its declared input and output shapes
type ModelInfo struct {
	// InputWidth and InputHeight are the model input image dimensions
	InputWidth  int
	InputHeight int
	// InputLayout is the input tensor memory layout
	InputLayout InputLayout
	// NumChannels is the number of rows in the detection tensor, being
	// 4 box values + class scores + mask weights
	NumChannels int
	// NumElements is the number of anchor columns in the detection tensor
	NumElements int
	// MaskCount is the number of mask prototypes
	MaskCount int
	// MaskHeight and MaskWidth are the prototype grid dimensions
	MaskHeight int
	MaskWidth  int
	// MaskLayout is the prototype tensor memory layout
	MaskLayout MaskLayout
}

// NumClasses returns the number of class score rows in the detection tensor
func (m ModelInfo) NumClasses() int {
	return m.NumChannels - 4 - m.MaskCount
}

// Validate checks every dimension has been resolved
func (m ModelInfo) Validate() error {

	if m.InputWidth <= 0 || m.InputHeight <= 0 ||
		m.NumChannels <= 0 || m.NumElements <= 0 ||
		m.MaskCount <= 0 || m.MaskHeight <= 0 || m.MaskWidth <= 0 {
		return NewConfigError("model info", fmt.Errorf("%w: %+v", ErrShapeUnresolved, m))
	}

	if m.NumClasses() <= 0 {
		return NewConfigError("model info",
			fmt.Errorf("%w: detection tensor has %d channels for %d mask weights",
				ErrShapeUnresolved, m.NumChannels, m.MaskCount))
	}

	return nil
}

// ResolveModelInfo resolves the model dimensions from the input tensor shape
// [1,H,W,3] or [1,3,H,W], the detection tensor shape [1,C,N] and the
// prototype tensor shape [1,M,Ph,Pw] or [1,Ph,Pw,M]
func ResolveModelInfo(input, detections, protos Shape) (ModelInfo, error) {

	var info ModelInfo

	if len(input) != 4 || len(detections) != 3 || len(protos) != 4 {
		return info, NewConfigError("resolve shapes",
			fmt.Errorf("%w: input=%s detections=%s protos=%s",
				ErrShapeUnresolved, input, detections, protos))
	}

	info.InputLayout = InputNHWC
	info.InputHeight = input[1]
	info.InputWidth = input[2]

	// if in case input shape is in format of [1, 3, ..., ...]
	if input[1] == 3 {
		info.InputLayout = InputNCHW
		info.InputHeight = input[2]
		info.InputWidth = input[3]
	}

	info.NumChannels = detections[1]
	info.NumElements = detections[2]

	if protos[1] == protoChannels {
		info.MaskLayout = MaskChannelsFirst
		info.MaskCount = protos[1]
		info.MaskHeight = protos[2]
		info.MaskWidth = protos[3]
	} else {
		info.MaskLayout = MaskChannelsLast
		info.MaskHeight = protos[1]
		info.MaskWidth = protos[2]
		info.MaskCount = protos[3]
	}

	if err := info.Validate(); err != nil {
		return ModelInfo{}, err
	}

	return info, nil
}

// InputShape returns the input tensor shape for the resolved layout
func (m ModelInfo) InputShape() Shape {
	if m.InputLayout == InputNCHW {
		return Shape{1, 3, m.InputHeight, m.InputWidth}
	}

	return Shape{1, m.InputHeight, m.InputWidth, 3}
}

// DetectionShape returns the detection tensor shape
func (m ModelInfo) DetectionShape() Shape {
	return Shape{1, m.NumChannels, m.NumElements}
}

// ProtoShape returns the prototype tensor shape for the resolved layout
func (m ModelInfo) ProtoShape() Shape {
	if m.MaskLayout == MaskChannelsFirst {
		return Shape{1, m.MaskCount, m.MaskHeight, m.MaskWidth}
	}

	return Shape{1, m.MaskHeight, m.MaskWidth, m.MaskCount}
}

// String returns the ModelInfo in human readable format
func (m ModelInfo) String() string {
	return fmt.Sprintf("input=%dx%d (%s), detections=[%d, %d], "+
		"protos=%dx%dx%d (%s)",
		m.InputWidth, m.InputHeight, m.InputLayout, m.NumChannels,
		m.NumElements, m.MaskCount, m.MaskHeight, m.MaskWidth, m.MaskLayout)
}
