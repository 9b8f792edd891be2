package segdist

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// envMu guards initialization of the process wide ONNX Runtime environment
var envMu sync.Mutex

// ONNXOptions defines the options used to create an ONNXEngine
type ONNXOptions struct {
	// LibraryPath is the path to the onnxruntime shared library.  If empty the
	// platform default is used
	LibraryPath string
	// NumThreads is the number of intra op threads, 0 uses all CPU cores
	NumThreads int
}

// onnxOutput holds one model output tensor which is either float32 or
// float16 depending on how the model was exported
type onnxOutput struct {
	name  string
	shape Shape
	f32   *ort.Tensor[float32]
	f16   *ort.CustomDataTensor
}

// value returns the tensor for binding to the session
func (o *onnxOutput) value() ort.ArbitraryTensor {
	if o.f16 != nil {
		return o.f16
	}

	return o.f32
}

// raw copies the output buffer into a RawTensor so the result is not
// affected by the next Run
func (o *onnxOutput) raw() (RawTensor, error) {

	if o.f16 != nil {
		return NewRawTensorFloat16(o.f16.GetData(), o.shape)
	}

	src := o.f32.GetData()
	data := make([]float32, len(src))
	copy(data, src)

	return NewRawTensor(data, o.shape)
}

func (o *onnxOutput) destroy() {
	if o.f16 != nil {
		o.f16.Destroy()
	}

	if o.f32 != nil {
		o.f32.Destroy()
	}
}

// ONNXEngine runs a segmentation model with ONNX Runtime
type ONNXEngine struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	// dets and protos are the detection and mask prototype outputs
	dets   *onnxOutput
	protos *onnxOutput
	info   ModelInfo
	// mu serializes Run as the input and output tensors are reused
	mu     sync.Mutex
	closed bool
}

// NewONNXEngine loads the given ONNX model file and resolves its tensor
// shapes
func NewONNXEngine(modelFile string, opts ONNXOptions) (*ONNXEngine, error) {

	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelFile)

	if err != nil {
		return nil, fmt.Errorf("error reading model io info: %w", err)
	}

	if len(inputs) < 1 || len(outputs) < 2 {
		return nil, NewConfigError("load model",
			fmt.Errorf("%w: model has %d inputs and %d outputs",
				ErrShapeUnresolved, len(inputs), len(outputs)))
	}

	// the detection output is rank 3 and the prototype output rank 4
	var detInfo, protoInfo *ort.InputOutputInfo

	for i := range outputs {
		switch len(outputs[i].Dimensions) {
		case 3:
			if detInfo == nil {
				detInfo = &outputs[i]
			}
		case 4:
			if protoInfo == nil {
				protoInfo = &outputs[i]
			}
		}
	}

	if detInfo == nil || protoInfo == nil {
		return nil, NewConfigError("load model",
			fmt.Errorf("%w: no rank 3 detection and rank 4 prototype outputs",
				ErrShapeUnresolved))
	}

	info, err := ResolveModelInfo(toShape(inputs[0].Dimensions),
		toShape(detInfo.Dimensions), toShape(protoInfo.Dimensions))

	if err != nil {
		return nil, err
	}

	e := &ONNXEngine{info: info}

	if err := e.createTensors(detInfo, protoInfo); err != nil {
		e.Close()
		return nil, err
	}

	options, err := ort.NewSessionOptions()

	if err != nil {
		e.Close()
		return nil, fmt.Errorf("error creating session options: %w", err)
	}

	defer options.Destroy()

	threads := opts.NumThreads

	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if err := options.SetIntraOpNumThreads(threads); err != nil {
		e.Close()
		return nil, fmt.Errorf("error setting thread count: %w", err)
	}

	e.session, err = ort.NewAdvancedSession(
		modelFile,
		[]string{inputs[0].Name},
		[]string{e.dets.name, e.protos.name},
		[]ort.ArbitraryTensor{e.input},
		[]ort.ArbitraryTensor{e.dets.value(), e.protos.value()},
		options,
	)

	if err != nil {
		e.Close()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return e, nil
}

// initEnvironment initializes the ONNX Runtime environment once per process
func initEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing onnxruntime: %w", err)
	}

	return nil
}

// createTensors allocates the input and output tensors bound to the session
func (e *ONNXEngine) createTensors(detInfo, protoInfo *ort.InputOutputInfo) error {

	var err error

	e.input, err = ort.NewEmptyTensor[float32](toOrtShape(e.info.InputShape()))

	if err != nil {
		return fmt.Errorf("error creating input tensor: %w", err)
	}

	e.dets, err = newOutput(detInfo, e.info.DetectionShape())

	if err != nil {
		return err
	}

	e.protos, err = newOutput(protoInfo, e.info.ProtoShape())

	return err
}

// newOutput creates an output tensor of the data type declared by the model
func newOutput(io *ort.InputOutputInfo, shape Shape) (*onnxOutput, error) {

	out := &onnxOutput{
		name:  io.Name,
		shape: shape,
	}

	var err error

	switch io.DataType {
	case ort.TensorElementDataTypeFloat:
		out.f32, err = ort.NewEmptyTensor[float32](toOrtShape(shape))

	case ort.TensorElementDataTypeFloat16:
		out.f16, err = ort.NewCustomDataTensor(toOrtShape(shape),
			make([]byte, shape.NumElements()*2), ort.TensorElementDataTypeFloat16)

	default:
		return nil, NewConfigError("load model",
			fmt.Errorf("%w: output %s has unsupported data type %v",
				ErrShapeUnresolved, io.Name, io.DataType))
	}

	if err != nil {
		return nil, fmt.Errorf("error creating output tensor %s: %w", io.Name, err)
	}

	return out, nil
}

// Info returns the resolved model tensor dimensions
func (e *ONNXEngine) Info() ModelInfo {
	return e.info
}

// Run executes the model on the given input tensor
func (e *ONNXEngine) Run(input []float32) (RawTensor, RawTensor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return RawTensor{}, RawTensor{}, fmt.Errorf("%w: engine closed", ErrInference)
	}

	data := e.input.GetData()

	if len(input) != len(data) {
		return RawTensor{}, RawTensor{}, fmt.Errorf("%w: input length %d, model expects %d",
			ErrInference, len(input), len(data))
	}

	copy(data, input)

	if err := e.session.Run(); err != nil {
		return RawTensor{}, RawTensor{}, fmt.Errorf("%w: %v", ErrInference, err)
	}

	dets, err := e.dets.raw()

	if err != nil {
		return RawTensor{}, RawTensor{}, fmt.Errorf("%w: detections: %v", ErrInference, err)
	}

	protos, err := e.protos.raw()

	if err != nil {
		return RawTensor{}, RawTensor{}, fmt.Errorf("%w: prototypes: %v", ErrInference, err)
	}

	return dets, protos, nil
}

// Close releases the session and tensors
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}

	e.closed = true

	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return fmt.Errorf("error destroying session: %w", err)
		}
	}

	if e.input != nil {
		e.input.Destroy()
	}

	if e.dets != nil {
		e.dets.destroy()
	}

	if e.protos != nil {
		e.protos.destroy()
	}

	return nil
}

// toShape converts an ONNX shape to a Shape, treating a dynamic batch
// dimension as 1
func toShape(dims ort.Shape) Shape {
	s := make(Shape, len(dims))

	for i, d := range dims {
		if i == 0 && d < 0 {
			d = 1
		}

		// remaining dynamic dims stay unresolved and fail validation
		if d < 0 {
			d = 0
		}

		s[i] = int(d)
	}

	return s
}

// toOrtShape converts a Shape to an ONNX shape
func toOrtShape(s Shape) ort.Shape {
	dims := make([]int64, len(s))

	for i, d := range s {
		dims[i] = int64(d)
	}

	return ort.NewShape(dims...)
}
