package segdist

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveModelInfo(t *testing.T) {

	tests := []struct {
		name        string
		input       Shape
		dets        Shape
		protos      Shape
		expectErr   bool
		expected    ModelInfo
		expectedCls int
	}{
		{
			name:   "nhwc channels first",
			input:  Shape{1, 640, 480, 3},
			dets:   Shape{1, 116, 8400},
			protos: Shape{1, 32, 160, 120},
			expected: ModelInfo{
				InputWidth: 480, InputHeight: 640, InputLayout: InputNHWC,
				NumChannels: 116, NumElements: 8400,
				MaskCount: 32, MaskHeight: 160, MaskWidth: 120,
				MaskLayout: MaskChannelsFirst,
			},
			expectedCls: 80,
		},
		{
			name:   "nchw channels last",
			input:  Shape{1, 3, 320, 640},
			dets:   Shape{1, 38, 2100},
			protos: Shape{1, 80, 160, 2},
			expected: ModelInfo{
				InputWidth: 640, InputHeight: 320, InputLayout: InputNCHW,
				NumChannels: 38, NumElements: 2100,
				MaskCount: 2, MaskHeight: 80, MaskWidth: 160,
				MaskLayout: MaskChannelsLast,
			},
			expectedCls: 32,
		},
		{
			name:      "zero sized prototype grid",
			input:     Shape{1, 640, 640, 3},
			dets:      Shape{1, 116, 8400},
			protos:    Shape{1, 32, 0, 160},
			expectErr: true,
		},
		{
			name:      "wrong rank",
			input:     Shape{640, 640, 3},
			dets:      Shape{1, 116, 8400},
			protos:    Shape{1, 32, 160, 160},
			expectErr: true,
		},
		{
			name:      "no class rows",
			input:     Shape{1, 640, 640, 3},
			dets:      Shape{1, 36, 8400},
			protos:    Shape{1, 32, 160, 160},
			expectErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := ResolveModelInfo(tc.input, tc.dets, tc.protos)

			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error, got info %v", info)
				}

				if !errors.Is(err, ErrShapeUnresolved) {
					t.Errorf("expected ErrShapeUnresolved, got %v", err)
				}

				if !IsConfigError(err) {
					t.Errorf("expected ConfigError, got %T", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if info != tc.expected {
				t.Errorf("expected %+v, got %+v", tc.expected, info)
			}

			if info.NumClasses() != tc.expectedCls {
				t.Errorf("expected %d classes, got %d", tc.expectedCls, info.NumClasses())
			}

			// shapes round trip back to what was declared
			if got := info.ProtoShape().String(); got != tc.protos.String() {
				t.Errorf("proto shape expected %s, got %s", tc.protos, got)
			}

			if got := info.InputShape().String(); got != tc.input.String() {
				t.Errorf("input shape expected %s, got %s", tc.input, got)
			}
		})
	}
}

func TestNewRawTensor(t *testing.T) {

	if _, err := NewRawTensor(make([]float32, 6), Shape{1, 2, 3}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if _, err := NewRawTensor(make([]float32, 5), Shape{1, 2, 3}); err == nil {
		t.Error("expected length mismatch error")
	}

	if !(RawTensor{}).Empty() {
		t.Error("expected zero tensor to be empty")
	}
}

func TestNewRawTensorFloat16(t *testing.T) {

	// 1.0 = 0x3c00, -2.0 = 0xc000, 0.5 = 0x3800 in little endian
	buf := []byte{0x00, 0x3c, 0x00, 0xc0, 0x00, 0x38}

	tensor, err := NewRawTensorFloat16(buf, Shape{1, 3})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []float32{1.0, -2.0, 0.5}

	for i, v := range expected {
		if tensor.Data[i] != v {
			t.Errorf("index %d expected %f, got %f", i, v, tensor.Data[i])
		}
	}

	if _, err := NewRawTensorFloat16([]byte{0x00}, Shape{1}); err == nil {
		t.Error("expected odd length error")
	}
}

func TestLoadLabels(t *testing.T) {

	file := filepath.Join(t.TempDir(), "labels.txt")
	err := os.WriteFile(file, []byte("person\n  car \n\nchair\n"), 0o644)

	if err != nil {
		t.Fatalf("failed writing labels: %v", err)
	}

	labels, err := LoadLabels(file)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"person", "car", "chair"}

	if len(labels) != len(expected) {
		t.Fatalf("expected %d labels, got %d: %v", len(expected), len(labels), labels)
	}

	for i := range expected {
		if labels[i] != expected[i] {
			t.Errorf("label %d expected %q, got %q", i, expected[i], labels[i])
		}
	}

	if _, err := LoadLabels(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}

	coco, err := LoadLabelsOrDefault("")

	if err != nil || len(coco) != 80 || coco[0] != "person" {
		t.Errorf("expected 80 COCO labels, got %d (err=%v)", len(coco), err)
	}
}
