package segdist

import (
	"encoding/binary"
	"fmt"

	"github.com/x448/float16"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// Float16ToFloat32 converts a buffer of IEEE 754 half precision bit patterns
// to float32 as Go has no native FP16 type
func Float16ToFloat32(float16Buf []uint16) []float32 {

	float32Buf := make([]float32, len(float16Buf))

	for i, val := range float16Buf {
		float32Buf[i] = f16LookupTable[val]
	}

	return float32Buf
}

// NewRawTensorFloat16 returns a RawTensor from little endian half precision
// bytes, as produced by models exported with float16 outputs
func NewRawTensorFloat16(buf []byte, shape Shape) (RawTensor, error) {

	if len(buf)%2 != 0 {
		return RawTensor{}, fmt.Errorf("float16 buffer has odd length %d", len(buf))
	}

	bits := make([]uint16, len(buf)/2)

	for i := range bits {
		bits[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}

	return NewRawTensor(Float16ToFloat32(bits), shape)
}
