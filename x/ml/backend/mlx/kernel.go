//go:build mlx

// kernel.go - Fast-SDPA-Kernel, Masken-Container und Streams

package mlx

/*
#include <stdlib.h>
#include "mlx/c/mlx.h"
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// Stream kapselt einen mlx_stream
type Stream struct {
	s      C.mlx_stream
	device ml.Device
}

func newStream(device ml.Device) (*Stream, error) {
	switch device {
	case ml.DeviceGPU:
		return &Stream{s: C.mlx_default_gpu_stream_new(), device: device}, nil
	case ml.DeviceCPU:
		return &Stream{s: C.mlx_default_cpu_stream_new(), device: device}, nil
	default:
		return nil, fmt.Errorf("mlx: unsupported device %q", device)
	}
}

func (s *Stream) Device() ml.Device {
	return s.device
}

func (s *Stream) free() {
	C.mlx_stream_free(s.s)
}

// maskVector ist ein mlx_vector_array mit null oder einer Maske
type maskVector struct {
	v     C.mlx_vector_array
	n     int
	freed bool
}

func (b *Backend) NewMaskVector() ml.MaskVector {
	return &maskVector{v: C.mlx_vector_array_new()}
}

func (m *maskVector) Append(t ml.Tensor) {
	a, err := asArray(t)
	if err != nil {
		panic(err)
	}
	C.mlx_vector_array_append_value(m.v, a.a)
	m.n++
}

func (m *maskVector) Len() int {
	return m.n
}

func (m *maskVector) Free() {
	if m.freed {
		return
	}
	m.freed = true
	C.mlx_vector_array_free(m.v)
}

// ScaledDotProductAttention ruft mlx_fast_scaled_dot_product_attention auf
func (b *Backend) ScaledDotProductAttention(queries, keys, values ml.Tensor, scale float32, mode ml.MaskMode, masks ml.MaskVector, stream ml.Stream) (ml.Tensor, error) {
	q, err := asArray(queries)
	if err != nil {
		return nil, err
	}
	k, err := asArray(keys)
	if err != nil {
		return nil, err
	}
	v, err := asArray(values)
	if err != nil {
		return nil, err
	}
	mv, ok := masks.(*maskVector)
	if !ok {
		return nil, fmt.Errorf("mlx: foreign mask vector %T", masks)
	}
	s, ok := stream.(*Stream)
	if !ok {
		return nil, fmt.Errorf("mlx: foreign stream %T", stream)
	}

	cMode := C.CString(string(mode))
	defer C.free(unsafe.Pointer(cMode))

	r := C.mlx_array_new()
	if status := C.mlx_fast_scaled_dot_product_attention(&r, q.a, k.a, v.a, C.float(scale), cMode, mv.v, s.s); status != 0 {
		C.mlx_array_free(r)
		return nil, fmt.Errorf("%w (status %d)", statusError{op: "fast_scaled_dot_product_attention"}, int(status))
	}

	return newArray(r), nil
}
