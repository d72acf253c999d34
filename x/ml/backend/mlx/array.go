//go:build mlx

// Package mlx - Array-Grundstruktur und Datenkonvertierung
//
// Hauptfunktionen:
// - Array: MLX-Array Wrapper (implementiert ml.Tensor)
// - Floats: Tensor auswerten und als Go-Slice abrufen
// - Free: Array genau einmal freigeben

package mlx

/*
#include <stdlib.h>
#include "mlx/c/mlx.h"
static void* mlx_array_data_float16_asvoid(const mlx_array a) {return (void*)mlx_array_data_float16(a);}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/x448/float16"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// Array kapselt ein MLX-Array
type Array struct {
	name  string
	a     C.mlx_array
	freed bool
}

// newArray uebernimmt den Besitz von a
func newArray(a C.mlx_array) *Array {
	var name string
	if _, f, l, ok := runtime.Caller(1); ok {
		name = fmt.Sprintf("%s:%d", f, l)
	}
	return &Array{name: name, a: a}
}

func asArray(t ml.Tensor) (*Array, error) {
	a, ok := t.(*Array)
	if !ok {
		return nil, fmt.Errorf("mlx: foreign tensor %T", t)
	}
	if a.freed {
		return nil, fmt.Errorf("mlx: use of freed array %s", a.name)
	}
	return a, nil
}

// Shape gibt die Form des Arrays zurück
func (a *Array) Shape() []int {
	shape := make([]int, C.mlx_array_ndim(a.a))
	for i := range shape {
		shape[i] = int(C.mlx_array_dim(a.a, C.int(i)))
	}

	return shape
}

// DType gibt den Datentyp zurück
func (a *Array) DType() ml.DType {
	return (ml.DType)(C.mlx_array_dtype(a.a))
}

// Floats wertet das Array aus und gibt die Daten als float32-Slice zurück
func (a *Array) Floats() ([]float32, error) {
	if a.freed {
		return nil, fmt.Errorf("mlx: use of freed array %s", a.name)
	}
	if C.mlx_array_eval(a.a) != 0 {
		return nil, statusError{op: "eval"}
	}

	l := int(C.mlx_array_size(a.a))

	switch C.mlx_array_dtype(a.a) {
	case C.MLX_FLOAT16:
		data := C.mlx_array_data_float16_asvoid(a.a)
		if data == nil {
			return nil, fmt.Errorf("mlx: nil data for %s", a.name)
		}
		u16s := unsafe.Slice((*uint16)(data), l)
		f32s := make([]float32, len(u16s))
		for i := range u16s {
			f32s[i] = float16.Frombits(u16s[i]).Float32()
		}
		return f32s, nil
	case C.MLX_FLOAT32:
		data := C.mlx_array_data_float32(a.a)
		if data == nil {
			return nil, fmt.Errorf("mlx: nil data for %s", a.name)
		}
		f32s := make([]float32, l)
		copy(f32s, unsafe.Slice((*float32)(data), l))
		return f32s, nil
	default:
		return nil, fmt.Errorf("mlx: unsupported dtype for Floats: %v", a.DType())
	}
}

// Free gibt das Array frei; weitere Aufrufe sind wirkungslos
func (a *Array) Free() {
	if a.freed {
		return
	}
	a.freed = true
	C.mlx_array_free(a.a)
}

// String gibt eine String-Repräsentation zurück
func (a *Array) String() string {
	str := C.mlx_string_new()
	defer C.mlx_string_free(str)
	C.mlx_array_tostring(&str, a.a)
	return C.GoString(C.mlx_string_data(str))
}

// LogValue gibt einen slog.Value für Logging zurück
func (a *Array) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", a.name),
		slog.String("type", a.DType().String()),
		slog.Any("shape", a.Shape()),
	)
}
