//go:build mlx

// Package mlx - Backend-Initialisierung ueber mlx-c
//
// Hauptfunktionen:
// - New: Backend mit Default-Stream auf dem konfigurierten Geraet erstellen
// - FromFloats: Tensor aus Go-Daten erstellen
// - Reshape/BroadcastTo: Masken-Normalisierung
// - InstallDiagnostics: prozessweiten Fehler-Handler registrieren
//
// Gebaut gegen mlx-c v0.2.0 (Masken als mlx_vector_array).

package mlx

/*
#cgo CPPFLAGS: -I${SRCDIR}/../../../../build/_deps/mlx-c-src
#cgo LDFLAGS: -L${SRCDIR}/../../../../build/lib/ollama/ -lmlxc -lmlx
#cgo darwin LDFLAGS: -framework Accelerate -framework Metal -framework Foundation
#cgo LDFLAGS: -Wl,-rpath,${SRCDIR}/../../../../build/lib/ollama/
#include <stdlib.h>
#include "mlx/c/mlx.h"

extern void goDiagnostic(char *msg);
static void error_handler(const char *msg, void* data) {
	goDiagnostic((char *)msg);
}
static void set_error_handler() {mlx_set_error_handler(&error_handler, NULL, NULL);}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"unsafe"

	"github.com/x448/float16"

	"github.com/ollama/ollama-sdpa/x/ml"
)

func init() {
	ml.RegisterBackend("mlx", New)
}

// Backend implementiert ml.Backend auf einem MLX-Stream
type Backend struct {
	params ml.BackendParams
	stream *Stream
}

// New erstellt ein neues MLX-Backend
func New(params ml.BackendParams) (ml.Backend, error) {
	if params.Device == "" {
		params.Device = ml.DeviceGPU
	}

	// Fehler sollen als Status zurueckkommen statt den Prozess zu beenden
	diagnosticsOnce.Do(registerErrorHandler)

	s, err := newStream(params.Device)
	if err != nil {
		return nil, err
	}

	slog.Debug("mlx backend", "device", params.Device, "half_precision", params.HalfPrecision)
	return &Backend{params: params, stream: s}, nil
}

// DefaultStream liefert den Stream auf dem konfigurierten Geraet
func (b *Backend) DefaultStream() ml.Stream {
	return b.stream
}

// InstallDiagnostics registriert den Fehler-Handler bei mlx-c
func (b *Backend) InstallDiagnostics(sink ml.DiagnosticSink) {
	InstallDiagnostics(sink)
}

// FromFloats erstellt einen Tensor aus einem float32-Slice
func (b *Backend) FromFloats(s []float32, shape ...int) (ml.Tensor, error) {
	n := 1
	cshape := make([]C.int, len(shape))
	for i, dim := range shape {
		cshape[i] = C.int(dim)
		n *= dim
	}
	if n != len(s) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(s))
	}
	if n == 0 {
		return nil, fmt.Errorf("empty tensor with shape %v", shape)
	}

	var shapePtr *C.int
	if len(cshape) > 0 {
		shapePtr = &cshape[0]
	}

	if b.params.HalfPrecision {
		u16s := make([]float16.Float16, len(s))
		for i := range u16s {
			u16s[i] = float16.Fromfloat32(s[i])
		}
		return newArray(C.mlx_array_new_data(unsafe.Pointer(&u16s[0]), shapePtr, C.int(len(cshape)), C.MLX_FLOAT16)), nil
	}

	return newArray(C.mlx_array_new_data(unsafe.Pointer(&s[0]), shapePtr, C.int(len(cshape)), C.MLX_FLOAT32)), nil
}

// Reshape aendert die Form ohne die Daten zu kopieren
func (b *Backend) Reshape(t ml.Tensor, shape ...int) (ml.Tensor, error) {
	a, err := asArray(t)
	if err != nil {
		return nil, err
	}

	sh := cInts(shape)
	var r C.mlx_array
	if C.mlx_reshape(&r, a.a, unsafe.SliceData(sh), C.size_t(len(sh)), b.stream.s) != 0 {
		return nil, statusError{op: "reshape"}
	}
	return newArray(r), nil
}

// BroadcastTo erweitert t auf shape
func (b *Backend) BroadcastTo(t ml.Tensor, shape ...int) (ml.Tensor, error) {
	a, err := asArray(t)
	if err != nil {
		return nil, err
	}

	sh := cInts(shape)
	var r C.mlx_array
	if C.mlx_broadcast_to(&r, a.a, unsafe.SliceData(sh), C.size_t(len(sh)), b.stream.s) != 0 {
		return nil, statusError{op: "broadcast_to"}
	}
	return newArray(r), nil
}

func registerErrorHandler() {
	C.set_error_handler()
}

// Close gibt den Stream frei
func (b *Backend) Close() {
	b.stream.free()
}

func cInts(s []int) []C.int {
	out := make([]C.int, len(s))
	for i, v := range s {
		out[i] = C.int(v)
	}
	return out
}

// statusError ist ein Fehler-Status einer mlx-c Funktion. Den Text des
// Fehlers erhaelt der Diagnose-Handler.
type statusError struct {
	op string
}

func (e statusError) Error() string {
	return "mlx: " + e.op + " failed"
}
