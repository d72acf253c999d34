// Package ml - Datentypen
// Dieses Modul definiert die grundlegenden Datentypen (DType), die
// Geraete-Auswahl (Device) und die Masken-Modi des Attention-Kernels.
package ml

import "fmt"

// DType entspricht der Reihenfolge von mlx_dtype in mlx-c.
type DType int

const (
	DTypeBool DType = iota
	DTypeUint8
	DTypeUint16
	DTypeUint32
	DTypeUint64
	DTypeInt8
	DTypeInt16
	DTypeInt32
	DTypeInt64
	DTypeFloat16
	DTypeFloat32
	DTypeFloat64
	DTypeBfloat16
	DTypeComplex64
)

func (d DType) String() string {
	switch d {
	case DTypeBool:
		return "bool"
	case DTypeInt32:
		return "i32"
	case DTypeInt64:
		return "i64"
	case DTypeFloat16:
		return "f16"
	case DTypeFloat32:
		return "f32"
	case DTypeFloat64:
		return "f64"
	case DTypeBfloat16:
		return "bf16"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Device waehlt, wo der Kernel ausgefuehrt wird
type Device string

const (
	DeviceGPU Device = "gpu"
	DeviceCPU Device = "cpu"
)

// ParseDevice liest einen Device-Namen (case-sensitiv wie OLLAMA_MLX_DEVICE)
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case DeviceGPU, DeviceCPU:
		return Device(s), nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// MaskMode ist das Token, mit dem der Kernel sein Masking-Verhalten waehlt.
// Ein leeres Token bedeutet: keine Maske oder eine explizite Maske im Container.
type MaskMode string

const (
	MaskModeNone   MaskMode = ""
	MaskModeCausal MaskMode = "causal"
)

func (m MaskMode) String() string {
	if m == MaskModeNone {
		return "unmasked"
	}
	return string(m)
}
