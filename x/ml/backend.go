// backend.go - Backend-Interface und Registrierung
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownBackend wird von NewBackend fuer nicht registrierte Namen geliefert
var ErrUnknownBackend = errors.New("unknown backend")

// Backend represents an attention execution backend (e.g., MLX).
type Backend interface {
	AttentionKernel
	MaskOps

	// FromFloats erzeugt einen neuen Tensor aus Go-Daten
	FromFloats(s []float32, shape ...int) (Tensor, error)

	// Close frees all memory associated with this backend
	Close()
}

// BackendParams controls how the backend executes kernels
type BackendParams struct {
	// Device is the device of the default stream. Attention calls always run
	// on this device, it cannot be chosen per call.
	Device Device

	// HalfPrecision stores tensors created with FromFloats as float16
	HalfPrecision bool
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]func(BackendParams) (Backend, error))
)

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance by its registered name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	backendsMu.RLock()
	f, ok := backends[name]
	backendsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, Backends())
	}

	return f(params)
}

// Backends lists the registered backend names
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
