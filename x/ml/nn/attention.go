// Package nn - Scaled-Dot-Product-Attention ueber den nativen Kernel
//
// Hauptfunktionen:
// - NewDispatcher: Dispatcher fuer einen Kernel erstellen
// - ScaledDotProductAttention: Maske aufloesen, Kernel aufrufen, Container freigeben
package nn

import (
	"log/slog"

	"github.com/ollama/ollama-sdpa/logutil"
	"github.com/ollama/ollama-sdpa/x/kvcache"
	"github.com/ollama/ollama-sdpa/x/ml"
)

// Dispatcher uebersetzt einen Attention-Aufruf in einen Kernel-Aufruf.
// Er haelt keinen Zustand zwischen Aufrufen und darf nebenlaeufig genutzt
// werden; jeder Aufruf besitzt seinen eigenen Masken-Container.
type Dispatcher struct {
	kernel ml.AttentionKernel
	stream ml.Stream
	logger *slog.Logger
}

type Option func(*Dispatcher)

// WithLogger setzt die Senke fuer Kernel-Fehler (Default: slog.Default())
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithStream ersetzt den Default-Stream des Kernels
func WithStream(s ml.Stream) Option {
	return func(d *Dispatcher) {
		d.stream = s
	}
}

func NewDispatcher(kernel ml.AttentionKernel, opts ...Option) *Dispatcher {
	d := &Dispatcher{kernel: kernel}
	for _, opt := range opts {
		opt(d)
	}

	if d.stream == nil {
		d.stream = kernel.DefaultStream()
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Device ist das Geraet, auf dem alle Aufrufe laufen
func (d *Dispatcher) Device() ml.Device {
	return d.stream.Device()
}

// ScaledDotProductAttention berechnet softmax(Q·Kᵗ·scale + mask)·V.
//
// queries, keys, values und eine explizite Maske werden nur geliehen; der
// Ergebnis-Tensor gehoert dem Aufrufer. Shapes prueft der Kernel. cache ist
// reserviert und wird nicht ausgewertet.
func (d *Dispatcher) ScaledDotProductAttention(queries, keys, values ml.Tensor, cache kvcache.Cache, scale float32, mask Mask) (ml.Tensor, error) {
	_ = cache

	masks := d.kernel.NewMaskVector()
	defer masks.Free()

	mode := resolveMask(mask, masks)
	logutil.Trace("scaled dot product attention", "mode", mode, "masks", masks.Len(), "scale", scale, "device", d.stream.Device())

	out, err := d.kernel.ScaledDotProductAttention(queries, keys, values, scale, mode, masks, d.stream)
	if err != nil {
		d.logger.Debug("attention kernel failed", "mode", mode, "masks", masks.Len(), "error", err)
		return nil, &KernelError{Mode: mode, Message: err.Error(), Err: err}
	}

	return out, nil
}
