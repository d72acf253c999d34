// Package mltest - In-Memory Backend fuer Tests
//
// Hauptfunktionen:
// - New: Backend ohne native Bibliothek erstellen
// - Calls: aufgezeichnete Kernel-Aufrufe (Modus, Masken-Container, Geraet)
// - Leak-Zaehler fuer Masken-Container und Tensoren
// - Fehler- und Panic-Injektion fuer den Kernel
//
// Der Kernel rechnet keine Attention, er liefert einen Tensor mit der
// Ergebnis-Shape und kopiert dafuer die Query-Daten.
package mltest

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// ErrKernelStatus simuliert einen Fehler-Status des nativen Kernels
var ErrKernelStatus = errors.New("mltest: kernel returned non-zero status")

// Call ist ein aufgezeichneter Kernel-Aufruf
type Call struct {
	Queries, Keys, Values ml.Tensor
	Scale                 float32
	Mode                  ml.MaskMode
	Masks                 []ml.Tensor
	Device                ml.Device
	Output                ml.Tensor
}

// Backend implementiert ml.Backend komplett in Go
type Backend struct {
	params ml.BackendParams

	// Fail laesst jeden Kernel-Aufruf mit diesem Fehler scheitern
	Fail error
	// FailMessage wird vor dem Fehler an die Diagnose-Senke gemeldet
	FailMessage string
	// Panic laesst jeden Kernel-Aufruf mit diesem Wert paniken
	Panic any

	mu       sync.Mutex
	calls    []Call
	sink     ml.DiagnosticSink
	installs int

	vectorsAllocated atomic.Int64
	vectorsFreed     atomic.Int64
	doubleFrees      atomic.Int64
	tensorsAllocated atomic.Int64
	tensorsFreed     atomic.Int64
	closed           atomic.Bool
}

// New erstellt ein Test-Backend; die Signatur passt zu ml.RegisterBackend
func New(params ml.BackendParams) (ml.Backend, error) {
	return NewBackend(params), nil
}

// NewBackend ist New mit konkretem Rueckgabetyp
func NewBackend(params ml.BackendParams) *Backend {
	if params.Device == "" {
		params.Device = ml.DeviceGPU
	}
	return &Backend{params: params}
}

// Tensor ist ein Tensor im Go-Speicher
type Tensor struct {
	b     *Backend
	shape []int
	data  []float32
	dtype ml.DType
	frees atomic.Int32
}

func (t *Tensor) Shape() []int { return slices.Clone(t.shape) }

func (t *Tensor) DType() ml.DType { return t.dtype }

func (t *Tensor) Floats() ([]float32, error) {
	if t.frees.Load() > 0 {
		return nil, errors.New("mltest: use after free")
	}
	return slices.Clone(t.data), nil
}

func (t *Tensor) Free() {
	if t.frees.Add(1) > 1 {
		t.b.doubleFrees.Add(1)
		return
	}
	t.b.tensorsFreed.Add(1)
}

// Freed meldet, ob der Tensor freigegeben wurde
func (t *Tensor) Freed() bool { return t.frees.Load() > 0 }

func (t *Tensor) String() string {
	return fmt.Sprintf("mltest.Tensor(%v)", t.shape)
}

func (b *Backend) newTensor(data []float32, shape []int) *Tensor {
	b.tensorsAllocated.Add(1)
	dtype := ml.DTypeFloat32
	if b.params.HalfPrecision {
		dtype = ml.DTypeFloat16
	}
	return &Tensor{b: b, shape: slices.Clone(shape), data: data, dtype: dtype}
}

// MaskVector zaehlt seine Freigaben
type MaskVector struct {
	b     *Backend
	items []ml.Tensor
	frees atomic.Int32
}

func (v *MaskVector) Append(t ml.Tensor) { v.items = append(v.items, t) }

func (v *MaskVector) Len() int { return len(v.items) }

func (v *MaskVector) Free() {
	if v.frees.Add(1) > 1 {
		v.b.doubleFrees.Add(1)
		return
	}
	v.b.vectorsFreed.Add(1)
}

type stream struct{ device ml.Device }

func (s stream) Device() ml.Device { return s.device }

func (b *Backend) NewMaskVector() ml.MaskVector {
	b.vectorsAllocated.Add(1)
	return &MaskVector{b: b}
}

func (b *Backend) DefaultStream() ml.Stream {
	return stream{device: b.params.Device}
}

func (b *Backend) InstallDiagnostics(sink ml.DiagnosticSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	b.installs++
}

// Installs zaehlt die Aufrufe von InstallDiagnostics
func (b *Backend) Installs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.installs
}

func (b *Backend) ScaledDotProductAttention(queries, keys, values ml.Tensor, scale float32, mode ml.MaskMode, masks ml.MaskVector, s ml.Stream) (ml.Tensor, error) {
	call := Call{
		Queries: queries,
		Keys:    keys,
		Values:  values,
		Scale:   scale,
		Mode:    mode,
		Device:  s.Device(),
	}
	if v, ok := masks.(*MaskVector); ok {
		call.Masks = slices.Clone(v.items)
	}

	if b.Panic != nil {
		b.record(call)
		panic(b.Panic)
	}

	if b.Fail != nil {
		b.record(call)
		b.mu.Lock()
		sink := b.sink
		b.mu.Unlock()
		if sink != nil && b.FailMessage != "" {
			sink(b.FailMessage)
		}
		return nil, b.Fail
	}

	q, ok := queries.(*Tensor)
	if !ok {
		return nil, fmt.Errorf("mltest: foreign tensor %T", queries)
	}
	shape := slices.Clone(q.shape)
	if vs := values.Shape(); len(vs) > 0 && len(shape) > 0 {
		shape[len(shape)-1] = vs[len(vs)-1]
	}
	data := make([]float32, product(shape))
	copy(data, q.data)

	out := b.newTensor(data, shape)
	call.Output = out
	b.record(call)
	return out, nil
}

func (b *Backend) record(c Call) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, c)
}

// Calls liefert eine Kopie der aufgezeichneten Aufrufe
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

func (b *Backend) FromFloats(s []float32, shape ...int) (ml.Tensor, error) {
	if n := product(shape); n != len(s) {
		return nil, fmt.Errorf("mltest: shape %v needs %d values, got %d", shape, n, len(s))
	}
	return b.newTensor(slices.Clone(s), shape), nil
}

func (b *Backend) Reshape(t ml.Tensor, shape ...int) (ml.Tensor, error) {
	data, err := t.Floats()
	if err != nil {
		return nil, err
	}
	if product(shape) != len(data) {
		return nil, fmt.Errorf("mltest: cannot reshape %v to %v", t.Shape(), shape)
	}
	return b.newTensor(data, shape), nil
}

// BroadcastTo folgt den NumPy-Regeln (Dimensionen gleich oder 1)
func (b *Backend) BroadcastTo(t ml.Tensor, shape ...int) (ml.Tensor, error) {
	src := t.Shape()
	if len(src) > len(shape) {
		return nil, fmt.Errorf("mltest: cannot broadcast %v to %v", src, shape)
	}
	// links mit 1 auffuellen
	padded := make([]int, len(shape))
	for i := range padded {
		padded[i] = 1
	}
	copy(padded[len(shape)-len(src):], src)
	for i := range shape {
		if padded[i] != shape[i] && padded[i] != 1 {
			return nil, fmt.Errorf("mltest: cannot broadcast %v to %v", src, shape)
		}
	}

	data, err := t.Floats()
	if err != nil {
		return nil, err
	}

	strides := make([]int, len(padded))
	acc := 1
	for i := len(padded) - 1; i >= 0; i-- {
		if padded[i] == 1 {
			strides[i] = 0
		} else {
			strides[i] = acc
		}
		acc *= padded[i]
	}

	out := make([]float32, product(shape))
	idx := make([]int, len(shape))
	for i := range out {
		off := 0
		for d := range idx {
			off += idx[d] * strides[d]
		}
		out[i] = data[off]
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return b.newTensor(out, shape), nil
}

func (b *Backend) Close() { b.closed.Store(true) }

// Closed meldet, ob Close aufgerufen wurde
func (b *Backend) Closed() bool { return b.closed.Load() }

// VectorsAllocated zaehlt erzeugte Masken-Container
func (b *Backend) VectorsAllocated() int64 { return b.vectorsAllocated.Load() }

// VectorsFreed zaehlt freigegebene Masken-Container
func (b *Backend) VectorsFreed() int64 { return b.vectorsFreed.Load() }

// DoubleFrees zaehlt wiederholte Freigaben von Containern und Tensoren
func (b *Backend) DoubleFrees() int64 { return b.doubleFrees.Load() }

// LiveTensors ist die Zahl erzeugter, noch nicht freigegebener Tensoren
func (b *Backend) LiveTensors() int64 {
	return b.tensorsAllocated.Load() - b.tensorsFreed.Load()
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
