// Package ml - Tensor- und Kernel-Interfaces
// Dieses Modul definiert die Schnittstellen zum nativen Backend:
// Tensor, Masken-Container (MaskVector), Ausfuehrungskontext (Stream)
// und den Attention-Kernel selbst.
package ml

// Tensor ist ein opakes Array des Backends. Wer einen Tensor erzeugt
// (oder als Ergebnis erhaelt), gibt ihn mit Free wieder frei.
type Tensor interface {
	Shape() []int
	DType() DType

	// Floats wertet den Tensor aus und kopiert die Daten nach Go
	Floats() ([]float32, error)

	Free()
}

// MaskVector ist der kurzlebige Container mit null oder einer Maske, der
// an den Kernel uebergeben wird. Append leiht sich den Tensor nur aus.
type MaskVector interface {
	Append(t Tensor)
	Len() int
	Free()
}

// Stream ist der Ausfuehrungskontext (Geraet + Queue) eines Kernel-Aufrufs
type Stream interface {
	Device() Device
}

// DiagnosticSink empfaengt Fehlertexte des nativen Backends
type DiagnosticSink func(msg string)

// AttentionKernel ist der native Scaled-Dot-Product-Attention-Kernel.
//
// ScaledDotProductAttention berechnet softmax(Q·Kᵗ·scale + mask)·V. Der
// Kernel erkennt eine explizite Maske am Inhalt von masks, nicht am Token
// mode. Ein Fehler-Status des Kernels wird als error zurueckgegeben; das
// Ergebnis gehoert dann dem Aufrufer.
type AttentionKernel interface {
	NewMaskVector() MaskVector
	ScaledDotProductAttention(queries, keys, values Tensor, scale float32, mode MaskMode, masks MaskVector, stream Stream) (Tensor, error)

	// DefaultStream liefert den Stream auf dem konfigurierten Standard-Geraet
	DefaultStream() Stream

	// InstallDiagnostics registriert den prozessweiten Fehler-Handler.
	// Wiederholte Aufrufe ersetzen nur die Senke.
	InstallDiagnostics(sink DiagnosticSink)
}

// MaskOps sind die Operationen, die fuer das Normalisieren einer
// expliziten Maske gebraucht werden
type MaskOps interface {
	Reshape(t Tensor, shape ...int) (Tensor, error)
	BroadcastTo(t Tensor, shape ...int) (Tensor, error)
}
