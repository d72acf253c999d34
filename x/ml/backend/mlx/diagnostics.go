//go:build mlx

package mlx

// #include <stdlib.h>
import "C"

import (
	"sync"
	"sync/atomic"

	"github.com/ollama/ollama-sdpa/logutil"
	"github.com/ollama/ollama-sdpa/x/ml"
)

var (
	diagnosticsOnce sync.Once
	diagnosticSink  atomic.Pointer[ml.DiagnosticSink]
)

// InstallDiagnostics leitet Fehlertexte von mlx-c an sink weiter. Der
// C-Handler wird nur beim ersten Aufruf registriert, spaetere Aufrufe
// tauschen nur die Senke. Ohne Senke gehen die Texte an slog.Default().
func InstallDiagnostics(sink ml.DiagnosticSink) {
	diagnosticSink.Store(&sink)
	diagnosticsOnce.Do(registerErrorHandler)
}

//export goDiagnostic
func goDiagnostic(msg *C.char) {
	diagnose(C.GoString(msg))
}

func diagnose(msg string) {
	if p := diagnosticSink.Load(); p != nil && *p != nil {
		(*p)(msg)
		return
	}
	logutil.DiagnosticSink(nil)(msg)
}
