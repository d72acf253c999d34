// config_features.go - Feature-Flags und Limits
//
// Dieses Modul enthaelt:
// - Feature-Flags (HalfPrecision)
// - Parallelitaets-Einstellungen
// - Request-Limits des Servers
package envconfig

var (
	// HalfPrecision legt Eingabe-Tensoren als float16 an
	HalfPrecision = Bool("OLLAMA_SDPA_F16")

	// NumParallel ist die Zahl paralleler Aufrufe im Benchmark
	NumParallel = Uint("OLLAMA_NUM_PARALLEL", 4)

	// MaxRequestSize begrenzt die Groesse eines Attention-Requests (Bytes)
	MaxRequestSize = Uint64("OLLAMA_SDPA_MAX_REQUEST_SIZE", 64<<20)
)
