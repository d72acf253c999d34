// config_utils.go - Getter-Bausteine und Export der Konfiguration
//
// Dieses Modul enthaelt:
// - getter: liest und parst eine Variable, faellt bei Fehlern auf den Default zurueck
// - Bool/Uint/Uint64: typisierte Getter fuer config_features.go
// - EnvVar, AsMap, Values: Export fuer den env Command und das Server-Log
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// getter liefert eine Funktion, die key bei jedem Aufruf neu liest. Ist
// die Variable leer, gilt defaultValue; scheitert parse, wird gewarnt und
// ebenfalls defaultValue geliefert.
func getter[T any](key string, defaultValue T, parse func(string) (T, error)) func() T {
	return func() T {
		s := Var(key)
		if s == "" {
			return defaultValue
		}

		v, err := parse(s)
		if err != nil {
			slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			return defaultValue
		}
		return v
	}
}

// Bool liest einen Bool (Default: false). Jeder gesetzte Wert, der sich
// nicht parsen laesst, zaehlt als true, damit OLLAMA_SDPA_F16=yes wirkt.
func Bool(key string) func() bool {
	return getter(key, false, func(s string) (bool, error) {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, nil
		}
		return true, nil
	})
}

// Uint liest einen uint mit Default-Wert
func Uint(key string, defaultValue uint) func() uint {
	return getter(key, defaultValue, func(s string) (uint, error) {
		n, err := strconv.ParseUint(s, 10, 0)
		return uint(n), err
	})
}

// Uint64 liest einen uint64 mit Default-Wert
func Uint64(key string, defaultValue uint64) func() uint64 {
	return getter(key, defaultValue, func(s string) (uint64, error) {
		return strconv.ParseUint(s, 10, 64)
	})
}

// EnvVar beschreibt eine Variable mit aktuellem Wert
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap liefert alle Variablen mit Wert und Beschreibung
func AsMap() map[string]EnvVar {
	vars := []EnvVar{
		{"OLLAMA_DEBUG", LogLevel(), "Show additional debug information (e.g. OLLAMA_DEBUG=1)"},
		{"OLLAMA_HOST", Host(), "IP Address for the server (default 127.0.0.1:11434)"},
		{"OLLAMA_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		{"OLLAMA_SDPA_BACKEND", Backend(), "Attention backend (default: mlx)"},
		{"OLLAMA_MLX_DEVICE", Device(), "Device for attention kernels: gpu or cpu (default: gpu)"},
		{"OLLAMA_SDPA_F16", HalfPrecision(), "Store input tensors as float16"},
		{"OLLAMA_NUM_PARALLEL", NumParallel(), "Maximum number of parallel benchmark calls (default: 4)"},
		{"OLLAMA_SDPA_MAX_REQUEST_SIZE", MaxRequestSize(), "Maximum size of an attention request in bytes"},
	}

	m := make(map[string]EnvVar, len(vars))
	for _, v := range vars {
		m[v.Name] = v
	}
	return m
}

// Values liefert alle Werte als Strings, z.B. fuer das Startup-Log
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
