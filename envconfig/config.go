// config.go - Haupt-Konfigurationsfunktionen
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (OLLAMA_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (OLLAMA_ORIGINS)
// - Backend: Name des Attention-Backends (OLLAMA_SDPA_BACKEND)
// - Device: Geraet des Default-Streams (OLLAMA_MLX_DEVICE)
// - LogLevel: Gibt Log-Level zurueck (OLLAMA_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Feature-Flags und Limits
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via OLLAMA_HOST
// Default: http://127.0.0.1:11434
func Host() *url.URL {
	defaultPort := "11434"

	s := strings.TrimSpace(Var("OLLAMA_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via OLLAMA_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost
func AllowedOrigins() (origins []string) {
	if s := Var("OLLAMA_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// Backend gibt den Namen des Attention-Backends zurueck
// Konfigurierbar via OLLAMA_SDPA_BACKEND
// Default: mlx
func Backend() string {
	if s := Var("OLLAMA_SDPA_BACKEND"); s != "" {
		return s
	}
	return "mlx"
}

// Device gibt das Geraet fuer den Default-Stream zurueck
// Konfigurierbar via OLLAMA_MLX_DEVICE (gpu, cpu)
// Default: gpu. Gilt fuer den ganzen Prozess, nicht pro Aufruf.
func Device() ml.Device {
	s := Var("OLLAMA_MLX_DEVICE")
	if s == "" {
		return ml.DeviceGPU
	}

	d, err := ml.ParseDevice(strings.ToLower(s))
	if err != nil {
		slog.Warn("invalid device, using default", "device", s, "default", ml.DeviceGPU)
		return ml.DeviceGPU
	}
	return d
}

// BackendParams fasst die Backend-Konfiguration zusammen
func BackendParams() ml.BackendParams {
	return ml.BackendParams{
		Device:        Device(),
		HalfPrecision: HalfPrecision(),
	}
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via OLLAMA_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("OLLAMA_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
