// cmd_utils.go - Hilfsfunktionen fuer CLI Commands
// Hauptfunktionen: loadBackend, readRequest, parseShape, checkServerHeartbeat
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/logutil"
	"github.com/ollama/ollama-sdpa/x/ml"
)

// setupLogging - Installiert den Standard-Logger auf stderr
func setupLogging(cmd *cobra.Command) {
	slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
}

// loadBackend - Erstellt das konfigurierte Backend und leitet
// Kernel-Diagnosen ins Log
func loadBackend() (ml.Backend, error) {
	name := envconfig.Backend()
	b, err := ml.NewBackend(name, envconfig.BackendParams())
	if err != nil {
		return nil, fmt.Errorf("load backend %q: %w", name, err)
	}

	b.InstallDiagnostics(logutil.DiagnosticSink(slog.Default()))
	return b, nil
}

// openInput - Oeffnet eine Datei oder stdin fuer "-"
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// readJSON - Liest ein JSON-Dokument aus einer Datei oder stdin
func readJSON(cmd *cobra.Command, path string, v any) error {
	r, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer r.Close()

	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// readRequest - Liest und validiert einen Attention-Request
func readRequest(cmd *cobra.Command, path string) (*api.AttentionRequest, error) {
	var req api.AttentionRequest
	if err := readJSON(cmd, path, &req); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// parseShape - Parst eine Shape wie "1,8,128,64"
func parseShape(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	shape := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: %w", s, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("invalid shape %q: dimensions must be positive", s)
		}
		shape = append(shape, n)
	}
	return shape, nil
}

// checkServerHeartbeat - Prueft ob der Server erreichbar ist
func checkServerHeartbeat(cmd *cobra.Command, _ []string) error {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}
	if err := client.Heartbeat(cmd.Context()); err != nil {
		if strings.Contains(err.Error(), " refused") || strings.Contains(err.Error(), "could not connect") {
			return fmt.Errorf("ollama-sdpa server not responding at %s - start it with 'ollama-sdpa serve'", envconfig.Host())
		}
		return err
	}
	return nil
}
