// routes_serve.go - Server-Start und Lifecycle-Management
// Enthaelt: Serve() - Backend laden und HTTP-Server starten

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/logutil"
	"github.com/ollama/ollama-sdpa/version"
	"github.com/ollama/ollama-sdpa/x/ml"
)

// Serve laedt das konfigurierte Backend und bedient ln bis SIGINT/SIGTERM
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	b, err := ml.NewBackend(envconfig.Backend(), envconfig.BackendParams())
	if err != nil {
		return fmt.Errorf("load backend %q: %w", envconfig.Backend(), err)
	}
	defer b.Close()

	// Fehlertexte des Kernels landen im Log statt auf stderr
	b.InstallDiagnostics(logutil.DiagnosticSink(slog.Default()))

	s := NewServer(b, ln.Addr())
	h, err := s.GenerateRoutes()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version), "backend", envconfig.Backend(), "device", s.sdpa.Device())
	srvr := &http.Server{Handler: h}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan struct{})
	go func() {
		select {
		case <-signals:
			srvr.Close()
		case <-done:
		}
	}()
	defer close(done)

	if err := srvr.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
