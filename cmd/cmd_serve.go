// cmd_serve.go - Server-Start und Versionsanzeige
// Hauptfunktionen: RunServer, versionHandler
package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/server"
	"github.com/ollama/ollama-sdpa/version"
)

// RunServer - Startet den Attention-Server
func RunServer(_ *cobra.Command, _ []string) error {
	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	err = server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// versionHandler - Zeigt Client- und Server-Version an
func versionHandler(cmd *cobra.Command, _ []string) {
	w := cmd.OutOrStdout()

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return
	}

	serverVersion, err := client.Version(cmd.Context())
	if err != nil {
		fmt.Fprintln(w, "Warning: could not connect to a running ollama-sdpa instance")
	}

	if serverVersion != "" {
		fmt.Fprintf(w, "ollama-sdpa version is %s\n", serverVersion)
	}

	if serverVersion != version.Version {
		fmt.Fprintf(w, "Warning: client version is %s\n", version.Version)
	}
}

// newServeCmd - Erstellt den serve Command
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the attention server",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}
}
