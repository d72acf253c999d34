// cmd.go - Haupt-CLI Setup und Root Command
// Hauptfunktionen: NewCLI, appendEnvDocs
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/envconfig"
)

// appendEnvDocs - Fuegt Umgebungsvariablen-Dokumentation zum Command hinzu
func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-30s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI - Erstellt das Haupt-CLI mit allen Commands
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ollama-sdpa",
		Short:         "Scaled dot-product attention runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	serveCmd := newServeCmd()
	runCmd := newRunCmd()
	benchCmd := newBenchCmd()
	envCmd := newEnvCmd()

	envVars := envconfig.AsMap()
	backendEnvs := []envconfig.EnvVar{
		envVars["OLLAMA_DEBUG"],
		envVars["OLLAMA_SDPA_BACKEND"],
		envVars["OLLAMA_MLX_DEVICE"],
		envVars["OLLAMA_SDPA_F16"],
	}

	for _, cmd := range []*cobra.Command{serveCmd, runCmd, benchCmd} {
		switch cmd {
		case serveCmd:
			appendEnvDocs(cmd, append(backendEnvs,
				envVars["OLLAMA_HOST"],
				envVars["OLLAMA_ORIGINS"],
				envVars["OLLAMA_SDPA_MAX_REQUEST_SIZE"],
			))
		case runCmd:
			appendEnvDocs(cmd, append(backendEnvs, envVars["OLLAMA_HOST"]))
		case benchCmd:
			appendEnvDocs(cmd, append(backendEnvs, envVars["OLLAMA_NUM_PARALLEL"]))
		}
	}

	rootCmd.AddCommand(
		serveCmd,
		runCmd,
		benchCmd,
		envCmd,
	)

	return rootCmd
}
