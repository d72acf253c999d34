// cmd_env.go - Env Command: aktuelle Konfiguration anzeigen
package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/x/ml"
)

// EnvHandler - Listet alle Umgebungsvariablen mit Wert und Beschreibung
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()

	var data [][]string
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
	}

	w := cmd.OutOrStdout()
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(w, "\nbackends: %v\n", ml.Backends())
	return nil
}

// newEnvCmd - Erstellt den env Command
func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the effective configuration",
		Args:  cobra.ExactArgs(0),
		RunE:  EnvHandler,
	}
}
