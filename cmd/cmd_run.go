// cmd_run.go - Run Command: einzelnen Attention-Request ausfuehren
// Hauptfunktionen: RunHandler, compareOutput
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/server"
	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

// DefaultMinCosine ist die Mindest-Aehnlichkeit fuer --expect
const DefaultMinCosine = 0.99

// ErrMismatch meldet eine Ausgabe, die nicht zur Erwartung passt
var ErrMismatch = errors.New("output does not match expectation")

// RunHandler - Fuehrt einen Request lokal oder auf dem Server aus
func RunHandler(cmd *cobra.Command, args []string) error {
	req, err := readRequest(cmd, args[0])
	if err != nil {
		return err
	}

	remote, _ := cmd.Flags().GetBool("remote")

	var resp *api.AttentionResponse
	if remote {
		if err := checkServerHeartbeat(cmd, args); err != nil {
			return err
		}
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return err
		}
		if resp, err = client.Attention(cmd.Context(), req); err != nil {
			return err
		}
	} else {
		setupLogging(cmd)
		b, err := loadBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		if resp, err = server.Attention(b, nn.NewDispatcher(b), *req); err != nil {
			return err
		}
	}

	if expect, _ := cmd.Flags().GetString("expect"); expect != "" {
		var want api.TensorData
		if err := readJSON(cmd, expect, &want); err != nil {
			return err
		}

		minCosine, _ := cmd.Flags().GetFloat64("min-cosine")
		return compareOutput(cmd.ErrOrStderr(), resp.Output, want, minCosine)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// compareOutput - Vergleicht die Ausgabe mit einem erwarteten Tensor
// und schreibt die Kennzahlen als Tabelle nach w
func compareOutput(w io.Writer, got, want api.TensorData, minCosine float64) error {
	if !slices.Equal(got.Shape, want.Shape) {
		return fmt.Errorf("%w: shape %v, expected %v", ErrMismatch, got.Shape, want.Shape)
	}

	c, err := ml.CompareFloats(got.Data, want.Data)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"COSINE", "MIN DIFF", "MAX DIFF", "EUCLIDEAN"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{
		fmt.Sprintf("%.6f", c.Cosine),
		fmt.Sprintf("%.6g", c.MinDifference),
		fmt.Sprintf("%.6g", c.MaxDifference),
		fmt.Sprintf("%.6g", c.Euclidean),
	})
	table.Render()

	if !c.Similar(minCosine) {
		return fmt.Errorf("%w: cosine similarity %.6f below %.2f", ErrMismatch, c.Cosine, minCosine)
	}
	return nil
}

// newRunCmd - Erstellt den run Command
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Compute attention for a JSON request (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  RunHandler,
	}

	runCmd.Flags().Bool("remote", false, "Send the request to a running server instead of computing locally")
	runCmd.Flags().String("expect", "", "Compare the output against a JSON tensor file")
	runCmd.Flags().Float64("min-cosine", DefaultMinCosine, "Minimum cosine similarity for --expect")
	return runCmd
}
