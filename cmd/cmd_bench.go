// cmd_bench.go - Bench Command: parallele Dispatches je Masken-Modus
// Hauptfunktionen: BenchHandler, runBench
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/ollama-sdpa/envconfig"
	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

// benchOptions beschreibt einen Benchmark-Lauf
type benchOptions struct {
	Shape      []int // [B, H, T, D]
	Iterations int
	Parallel   int
	Seed       uint64
}

// benchResult sind die Latenzen eines Masken-Modus
type benchResult struct {
	Name      string
	Durations []time.Duration
}

func (r benchResult) percentile(p float64) time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	sorted := slices.Clone(r.Durations)
	slices.Sort(sorted)
	return sorted[int(p*float64(len(sorted)-1))]
}

func (r benchResult) mean() time.Duration {
	if len(r.Durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Durations {
		total += d
	}
	return total / time.Duration(len(r.Durations))
}

// BenchHandler - Misst die Dispatch-Latenz je Masken-Modus
func BenchHandler(cmd *cobra.Command, _ []string) error {
	shapeStr, _ := cmd.Flags().GetString("shape")
	shape, err := parseShape(shapeStr)
	if err != nil {
		return err
	}
	if len(shape) != 4 {
		return fmt.Errorf("shape must have four dimensions [B,H,T,D], got %v", shape)
	}

	iterations, _ := cmd.Flags().GetInt("iterations")
	if iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel <= 0 {
		parallel = int(envconfig.NumParallel())
	}
	if parallel <= 0 {
		return fmt.Errorf("parallel must be positive, got %d (check OLLAMA_NUM_PARALLEL)", parallel)
	}

	seed, _ := cmd.Flags().GetUint64("seed")

	setupLogging(cmd)
	b, err := loadBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	runID := uuid.NewString()
	logger := slog.Default().With("run", runID)
	logger.Info("starting benchmark", "shape", shape, "iterations", iterations, "parallel", parallel, "backend", envconfig.Backend())

	results, err := runBench(cmd.Context(), b, nn.NewDispatcher(b, nn.WithLogger(logger)), benchOptions{
		Shape:      shape,
		Iterations: iterations,
		Parallel:   parallel,
		Seed:       seed,
	})
	if err != nil {
		return err
	}

	renderBench(cmd.OutOrStdout(), runID, results)
	return nil
}

// runBench fuehrt je Modus opts.Iterations Dispatches aus, hoechstens
// opts.Parallel gleichzeitig. Der erste Fehler bricht den Lauf ab.
func runBench(ctx context.Context, b ml.Backend, d *nn.Dispatcher, opts benchOptions) ([]benchResult, error) {
	bsz, seq := opts.Shape[0], opts.Shape[2]
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	random := func(shape ...int) (ml.Tensor, error) {
		n := 1
		for _, dim := range shape {
			n *= dim
		}
		data := make([]float32, n)
		for i := range data {
			data[i] = rng.Float32()*2 - 1
		}
		return b.FromFloats(data, shape...)
	}

	var tensors []ml.Tensor
	defer func() {
		for _, t := range tensors {
			t.Free()
		}
	}()

	for range 3 {
		t, err := random(opts.Shape...)
		if err != nil {
			return nil, err
		}
		tensors = append(tensors, t)
	}
	q, k, v := tensors[0], tensors[1], tensors[2]

	// Padding-Maske [B, T]: die letzte Position ist ausgeblendet
	padding := make([]float32, bsz*seq)
	for i := seq - 1; i < len(padding); i += seq {
		padding[i] = -1e9
	}
	pm, err := b.FromFloats(padding, bsz, seq)
	if err != nil {
		return nil, err
	}
	tensors = append(tensors, pm)

	explicit, err := nn.NewExplicitMask(b, pm)
	if err != nil {
		return nil, err
	}
	if explicit.Tensor != pm {
		tensors = append(tensors, explicit.Tensor)
	}

	scale := float32(1 / math.Sqrt(float64(opts.Shape[3])))

	modes := []struct {
		name string
		mask nn.Mask
	}{
		{"none", nn.NoMask{}},
		{"causal", nn.CausalMask{}},
		{"explicit", explicit},
	}

	results := make([]benchResult, 0, len(modes))
	for _, m := range modes {
		var mu sync.Mutex
		r := benchResult{Name: m.name, Durations: make([]time.Duration, 0, opts.Iterations)}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Parallel)
		for range opts.Iterations {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}

				start := time.Now()
				out, err := d.ScaledDotProductAttention(q, k, v, nil, scale, m.mask)
				if err != nil {
					return fmt.Errorf("%s: %w", m.name, err)
				}
				// Auswerten, damit lazy Backends die Rechnung wirklich ausfuehren
				_, err = out.Floats()
				out.Free()
				if err != nil {
					return fmt.Errorf("%s: %w", m.name, err)
				}

				mu.Lock()
				r.Durations = append(r.Durations, time.Since(start))
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, nil
}

// renderBench - Schreibt die Ergebnisse als Tabelle
func renderBench(w io.Writer, runID string, results []benchResult) {
	fmt.Fprintf(w, "run %s\n", runID)

	var data [][]string
	for _, r := range results {
		data = append(data, []string{
			r.Name,
			fmt.Sprint(len(r.Durations)),
			r.mean().String(),
			r.percentile(0.5).String(),
			r.percentile(0.99).String(),
			r.percentile(1).String(),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"MASK", "CALLS", "MEAN", "P50", "P99", "MAX"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark attention dispatch for each mask mode",
		Args:  cobra.ExactArgs(0),
		RunE:  BenchHandler,
	}

	benchCmd.Flags().String("shape", "1,8,128,64", "Query/key/value shape as B,H,T,D")
	benchCmd.Flags().Int("iterations", 100, "Dispatches per mask mode")
	benchCmd.Flags().Int("parallel", 0, "Concurrent dispatches (default OLLAMA_NUM_PARALLEL)")
	benchCmd.Flags().Uint64("seed", 0, "Seed for the random inputs")
	return benchCmd
}
