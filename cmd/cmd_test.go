package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/server"
	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/mltest"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

const testBackendName = "cmd-test"

var (
	// lastBackend ist das zuletzt vom Registry erzeugte Test-Backend
	lastBackend *mltest.Backend
	// setupBackend wird auf jedes neue Test-Backend angewendet
	setupBackend func(*mltest.Backend)
)

func init() {
	ml.RegisterBackend(testBackendName, func(p ml.BackendParams) (ml.Backend, error) {
		b := mltest.NewBackend(p)
		if setupBackend != nil {
			setupBackend(b)
		}
		lastBackend = b
		return b, nil
	})
}

func useTestBackend(t *testing.T) {
	t.Helper()
	t.Setenv("OLLAMA_SDPA_BACKEND", testBackendName)
	t.Setenv("OLLAMA_MLX_DEVICE", "cpu")
	lastBackend, setupBackend = nil, nil
	t.Cleanup(func() { setupBackend = nil })
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewCLI()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

func writeJSON(t *testing.T, v any) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "data.json")
	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func testRequest(mask *api.MaskSpec) api.AttentionRequest {
	scale := float32(0.125)
	td := api.TensorData{Shape: []int{1, 1, 2, 2}, Data: []float32{1, 2, 3, 4}}
	return api.AttentionRequest{Queries: td, Keys: td, Values: td, Scale: &scale, Mask: mask}
}

func TestRunHandler(t *testing.T) {
	useTestBackend(t)

	path := writeJSON(t, testRequest(&api.MaskSpec{Type: api.MaskCausal}))
	stdout, _, err := execute(t, "", "run", path)
	require.NoError(t, err)

	var resp api.AttentionResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "causal", resp.Mode)
	assert.Equal(t, "cpu", resp.Device)
	if diff := cmp.Diff(testRequest(nil).Queries, resp.Output); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	require.NotNil(t, lastBackend)
	assert.True(t, lastBackend.Closed())
	assert.Equal(t, int64(0), lastBackend.LiveTensors())
	assert.Equal(t, 1, lastBackend.Installs())
}

func TestRunHandlerStdin(t *testing.T) {
	useTestBackend(t)

	b, err := json.Marshal(testRequest(nil))
	require.NoError(t, err)

	stdout, _, err := execute(t, string(b), "run", "-")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"mode": "unmasked"`)

	calls := lastBackend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, ml.MaskModeNone, calls[0].Mode)
	assert.Empty(t, calls[0].Masks)
}

func TestRunHandlerExpect(t *testing.T) {
	useTestBackend(t)
	path := writeJSON(t, testRequest(nil))

	t.Run("match", func(t *testing.T) {
		expect := writeJSON(t, testRequest(nil).Queries)
		stdout, stderr, err := execute(t, "", "run", path, "--expect", expect)
		require.NoError(t, err)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "COSINE")
		assert.Contains(t, stderr, "1.000000")
	})

	t.Run("mismatch", func(t *testing.T) {
		expect := writeJSON(t, api.TensorData{Shape: []int{1, 1, 2, 2}, Data: []float32{-1, -2, -3, -4}})
		_, _, err := execute(t, "", "run", path, "--expect", expect)
		assert.ErrorIs(t, err, ErrMismatch)
	})

	t.Run("shape", func(t *testing.T) {
		expect := writeJSON(t, api.TensorData{Shape: []int{4}, Data: []float32{1, 2, 3, 4}})
		_, _, err := execute(t, "", "run", path, "--expect", expect)
		assert.ErrorIs(t, err, ErrMismatch)
		assert.ErrorContains(t, err, "shape [1 1 2 2], expected [4]")
	})

	t.Run("relaxed threshold", func(t *testing.T) {
		expect := writeJSON(t, api.TensorData{Shape: []int{1, 1, 2, 2}, Data: []float32{1, 2, 3, 3}})
		_, _, err := execute(t, "", "run", path, "--expect", expect, "--min-cosine", "0.5")
		assert.NoError(t, err)
	})
}

func TestRunHandlerErrors(t *testing.T) {
	t.Run("invalid request", func(t *testing.T) {
		useTestBackend(t)
		req := testRequest(nil)
		req.Scale = nil
		_, _, err := execute(t, "", "run", writeJSON(t, req))
		assert.ErrorContains(t, err, "invalid request: scale is required")
		assert.Nil(t, lastBackend)
	})

	t.Run("unknown field", func(t *testing.T) {
		useTestBackend(t)
		_, _, err := execute(t, `{"queries":{},"bias":1}`, "run", "-")
		assert.ErrorContains(t, err, `unknown field "bias"`)
	})

	t.Run("unknown backend", func(t *testing.T) {
		useTestBackend(t)
		t.Setenv("OLLAMA_SDPA_BACKEND", "does-not-exist")
		_, _, err := execute(t, "", "run", writeJSON(t, testRequest(nil)))
		assert.ErrorIs(t, err, ml.ErrUnknownBackend)
	})

	t.Run("kernel failure", func(t *testing.T) {
		useTestBackend(t)
		setupBackend = func(b *mltest.Backend) {
			b.Fail = mltest.ErrKernelStatus
			b.FailMessage = "[scaled_dot_product_attention] shapes are incompatible"
		}
		_, stderr, err := execute(t, "", "run", writeJSON(t, testRequest(&api.MaskSpec{Type: api.MaskCausal})))
		assert.ErrorIs(t, err, nn.ErrKernelFailure)
		assert.ErrorIs(t, err, mltest.ErrKernelStatus)
		assert.Contains(t, stderr, "mlx error")
		assert.Contains(t, stderr, "shapes are incompatible")
		assert.Equal(t, int64(0), lastBackend.LiveTensors())
	})
}

func TestRunHandlerRemote(t *testing.T) {
	useTestBackend(t)

	b := mltest.NewBackend(ml.BackendParams{})
	h, err := server.NewServer(b, nil).GenerateRoutes()
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()
	t.Setenv("OLLAMA_HOST", ts.URL)

	stdout, _, err := execute(t, "", "run", "--remote", writeJSON(t, testRequest(&api.MaskSpec{Type: api.MaskCausal})))
	require.NoError(t, err)

	var resp api.AttentionResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "causal", resp.Mode)
	assert.Equal(t, "gpu", resp.Device)

	// lokal wurde kein Backend erzeugt
	assert.Nil(t, lastBackend)
	assert.Len(t, b.Calls(), 1)
}

func TestRunHandlerRemoteNotRunning(t *testing.T) {
	useTestBackend(t)
	t.Setenv("OLLAMA_HOST", "127.0.0.1:1")

	_, _, err := execute(t, "", "run", "--remote", writeJSON(t, testRequest(nil)))
	assert.ErrorContains(t, err, "server not responding")
}

func TestBenchHandler(t *testing.T) {
	useTestBackend(t)

	stdout, _, err := execute(t, "", "bench", "--shape", "2,2,4,8", "--iterations", "5", "--parallel", "2")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stdout, "run "), stdout)
	for _, mode := range []string{"none", "causal", "explicit"} {
		assert.Contains(t, stdout, mode)
	}

	calls := lastBackend.Calls()
	require.Len(t, calls, 15)

	counts := map[ml.MaskMode]int{}
	for _, c := range calls {
		counts[c.Mode]++
		if len(c.Masks) > 0 {
			assert.Equal(t, []int{2, 1, 4, 4}, c.Masks[0].Shape())
		}
		assert.InDelta(t, 0.353553, c.Scale, 1e-5)
	}
	assert.Equal(t, map[ml.MaskMode]int{ml.MaskModeNone: 10, ml.MaskModeCausal: 5}, counts)

	assert.Equal(t, int64(0), lastBackend.LiveTensors())
	assert.Equal(t, lastBackend.VectorsAllocated(), lastBackend.VectorsFreed())
	assert.Equal(t, int64(0), lastBackend.DoubleFrees())
}

func TestBenchHandlerErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"rank", []string{"--shape", "1,2,3"}, "four dimensions"},
		{"shape", []string{"--shape", "1,x,3,4"}, "invalid shape"},
		{"iterations", []string{"--iterations", "0"}, "iterations must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			useTestBackend(t)
			_, _, err := execute(t, "", append([]string{"bench"}, tc.args...)...)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	t.Run("parallel from env", func(t *testing.T) {
		useTestBackend(t)
		t.Setenv("OLLAMA_NUM_PARALLEL", "0")

		done := make(chan error, 1)
		go func() {
			_, _, err := execute(t, "", "bench", "--shape", "1,1,2,2", "--iterations", "2")
			done <- err
		}()

		select {
		case err := <-done:
			assert.ErrorContains(t, err, "parallel must be positive")
		case <-time.After(5 * time.Second):
			t.Fatal("bench did not return")
		}
	})

	t.Run("kernel failure", func(t *testing.T) {
		useTestBackend(t)
		setupBackend = func(b *mltest.Backend) { b.Fail = errors.New("boom") }

		_, _, err := execute(t, "", "bench", "--shape", "1,1,2,2", "--iterations", "3")
		assert.ErrorIs(t, err, nn.ErrKernelFailure)
		assert.ErrorContains(t, err, "none: ")
		assert.Equal(t, int64(0), lastBackend.LiveTensors())
	})
}

func TestEnvHandler(t *testing.T) {
	useTestBackend(t)

	stdout, _, err := execute(t, "", "env")
	require.NoError(t, err)
	assert.Contains(t, stdout, "OLLAMA_SDPA_BACKEND")
	assert.Contains(t, stdout, testBackendName)
	assert.Contains(t, stdout, "backends: [")
	assert.Less(t, strings.Index(stdout, "OLLAMA_DEBUG"), strings.Index(stdout, "OLLAMA_SDPA_BACKEND"))
}

func TestVersionFlag(t *testing.T) {
	useTestBackend(t)

	h, err := server.NewServer(mltest.NewBackend(ml.BackendParams{}), nil).GenerateRoutes()
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	defer ts.Close()
	t.Setenv("OLLAMA_HOST", ts.URL)

	stdout, _, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "ollama-sdpa version is")
	assert.NotContains(t, stdout, "Warning")
}

func TestParseShape(t *testing.T) {
	cases := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"1,8,128,64", []int{1, 8, 128, 64}, false},
		{" 2, 3 ", []int{2, 3}, false},
		{"4", []int{4}, false},
		{"1,,2", nil, true},
		{"1,0,2", nil, true},
		{"1,-2", nil, true},
		{"a", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseShape(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBenchResult(t *testing.T) {
	r := benchResult{Durations: []time.Duration{5, 1, 3, 2, 4}}
	assert.Equal(t, time.Duration(3), r.mean())
	assert.Equal(t, time.Duration(1), r.percentile(0))
	assert.Equal(t, time.Duration(3), r.percentile(0.5))
	assert.Equal(t, time.Duration(5), r.percentile(1))

	var empty benchResult
	assert.Equal(t, time.Duration(0), empty.mean())
	assert.Equal(t, time.Duration(0), empty.percentile(0.99))
}
