//go:build mlx

package mlx

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(ml.BackendParams{Device: ml.DeviceCPU})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b.(*Backend)
}

func ones(t *testing.T, b *Backend, shape ...int) ml.Tensor {
	t.Helper()
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = 1
	}
	tt, err := b.FromFloats(data, shape...)
	require.NoError(t, err)
	t.Cleanup(tt.Free)
	return tt
}

func TestScaledDotProductAttention(t *testing.T) {
	b := newTestBackend(t)
	d := nn.NewDispatcher(b)

	q := ones(t, b, 1, 2, 3, 4)
	k := ones(t, b, 1, 2, 3, 4)
	v := ones(t, b, 1, 2, 3, 4)
	m := ones(t, b, 1, 1, 3, 3)

	for _, mask := range []nn.Mask{nil, nn.CausalMask{}, nn.ExplicitMask{Tensor: m}} {
		out, err := d.ScaledDotProductAttention(q, k, v, nil, 0.125, mask)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3, 4}, out.Shape())

		got, err := out.Floats()
		require.NoError(t, err)
		for _, f := range got {
			assert.InDelta(t, 1, f, 1e-5)
		}
		out.Free()
	}
}

func TestScaledDotProductAttentionFailure(t *testing.T) {
	b := newTestBackend(t)

	var mu sync.Mutex
	var msgs []string
	InstallDiagnostics(func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		msgs = append(msgs, msg)
	})
	t.Cleanup(func() { InstallDiagnostics(nil) })

	d := nn.NewDispatcher(b)
	q := ones(t, b, 1, 2, 3, 4)
	k := ones(t, b, 1, 2, 3, 8)
	v := ones(t, b, 1, 2, 3, 4)

	out, err := d.ScaledDotProductAttention(q, k, v, nil, 0.125, nn.NoMask{})
	assert.Nil(t, out)
	assert.ErrorIs(t, err, nn.ErrKernelFailure)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, msgs)
}

func TestInstallDiagnosticsIdempotent(t *testing.T) {
	var calls int
	sink := func(string) { calls++ }
	InstallDiagnostics(sink)
	InstallDiagnostics(sink)
	t.Cleanup(func() { InstallDiagnostics(nil) })

	goDiagnostic(nil)
	assert.Equal(t, 1, calls)
}

func TestDiagnoseWithoutSink(t *testing.T) {
	InstallDiagnostics(nil)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	diagnose("[matmul] shapes do not match\n")
	assert.Contains(t, buf.String(), "mlx error")
	assert.Contains(t, buf.String(), "shapes do not match")
}

func TestMaskVectorFreeOnce(t *testing.T) {
	b := newTestBackend(t)
	v := b.NewMaskVector()
	v.Append(ones(t, b, 1, 1, 2, 2))
	assert.Equal(t, 1, v.Len())
	v.Free()
	v.Free()
}
