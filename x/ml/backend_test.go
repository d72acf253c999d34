package ml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/mltest"
)

func TestRegisterBackend(t *testing.T) {
	ml.RegisterBackend("ml-test", mltest.New)

	assert.Contains(t, ml.Backends(), "ml-test")
	assert.Panics(t, func() { ml.RegisterBackend("ml-test", mltest.New) })

	b, err := ml.NewBackend("ml-test", ml.BackendParams{Device: ml.DeviceCPU})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, ml.DeviceCPU, b.DefaultStream().Device())

	_, err = ml.NewBackend("does-not-exist", ml.BackendParams{})
	assert.ErrorIs(t, err, ml.ErrUnknownBackend)
}

func TestCompare(t *testing.T) {
	b := mltest.NewBackend(ml.BackendParams{})

	x, err := b.FromFloats([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	y, err := b.FromFloats([]float32{1, 2, 3, 4.1}, 2, 2)
	require.NoError(t, err)
	z, err := b.FromFloats([]float32{1, 2, 3, 4}, 4)
	require.NoError(t, err)

	c, err := ml.Compare(x, y)
	require.NoError(t, err)
	assert.True(t, c.Similar(0.99))
	assert.InDelta(t, -0.1, c.MinDifference, 1e-5)

	_, err = ml.Compare(x, z)
	assert.ErrorContains(t, err, "mismatched shapes")
}
