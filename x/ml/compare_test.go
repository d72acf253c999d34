package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareFloats(t *testing.T) {
	cases := []struct {
		name       string
		a, b       []float32
		wantCosine float64
		wantMin    float64
		wantMax    float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1, 0, 0},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1, -3, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, -1, 1},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1, 2, 2},
		{"zeros", []float32{0, 0}, []float32{0, 0}, 1, 0, 0},
		{"one zero", []float32{0, 0}, []float32{1, 0}, 0, -1, 0},
		{"empty", nil, nil, 1, 0, 0},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c, err := CompareFloats(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantCosine, c.Cosine, 1e-6)
			assert.InDelta(t, tt.wantMin, c.MinDifference, 1e-6)
			assert.InDelta(t, tt.wantMax, c.MaxDifference, 1e-6)
		})
	}
}

func TestCompareFloatsErrors(t *testing.T) {
	_, err := CompareFloats([]float32{1}, []float32{1, 2})
	assert.ErrorContains(t, err, "mismatched lengths")

	nan := float32(math.NaN())
	_, err = CompareFloats([]float32{nan, 1}, []float32{1, 1})
	assert.Error(t, err)
}

func TestComparisonSimilar(t *testing.T) {
	assert.True(t, Comparison{Cosine: 0.995}.Similar(0.99))
	assert.False(t, Comparison{Cosine: 0.9}.Similar(0.99))
}

func TestParseDevice(t *testing.T) {
	d, err := ParseDevice("cpu")
	require.NoError(t, err)
	assert.Equal(t, DeviceCPU, d)

	d, err = ParseDevice("gpu")
	require.NoError(t, err)
	assert.Equal(t, DeviceGPU, d)

	_, err = ParseDevice("tpu")
	assert.Error(t, err)
}

func TestDTypeString(t *testing.T) {
	assert.Equal(t, "f16", DTypeFloat16.String())
	assert.Equal(t, "f32", DTypeFloat32.String())
	assert.Equal(t, "dtype(3)", DTypeUint32.String())
}
