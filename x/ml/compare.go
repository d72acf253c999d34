// compare.go - Tensor-Vergleich
// Vergleicht zwei Tensoren per Kosinus-Aehnlichkeit und Differenzen,
// z.B. um eine Kernel-Ausgabe gegen eine Referenz zu pruefen.
package ml

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Comparison haelt die Aehnlichkeitsmasse zweier Tensoren
type Comparison struct {
	Cosine        float64
	MinDifference float64
	MaxDifference float64
	Euclidean     float64
}

// Similar prueft, ob die Kosinus-Aehnlichkeit mindestens minCosine ist
func (c Comparison) Similar(minCosine float64) bool {
	return c.Cosine >= minCosine
}

// Compare vergleicht die Daten von a und b. Die Shapes muessen gleich sein.
func Compare(a, b Tensor) (Comparison, error) {
	if !slices.Equal(a.Shape(), b.Shape()) {
		return Comparison{}, fmt.Errorf("mismatched shapes: %v vs. %v", a.Shape(), b.Shape())
	}

	af, err := a.Floats()
	if err != nil {
		return Comparison{}, err
	}
	bf, err := b.Floats()
	if err != nil {
		return Comparison{}, err
	}

	return CompareFloats(af, bf)
}

// CompareFloats vergleicht zwei gleich lange Vektoren
func CompareFloats(a, b []float32) (Comparison, error) {
	if len(a) != len(b) {
		return Comparison{}, fmt.Errorf("mismatched lengths: %d vs. %d", len(a), len(b))
	}
	if len(a) == 0 {
		return Comparison{Cosine: 1}, nil
	}

	a64, b64 := widen(a), widen(b)
	diff := make([]float64, len(a64))
	floats.SubTo(diff, a64, b64)

	c := Comparison{
		MinDifference: floats.Min(diff),
		MaxDifference: floats.Max(diff),
		Euclidean:     floats.Distance(a64, b64, 2),
	}

	na, nb := floats.Norm(a64, 2), floats.Norm(b64, 2)
	switch {
	case na == 0 && nb == 0:
		c.Cosine = 1
	case na == 0 || nb == 0:
		c.Cosine = 0
	default:
		c.Cosine = floats.Dot(a64, b64) / (na * nb)
	}

	if math.IsNaN(c.Cosine) {
		return c, fmt.Errorf("cosine similarity is NaN")
	}
	return c, nil
}

func widen(s []float32) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}
