// mask.go - Attention-Masken
//
// Eine Maske ist genau eine der Varianten NoMask, CausalMask oder
// ExplicitMask. Eine nil-Maske wird wie NoMask behandelt.
package nn

import (
	"errors"
	"fmt"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// ErrUnexpectedMaskShape wird fuer Masken geliefert, die nicht 2-, 3- oder 4-dimensional sind
var ErrUnexpectedMaskShape = errors.New("unexpected mask shape")

// Mask ist die geschlossene Menge der Masken-Varianten
type Mask interface {
	isMask()
}

// NoMask: keine Maskierung
type NoMask struct{}

// CausalMask nutzt das eingebaute kausale Muster des Kernels
type CausalMask struct{}

// ExplicitMask traegt einen vom Aufrufer gelieferten Masken-Tensor. Der
// Dispatcher leiht sich den Tensor nur fuer die Dauer eines Aufrufs.
type ExplicitMask struct {
	Tensor ml.Tensor
}

func (NoMask) isMask()       {}
func (CausalMask) isMask()   {}
func (ExplicitMask) isMask() {}

// DefaultMask ist die Maske fuer Decoder ohne eigene Maske
func DefaultMask() Mask {
	return CausalMask{}
}

// ModeOf liefert das Modus-Token, das der Kernel fuer mask erhaelt.
// Explizite Masken laufen mit MaskModeNone, der Kernel erkennt sie am
// Container.
func ModeOf(mask Mask) ml.MaskMode {
	switch mask.(type) {
	case nil, NoMask, ExplicitMask:
		return ml.MaskModeNone
	case CausalMask:
		return ml.MaskModeCausal
	default:
		panic(fmt.Sprintf("nn: unhandled mask type %T", mask))
	}
}

// resolveMask waehlt das Modus-Token und fuellt masks fuer explizite Masken
func resolveMask(mask Mask, masks ml.MaskVector) ml.MaskMode {
	mode := ModeOf(mask)
	if m, ok := mask.(ExplicitMask); ok && m.Tensor != nil {
		masks.Append(m.Tensor)
	}
	return mode
}

// NormalizedMaskShape liefert die Reshape- und Broadcast-Ziele fuer eine
// Maske der Form shape:
//
//	[B, T]       -> reshape [B, 1, 1, T], broadcast [B, 1, T, T]
//	[B, Q, K]    -> reshape [B, 1, Q, K], kein broadcast
//	[B, H, Q, K] -> unveraendert
//
// Ein nil-Ziel bedeutet, dass der Schritt entfaellt.
func NormalizedMaskShape(shape []int) (reshape, broadcast []int, err error) {
	switch len(shape) {
	case 2:
		b, t := shape[0], shape[1]
		return []int{b, 1, 1, t}, []int{b, 1, t, t}, nil
	case 3:
		return []int{shape[0], 1, shape[1], shape[2]}, nil, nil
	case 4:
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrUnexpectedMaskShape, shape)
	}
}

// NewExplicitMask normalisiert t auf vier Dimensionen. Fuer 2- und 3-D
// Masken gehoert der neue Tensor dem Aufrufer; eine 4-D Maske wird
// unveraendert uebernommen (m.Tensor == t).
func NewExplicitMask(ops ml.MaskOps, t ml.Tensor) (ExplicitMask, error) {
	reshape, broadcast, err := NormalizedMaskShape(t.Shape())
	if err != nil {
		return ExplicitMask{}, err
	}

	out := t
	if reshape != nil {
		if out, err = ops.Reshape(t, reshape...); err != nil {
			return ExplicitMask{}, fmt.Errorf("reshape mask: %w", err)
		}
	}

	if broadcast != nil {
		reshaped := out
		out, err = ops.BroadcastTo(reshaped, broadcast...)
		if reshaped != t {
			reshaped.Free()
		}
		if err != nil {
			return ExplicitMask{}, fmt.Errorf("broadcast mask: %w", err)
		}
	}

	return ExplicitMask{Tensor: out}, nil
}
