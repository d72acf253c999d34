// attention.go - Ausfuehrung eines Attention-Requests auf einem Backend
// Enthaelt: Attention() - Tensoren anlegen, Maske bauen, Dispatch, Auslesen

package server

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ollama/ollama-sdpa/api"
	"github.com/ollama/ollama-sdpa/x/ml"
	"github.com/ollama/ollama-sdpa/x/ml/nn"
)

// ErrInvalidInput markiert Fehler, die aus den Eingabedaten stammen
var ErrInvalidInput = errors.New("invalid input")

// Attention fuehrt req auf b aus. Alle Tensoren, die dabei entstehen,
// werden vor der Rueckkehr freigegeben. Der Request muss bereits
// validiert sein.
func Attention(b ml.Backend, d *nn.Dispatcher, req api.AttentionRequest) (*api.AttentionResponse, error) {
	start := time.Now()

	var tensors []ml.Tensor
	defer func() {
		for _, t := range tensors {
			t.Free()
		}
	}()

	upload := func(name string, td api.TensorData) (ml.Tensor, error) {
		t, err := b.FromFloats(td.Data, td.Shape...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidInput, name, err)
		}
		tensors = append(tensors, t)
		return t, nil
	}

	q, err := upload("queries", req.Queries)
	if err != nil {
		return nil, err
	}
	k, err := upload("keys", req.Keys)
	if err != nil {
		return nil, err
	}
	v, err := upload("values", req.Values)
	if err != nil {
		return nil, err
	}

	mask, err := requestMask(b, req.Mask, upload)
	if err != nil {
		return nil, err
	}
	if m, ok := mask.(nn.ExplicitMask); ok && !slices.Contains(tensors, m.Tensor) {
		tensors = append(tensors, m.Tensor)
	}

	out, err := d.ScaledDotProductAttention(q, k, v, nil, *req.Scale, mask)
	if err != nil {
		return nil, err
	}
	defer out.Free()

	data, err := out.Floats()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	return &api.AttentionResponse{
		Output:        api.TensorData{Shape: out.Shape(), Data: data},
		Mode:          nn.ModeOf(mask).String(),
		Device:        string(d.Device()),
		TotalDuration: time.Since(start),
	}, nil
}

func requestMask(ops ml.MaskOps, spec *api.MaskSpec, upload func(string, api.TensorData) (ml.Tensor, error)) (nn.Mask, error) {
	if spec == nil {
		return nil, nil
	}

	switch spec.Type {
	case "", api.MaskNone:
		return nn.NoMask{}, nil
	case api.MaskCausal:
		return nn.CausalMask{}, nil
	case api.MaskExplicit:
		t, err := upload("mask", *spec.Tensor)
		if err != nil {
			return nil, err
		}
		m, err := nn.NewExplicitMask(ops, t)
		if err != nil {
			return nil, fmt.Errorf("%w: mask: %w", ErrInvalidInput, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: unknown mask type %q", ErrInvalidInput, spec.Type)
	}
}
