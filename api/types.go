// Package api - Typen der Attention-API
// Enthaelt: StatusError, TensorData, MaskSpec, AttentionRequest, AttentionResponse
package api

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`

	// RequestID ist die ID aus dem Response-Header, fuer die Suche im Server-Log
	RequestID string `json:"-"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the server logs for details"
	}
}

// TensorData ist ein dichter Tensor in Zeilen-Major-Reihenfolge
type TensorData struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// Validate prueft, dass Shape und Datenlaenge zusammenpassen
func (t TensorData) Validate() error {
	if len(t.Shape) == 0 {
		return errors.New("shape is required")
	}

	n := 1
	for _, d := range t.Shape {
		if d <= 0 {
			return fmt.Errorf("invalid dimension %d in shape %v", d, t.Shape)
		}
		n *= d
	}

	if n != len(t.Data) {
		return fmt.Errorf("shape %v needs %d values, got %d", t.Shape, n, len(t.Data))
	}
	return nil
}

// Masken-Typen im Request
const (
	MaskNone     = "none"
	MaskCausal   = "causal"
	MaskExplicit = "explicit"
)

// MaskSpec beschreibt die Attention-Maske eines Requests
type MaskSpec struct {
	Type   string      `json:"type"`
	Tensor *TensorData `json:"tensor,omitempty"`
}

// Validate prueft Typ und Tensor der Maske
func (m MaskSpec) Validate() error {
	switch m.Type {
	case "", MaskNone, MaskCausal:
		if m.Tensor != nil {
			return fmt.Errorf("mask type %q does not take a tensor", m.Type)
		}
		return nil
	case MaskExplicit:
		if m.Tensor == nil {
			return errors.New("explicit mask requires a tensor")
		}
		if err := m.Tensor.Validate(); err != nil {
			return fmt.Errorf("mask: %w", err)
		}
		if r := len(m.Tensor.Shape); r < 2 || r > 4 {
			return fmt.Errorf("mask: unexpected rank %d", r)
		}
		return nil
	default:
		return fmt.Errorf("unknown mask type %q", m.Type)
	}
}

// AttentionRequest ist der Request fuer POST /api/attention
type AttentionRequest struct {
	Queries TensorData `json:"queries"`
	Keys    TensorData `json:"keys"`
	Values  TensorData `json:"values"`

	// Scale hat keinen Default und muss endlich sein
	Scale *float32 `json:"scale"`

	// Mask ist optional; fehlt sie, wird ohne Maske gerechnet
	Mask *MaskSpec `json:"mask,omitempty"`
}

// Validate prueft den Request; Shape-Kompatibilitaet prueft der Kernel
func (r AttentionRequest) Validate() error {
	for name, t := range map[string]TensorData{"queries": r.Queries, "keys": r.Keys, "values": r.Values} {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if r.Scale == nil {
		return errors.New("scale is required")
	}
	if s := float64(*r.Scale); math.IsNaN(s) || math.IsInf(s, 0) {
		return fmt.Errorf("scale must be finite, got %v", s)
	}

	if r.Mask != nil {
		return r.Mask.Validate()
	}
	return nil
}

// AttentionResponse ist die Antwort von POST /api/attention
type AttentionResponse struct {
	Output TensorData `json:"output"`

	// Mode ist das aufgeloeste Masken-Token ("unmasked" oder "causal")
	Mode   string `json:"mode"`
	Device string `json:"device"`

	TotalDuration time.Duration `json:"total_duration,omitempty"`
}
