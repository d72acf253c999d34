package nn

import (
	"errors"

	"github.com/ollama/ollama-sdpa/x/ml"
)

// ErrKernelFailure matcht jeden KernelError per errors.Is
var ErrKernelFailure = errors.New("attention kernel failure")

// KernelError meldet einen Fehler-Status des nativen Kernels. Es gibt
// keinen Retry, der Fehler geht unveraendert an den Aufrufer.
type KernelError struct {
	Mode    ml.MaskMode
	Message string
	Err     error
}

func (e *KernelError) Error() string {
	return ErrKernelFailure.Error() + " (mode " + e.Mode.String() + "): " + e.Message
}

func (e *KernelError) Unwrap() []error {
	return []error{ErrKernelFailure, e.Err}
}
