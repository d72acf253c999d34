// Package backend bindet die nativen Attention-Backends ein. Ein Backend
// registriert sich in init bei ml.RegisterBackend; welche Backends
// verfuegbar sind, bestimmen die Build-Tags.
package backend
