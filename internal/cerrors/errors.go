// Package cerrors holds the sentinel errors spec.md §7 names, factored
// out of the root package so internal packages (internal/serialize,
// internal/filter) can return them without an import cycle back to the
// root package. The root package re-exports each of these under the
// same names so callers never need to import this package directly.
package cerrors

import "errors"

var (
	ErrKeyCollision         = errors.New("caramel: key collision under 128-bit hash")
	ErrEmptyInput           = errors.New("caramel: empty input")
	ErrLengthMismatch       = errors.New("caramel: keys/values length mismatch")
	ErrUnsupportedValueType = errors.New("caramel: unsupported value type")
	ErrSolverExhausted      = errors.New("caramel: solver exhausted seed retries")
	ErrDeserialization      = errors.New("caramel: deserialization mismatch")
	ErrInvalidOffset        = errors.New("caramel: invalid bit offset")
	ErrWouldBlock           = errors.New("caramel: lock would block")
)
