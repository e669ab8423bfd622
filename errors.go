package caramel

import "github.com/caramel-csf/caramel/internal/cerrors"

// Sentinel errors returned by Build, BuildMultiset, and Load. Callers should use
// errors.Is to check for a specific failure mode; wrapped errors carry the
// offending key/bucket index in their message where one is known.
//
// These are re-exports of internal/cerrors, which exists so that
// internal packages (internal/serialize, internal/filter) can return
// the same sentinels without importing this root package and creating
// an import cycle.
var (
	// ErrKeyCollision is returned when two distinct input keys hash to the
	// same 128-bit value. Not retryable: re-seeding the master hasher will
	// not change the fact that the hash oracle collided on these keys.
	ErrKeyCollision = cerrors.ErrKeyCollision

	// ErrEmptyInput is returned when Build is called with zero keys.
	ErrEmptyInput = cerrors.ErrEmptyInput

	// ErrLengthMismatch is returned when keys and values have different
	// lengths, or a multiset value's column widths are not uniform.
	ErrLengthMismatch = cerrors.ErrLengthMismatch

	// ErrUnsupportedValueType is returned when a value cannot be mapped to
	// one of the recognized ValueType tags.
	ErrUnsupportedValueType = cerrors.ErrUnsupportedValueType

	// ErrSolverExhausted is returned when a bucket's linear system could
	// not be solved within the configured seed-retry bound.
	ErrSolverExhausted = cerrors.ErrSolverExhausted

	// ErrDeserialization is returned when a persisted file's magic,
	// version, or value-type tag does not match what was expected.
	ErrDeserialization = cerrors.ErrDeserialization

	// ErrInvalidOffset is returned by BitArray operations given an
	// out-of-range bit index or width.
	ErrInvalidOffset = cerrors.ErrInvalidOffset

	// ErrWouldBlock is returned by TrySaveFile when another writer
	// already holds the output file's lock.
	ErrWouldBlock = cerrors.ErrWouldBlock
)
