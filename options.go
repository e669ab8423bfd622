package caramel

import (
	"fmt"

	"github.com/caramel-csf/caramel/internal/serialize"
)

// PrefilterKind selects the AMQ prefilter variant spec.md §6 enumerates
// as the `prefilter` constructor option.
type PrefilterKind int

const (
	PrefilterNone PrefilterKind = iota
	PrefilterBloom
	PrefilterXor
	PrefilterBinaryFuse
)

func (k PrefilterKind) String() string {
	switch k {
	case PrefilterNone:
		return "none"
	case PrefilterBloom:
		return "bloom"
	case PrefilterXor:
		return "xor"
	case PrefilterBinaryFuse:
		return "binaryfuse"
	default:
		return "unknown"
	}
}

// PrefilterSpec names which prefilter variant to build and its sizing
// parameters, per spec.md §6's `prefilter` option:
// `none | Bloom{bits_per_element, num_hashes} | XOR{fingerprint_bits} |
// BinaryFuse{fingerprint_bits}`. A Bloom filter's bits per element and
// hash count are derived from FPRate; neither can be set directly.
type PrefilterSpec struct {
	Kind PrefilterKind

	// FPRate sizes a Bloom filter; <= 0 defaults to 0.01. Unused by XOR
	// and Binary Fuse, whose false-positive rate is instead set by
	// FingerprintBits.
	FPRate float64

	// FingerprintBits sets the per-slot fingerprint width for XOR and
	// Binary Fuse filters; <= 0 defaults to filter.DefaultFingerprintBits
	// (8, ≈1/256 false-positive rate). Widening it trades filter size
	// for a lower false-positive rate, per spec.md §4.7's bits/element
	// table. Unused by Bloom.
	FingerprintBits int
}

// BuildOptions are the options a scalar or multiset Build call accepts,
// per spec.md §6's enumerated constructor options.
type BuildOptions struct {
	Prefilter PrefilterSpec

	// BucketSize overrides the target mean bucket size (bucket.DefaultTargetSize if 0).
	BucketSize int

	// Workers overrides the worker pool size (runtime.NumCPU() if 0).
	Workers int

	// HasherSeed is the master hasher seed σ. Fixing it makes a build
	// byte-identical across runs, per spec.md §8's determinism property.
	HasherSeed uint64

	// MaxToInfer is recorded in the manifest sidecar by Save. InferCodec
	// does not read it; InferCodec takes its own maxToInfer argument.
	MaxToInfer int

	// Verbose enables a ticker-driven progress reporter during the
	// build, grounded on the teacher's startReporting/stopReporting.
	Verbose bool
}

// DefaultMaxToInfer bounds InferCodec's scan when its maxToInfer
// argument is zero or negative.
const DefaultMaxToInfer = 1000

// ValueCodec supplies a CSF with the marshal/unmarshal pair and the
// serialize.ValueType tag needed to persist and reload values of type T.
// Go's generics carry no runtime type information on their own, so a
// caller supplies this small vtable explicitly instead of the dynamic
// dispatch spec.md §9 says this implementation replaces with a tagged
// variant.
type ValueCodec[T any] struct {
	Tag       serialize.ValueType
	Marshal   func(T) []byte
	Unmarshal func([]byte) T
}

// Uint32Codec returns the ValueCodec for the `u32` value type.
func Uint32Codec() ValueCodec[uint32] {
	return ValueCodec[uint32]{
		Tag:       serialize.ValueU32,
		Marshal:   func(v uint32) []byte { return putUint32(v) },
		Unmarshal: func(b []byte) uint32 { return getUint32(b) },
	}
}

// Uint64Codec returns the ValueCodec for the `u64` value type.
func Uint64Codec() ValueCodec[uint64] {
	return ValueCodec[uint64]{
		Tag:       serialize.ValueU64,
		Marshal:   func(v uint64) []byte { return putUint64(v) },
		Unmarshal: func(b []byte) uint64 { return getUint64(b) },
	}
}

// StringCodec returns the ValueCodec for the variable-length `string`
// value type.
func StringCodec() ValueCodec[string] {
	return ValueCodec[string]{
		Tag:       serialize.ValueString,
		Marshal:   func(v string) []byte { return []byte(v) },
		Unmarshal: func(b []byte) string { return string(b) },
	}
}

// Char10Codec returns the ValueCodec for the fixed-length 10-byte
// `char10` value type.
func Char10Codec() ValueCodec[[10]byte] {
	return ValueCodec[[10]byte]{
		Tag:       serialize.ValueChar10,
		Marshal:   func(v [10]byte) []byte { return v[:] },
		Unmarshal: func(b []byte) [10]byte { var v [10]byte; copy(v[:], b); return v },
	}
}

// Char12Codec returns the ValueCodec for the fixed-length 12-byte
// `char12` value type.
func Char12Codec() ValueCodec[[12]byte] {
	return ValueCodec[[12]byte]{
		Tag:       serialize.ValueChar12,
		Marshal:   func(v [12]byte) []byte { return v[:] },
		Unmarshal: func(b []byte) [12]byte { var v [12]byte; copy(v[:], b); return v },
	}
}

func putUint32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func getUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint64(v uint64) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func getUint64(b []byte) uint64 {
	_ = b[7]
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// InferCodec auto-dispatches on the value type of a dynamically-typed
// value slice, per spec.md §6's `max_to_infer` option: it examines at
// most maxToInfer elements (0 uses DefaultMaxToInfer), requires they
// all share one recognized concrete type, and returns the matching
// ValueCodec as an `any` the caller type-asserts back to ValueCodec[T].
// Unrecognized or inconsistent types return ErrUnsupportedValueType.
func InferCodec(values []any, maxToInfer int) (any, error) {
	if len(values) == 0 {
		return nil, ErrEmptyInput
	}
	if maxToInfer <= 0 {
		maxToInfer = DefaultMaxToInfer
	}
	limit := len(values)
	if limit > maxToInfer {
		limit = maxToInfer
	}

	codecFor := func(v any) (any, bool) {
		switch v.(type) {
		case uint32:
			return Uint32Codec(), true
		case uint64:
			return Uint64Codec(), true
		case string:
			return StringCodec(), true
		case [10]byte:
			return Char10Codec(), true
		case [12]byte:
			return Char12Codec(), true
		default:
			return nil, false
		}
	}

	first, ok := codecFor(values[0])
	if !ok {
		return nil, ErrUnsupportedValueType
	}
	for i := 1; i < limit; i++ {
		c, ok := codecFor(values[i])
		if !ok || fmt.Sprintf("%T", c) != fmt.Sprintf("%T", first) {
			return nil, ErrUnsupportedValueType
		}
	}
	return first, nil
}
