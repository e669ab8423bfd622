// Package caramel builds and queries Compressed Static Functions: an
// immutable, read-only map from byte-string keys to values of a small
// alphabet, stored close to the information-theoretic minimum for the
// value distribution (spec.md §1).
package caramel

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/caramel-csf/caramel/internal/bitarray"
	"github.com/caramel-csf/caramel/internal/bucket"
	"github.com/caramel-csf/caramel/internal/filter"
	"github.com/caramel-csf/caramel/internal/gf2"
	"github.com/caramel-csf/caramel/internal/hasher"
	"github.com/caramel-csf/caramel/internal/huffman"
	"github.com/caramel-csf/caramel/internal/manifest"
	"github.com/caramel-csf/caramel/internal/serialize"
	"github.com/caramel-csf/caramel/internal/solver"
	"github.com/caramel-csf/caramel/internal/worker"
)

// bucketSlot is one bucket's in-memory state: its solved offset into
// the global S bitstring and the codebook needed to decode a query's
// extracted L_b-bit word back to a value.
type bucketSlot[T comparable] struct {
	startOffsetBits uint64
	codebook        *huffman.Codebook[T] // nil for an empty bucket
}

// CSF is a built, queryable Compressed Static Function over keys of
// type []byte and values of type T.
type CSF[T comparable] struct {
	codec      ValueCodec[T]
	hasherSeed uint64
	h          *hasher.Hasher // cached oracle for Query; see hasher.Hasher's doc comment
	idBits     uint
	buckets    []bucketSlot[T]
	s          *bitarray.BitArray

	filter        filter.Filter
	hasMajority   bool
	majorityValue T

	// keyCount is the original input key count, tracked for Stats and
	// the manifest sidecar. It is not persisted in the container itself
	// (when a prefilter is active the container stores only the minority
	// set plus the majority keys the filter reports positive), so a
	// Load'ed CSF reports it as 0.
	keyCount int

	stats Stats
}

// Build constructs a CSF over (keys, values), per spec.md §4's full
// pipeline: optional majority/minority split, bucketing, per-bucket
// Huffman codebook, GF(2) system assembly, seed-retried solving, and
// assembly of the global solved bitstring S.
func Build[T comparable](keys [][]byte, values []T, codec ValueCodec[T], opts BuildOptions) (*CSF[T], error) {
	if len(keys) == 0 {
		return nil, ErrEmptyInput
	}
	if len(keys) != len(values) {
		return nil, ErrLengthMismatch
	}

	start := time.Now()

	csf := &CSF[T]{codec: codec, hasherSeed: opts.HasherSeed, h: hasher.New(opts.HasherSeed), keyCount: len(keys)}

	workKeys, workValues := keys, values
	if opts.Prefilter.Kind != PrefilterNone {
		majority, count := computeMajority(values)
		if count > 0 {
			minorityKeys := make([][]byte, 0, len(keys))
			minorityValues := make([]T, 0, len(keys))
			for i, v := range values {
				if v != majority {
					minorityKeys = append(minorityKeys, keys[i])
					minorityValues = append(minorityValues, v)
				}
			}
			f, err := buildFilter(opts.Prefilter, minorityKeys)
			if err != nil {
				return nil, err
			}
			// Majority keys the filter reports positive still reach the
			// CSF at query time, so they are stored in it as well.
			if f != nil {
				for i, v := range values {
					if v == majority && f.MightContain(keys[i]) {
						minorityKeys = append(minorityKeys, keys[i])
						minorityValues = append(minorityValues, v)
					}
				}
			}
			csf.filter = f
			csf.hasMajority = true
			csf.majorityValue = majority
			workKeys, workValues = minorityKeys, minorityValues
		}
	}

	report := manifest.BuildReport{KeyCount: len(keys)}

	if len(workKeys) > 0 {
		store, err := bucket.Build(len(workKeys), func(i int) []byte { return workKeys[i] }, opts.HasherSeed, bucket.Options{
			TargetSize: opts.BucketSize,
			Workers:    opts.Workers,
		})
		if err != nil {
			var ce *bucket.CollisionError
			if errors.As(err, &ce) {
				return nil, fmt.Errorf("%w: input indices %d and %d", ErrKeyCollision, ce.IndexA, ce.IndexB)
			}
			return nil, err
		}

		built := make([]builtBucket[T], len(store.Buckets))
		var retries int64
		var retriesMu sync.Mutex

		pool := worker.New(opts.Workers)
		var ticker *worker.TickerReporter
		if opts.Verbose {
			var done int
			total := len(store.Buckets)
			var progMu sync.Mutex
			pool.Progress = func(d, t int) {
				progMu.Lock()
				done = d
				progMu.Unlock()
			}
			ticker = worker.StartTicker(time.Second, func() {
				progMu.Lock()
				d := done
				progMu.Unlock()
				fmt.Printf("caramel: build %d/%d buckets\n", d, total)
			})
		}

		err = pool.Run(len(store.Buckets), func(bi int) error {
			b, attempts, buildErr := buildOneBucket(store.Buckets[bi], workKeys, workValues, opts.HasherSeed, bi)
			if buildErr != nil {
				return buildErr
			}
			built[bi] = b
			retriesMu.Lock()
			retries += int64(attempts)
			retriesMu.Unlock()
			return nil
		})
		if ticker != nil {
			ticker.Stop()
		}
		if err != nil {
			return nil, err
		}

		offsets := make([]uint64, len(built))
		var total uint64
		for i, b := range built {
			offsets[i] = total
			if b.solution != nil {
				total += b.solution.Bits.Len()
			}
		}

		s := bitarray.New(total)
		for i, b := range built {
			if b.solution != nil {
				if err := s.XorRange(offsets[i], b.solution.Bits, 0, b.solution.Bits.Len()); err != nil {
					return nil, err
				}
			}
		}

		slots := make([]bucketSlot[T], len(built))
		for i, b := range built {
			slots[i] = bucketSlot[T]{startOffsetBits: offsets[i], codebook: b.codebook}
		}

		csf.buckets = slots
		csf.s = s
		csf.idBits = store.IDBits
		report.BucketCount = len(store.Buckets)
		report.SolverRetries = int(retries)
	} else {
		csf.s = bitarray.New(0)
	}

	report.BuildSeconds = time.Since(start).Seconds()
	csf.stats = csf.computeStats(report)
	return csf, nil
}

// builtBucket is one worker job's result: the bucket's codebook
// (nil if the bucket is empty) and, unless the codebook is degenerate
// (single symbol, no system needed), its solved bit-slice.
type builtBucket[T comparable] struct {
	codebook *huffman.Codebook[T]
	solution *solver.Solution
}

func buildOneBucket[T comparable](bkt bucket.Bucket, keys [][]byte, values []T, masterSeed uint64, bucketIndex int) (builtBucket[T], int, error) {
	if len(bkt.Entries) == 0 {
		return builtBucket[T]{}, 0, nil
	}

	bucketValues := make([]T, len(bkt.Entries))
	for i, e := range bkt.Entries {
		bucketValues[i] = values[e.Value]
	}
	codebook, err := huffman.Build(bucketValues)
	if err != nil {
		return builtBucket[T]{}, 0, err
	}
	if codebook.CodeLength == 0 {
		return builtBucket[T]{codebook: codebook}, 0, nil
	}

	groups := bucketGroups(len(bkt.Entries))

	buildSystem := func(trialSeed uint64) *gf2.System {
		h := hasher.New(trialSeed)
		sys := gf2.New(groups, codebook.CodeLength, len(bkt.Entries))
		for _, e := range bkt.Entries {
			ep := h.Endpoints(keys[e.Value], groups)
			code, _ := codebook.Encode(values[e.Value])
			sys.AddRow(ep.H0, ep.H1, ep.H2, code.Bits)
		}
		return sys
	}

	baseSeed := masterSeed ^ (uint64(bucketIndex)*0x9E3779B97F4A7C15 + 1)
	sol, _, ok := solver.SolveWithRetry(buildSystem, baseSeed, solver.DefaultMaxRetries)
	if !ok {
		return builtBucket[T]{}, solver.DefaultMaxRetries, fmt.Errorf("%w: bucket %d", ErrSolverExhausted, bucketIndex)
	}
	return builtBucket[T]{codebook: codebook, solution: sol}, 1, nil
}

// bucketGroups returns m_b, the column-group count spec.md §4.5 derives
// from the bucket size: ceil(delta * n_b), with a floor so tiny buckets
// still form a valid 3-regular hypergraph.
func bucketGroups(n int) uint64 {
	g := uint64(math.Ceil(solver.DefaultExpansionDelta * float64(n)))
	if g < 3 {
		g = 3
	}
	return g
}

// computeMajority returns the most frequent value in values and its
// occurrence count (0 if values is empty).
func computeMajority[T comparable](values []T) (T, int) {
	counts := make(map[T]int, len(values))
	var best T
	bestCount := 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			bestCount = counts[v]
			best = v
		}
	}
	return best, bestCount
}

// buildFilter constructs the AMQ prefilter over the minority key set
// per the requested spec, per spec.md §4.7.
func buildFilter(spec PrefilterSpec, minorityKeys [][]byte) (filter.Filter, error) {
	switch spec.Kind {
	case PrefilterBloom:
		fp := spec.FPRate
		if fp <= 0 {
			fp = 0.01
		}
		bf := filter.NewBloomFilter(len(minorityKeys), fp)
		h := hasher.New(0) // BloomFilter.MightContain always re-hashes under seed 0
		for _, k := range minorityKeys {
			bf.Add(h.Hash128(k))
		}
		return bf, nil
	case PrefilterXor:
		return filter.BuildXorFilter(minorityKeys, spec.FingerprintBits)
	case PrefilterBinaryFuse:
		return filter.BuildBinaryFuseFilter(minorityKeys, spec.FingerprintBits)
	default:
		return nil, nil
	}
}

// Query returns the value stored for key. Keys outside the original
// input set return a defined but meaningless value (spec.md §3): no
// error is returned for an out-of-set key, matching the core contract
// that the CSF never stored the key set itself.
//
// Query is synchronous and non-blocking. Without a prefilter it reuses
// c.h, the Hasher cached at Build/Load time, rather than constructing a
// fresh one per call. With a prefilter it is not allocation-free: every
// filter's MightContain builds a new Hasher on each call. c.h is safe to
// share across concurrent Query calls; see hasher.Hasher's doc comment.
func (c *CSF[T]) Query(key []byte) T {
	if c.filter != nil && !c.filter.MightContain(key) {
		return c.majorityValue
	}
	if len(c.buckets) == 0 {
		var zero T
		return zero
	}

	h := c.h
	bi := bucketIDFor(h, key, c.idBits)
	slot := c.buckets[bi]
	if slot.codebook == nil {
		var zero T
		return zero
	}
	if slot.codebook.CodeLength == 0 {
		return slot.codebook.Symbols()[0]
	}

	groups := bucketGroupsFromWidth(c, bi)
	ep := h.Endpoints(key, groups)
	l := uint64(slot.codebook.CodeLength)

	w0, _ := c.s.ReadBits(slot.startOffsetBits+ep.H0*l, l)
	w1, _ := c.s.ReadBits(slot.startOffsetBits+ep.H1*l, l)
	w2, _ := c.s.ReadBits(slot.startOffsetBits+ep.H2*l, l)
	word := w0 ^ w1 ^ w2
	return slot.codebook.Decode(word)
}

// bucketGroupsFromWidth recovers a bucket's column-group count from the
// distance to the next bucket's start offset (or to the end of S for
// the last bucket), since the container format doesn't persist m_b
// directly — it's fully determined by bucket size at build time, but
// query only has the serialized offsets, so it's derived from them.
func bucketGroupsFromWidth[T comparable](c *CSF[T], bi uint32) uint64 {
	l := uint64(c.buckets[bi].codebook.CodeLength)
	var end uint64
	if int(bi)+1 < len(c.buckets) {
		end = c.buckets[bi+1].startOffsetBits
	} else {
		end = c.s.Len()
	}
	return (end - c.buckets[bi].startOffsetBits) / l
}

// bucketIDFor dispatches key to its bucket id, mirroring
// internal/bucket.Build's own (unexported) dispatch so query uses the
// identical bucket assignment as build without importing store
// internals.
func bucketIDFor(h *hasher.Hasher, key []byte, idBits uint) uint32 {
	if idBits == 0 {
		return 0
	}
	tag := h.BucketTag(key)
	return uint32(tag >> (64 - idBits))
}

// GetStats returns the size and distribution breakdown computed at
// build time, or recomputed from the container by Load. Load does not
// read the manifest sidecar, so a loaded CSF reports BitsPerKey as 0.
func (c *CSF[T]) GetStats() Stats { return c.stats }

func (c *CSF[T]) computeStats(report manifest.BuildReport) Stats {
	s := Stats{
		BucketCount:         len(c.buckets),
		CodeLengthHistogram: map[uint8]int{},
	}

	if c.s != nil {
		s.SolutionBytes = int((c.s.Len() + 7) / 8)
	}
	if c.filter != nil {
		s.FilterBytes = len(c.filter.Marshal())
	}

	var minBits, maxBits uint64
	var sumBits uint64
	first := true
	symbolSet := map[any]struct{}{}
	var totalCodeBits uint64
	var totalSymbolCount uint64

	for i, b := range c.buckets {
		var width uint64
		if b.codebook != nil && b.codebook.CodeLength > 0 {
			width = bucketGroupsFromWidth(c, uint32(i)) * uint64(b.codebook.CodeLength)
		}
		if first {
			minBits, maxBits = width, width
			first = false
		}
		if width < minBits {
			minBits = width
		}
		if width > maxBits {
			maxBits = width
		}
		sumBits += width

		if b.codebook != nil {
			s.CodeLengthHistogram[b.codebook.CodeLength]++
			for _, sym := range b.codebook.Symbols() {
				symbolSet[sym] = struct{}{}
			}
			for _, l := range b.codebook.Lengths() {
				totalCodeBits += uint64(l)
				totalSymbolCount++
			}
			s.MetadataBytes += len(b.codebook.Marshal(func(v T) []byte { return c.codec.Marshal(v) }))
		}
		s.MetadataBytes += 9 // start_offset(8) + code_length(1)
	}

	s.MinSolutionBits = minBits
	s.MaxSolutionBits = maxBits
	if len(c.buckets) > 0 {
		s.AvgSolutionBits = float64(sumBits) / float64(len(c.buckets))
	}
	s.UniqueSymbols = len(symbolSet)
	if totalSymbolCount > 0 {
		s.AvgBitsPerSymbol = float64(totalCodeBits) / float64(totalSymbolCount)
	}
	if report.KeyCount > 0 {
		s.BitsPerKey = float64(s.SolutionBytes*8+s.FilterBytes*8) / float64(report.KeyCount)
	}
	s.TotalBytes = s.SolutionBytes + s.FilterBytes + s.MetadataBytes
	return s
}

// Save persists the CSF to path as a single versioned binary container
// (spec.md §6), alongside a JSON sidecar manifest recording the build
// options and a report. The saved report holds only the key count,
// bucket count and bits per key; its retry and timing fields are zero.
func (c *CSF[T]) Save(path string, opts BuildOptions) error {
	container := &serialize.Container{
		ValueType:  c.codec.Tag,
		HasherSeed: c.hasherSeed,
		Buckets:    make([]serialize.BucketDescriptor, len(c.buckets)),
		SBits:      c.s.Len(),
		SBytes:     wordsToBytes(c.s),
	}
	for i, b := range c.buckets {
		cl := uint8(0)
		var blob []byte
		if b.codebook != nil {
			cl = b.codebook.CodeLength
			blob = b.codebook.Marshal(func(v T) []byte { return c.codec.Marshal(v) })
		}
		container.Buckets[i] = serialize.BucketDescriptor{
			StartOffsetBits: b.startOffsetBits,
			CodeLength:      cl,
			Codebook:        blob,
		}
	}
	if c.filter != nil {
		container.FilterKind = uint8(c.filter.Kind())
		container.FilterBlob = c.filter.Marshal()
	}
	if c.hasMajority {
		container.HasMajority = true
		container.MajorityValue = c.codec.Marshal(c.majorityValue)
	}

	if err := serialize.SaveFile(path, container); err != nil {
		return err
	}

	m := manifest.New(path, manifest.BuildOptions{
		Prefilter:  opts.Prefilter.Kind.String(),
		BucketSize: opts.BucketSize,
		Workers:    opts.Workers,
		HasherSeed: c.hasherSeed,
		MaxToInfer: opts.MaxToInfer,
		Verbose:    opts.Verbose,
	})
	m.SetReport(manifest.BuildReport{
		KeyCount:    c.keyCount,
		BucketCount: len(c.buckets),
		BitsPerKey:  c.stats.BitsPerKey,
	})
	return m.Save()
}

// LoadOptions controls how Load reads a persisted CSF's container off
// disk.
type LoadOptions struct {
	// Mmap reads the container through a memory-mapped file
	// (internal/serialize.LoadFileMmap) instead of a buffered read,
	// trading read syscalls for page faults against the OS page cache
	// — useful for a large .csf file read once and then queried
	// heavily. The mapping is unmapped before Load returns (ReadFrom
	// copies everything it needs out of it), so it has no effect on
	// the returned CSF's lifetime.
	Mmap bool
}

// Load reads a CSF back from path with the default LoadOptions. The
// codec's Tag must match the persisted VALUE_TYPE_TAG, or
// ErrUnsupportedValueType is returned.
func Load[T comparable](path string, codec ValueCodec[T]) (*CSF[T], error) {
	return LoadWithOptions(path, codec, LoadOptions{})
}

// LoadWithOptions is Load with caller-controlled LoadOptions.
func LoadWithOptions[T comparable](path string, codec ValueCodec[T], opts LoadOptions) (*CSF[T], error) {
	container, err := loadContainer(path, opts.Mmap)
	if err != nil {
		return nil, err
	}
	if container.ValueType != codec.Tag {
		return nil, fmt.Errorf("%w: container has value type %d, codec expects %d", ErrUnsupportedValueType, container.ValueType, codec.Tag)
	}

	csf := &CSF[T]{codec: codec, hasherSeed: container.HasherSeed, h: hasher.New(container.HasherSeed)}
	csf.s = bitarray.FromWords(bytesToWords(container.SBytes), container.SBits)
	csf.idBits = idBitsFromBucketCount(len(container.Buckets))

	csf.buckets = make([]bucketSlot[T], len(container.Buckets))
	for i, bd := range container.Buckets {
		slot := bucketSlot[T]{startOffsetBits: bd.StartOffsetBits}
		if len(bd.Codebook) > 0 {
			cb, err := huffman.Unmarshal(bd.Codebook, func(b []byte) T { return codec.Unmarshal(b) })
			if err != nil {
				return nil, fmt.Errorf("%w: bucket %d codebook: %v", ErrDeserialization, i, err)
			}
			slot.codebook = cb
		}
		csf.buckets[i] = slot
	}

	if len(container.FilterBlob) > 0 {
		f, err := loadFilter(filter.Kind(container.FilterKind), container.FilterBlob)
		if err != nil {
			return nil, err
		}
		csf.filter = f
	}
	if container.HasMajority {
		csf.hasMajority = true
		csf.majorityValue = codec.Unmarshal(container.MajorityValue)
	}

	csf.stats = csf.computeStats(manifest.BuildReport{})
	return csf, nil
}

// loadContainer reads a container from path, optionally through a
// memory-mapped file. The mapping (if any) is released before
// returning; see LoadOptions.Mmap.
func loadContainer(path string, mmap bool) (*serialize.Container, error) {
	if !mmap {
		return serialize.LoadFile(path)
	}
	c, cleanup, err := serialize.LoadFileMmap(path)
	if cleanup != nil {
		defer cleanup()
	}
	return c, err
}

func loadFilter(kind filter.Kind, blob []byte) (filter.Filter, error) {
	switch kind {
	case filter.KindBloom:
		return filter.UnmarshalBloomFilter(blob)
	case filter.KindXor:
		return filter.UnmarshalXorFilter(blob)
	case filter.KindBinaryFuse:
		return filter.UnmarshalBinaryFuseFilter(blob)
	default:
		return nil, fmt.Errorf("%w: unrecognized filter kind %d", ErrDeserialization, kind)
	}
}

// idBitsFromBucketCount recovers idBits from the serialized bucket
// count: bucket.Build always emits exactly 2^idBits buckets (including
// empty ones), so idBits is just that count's log2.
func idBitsFromBucketCount(n int) uint {
	if n <= 1 {
		return 0
	}
	var bits uint
	for (1 << bits) < n {
		bits++
	}
	return bits
}

func wordsToBytes(b *bitarray.BitArray) []byte {
	words := b.Words()
	n := (b.Len() + 7) / 8
	out := make([]byte, n)
	for i := range out {
		w := words[i/8]
		out[i] = byte(w >> (8 * uint(i%8)))
	}
	return out
}

func bytesToWords(data []byte) []uint64 {
	nw := (len(data) + 7) / 8
	words := make([]uint64, nw)
	for i, bb := range data {
		words[i/8] |= uint64(bb) << (8 * uint(i%8))
	}
	return words
}
