// Package bucket implements the Bucketed Hash Store (spec.md §4.3): it
// partitions the input keys into buckets of roughly DefaultTargetSize
// keys by the top bits of each key's 128-bit hash, and within each
// bucket holds the (hash128, value_index) pairs the Codec/System/Solver
// stages consume.
//
// Partitioning of the input-key slice across workers follows the
// teacher's internal/indexer/scanner.go Scan(): boundaries across the
// work are precomputed up front into a boundaries[] array so worker
// goroutines touch disjoint index ranges with no locking, then a
// sync.WaitGroup barriers completion — here applied to plain key
// indices rather than mmap'd CSV byte offsets.
package bucket

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/caramel-csf/caramel/internal/hasher"
)

// DefaultTargetSize is the target mean bucket size spec.md §3 names:
// "target mean size ≈ 1000 keys". Kept as a tunable per spec.md §9's
// open-question note rather than a hard constant.
const DefaultTargetSize = 1000

// Entry is one (hash128, value_index) pair belonging to a bucket.
type Entry struct {
	Hash  hasher.Hash128
	Value uint32 // index into the caller's original values slice
}

// Bucket holds all entries whose top-bits hash dispatch lands here.
type Bucket struct {
	ID      uint32
	Entries []Entry
}

// Store is the full partition of an input key set.
type Store struct {
	Buckets  []Bucket
	IDBits   uint // number of top bits of the bucket tag used for dispatch
	Seed     uint64
}

// CollisionError reports a 128-bit hash collision between two distinct
// input keys, naming both offending key indices per spec.md §6.
type CollisionError struct {
	IndexA, IndexB int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("bucket: key collision between input indices %d and %d", e.IndexA, e.IndexB)
}

// Options configures Build.
type Options struct {
	TargetSize int // mean bucket size; 0 uses DefaultTargetSize
	Workers    int // 0 uses runtime.NumCPU()
}

// Build partitions n keys (indexed 0..n-1, fetched via keyAt) into
// buckets. seed keys the Hasher used for both bucket dispatch and the
// per-entry Hash128 stored for later GF(2) edge generation.
func Build(n int, keyAt func(i int) []byte, seed uint64, opts Options) (*Store, error) {
	if n == 0 {
		return &Store{Buckets: nil, IDBits: 0, Seed: seed}, nil
	}

	target := opts.TargetSize
	if target <= 0 {
		target = DefaultTargetSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	idBits := bucketIDBits(n, target)
	numBuckets := uint32(1) << idBits

	h := hasher.New(seed)

	// Phase 1: parallel per-worker bucket counts (mirrors scanner.go's
	// precomputed boundaries[] then fan-out) so each bucket's slice can
	// be pre-sized before Phase 2 appends to it.
	boundaries := partitionBounds(n, workers)

	localCounts := make([][]uint32, len(boundaries)-1)
	localTags := make([][]uint32, len(boundaries)-1) // bucket id per key, cached to avoid re-hashing

	var wg sync.WaitGroup
	for w := 0; w < len(boundaries)-1; w++ {
		start, end := boundaries[w], boundaries[w+1]
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			counts := make([]uint32, numBuckets)
			tags := make([]uint32, end-start)
			for i := start; i < end; i++ {
				tag := bucketIDOf(h, keyAt(i), idBits)
				tags[i-start] = tag
				counts[tag]++
			}
			localCounts[w] = counts
			localTags[w] = tags
		}(w, start, end)
	}
	wg.Wait()

	totalCounts := make([]uint32, numBuckets)
	for _, counts := range localCounts {
		for b, c := range counts {
			totalCounts[b] += c
		}
	}

	buckets := make([]Bucket, numBuckets)
	for b := range buckets {
		buckets[b].ID = uint32(b)
		buckets[b].Entries = make([]Entry, 0, totalCounts[b])
	}

	// Phase 2: fill. Bucket-level append is protected by a per-bucket
	// mutex (bucket counts vary widely enough that a lock-free
	// pre-sized write cursor per worker per bucket would need an
	// O(workers*buckets) table; a light mutex per bucket is simpler and
	// the critical section is a single append).
	locks := make([]sync.Mutex, numBuckets)

	for w := 0; w < len(boundaries)-1; w++ {
		start, end := boundaries[w], boundaries[w+1]
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			tags := localTags[w]
			for i := start; i < end; i++ {
				tag := tags[i-start]
				hv := h.Hash128(keyAt(i))
				locks[tag].Lock()
				buckets[tag].Entries = append(buckets[tag].Entries, Entry{Hash: hv, Value: uint32(i)})
				locks[tag].Unlock()
			}
		}(w, start, end)
	}
	wg.Wait()

	if err := detectCollisions(buckets); err != nil {
		return nil, err
	}

	return &Store{Buckets: buckets, IDBits: idBits, Seed: seed}, nil
}

// bucketIDBits picks b = ceil(log2(n/target)) per spec.md §4.3.
func bucketIDBits(n, target int) uint {
	approxBuckets := n / target
	if approxBuckets < 1 {
		return 0
	}
	var bits uint
	for (1 << bits) < approxBuckets {
		bits++
	}
	return bits
}

func bucketIDOf(h *hasher.Hasher, key []byte, idBits uint) uint32 {
	if idBits == 0 {
		return 0
	}
	tag := h.BucketTag(key)
	return uint32(tag >> (64 - idBits))
}

// partitionBounds divides [0, n) into up to workers contiguous, disjoint
// ranges, returned as a len(workers)+1 boundary slice, the way
// scanner.go's Scan precomputes boundaries[] before launching workers.
func partitionBounds(n, workers int) []int {
	bounds := make([]int, workers+1)
	chunk := n / workers
	bounds[0] = 0
	bounds[workers] = n
	for i := 1; i < workers; i++ {
		bounds[i] = i * chunk
	}
	return bounds
}

// detectCollisions sorts each bucket by (Hi, Lo) and checks adjacent
// duplicates, aborting per spec.md §4.3 on the first true 128-bit
// collision found.
func detectCollisions(buckets []Bucket) error {
	for bi := range buckets {
		entries := buckets[bi].Entries
		if len(entries) < 2 {
			continue
		}
		order := make([]int, len(entries))
		for i := range order {
			order[i] = i
		}
		slices.SortFunc(order, func(a, b int) int {
			ha, hb := entries[a].Hash, entries[b].Hash
			if ha.Hi != hb.Hi {
				if ha.Hi < hb.Hi {
					return -1
				}
				return 1
			}
			if ha.Lo != hb.Lo {
				if ha.Lo < hb.Lo {
					return -1
				}
				return 1
			}
			return 0
		})
		for i := 1; i < len(order); i++ {
			a, b := entries[order[i-1]], entries[order[i]]
			if a.Hash.Equal(b.Hash) {
				return &CollisionError{IndexA: int(a.Value), IndexB: int(b.Value)}
			}
		}
	}
	return nil
}
