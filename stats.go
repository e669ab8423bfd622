package caramel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// Stats is the size and distribution breakdown spec.md §6's get_stats()
// names, supplemented per SPEC_FULL.md with the Python original's
// richer test_csf_stats.py breakdown (per-bucket solution-bit
// min/avg/max and a code-length histogram).
type Stats struct {
	TotalBytes    int
	SolutionBytes int
	FilterBytes   int
	MetadataBytes int

	UniqueSymbols    int
	AvgBitsPerSymbol float64
	// CodeLengthHistogram maps a Huffman code length (bits) to the
	// number of buckets whose codebook uses that length.
	CodeLengthHistogram map[uint8]int

	BucketCount     int
	MinSolutionBits uint64
	AvgSolutionBits float64
	MaxSolutionBits uint64

	BitsPerKey float64
}

// String renders Stats as a short human-readable report, using
// dustin/go-humanize for byte counts the way the teacher's progress
// banner humanizes throughput figures.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "total: %s (solution %s, filter %s, metadata %s)\n",
		humanize.Bytes(uint64(s.TotalBytes)),
		humanize.Bytes(uint64(s.SolutionBytes)),
		humanize.Bytes(uint64(s.FilterBytes)),
		humanize.Bytes(uint64(s.MetadataBytes)))
	fmt.Fprintf(&b, "buckets: %d, solution bits min/avg/max: %d/%.1f/%d\n",
		s.BucketCount, s.MinSolutionBits, s.AvgSolutionBits, s.MaxSolutionBits)
	fmt.Fprintf(&b, "symbols: %d unique, %.2f bits/symbol avg, %.3f bits/key overall\n",
		s.UniqueSymbols, s.AvgBitsPerSymbol, s.BitsPerKey)

	if len(s.CodeLengthHistogram) > 0 {
		lengths := make([]int, 0, len(s.CodeLengthHistogram))
		for l := range s.CodeLengthHistogram {
			lengths = append(lengths, int(l))
		}
		sort.Ints(lengths)
		fmt.Fprintf(&b, "code-length histogram:")
		for _, l := range lengths {
			fmt.Fprintf(&b, " %d:%d", l, s.CodeLengthHistogram[uint8(l)])
		}
		b.WriteByte('\n')
	}
	return b.String()
}
