// Package serialize implements the self-describing versioned binary
// container. All integers are big-endian:
//
//	MAGIC(4) | VERSION(2) | VALUE_TYPE_TAG(2) | HASHER_SEED(8) |
//	BUCKET_COUNT(4) | [ bucket_descriptor × BUCKET_COUNT ] |
//	S_LENGTH_BITS(8) | S_BYTES(ceil(S_LENGTH_BITS/8)) |
//	HAS_FILTER(1) | [ FILTER_KIND(1) | LEN(4) | FILTER_BLOB if present ] |
//	HAS_MAJORITY(1) | [ LEN(4) | MAJORITY_VALUE if present ]
//
// where bucket_descriptor is START_OFFSET_BITS(8) | CODE_LENGTH(1) |
// LEN(4) | CODEBOOK. The FILTER_KIND byte and the 4-byte length
// prefixes are additions to the plain field list; the file is not
// readable by a reader that expects the fields without them.
//
// Everything past VERSION is written through a pooled bufio.Writer
// wrapped in an lz4.Writer, grounded on internal/indexer/sorter.go's
// bufWriterPool/lz4.NewWriter chunk-writing pattern — applied here to
// the permanent .csf output rather than a temporary sort spill. MAGIC
// and VERSION stay uncompressed so a reader can sniff the format
// without paying for decompression first.
package serialize

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/caramel-csf/caramel/internal/cerrors"
)

// Magic identifies a Caramel container file ("CRML").
var Magic = [4]byte{'C', 'R', 'M', 'L'}

// FormatVersion is the current container format version.
const FormatVersion uint16 = 1

// ValueType tags which scalar value encoding a container's codebook
// blobs use, per spec.md §6's VALUE_TYPE_TAG.
type ValueType uint16

const (
	ValueU32 ValueType = iota + 1
	ValueU64
	ValueChar10
	ValueChar12
	ValueString
)

// BucketDescriptor is one bucket's index entry: its offset into the
// global S bitstring, its Huffman code length, and its opaque,
// already-serialized codebook blob (the codebook's concrete encoding is
// value-type-specific, so it is the caller's job to produce these
// bytes — see the root package's codebook (de)serialization).
type BucketDescriptor struct {
	StartOffsetBits uint64
	CodeLength      uint8
	Codebook        []byte
}

// Container is the full decoded contents of a .csf file.
type Container struct {
	ValueType     ValueType
	HasherSeed    uint64
	Buckets       []BucketDescriptor
	SBits         uint64
	SBytes        []byte
	FilterKind    uint8 // filter.Kind, kept as a plain byte to avoid an import cycle with internal/filter
	FilterBlob    []byte
	HasMajority   bool
	MajorityValue []byte
}

var bufWriterPool = sync.Pool{
	New: func() any { return bufio.NewWriterSize(nil, 256*1024) },
}

var bufReaderPool = sync.Pool{
	New: func() any { return bufio.NewReaderSize(nil, 256*1024) },
}

// WriteTo writes c to w in the format above.
func WriteTo(w io.Writer, c *Container) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, FormatVersion); err != nil {
		return err
	}

	lzw := lz4.NewWriter(w)
	bw := bufWriterPool.Get().(*bufio.Writer)
	bw.Reset(lzw)
	defer func() {
		bw.Reset(nil)
		bufWriterPool.Put(bw)
	}()

	if err := writeBody(bw, c); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return lzw.Close()
}

func writeBody(w *bufio.Writer, c *Container) error {
	if err := binary.Write(w, binary.BigEndian, uint16(c.ValueType)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, c.HasherSeed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(c.Buckets))); err != nil {
		return err
	}
	for _, b := range c.Buckets {
		if err := binary.Write(w, binary.BigEndian, b.StartOffsetBits); err != nil {
			return err
		}
		if err := w.WriteByte(b.CodeLength); err != nil {
			return err
		}
		if err := writeBlob(w, b.Codebook); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.BigEndian, c.SBits); err != nil {
		return err
	}
	if err := writeRaw(w, c.SBytes); err != nil {
		return err
	}

	hasFilter := byte(0)
	if len(c.FilterBlob) > 0 {
		hasFilter = 1
	}
	if err := w.WriteByte(hasFilter); err != nil {
		return err
	}
	if hasFilter == 1 {
		if err := w.WriteByte(c.FilterKind); err != nil {
			return err
		}
		if err := writeBlob(w, c.FilterBlob); err != nil {
			return err
		}
	}

	hasMajority := byte(0)
	if c.HasMajority {
		hasMajority = 1
	}
	if err := w.WriteByte(hasMajority); err != nil {
		return err
	}
	if hasMajority == 1 {
		if err := writeBlob(w, c.MajorityValue); err != nil {
			return err
		}
	}
	return nil
}

// writeBlob writes a length-prefixed (4-byte) byte slice.
func writeBlob(w *bufio.Writer, data []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(data))); err != nil {
		return err
	}
	return writeRaw(w, data)
}

func writeRaw(w *bufio.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// ReadFrom parses a container from r.
func ReadFrom(r io.Reader) (*Container, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", cerrors.ErrDeserialization, err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %x", cerrors.ErrDeserialization, magic)
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: reading version: %v", cerrors.ErrDeserialization, err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", cerrors.ErrDeserialization, version)
	}

	lzr := lz4.NewReader(r)
	br := bufReaderPool.Get().(*bufio.Reader)
	br.Reset(lzr)
	defer func() {
		br.Reset(nil)
		bufReaderPool.Put(br)
	}()

	c, err := readBody(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cerrors.ErrDeserialization, err)
	}
	return c, nil
}

func readBody(r *bufio.Reader) (*Container, error) {
	c := &Container{}

	var vt uint16
	if err := binary.Read(r, binary.BigEndian, &vt); err != nil {
		return nil, err
	}
	c.ValueType = ValueType(vt)

	if err := binary.Read(r, binary.BigEndian, &c.HasherSeed); err != nil {
		return nil, err
	}

	var bucketCount uint32
	if err := binary.Read(r, binary.BigEndian, &bucketCount); err != nil {
		return nil, err
	}
	c.Buckets = make([]BucketDescriptor, bucketCount)
	for i := range c.Buckets {
		var b BucketDescriptor
		if err := binary.Read(r, binary.BigEndian, &b.StartOffsetBits); err != nil {
			return nil, err
		}
		length, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b.CodeLength = length
		blob, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		b.Codebook = blob
		c.Buckets[i] = b
	}

	if err := binary.Read(r, binary.BigEndian, &c.SBits); err != nil {
		return nil, err
	}
	sBytes := make([]byte, (c.SBits+7)/8)
	if _, err := io.ReadFull(r, sBytes); err != nil {
		return nil, err
	}
	c.SBytes = sBytes

	hasFilter, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasFilter == 1 {
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		c.FilterKind = kind
		blob, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		c.FilterBlob = blob
	}

	hasMajority, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasMajority == 1 {
		c.HasMajority = true
		blob, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		c.MajorityValue = blob
	}

	return c, nil
}

func readBlob(r *bufio.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
