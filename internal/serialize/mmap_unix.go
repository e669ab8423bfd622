//go:build !windows

package serialize

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile memory-maps f read-only for its full size. No unix mmap
// implementation was present anywhere in the example pack (only
// internal/common/mmap_windows.go's io.ReadAll fallback was retrieved),
// so this is written fresh against golang.org/x/sys/unix — already a
// teacher dependency — following the same Mmap/Munmap pairing
// mmap_windows.go's comment describes wanting ("proper... mmap").
func mmapFile(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, fmt.Errorf("serialize: cannot mmap empty file")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("serialize: mmap: %w", err)
	}
	return data, nil
}

// munmapFile releases a mapping returned by mmapFile.
func munmapFile(data []byte) error {
	return unix.Munmap(data)
}
