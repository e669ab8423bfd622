//go:build windows

package serialize

import (
	"io"
	"os"
)

// mmapFile falls back to a full read on Windows, matching the
// teacher's own internal/common/mmap_windows.go fallback.
//
// TODO: Implement proper Windows mmap.
func mmapFile(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

// munmapFile is a no-op for the ReadAll-backed fallback.
func munmapFile(data []byte) error {
	return nil
}
