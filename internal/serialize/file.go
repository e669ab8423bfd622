package serialize

import (
	"bytes"
	"os"
)

// SaveFile writes c to path under an exclusive lock, so a concurrent
// writer never interleaves with an in-progress save (spec.md §5's
// "I/O may block during serialization" combined with a single-writer
// persistence model).
func SaveFile(path string, c *Container) error {
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer lock.Close()

	if err := lock.f.Truncate(0); err != nil {
		return err
	}
	if _, err := lock.f.Seek(0, 0); err != nil {
		return err
	}
	return WriteTo(lock.f, c)
}

// TrySaveFile is SaveFile's non-blocking counterpart: if another writer
// already holds path's lock, it returns cerrors.ErrWouldBlock instead
// of waiting, for callers that want to detect writer contention rather
// than queue behind it.
func TrySaveFile(path string, c *Container) error {
	lock, err := tryLockFile(path)
	if err != nil {
		return err
	}
	defer lock.Close()

	if err := lock.f.Truncate(0); err != nil {
		return err
	}
	if _, err := lock.f.Seek(0, 0); err != nil {
		return err
	}
	return WriteTo(lock.f, c)
}

// LoadFile reads and parses a container from path using a plain
// (unlocked) read — readers don't contend with the single writer the
// way SaveFile's writer does, per spec.md §5's I/O model.
func LoadFile(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFrom(f)
}

// LoadFileMmap reads and parses a container via a memory-mapped file,
// returning a cleanup function the caller must invoke once done (the
// returned Container copies no bucket/filter data out of the mapping
// beyond what ReadFrom already allocates, so cleanup is safe to call
// immediately after LoadFileMmap returns).
func LoadFileMmap(path string) (*Container, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := mmapFile(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	f.Close()

	c, err := ReadFrom(bytes.NewReader(data))
	cleanup := func() { _ = munmapFile(data) }
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}
