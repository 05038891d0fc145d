package image

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// regionFile is the contents of one region file of a dump.
type regionFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Compression of a region file.
const (
	CompressionNone = ""
	CompressionZstd = "zstd"
)

func openRegionFile(path, compression string) (regionFile, error) {
	switch compression {
	case CompressionNone:
		return mmapRegionFile(path)
	case CompressionZstd:
		return readZstdRegionFile(path)
	}
	return nil, fmt.Errorf("%s: unknown compression %q", path, compression)
}

// guardedFile is a region file whose reads fail with os.ErrClosed once it
// is closed. release frees the backing storage and runs under the write
// lock, so no read is in flight while an mmap'd region is unmapped.
type guardedFile struct {
	mu      sync.RWMutex
	r       io.ReaderAt
	size    int64
	closed  bool
	release func() error
}

func newGuardedFile(r io.ReaderAt, size int64, release func() error) *guardedFile {
	return &guardedFile{r: r, size: size, release: release}
}

func (f *guardedFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, os.ErrClosed
	}
	return f.r.ReadAt(p, off)
}

func (f *guardedFile) Size() int64 { return f.size }

func (f *guardedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.r = nil
	if f.release == nil {
		return nil
	}
	return f.release()
}

func memRegionFile(data []byte) *guardedFile {
	return newGuardedFile(bytes.NewReader(data), int64(len(data)), nil)
}

func readZstdRegionFile(path string) (regionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	defer dec.Close()
	data, err := ioutil.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%s: could not decompress: %v", path, err)
	}
	return memRegionFile(data), nil
}
