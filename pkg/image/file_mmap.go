//go:build linux || darwin || freebsd
// +build linux darwin freebsd

package image

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mmapRegionFile(path string) (regionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		return memRegionFile(nil), nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("mmap: file %q is too large", path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %s: %v", path, err)
	}
	return newGuardedFile(bytes.NewReader(data), size, func() error { return unix.Munmap(data) }), nil
}
