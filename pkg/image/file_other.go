//go:build !linux && !darwin && !freebsd
// +build !linux,!darwin,!freebsd

package image

import "os"

func mmapRegionFile(path string) (regionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return newGuardedFile(f, st.Size(), f.Close), nil
}
