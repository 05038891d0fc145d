// Package mem describes the random-access view of a dumped address space
// that the rest of zdump decodes control blocks from.
package mem

import "fmt"

// Reader reads big-endian values out of an address space.
type Reader interface {
	// ReadUint32 reads the fullword at addr.
	ReadUint32(addr uint64) (uint32, error)
	// ReadUint64 reads the doubleword at addr.
	ReadUint64(addr uint64) (uint64, error)
	// ReadBits reads width bits starting bitOffset bits after the most
	// significant bit of the byte at addr. The result is sign-extended
	// from bit width-1. Width must be between 1 and 64.
	ReadBits(addr uint64, bitOffset, width uint) (int64, error)
}

// Space is one address space of a dump.
type Space interface {
	Reader
	// Is64Bit reports whether the space was dumped in 64-bit mode, in
	// which case the high halves of the general registers are meaningful.
	Is64Bit() bool
	// Root returns the root address space of the dump, nil if there is
	// none. A root space may return itself.
	Root() Space
}

// IOError is returned when a read touches bytes that are not present in
// the dump.
type IOError struct {
	Addr uint64
	Size int
	Err  error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("could not read %d bytes at %#x", e.Size, e.Addr)
	}
	return fmt.Sprintf("could not read %d bytes at %#x: %v", e.Size, e.Addr, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
