package image

import (
	"encoding/binary"
	"fmt"

	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
)

// Space is one address space of a dump. It implements mem.Space.
type Space struct {
	id     string
	mem    MemoryReader
	mode64 bool
	root   *Space
	noRoot bool
	cache  *pageCache
}

var _ mem.Space = &Space{}

// NewSpace returns an address space reading from m. Unless SetRoot is
// called the space is its own root. If cachePages is positive reads are
// served from an LRU cache of that many pages.
func NewSpace(id string, m MemoryReader, mode64 bool, cachePages int) (*Space, error) {
	s := &Space{id: id, mem: m, mode64: mode64}
	if cachePages > 0 {
		c, err := newPageCache(m, cachePages)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// ID returns the identifier of the space, usually its ASID in hex.
func (s *Space) ID() string { return s.id }

func (s *Space) String() string { return "ASID " + s.id }

// SetRoot sets the root address space. A nil root means the space has no
// root and task enumeration will report no tasks for it.
func (s *Space) SetRoot(root *Space) {
	s.root = root
	s.noRoot = root == nil
}

// Is64Bit implements mem.Space.
func (s *Space) Is64Bit() bool { return s.mode64 }

// Root implements mem.Space.
func (s *Space) Root() mem.Space {
	switch {
	case s.noRoot:
		return nil
	case s.root == nil:
		return s
	}
	return s.root
}

// ReadMemory reads len(buf) bytes at addr.
func (s *Space) ReadMemory(buf []byte, addr uint64) (int, error) {
	if s.cache != nil && s.cache.fill(buf, addr) {
		return len(buf), nil
	}
	n, err := s.mem.ReadMemory(buf, addr)
	if err != nil {
		return n, &mem.IOError{Addr: addr, Size: len(buf), Err: err}
	}
	return n, nil
}

// ReadUint32 implements mem.Reader.
func (s *Space) ReadUint32(addr uint64) (uint32, error) {
	var buf [4]byte
	if _, err := s.ReadMemory(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// ReadUint64 implements mem.Reader.
func (s *Space) ReadUint64(addr uint64) (uint64, error) {
	var buf [8]byte
	if _, err := s.ReadMemory(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// ReadBits implements mem.Reader.
func (s *Space) ReadBits(addr uint64, bitOffset, width uint) (int64, error) {
	if width == 0 || width > 64 {
		return 0, fmt.Errorf("bit field width %d out of range", width)
	}
	addr += uint64(bitOffset / 8)
	bitOffset %= 8
	buf := make([]byte, (bitOffset+width+7)/8)
	if _, err := s.ReadMemory(buf, addr); err != nil {
		return 0, err
	}
	var v uint64
	for i := bitOffset; i < bitOffset+width; i++ {
		bit := buf[i/8] >> (7 - i%8) & 1
		v = v<<1 | uint64(bit)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift, nil
}
