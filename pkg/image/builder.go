package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// Builder assembles an address space in memory. It is meant for tests
// that need control blocks at known addresses.
type Builder struct {
	mode64  bool
	regions []*builderRegion
}

type builderRegion struct {
	addr uint64
	data []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder(mode64 bool) *Builder {
	return &Builder{mode64: mode64}
}

// Map adds size zeroed bytes at addr. Mapped ranges must not overlap.
func (b *Builder) Map(addr, size uint64) *Builder {
	for _, r := range b.regions {
		if addr < r.addr+uint64(len(r.data)) && r.addr < addr+size {
			panic(fmt.Sprintf("region %#x-%#x overlaps %#x-%#x", addr, addr+size, r.addr, r.addr+uint64(len(r.data))))
		}
	}
	b.regions = append(b.regions, &builderRegion{addr: addr, data: make([]byte, size)})
	return b
}

func (b *Builder) slice(addr uint64, size int) []byte {
	for _, r := range b.regions {
		if addr >= r.addr && addr+uint64(size) <= r.addr+uint64(len(r.data)) {
			off := addr - r.addr
			return r.data[off : off+uint64(size)]
		}
	}
	panic(fmt.Sprintf("%d bytes at %#x are not mapped", size, addr))
}

// Put copies data to addr.
func (b *Builder) Put(addr uint64, data []byte) *Builder {
	copy(b.slice(addr, len(data)), data)
	return b
}

// PutUint8 stores v at addr.
func (b *Builder) PutUint8(addr uint64, v uint8) *Builder {
	b.slice(addr, 1)[0] = v
	return b
}

// PutUint16 stores v big-endian at addr.
func (b *Builder) PutUint16(addr uint64, v uint16) *Builder {
	binary.BigEndian.PutUint16(b.slice(addr, 2), v)
	return b
}

// PutUint32 stores v big-endian at addr.
func (b *Builder) PutUint32(addr uint64, v uint32) *Builder {
	binary.BigEndian.PutUint32(b.slice(addr, 4), v)
	return b
}

// PutUint64 stores v big-endian at addr.
func (b *Builder) PutUint64(addr uint64, v uint64) *Builder {
	binary.BigEndian.PutUint64(b.slice(addr, 8), v)
	return b
}

// SetBits sets or clears the bit at bitOffset from the most significant
// bit of the byte at addr.
func (b *Builder) SetBits(addr uint64, bitOffset uint, on bool) *Builder {
	p := b.slice(addr+uint64(bitOffset/8), 1)
	mask := byte(0x80) >> (bitOffset % 8)
	if on {
		p[0] |= mask
	} else {
		p[0] &^= mask
	}
	return b
}

// Space returns an address space over a copy of the builder's contents.
// The space is its own root and has no page cache.
func (b *Builder) Space(id string) *Space {
	s, err := NewSpace(id, b.memory(), b.mode64, 0)
	if err != nil {
		panic(err)
	}
	return s
}

func (b *Builder) memory() *splicedMemory {
	regions := append([]*builderRegion(nil), b.regions...)
	sort.Slice(regions, func(i, j int) bool { return regions[i].addr < regions[j].addr })
	m := &splicedMemory{}
	for _, r := range regions {
		data := append([]byte(nil), r.data...)
		m.Add(&offsetReaderAt{reader: bytes.NewReader(data), offset: r.addr}, r.addr, uint64(len(data)))
	}
	return m
}
