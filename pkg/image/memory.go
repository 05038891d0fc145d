package image

import (
	"fmt"
	"io"
)

// MemoryReader is like io.ReaderAt, but the offset is a uint64 address in
// the dumped address space.
type MemoryReader interface {
	// ReadMemory reads len(buf) bytes at addr. It returns an error if any
	// of them are missing.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// A splicedMemory represents an address space formed from multiple
// regions, each of which may override previously added regions. A dump
// often carries the same page twice, once from the common area and once
// from the private area that replaced it; adding the private copy last
// makes it win.
type splicedMemory struct {
	readers []readerEntry
}

type readerEntry struct {
	offset uint64
	length uint64
	reader MemoryReader
}

// Add adds a new region to the splicedMemory, which may override existing regions.
func (r *splicedMemory) Add(reader MemoryReader, off, length uint64) {
	if length == 0 {
		return
	}
	end := off + length - 1
	newReaders := make([]readerEntry, 0, len(r.readers))
	add := func(e readerEntry) {
		if e.length == 0 {
			return
		}
		newReaders = append(newReaders, e)
	}
	inserted := false
	// Walk through the list of regions, fixing up any that overlap and inserting the new one.
	for _, entry := range r.readers {
		entryEnd := entry.offset + entry.length - 1
		switch {
		case entryEnd < off:
			// Entry is completely before the new region.
			add(entry)
		case end < entry.offset:
			// Entry is completely after the new region.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			add(entry)
		case off <= entry.offset && entryEnd <= end:
			// Entry is completely overwritten by the new region. Drop.
		case entry.offset < off && entryEnd <= end:
			// New region overwrites the end of the entry.
			entry.length = off - entry.offset
			add(entry)
		case off <= entry.offset && end < entryEnd:
			// New reader overwrites the beginning of the entry.
			if !inserted {
				add(readerEntry{off, length, reader})
				inserted = true
			}
			overlap := end + 1 - entry.offset
			entry.offset += overlap
			entry.length -= overlap
			add(entry)
		case entry.offset < off && end < entryEnd:
			// New region punches a hole in the entry. Split it in two and put the new region in the middle.
			add(readerEntry{entry.offset, off - entry.offset, entry.reader})
			add(readerEntry{off, length, reader})
			add(readerEntry{end + 1, entryEnd - end, entry.reader})
			inserted = true
		default:
			panic(fmt.Sprintf("Unhandled case: existing entry is %v len %v, new is %v len %v", entry.offset, entry.length, off, length))
		}
	}
	if !inserted {
		newReaders = append(newReaders, readerEntry{off, length, reader})
	}
	r.readers = newReaders
}

// ReadMemory implements MemoryReader.ReadMemory.
func (r *splicedMemory) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	for _, entry := range r.readers {
		if len(buf) == 0 {
			break
		}
		if entry.offset+entry.length <= addr {
			continue
		}
		if entry.offset > addr {
			// Regions are sorted, nothing covers addr.
			break
		}

		// Don't go past the region.
		pb := buf
		if avail := entry.offset + entry.length - addr; uint64(len(pb)) > avail {
			pb = pb[:avail]
		}
		pn, err := entry.reader.ReadMemory(pb, addr)
		n += pn
		if err != nil {
			return n, fmt.Errorf("error while reading spliced memory at %#x: %w", addr, err)
		}
		buf = buf[pn:]
		addr += uint64(pn)
	}
	if len(buf) != 0 {
		if n == 0 {
			return 0, fmt.Errorf("address %#x did not match any regions", addr)
		}
		return n, fmt.Errorf("hit unmapped area at %#x after %d bytes", addr, n)
	}
	return n, nil
}

// offsetReaderAt wraps a ReaderAt into a MemoryReader, subtracting a fixed
// offset from the address and adding the position of the region inside
// its file. If a region file starting at file offset 0x200 is mapped at
// 0x7f000, reading 0x7f010 reads file offset 0x210.
type offsetReaderAt struct {
	reader io.ReaderAt
	offset uint64
	base   int64
}

// ReadMemory will read the memory at addr-offset.
func (r *offsetReaderAt) ReadMemory(buf []byte, addr uint64) (n int, err error) {
	n, err = r.reader.ReadAt(buf, r.base+int64(addr-r.offset))
	if err == io.EOF && n == len(buf) {
		err = nil
	}
	return n, err
}
