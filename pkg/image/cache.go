package image

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/eclipse-openj9/openj9-sub015/pkg/logflags"
)

const pageSize = 4096

// pageCache keeps recently read pages of an address space. Only pages
// that are fully present in the dump are cached, reads touching a partial
// page go to the underlying memory.
type pageCache struct {
	mem   MemoryReader
	pages *lru.Cache
}

func newPageCache(m MemoryReader, size int) (*pageCache, error) {
	pages, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &pageCache{mem: m, pages: pages}, nil
}

func (c *pageCache) page(n uint64) []byte {
	if p, ok := c.pages.Get(n); ok {
		return p.([]byte)
	}
	p := make([]byte, pageSize)
	if _, err := c.mem.ReadMemory(p, n*pageSize); err != nil {
		if logflags.Image() {
			logflags.ImageLogger().Debugf("page %#x not cacheable: %v", n*pageSize, err)
		}
		return nil
	}
	c.pages.Add(n, p)
	return p
}

// fill copies the bytes at addr into buf. It returns false if any page
// involved could not be cached.
func (c *pageCache) fill(buf []byte, addr uint64) bool {
	for len(buf) > 0 {
		p := c.page(addr / pageSize)
		if p == nil {
			return false
		}
		n := copy(buf, p[addr%pageSize:])
		buf = buf[n:]
		addr += uint64(n)
	}
	return true
}

// purge drops every cached page.
func (c *pageCache) purge() {
	c.pages.Purge()
}
