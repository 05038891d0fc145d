package image

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/eclipse-openj9/openj9-sub015/pkg/logflags"
)

// DefaultCachePages is the page cache size used when Options.CachePages
// is zero.
const DefaultCachePages = 256

// Manifest lists the address spaces of a dump and the region files their
// contents come from.
type Manifest struct {
	Spaces []SpaceSpec `yaml:"spaces"`
}

// SpaceSpec describes one address space.
type SpaceSpec struct {
	ID string `yaml:"id"`
	// Root is the ID of the root space. It may be the space itself. An
	// empty Root means the space has no root.
	Root    string       `yaml:"root"`
	Mode64  bool         `yaml:"mode64"`
	Regions []RegionSpec `yaml:"regions"`
}

// RegionSpec maps part of a file into an address space.
type RegionSpec struct {
	File        string `yaml:"file"`
	Addr        uint64 `yaml:"addr"`
	Offset      int64  `yaml:"offset"`
	Length      uint64 `yaml:"length"`
	Compression string `yaml:"compression"`
}

// Options configures LoadManifest.
type Options struct {
	// CachePages is the number of pages cached per address space. Negative
	// disables the cache.
	CachePages int
}

// ErrNoSpaces is returned for a manifest without address spaces.
var ErrNoSpaces = errors.New("manifest does not describe any address space")

// Dump is a set of address spaces loaded from a manifest.
type Dump struct {
	spaces map[string]*Space
	files  []io.Closer
}

// LoadManifest reads the manifest at path and maps every region it lists.
// Relative region file names are resolved against the directory of the
// manifest.
func LoadManifest(path string, opts Options) (*Dump, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("could not decode manifest %s: %v", path, err)
	}
	return Load(&m, filepath.Dir(path), opts)
}

// Load maps the regions of m. Relative file names are resolved against dir.
func Load(m *Manifest, dir string, opts Options) (_ *Dump, err error) {
	if len(m.Spaces) == 0 {
		return nil, ErrNoSpaces
	}
	cachePages := opts.CachePages
	if cachePages == 0 {
		cachePages = DefaultCachePages
	}
	logger := logflags.ImageLogger()

	d := &Dump{spaces: make(map[string]*Space)}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	for _, spec := range m.Spaces {
		if _, dup := d.spaces[spec.ID]; dup {
			return nil, fmt.Errorf("duplicate address space %q", spec.ID)
		}
		spliced := &splicedMemory{}
		for _, r := range spec.Regions {
			file := r.File
			if !filepath.IsAbs(file) {
				file = filepath.Join(dir, file)
			}
			f, err := openRegionFile(file, r.Compression)
			if err != nil {
				return nil, err
			}
			d.files = append(d.files, f)
			if r.Offset < 0 || r.Offset > f.Size() {
				return nil, fmt.Errorf("%s: offset %#x outside of file", file, r.Offset)
			}
			length := r.Length
			if avail := uint64(f.Size() - r.Offset); length == 0 || length > avail {
				length = avail
			}
			spliced.Add(&offsetReaderAt{reader: f, offset: r.Addr, base: r.Offset}, r.Addr, length)
			if logflags.Image() {
				logger.Debugf("ASID %s: mapped %s+%#x at %#x-%#x", spec.ID, file, r.Offset, r.Addr, r.Addr+length)
			}
		}
		s, err := NewSpace(spec.ID, spliced, spec.Mode64, cachePages)
		if err != nil {
			return nil, err
		}
		d.spaces[spec.ID] = s
	}

	for _, spec := range m.Spaces {
		s := d.spaces[spec.ID]
		if spec.Root == "" {
			s.SetRoot(nil)
			continue
		}
		root, ok := d.spaces[spec.Root]
		if !ok {
			return nil, fmt.Errorf("address space %q: unknown root %q", spec.ID, spec.Root)
		}
		s.SetRoot(root)
	}
	return d, nil
}

// Space returns the address space with the given ID.
func (d *Dump) Space(id string) (*Space, error) {
	s, ok := d.spaces[id]
	if !ok {
		return nil, fmt.Errorf("no address space %q in dump", id)
	}
	return s, nil
}

// Spaces returns all address spaces sorted by ID.
func (d *Dump) Spaces() []*Space {
	r := make([]*Space, 0, len(d.spaces))
	for _, s := range d.spaces {
		r = append(r, s)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].id < r[j].id })
	return r
}

// Close releases the region files. Reads from the spaces of d fail with an
// *mem.IOError afterwards.
func (d *Dump) Close() error {
	for _, s := range d.spaces {
		if s.cache != nil {
			s.cache.purge()
		}
	}
	var firstErr error
	for _, f := range d.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.files = nil
	return firstErr
}
