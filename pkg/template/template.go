// Package template decodes named fields of fixed-layout control blocks.
//
// A Template is a table of Field descriptors. Control blocks are added as
// data: each one is a single call to New listing its fields, instead of a
// separate accessor type per block.
package template

import (
	"fmt"

	"github.com/eclipse-openj9/openj9-sub015/pkg/mem"
)

// Rule selects how the bits of a field are turned into a scalar.
type Rule uint8

const (
	// Unsigned fields are zero-extended.
	Unsigned Rule = iota
	// Signed fields are sign-extended from their most significant bit.
	Signed
	// Wide fields are wider than 64 bits. Their offset and width can be
	// queried but they cannot be decoded as a scalar.
	Wide
)

func (r Rule) String() string {
	switch r {
	case Unsigned:
		return "unsigned"
	case Signed:
		return "signed"
	case Wide:
		return "wide"
	}
	return fmt.Sprintf("Rule(%d)", uint8(r))
}

// Field describes one named field of a Template.
type Field struct {
	Name      string
	Offset    uint64 // byte offset from the start of the block
	BitOffset uint   // bit offset inside the byte at Offset, 0 is the most significant bit
	Width     uint   // width in bits
	Rule      Rule
}

// U returns an unsigned byte-aligned field of size bytes.
func U(name string, offset uint64, size uint) Field {
	return Field{Name: name, Offset: offset, Width: size * 8, Rule: Unsigned}
}

// S returns a signed byte-aligned field of size bytes.
func S(name string, offset uint64, size uint) Field {
	return Field{Name: name, Offset: offset, Width: size * 8, Rule: Signed}
}

// Bits returns an unsigned bit field.
func Bits(name string, offset uint64, bitOffset, width uint) Field {
	return Field{Name: name, Offset: offset, BitOffset: bitOffset, Width: width, Rule: Unsigned}
}

// W returns a wide field of size bytes. Wide fields are save areas whose
// start address is used to locate their elements.
func W(name string, offset uint64, size uint) Field {
	return Field{Name: name, Offset: offset, Width: size * 8, Rule: Wide}
}

func (f Field) end() uint64 {
	return f.Offset*8 + uint64(f.BitOffset) + uint64(f.Width)
}

// Template is the layout of one control block.
type Template struct {
	Name   string
	Length uint64

	fields []Field
	byName map[string]int
}

// New returns the template for a block of length bytes. It panics if two
// fields share a name, if a field does not fit in the block or if a field's
// rule does not match its width: templates are static program data.
func New(name string, length uint64, fields ...Field) *Template {
	t := &Template{Name: name, Length: length, fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		if _, dup := t.byName[f.Name]; dup {
			panic(fmt.Sprintf("template %s: duplicate field %s", name, f.Name))
		}
		if f.Width == 0 {
			panic(fmt.Sprintf("template %s: field %s has zero width", name, f.Name))
		}
		if f.end() > length*8 {
			panic(fmt.Sprintf("template %s: field %s ends at bit %d, past the end of the block (%d bytes)", name, f.Name, f.end(), length))
		}
		if (f.Rule == Wide) != (f.Width > 64) {
			panic(fmt.Sprintf("template %s: field %s is %d bits wide but has rule %v", name, f.Name, f.Width, f.Rule))
		}
		t.byName[f.Name] = i
	}
	return t
}

// Fields returns the fields of t in declaration order.
func (t *Template) Fields() []Field {
	return t.fields
}

// Field returns the descriptor of the named field.
func (t *Template) Field(name string) (Field, error) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, &UnknownFieldError{Template: t.Name, Field: name}
	}
	return t.fields[i], nil
}

// Offset returns the byte offset of the named field. It panics if the
// field does not exist.
func (t *Template) Offset(name string) uint64 {
	return t.mustField(name).Offset
}

// Width returns the width in bits of the named field. It panics if the
// field does not exist.
func (t *Template) Width(name string) uint {
	return t.mustField(name).Width
}

// Addr returns the address of the named field of the block at base.
func (t *Template) Addr(base uint64, name string) uint64 {
	return base + t.Offset(name)
}

func (t *Template) mustField(name string) Field {
	f, err := t.Field(name)
	if err != nil {
		panic(err)
	}
	return f
}

// Uint decodes the named field of the block at base. Signed fields are
// returned as the two's complement bit pattern of their sign-extended
// value.
func (t *Template) Uint(r mem.Reader, base uint64, name string) (uint64, error) {
	v, err := t.Int(r, base, name)
	return uint64(v), err
}

// Int decodes the named field of the block at base, sign-extending it if
// the field is Signed.
func (t *Template) Int(r mem.Reader, base uint64, name string) (int64, error) {
	f, err := t.Field(name)
	if err != nil {
		return 0, err
	}
	if f.Rule == Wide {
		return 0, &FieldTooWideError{Template: t.Name, Field: f.Name, Width: f.Width}
	}
	raw, err := readRaw(r, base+f.Offset, f.BitOffset, f.Width)
	if err != nil {
		return 0, err
	}
	if f.Rule == Signed {
		return signExtend(raw, f.Width), nil
	}
	return int64(raw), nil
}

// readRaw returns the width bits at addr/bitOffset in the low bits of the
// result, zero-extended.
func readRaw(r mem.Reader, addr uint64, bitOffset, width uint) (uint64, error) {
	switch {
	case bitOffset == 0 && width == 32:
		v, err := r.ReadUint32(addr)
		return uint64(v), err
	case bitOffset == 0 && width == 64:
		return r.ReadUint64(addr)
	}
	v, err := r.ReadBits(addr, bitOffset, width)
	if err != nil {
		return 0, err
	}
	if width == 64 {
		return uint64(v), nil
	}
	return uint64(v) & (1<<width - 1), nil
}

// signExtend sign-extends the low width bits of raw by moving them to the
// top of the word and shifting them back arithmetically.
func signExtend(raw uint64, width uint) int64 {
	shift := 64 - width
	return int64(raw<<shift) >> shift
}
