// Package classgen assembles class files in memory. Tests use it instead of
// checked-in .class fixtures.
package classgen

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"
)

const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
)

// Handler is an exception table row.
type Handler struct {
	Start, End, Handler uint16
	CatchType           uint16
}

// Line is a LineNumberTable row.
type Line struct {
	StartPC, Line uint16
}

// Code is the body of a Code attribute.
type Code struct {
	MaxStack  uint16
	MaxLocals uint16
	Bytes     []byte
	Handlers  []Handler
	Lines     []Line
}

type member struct {
	flags      uint16
	name, desc uint16
	code       *Code
}

// Builder accumulates a constant pool and class members. Pool entries are
// interned, so adding the same constant twice returns the same index.
type Builder struct {
	pool       bytes.Buffer
	count      uint16
	interned   map[string]uint16
	flags      uint16
	this       uint16
	super      uint16
	interfaces []uint16
	fields     []member
	methods    []member
}

// New starts a class named name extending super. An empty super produces a
// class without a superclass, like java/lang/Object.
func New(name, super string) *Builder {
	b := &Builder{count: 1, interned: make(map[string]uint16), flags: 0x0021}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

// Interface marks the class as an interface.
func (b *Builder) Interface() *Builder {
	b.flags = 0x0601
	return b
}

// Implements adds a direct superinterface.
func (b *Builder) Implements(names ...string) *Builder {
	for _, n := range names {
		b.interfaces = append(b.interfaces, b.Class(n))
	}
	return b
}

func (b *Builder) intern(key string, slots uint16, write func()) uint16 {
	if idx, ok := b.interned[key]; ok {
		return idx
	}
	idx := b.count
	write()
	b.count += slots
	b.interned[key] = idx
	return idx
}

func (b *Builder) u1(v uint8)  { b.pool.WriteByte(v) }
func (b *Builder) u2(v uint16) { binary.Write(&b.pool, binary.BigEndian, v) }
func (b *Builder) u4(v uint32) { binary.Write(&b.pool, binary.BigEndian, v) }

func (b *Builder) Utf8(s string) uint16 {
	return b.intern("utf8:"+s, 1, func() {
		b.u1(tagUtf8)
		b.u2(uint16(len(s)))
		b.pool.WriteString(s)
	})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.intern("int:"+strconv.Itoa(int(v)), 1, func() {
		b.u1(tagInteger)
		b.u4(uint32(v))
	})
}

func (b *Builder) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	return b.intern("float:"+strconv.FormatUint(uint64(bits), 16), 1, func() {
		b.u1(tagFloat)
		b.u4(bits)
	})
}

func (b *Builder) Long(v int64) uint16 {
	return b.intern("long:"+strconv.FormatInt(v, 10), 2, func() {
		b.u1(tagLong)
		binary.Write(&b.pool, binary.BigEndian, v)
	})
}

func (b *Builder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	return b.intern("double:"+strconv.FormatUint(bits, 16), 2, func() {
		b.u1(tagDouble)
		binary.Write(&b.pool, binary.BigEndian, bits)
	})
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.intern("class:"+name, 1, func() {
		b.u1(tagClass)
		b.u2(n)
	})
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.intern("string:"+s, 1, func() {
		b.u1(tagString)
		b.u2(n)
	})
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	return b.intern("nat:"+name+":"+desc, 1, func() {
		b.u1(tagNameAndType)
		b.u2(n)
		b.u2(d)
	})
}

func (b *Builder) ref(tag uint8, kind, class, name, desc string) uint16 {
	c, nat := b.Class(class), b.NameAndType(name, desc)
	return b.intern(kind+":"+class+"."+name+":"+desc, 1, func() {
		b.u1(tag)
		b.u2(c)
		b.u2(nat)
	})
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.ref(tagFieldref, "field", class, name, desc)
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.ref(tagMethodref, "method", class, name, desc)
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.ref(tagInterfaceMethodref, "imethod", class, name, desc)
}

// Field declares a field.
func (b *Builder) Field(flags uint16, name, desc string) *Builder {
	b.fields = append(b.fields, member{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc)})
	return b
}

// Method declares a method; code may be nil for abstract methods.
func (b *Builder) Method(flags uint16, name, desc string, code *Code) *Builder {
	b.methods = append(b.methods, member{flags: flags, name: b.Utf8(name), desc: b.Utf8(desc), code: code})
	return b
}

// Bytes serializes the class file.
func (b *Builder) Bytes() []byte {
	// Attribute names must be in the pool before it is written.
	codeName := b.Utf8("Code")
	linesName := b.Utf8("LineNumberTable")

	var out bytes.Buffer
	w := func(v any) { binary.Write(&out, binary.BigEndian, v) }
	w(uint32(0xCAFEBABE))
	w(uint16(0))
	w(uint16(52))
	w(b.count)
	out.Write(b.pool.Bytes())
	w(b.flags)
	w(b.this)
	w(b.super)
	w(uint16(len(b.interfaces)))
	w(b.interfaces)

	w(uint16(len(b.fields)))
	for _, f := range b.fields {
		w([]uint16{f.flags, f.name, f.desc, 0})
	}

	w(uint16(len(b.methods)))
	for _, m := range b.methods {
		if m.code == nil {
			w([]uint16{m.flags, m.name, m.desc, 0})
			continue
		}
		w([]uint16{m.flags, m.name, m.desc, 1})
		body := encodeCode(m.code, linesName)
		w(codeName)
		w(uint32(len(body)))
		out.Write(body)
	}

	w(uint16(0)) // class attributes
	return out.Bytes()
}

func encodeCode(c *Code, linesName uint16) []byte {
	var out bytes.Buffer
	w := func(v any) { binary.Write(&out, binary.BigEndian, v) }
	w(c.MaxStack)
	w(c.MaxLocals)
	w(uint32(len(c.Bytes)))
	out.Write(c.Bytes)
	w(uint16(len(c.Handlers)))
	for _, h := range c.Handlers {
		w([]uint16{h.Start, h.End, h.Handler, h.CatchType})
	}
	if len(c.Lines) == 0 {
		w(uint16(0))
		return out.Bytes()
	}
	w(uint16(1))
	w(linesName)
	w(uint32(2 + 4*len(c.Lines)))
	w(uint16(len(c.Lines)))
	for _, l := range c.Lines {
		w([]uint16{l.StartPC, l.Line})
	}
	return out.Bytes()
}
