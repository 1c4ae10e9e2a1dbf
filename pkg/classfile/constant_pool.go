package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"unicode/utf16"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

var tagNames = map[uint8]string{
	TagUtf8:               "Utf8",
	TagInteger:            "Integer",
	TagFloat:              "Float",
	TagLong:               "Long",
	TagDouble:             "Double",
	TagClass:              "Class",
	TagString:             "String",
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
	TagNameAndType:        "NameAndType",
	TagMethodHandle:       "MethodHandle",
	TagMethodType:         "MethodType",
	TagDynamic:            "Dynamic",
	TagInvokeDynamic:      "InvokeDynamic",
}

// TagName returns the JVMS name of a constant pool tag.
func TagName(tag uint8) string {
	if n, ok := tagNames[tag]; ok {
		return n
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// ConstantPoolEntry is an interface implemented by all constant pool types.
type ConstantPoolEntry interface {
	Tag() uint8
}

// ConstantPool is the 1-indexed constant table of a class. Index 0 and the
// slot following a Long or Double are nil.
//
// A pool built by NewConstantPool has had every internal cross-reference
// checked, so the name accessors on its entries do not fail.
type ConstantPool []ConstantPoolEntry

// NewConstantPool binds the entries to the pool and validates that every
// index an entry holds points at an entry of the expected kind.
func NewConstantPool(entries []ConstantPoolEntry) (ConstantPool, error) {
	cp := ConstantPool(entries)
	for _, e := range cp {
		if e == nil {
			continue
		}
		if b, ok := e.(poolBound); ok {
			b.bind(cp)
		}
	}
	for i, e := range cp {
		if e == nil {
			continue
		}
		if v, ok := e.(poolBound); ok {
			if err := v.validate(cp); err != nil {
				return nil, fmt.Errorf("constant pool entry %d (%s): %w", i, TagName(e.Tag()), err)
			}
		}
	}
	return cp, nil
}

type poolBound interface {
	bind(cp ConstantPool)
	validate(cp ConstantPool) error
}

// Entry returns the entry at index.
func (cp ConstantPool) Entry(index uint16) (ConstantPoolEntry, error) {
	if index == 0 || int(index) >= len(cp) || cp[index] == nil {
		return nil, &IndexError{Index: index}
	}
	return cp[index], nil
}

// EntryOf returns the entry at index if its tag is one of tags.
func (cp ConstantPool) EntryOf(index uint16, tags ...uint8) (ConstantPoolEntry, error) {
	e, err := cp.Entry(index)
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		if e.Tag() == t {
			return e, nil
		}
	}
	return nil, &KindError{Index: index, Want: tags, Got: e.Tag()}
}

// GetEntry returns the entry at index as a T.
func GetEntry[T ConstantPoolEntry](cp ConstantPool, index uint16) (T, error) {
	var zero T
	e, err := cp.Entry(index)
	if err != nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, &KindError{Index: index, Want: []uint8{zero.Tag()}, Got: e.Tag()}
	}
	return t, nil
}

// Utf8 returns the string value of a Utf8 entry.
func (cp ConstantPool) Utf8(index uint16) (string, error) {
	u, err := GetEntry[*ConstantUtf8](cp, index)
	if err != nil {
		return "", err
	}
	return u.Value, nil
}

// Class returns the Class entry at index.
func (cp ConstantPool) Class(index uint16) (*ConstantClass, error) {
	return GetEntry[*ConstantClass](cp, index)
}

// ClassName returns the name a Class entry refers to.
func (cp ConstantPool) ClassName(index uint16) (string, error) {
	c, err := cp.Class(index)
	if err != nil {
		return "", err
	}
	return cp.Utf8(c.NameIndex)
}

// mustUtf8 is for indices already checked by validate.
func (cp ConstantPool) mustUtf8(index uint16) string {
	return cp[index].(*ConstantUtf8).Value
}

func checkKind(cp ConstantPool, index uint16, tag uint8) error {
	_, err := cp.EntryOf(index, tag)
	return err
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() uint8 { return TagUtf8 }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() uint8 { return TagInteger }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() uint8 { return TagFloat }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() uint8 { return TagLong }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() uint8 { return TagDouble }

// ConstantClass names a class, interface or array type. Its parsed type and
// its loaded definition are each computed once.
type ConstantClass struct {
	NameIndex uint16

	cp ConstantPool

	typeOnce sync.Once
	typ      TypeReference
	typeErr  error

	loadOnce sync.Once
	class    *ClassFile
	loadErr  error
}

// NewConstantClass returns an unbound Class entry for use with NewConstantPool.
func NewConstantClass(nameIndex uint16) *ConstantClass {
	return &ConstantClass{NameIndex: nameIndex}
}

func (c *ConstantClass) Tag() uint8 { return TagClass }

func (c *ConstantClass) bind(cp ConstantPool) { c.cp = cp }

func (c *ConstantClass) validate(cp ConstantPool) error {
	return checkKind(cp, c.NameIndex, TagUtf8)
}

// Name returns the class name in internal form, or the array descriptor.
func (c *ConstantClass) Name() string { return c.cp.mustUtf8(c.NameIndex) }

// Type parses Name as a class, array or primitive type.
func (c *ConstantClass) Type() (TypeReference, error) {
	c.typeOnce.Do(func() {
		c.typ, c.typeErr = ParseClassName(c.Name())
	})
	return c.typ, c.typeErr
}

// Resolve loads the referenced class. Array types resolve to java/lang/Object.
// The first result, success or failure, is kept.
func (c *ConstantClass) Resolve(loader ClassLoader) (*ClassFile, error) {
	c.loadOnce.Do(func() {
		c.class, c.loadErr = c.load(loader)
	})
	return c.class, c.loadErr
}

func (c *ConstantClass) load(loader ClassLoader) (*ClassFile, error) {
	t, err := c.Type()
	if err != nil {
		return nil, &UnresolvedMemberError{Kind: "class", ClassName: c.Name(), Err: err}
	}
	name := ""
	switch t := t.(type) {
	case ObjectType:
		name = t.ClassName
	case ArrayType:
		name = ObjectClassName
	default:
		// A lone descriptor letter is also a legal class name in the
		// default package.
		name = c.Name()
	}
	cf, err := loadClass(loader, name)
	if err != nil {
		return nil, &UnresolvedMemberError{Kind: "class", ClassName: c.Name(), Err: err}
	}
	return cf, nil
}

// ConstantString is a string literal.
type ConstantString struct {
	StringIndex uint16

	cp ConstantPool
}

func NewConstantString(stringIndex uint16) *ConstantString {
	return &ConstantString{StringIndex: stringIndex}
}

func (c *ConstantString) Tag() uint8 { return TagString }

func (c *ConstantString) bind(cp ConstantPool) { c.cp = cp }

func (c *ConstantString) validate(cp ConstantPool) error {
	return checkKind(cp, c.StringIndex, TagUtf8)
}

// Value returns the literal.
func (c *ConstantString) Value() string { return c.cp.mustUtf8(c.StringIndex) }

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16

	cp ConstantPool
}

func NewConstantNameAndType(nameIndex, descriptorIndex uint16) *ConstantNameAndType {
	return &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descriptorIndex}
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }

func (c *ConstantNameAndType) bind(cp ConstantPool) { c.cp = cp }

func (c *ConstantNameAndType) validate(cp ConstantPool) error {
	if err := checkKind(cp, c.NameIndex, TagUtf8); err != nil {
		return err
	}
	return checkKind(cp, c.DescriptorIndex, TagUtf8)
}

func (c *ConstantNameAndType) Name() string       { return c.cp.mustUtf8(c.NameIndex) }
func (c *ConstantNameAndType) Descriptor() string { return c.cp.mustUtf8(c.DescriptorIndex) }

// memberRef is the shared part of Fieldref, Methodref and InterfaceMethodref.
type memberRef struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16

	cp ConstantPool
}

func (r *memberRef) bind(cp ConstantPool) { r.cp = cp }

func (r *memberRef) validate(cp ConstantPool) error {
	if err := checkKind(cp, r.ClassIndex, TagClass); err != nil {
		return err
	}
	return checkKind(cp, r.NameAndTypeIndex, TagNameAndType)
}

// Class returns the declaring class entry.
func (r *memberRef) Class() *ConstantClass { return r.cp[r.ClassIndex].(*ConstantClass) }

func (r *memberRef) nameAndType() *ConstantNameAndType {
	return r.cp[r.NameAndTypeIndex].(*ConstantNameAndType)
}

func (r *memberRef) ClassName() string  { return r.Class().Name() }
func (r *memberRef) Name() string       { return r.nameAndType().Name() }
func (r *memberRef) Descriptor() string { return r.nameAndType().Descriptor() }

func (r *memberRef) unresolved(kind string, err error) *UnresolvedMemberError {
	return &UnresolvedMemberError{
		Kind:       kind,
		ClassName:  r.ClassName(),
		Name:       r.Name(),
		Descriptor: r.Descriptor(),
		Err:        err,
	}
}

// ConstantFieldref refers to a field by declaring class, name and type.
type ConstantFieldref struct {
	memberRef

	once  sync.Once
	field *FieldInfo
	err   error
}

func NewConstantFieldref(classIndex, nameAndTypeIndex uint16) *ConstantFieldref {
	return &ConstantFieldref{memberRef: memberRef{ClassIndex: classIndex, NameAndTypeIndex: nameAndTypeIndex}}
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }

// Resolve finds the field in the declaring class or its nearest superclass.
// The first result is kept.
func (c *ConstantFieldref) Resolve(loader ClassLoader) (*FieldInfo, error) {
	c.once.Do(func() {
		c.field, c.err = resolveField(loader, &c.memberRef)
	})
	return c.field, c.err
}

// ConstantMethodref refers to a class method.
type ConstantMethodref struct {
	memberRef

	once   sync.Once
	method *MethodInfo
	err    error
}

func NewConstantMethodref(classIndex, nameAndTypeIndex uint16) *ConstantMethodref {
	return &ConstantMethodref{memberRef: memberRef{ClassIndex: classIndex, NameAndTypeIndex: nameAndTypeIndex}}
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }

// Resolve finds the method, searching superclasses before interfaces.
// The first result is kept.
func (c *ConstantMethodref) Resolve(loader ClassLoader) (*MethodInfo, error) {
	c.once.Do(func() {
		c.method, c.err = resolveMethod(loader, &c.memberRef)
	})
	return c.method, c.err
}

// ConstantInterfaceMethodref refers to an interface method.
type ConstantInterfaceMethodref struct {
	memberRef

	once   sync.Once
	method *MethodInfo
	err    error
}

func NewConstantInterfaceMethodref(classIndex, nameAndTypeIndex uint16) *ConstantInterfaceMethodref {
	return &ConstantInterfaceMethodref{memberRef: memberRef{ClassIndex: classIndex, NameAndTypeIndex: nameAndTypeIndex}}
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }

// Resolve is the same walk as ConstantMethodref.Resolve.
func (c *ConstantInterfaceMethodref) Resolve(loader ClassLoader) (*MethodInfo, error) {
	c.once.Do(func() {
		c.method, c.err = resolveMethod(loader, &c.memberRef)
	})
	return c.method, c.err
}

// MemberRef is implemented by the three member reference entries.
type MemberRef interface {
	ConstantPoolEntry
	Class() *ConstantClass
	ClassName() string
	Name() string
	Descriptor() string
}

// Method handle reference kinds
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }

// ConstantDynamic backs both CONSTANT_Dynamic and CONSTANT_InvokeDynamic;
// they share a layout and differ only in tag.
type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
	Invoke                   bool
}

func (c *ConstantDynamic) Tag() uint8 {
	if c != nil && c.Invoke {
		return TagInvokeDynamic
	}
	return TagDynamic
}

// parseConstantPool reads constant_pool_count-1 entries from the reader.
func parseConstantPool(r io.Reader, count uint16) (ConstantPool, error) {
	entries := make([]ConstantPoolEntry, count)
	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}
		e, err := parseConstant(r, tag)
		if err != nil {
			return nil, fmt.Errorf("reading %s at index %d: %w", TagName(tag), i, err)
		}
		entries[i] = e
		if tag == TagLong || tag == TagDouble {
			i++ // 8-byte constants take 2 slots
		}
	}
	return NewConstantPool(entries)
}

func parseConstant(r io.Reader, tag uint8) (ConstantPoolEntry, error) {
	switch tag {
	case TagUtf8:
		var length uint16
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		b := make([]byte, length)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return &ConstantUtf8{Value: decodeModifiedUtf8(b)}, nil

	case TagInteger:
		var v int32
		err := binary.Read(r, binary.BigEndian, &v)
		return &ConstantInteger{Value: v}, err

	case TagFloat:
		var bits uint32
		err := binary.Read(r, binary.BigEndian, &bits)
		return &ConstantFloat{Value: math.Float32frombits(bits)}, err

	case TagLong:
		var v int64
		err := binary.Read(r, binary.BigEndian, &v)
		return &ConstantLong{Value: v}, err

	case TagDouble:
		var bits uint64
		err := binary.Read(r, binary.BigEndian, &bits)
		return &ConstantDouble{Value: math.Float64frombits(bits)}, err

	case TagClass:
		var nameIndex uint16
		err := binary.Read(r, binary.BigEndian, &nameIndex)
		return NewConstantClass(nameIndex), err

	case TagString:
		var stringIndex uint16
		err := binary.Read(r, binary.BigEndian, &stringIndex)
		return NewConstantString(stringIndex), err

	case TagMethodType:
		var descIndex uint16
		err := binary.Read(r, binary.BigEndian, &descIndex)
		return &ConstantMethodType{DescriptorIndex: descIndex}, err

	case TagMethodHandle:
		var raw struct {
			Kind  uint8
			Index uint16
		}
		err := binary.Read(r, binary.BigEndian, &raw)
		return &ConstantMethodHandle{ReferenceKind: raw.Kind, ReferenceIndex: raw.Index}, err
	}

	// The remaining kinds are all a pair of u2 indices.
	var pair [2]uint16
	switch tag {
	case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
		if err := binary.Read(r, binary.BigEndian, &pair); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown constant pool tag %d", tag)
	}
	switch tag {
	case TagFieldref:
		return NewConstantFieldref(pair[0], pair[1]), nil
	case TagMethodref:
		return NewConstantMethodref(pair[0], pair[1]), nil
	case TagInterfaceMethodref:
		return NewConstantInterfaceMethodref(pair[0], pair[1]), nil
	case TagNameAndType:
		return NewConstantNameAndType(pair[0], pair[1]), nil
	}
	return &ConstantDynamic{
		BootstrapMethodAttrIndex: pair[0],
		NameAndTypeIndex:         pair[1],
		Invoke:                   tag == TagInvokeDynamic,
	}, nil
}

// decodeModifiedUtf8 converts the class file's modified UTF-8: NUL is
// encoded as C0 80 and supplementary characters as surrogate pairs.
func decodeModifiedUtf8(b []byte) string {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c&0x80 == 0:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
