package classfile

import (
	"fmt"
	"strings"
)

// ObjectClassName is the root of every class hierarchy. Array types resolve
// their members against it.
const ObjectClassName = "java/lang/Object"

// TypeReference is a parsed field type: a primitive, a class or an array.
type TypeReference interface {
	// Descriptor returns the JVM descriptor form, e.g. "I" or "[Ljava/lang/String;".
	Descriptor() string
	// IsWide reports whether values of this type take two local slots.
	IsWide() bool
	String() string
}

// PrimitiveType is a base type identified by its descriptor character.
type PrimitiveType byte

const (
	Byte    PrimitiveType = 'B'
	Char    PrimitiveType = 'C'
	Double  PrimitiveType = 'D'
	Float   PrimitiveType = 'F'
	Int     PrimitiveType = 'I'
	Long    PrimitiveType = 'J'
	Short   PrimitiveType = 'S'
	Boolean PrimitiveType = 'Z'
	Void    PrimitiveType = 'V'
)

var primitiveNames = map[PrimitiveType]string{
	Byte:    "byte",
	Char:    "char",
	Double:  "double",
	Float:   "float",
	Int:     "int",
	Long:    "long",
	Short:   "short",
	Boolean: "boolean",
	Void:    "void",
}

func (p PrimitiveType) Descriptor() string { return string(rune(p)) }
func (p PrimitiveType) IsWide() bool       { return p == Long || p == Double }
func (p PrimitiveType) String() string     { return primitiveNames[p] }

// ObjectType is a class or interface type in internal form ("java/lang/String").
type ObjectType struct {
	ClassName string
}

func (o ObjectType) Descriptor() string { return "L" + o.ClassName + ";" }
func (o ObjectType) IsWide() bool       { return false }
func (o ObjectType) String() string     { return o.ClassName }

// ArrayType is a one-dimensional array of Element; nested arrays nest.
type ArrayType struct {
	Element TypeReference
}

func (a ArrayType) Descriptor() string { return "[" + a.Element.Descriptor() }
func (a ArrayType) IsWide() bool       { return false }
func (a ArrayType) String() string     { return a.Element.String() + "[]" }

// Dimensions returns the array depth.
func (a ArrayType) Dimensions() int {
	n := 1
	for e, ok := a.Element.(ArrayType); ok; e, ok = e.Element.(ArrayType) {
		n++
	}
	return n
}

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Parameters []TypeReference
	Return     TypeReference
}

// ParameterSlots returns the local slots the parameters occupy, not
// counting a receiver.
func (d *MethodDescriptor) ParameterSlots() int {
	n := 0
	for _, p := range d.Parameters {
		if p.IsWide() {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ParseFieldDescriptor parses a single field type descriptor.
func ParseFieldDescriptor(s string) (TypeReference, error) {
	t, n, err := parseType(s, 0, false)
	if err != nil {
		return nil, err
	}
	if n != len(s) {
		return nil, fmt.Errorf("descriptor %q: trailing characters at %d", s, n)
	}
	return t, nil
}

// ParseClassName parses the name stored in a CONSTANT_Class entry. Array
// classes use descriptor syntax, a lone primitive code parses as that
// primitive, and anything else is an internal class name.
func ParseClassName(name string) (TypeReference, error) {
	switch {
	case name == "":
		return nil, fmt.Errorf("empty class name")
	case name[0] == '[':
		return ParseFieldDescriptor(name)
	case len(name) == 1:
		if _, ok := primitiveNames[PrimitiveType(name[0])]; ok && name[0] != 'V' {
			return PrimitiveType(name[0]), nil
		}
	case name[0] == 'L' && name[len(name)-1] == ';':
		return ObjectType{ClassName: name[1 : len(name)-1]}, nil
	}
	return ObjectType{ClassName: name}, nil
}

// ParseMethodDescriptor parses "(params)return".
func ParseMethodDescriptor(s string) (*MethodDescriptor, error) {
	if !strings.HasPrefix(s, "(") {
		return nil, fmt.Errorf("method descriptor %q: missing '('", s)
	}
	d := &MethodDescriptor{}
	pos := 1
	for {
		if pos >= len(s) {
			return nil, fmt.Errorf("method descriptor %q: missing ')'", s)
		}
		if s[pos] == ')' {
			pos++
			break
		}
		t, next, err := parseType(s, pos, false)
		if err != nil {
			return nil, err
		}
		d.Parameters = append(d.Parameters, t)
		pos = next
	}
	ret, next, err := parseType(s, pos, true)
	if err != nil {
		return nil, err
	}
	if next != len(s) {
		return nil, fmt.Errorf("method descriptor %q: trailing characters at %d", s, next)
	}
	d.Return = ret
	return d, nil
}

func parseType(s string, pos int, allowVoid bool) (TypeReference, int, error) {
	if pos >= len(s) {
		return nil, pos, fmt.Errorf("descriptor %q: unexpected end", s)
	}
	c := s[pos]
	switch c {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return PrimitiveType(c), pos + 1, nil
	case 'V':
		if !allowVoid {
			return nil, pos, fmt.Errorf("descriptor %q: void not allowed at %d", s, pos)
		}
		return Void, pos + 1, nil
	case 'L':
		end := strings.IndexByte(s[pos:], ';')
		if end < 2 {
			return nil, pos, fmt.Errorf("descriptor %q: bad class type at %d", s, pos)
		}
		return ObjectType{ClassName: s[pos+1 : pos+end]}, pos + end + 1, nil
	case '[':
		elem, next, err := parseType(s, pos+1, false)
		if err != nil {
			return nil, pos, err
		}
		return ArrayType{Element: elem}, next, nil
	}
	return nil, pos, fmt.Errorf("descriptor %q: unexpected %q at %d", s, c, pos)
}
