package bytecode

import (
	"fmt"
	"strconv"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

// Operand is the closed set of values an instruction can carry:
//
//	Int, Long, Float, Double     literals
//	ArrayType                    newarray element type
//	Constant                     constant pool entry
//	LocalVariableReference       frame slot
//	BranchOffset                 unresolved jump (parse pass only)
//	Target                       resolved jump
//	LookupSwitchData, TableSwitchData   unresolved switch (parse pass only)
//	LookupSwitch, TableSwitch    resolved switch
//
// A nil Operand means the instruction has none.
type Operand interface {
	operand()
}

type Int int32

type Long int64

type Float float32

type Double float64

func (Int) operand()    {}
func (Long) operand()   {}
func (Float) operand()  {}
func (Double) operand() {}

func (v Int) String() string  { return strconv.FormatInt(int64(v), 10) }
func (v Long) String() string { return strconv.FormatInt(int64(v), 10) + "L" }
func (v Float) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32) + "f"
}
func (v Double) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }

// ArrayType is the atype operand of newarray.
type ArrayType uint8

const (
	TBoolean ArrayType = 4
	TChar    ArrayType = 5
	TFloat   ArrayType = 6
	TDouble  ArrayType = 7
	TByte    ArrayType = 8
	TShort   ArrayType = 9
	TInt     ArrayType = 10
	TLong    ArrayType = 11
)

var arrayTypeElements = map[ArrayType]classfile.PrimitiveType{
	TBoolean: classfile.Boolean,
	TChar:    classfile.Char,
	TFloat:   classfile.Float,
	TDouble:  classfile.Double,
	TByte:    classfile.Byte,
	TShort:   classfile.Short,
	TInt:     classfile.Int,
	TLong:    classfile.Long,
}

func (ArrayType) operand() {}

// Element returns the primitive element type.
func (t ArrayType) Element() (classfile.PrimitiveType, bool) {
	p, ok := arrayTypeElements[t]
	return p, ok
}

func (t ArrayType) String() string {
	if p, ok := t.Element(); ok {
		return p.String()
	}
	return fmt.Sprintf("atype(%d)", uint8(t))
}

// Constant is a constant pool operand.
type Constant struct {
	Index uint16
	Entry classfile.ConstantPoolEntry
}

func (Constant) operand() {}

func (c Constant) String() string {
	return fmt.Sprintf("#%d %s", c.Index, describeEntry(c.Entry))
}

func describeEntry(e classfile.ConstantPoolEntry) string {
	switch e := e.(type) {
	case *classfile.ConstantInteger:
		return Int(e.Value).String()
	case *classfile.ConstantFloat:
		return Float(e.Value).String()
	case *classfile.ConstantLong:
		return Long(e.Value).String()
	case *classfile.ConstantDouble:
		return Double(e.Value).String()
	case *classfile.ConstantString:
		return strconv.Quote(e.Value())
	case *classfile.ConstantClass:
		return e.Name()
	case classfile.MemberRef:
		return e.ClassName() + "." + e.Name() + ":" + e.Descriptor()
	}
	return classfile.TagName(e.Tag())
}
