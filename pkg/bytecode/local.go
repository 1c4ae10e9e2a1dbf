package bytecode

import (
	"strconv"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

// LocalVariableReference names a frame slot of a method. Two references
// are equal when they name the same slot of the same method.
type LocalVariableReference struct {
	Method *classfile.MethodInfo
	Index  int
}

// LocalRef returns the reference for slot index of method.
func LocalRef(method *classfile.MethodInfo, index int) LocalVariableReference {
	return LocalVariableReference{Method: method, Index: index}
}

func (LocalVariableReference) operand() {}

// IsThis reports whether the slot holds the receiver.
func (l LocalVariableReference) IsThis() bool {
	return l.Index == 0 && l.Method.HasThis()
}

// IsParameter reports whether the slot lies inside the incoming arguments,
// receiver included. Long and double parameters cover two slots.
func (l LocalVariableReference) IsParameter() bool {
	return l.Index < l.Method.ParameterSlots()
}

func (l LocalVariableReference) String() string {
	switch {
	case l.IsThis():
		return "this"
	case l.IsParameter():
		return "arg" + strconv.Itoa(l.Index)
	}
	return "local" + strconv.Itoa(l.Index)
}
