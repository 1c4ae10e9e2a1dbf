package bytecode

import (
	"fmt"
	"strings"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

// Instruction is one decoded instruction. Offset and Length locate it in
// the code array; for a wide instruction they cover the wide prefix and
// Opcode is the wrapped opcode.
type Instruction struct {
	Index    int
	Offset   int
	Length   int
	Opcode   Opcode
	Wide     bool
	Operand  Operand
	Operand2 Operand
	Line     int // 0 when no line number table covers the offset
}

func (ins *Instruction) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d: ", ins.Offset)
	if ins.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(ins.Opcode.String())
	for _, op := range []Operand{ins.Operand, ins.Operand2} {
		if op != nil {
			fmt.Fprintf(&sb, " %v", op)
		}
	}
	return sb.String()
}

// ExceptionHandler is an exception table row with its offsets resolved.
// End is nil when the protected range runs to the end of the code.
// A nil CatchType catches everything.
type ExceptionHandler struct {
	Start     *Instruction
	End       *Instruction
	Handler   *Instruction
	CatchType *classfile.ConstantClass
}

// Covers reports whether ins lies inside the protected range.
func (h *ExceptionHandler) Covers(ins *Instruction) bool {
	if ins.Offset < h.Start.Offset {
		return false
	}
	return h.End == nil || ins.Offset < h.End.Offset
}

// Body is the decoded code of one method. Instructions is never grown after
// decoding, so pointers into it stay valid for the life of the Body.
type Body struct {
	Method       *classfile.MethodInfo
	Instructions []Instruction
	Handlers     []ExceptionHandler
	CodeLength   int

	// starts[offset] is the index of the instruction starting there, or -1.
	starts []int32
}

func newBody(method *classfile.MethodInfo, instrs []Instruction, codeLength int) *Body {
	starts := make([]int32, codeLength)
	for i := range starts {
		starts[i] = -1
	}
	for i := range instrs {
		starts[instrs[i].Offset] = int32(i)
	}
	return &Body{Method: method, Instructions: instrs, CodeLength: codeLength, starts: starts}
}

// At returns the instruction starting at offset, or nil.
func (b *Body) At(offset int) *Instruction {
	if offset < 0 || offset >= len(b.starts) || b.starts[offset] < 0 {
		return nil
	}
	return &b.Instructions[b.starts[offset]]
}

// Next returns the instruction following ins in code order, or nil after
// the last one.
func (b *Body) Next(ins *Instruction) *Instruction {
	if ins.Index+1 >= len(b.Instructions) {
		return nil
	}
	return &b.Instructions[ins.Index+1]
}

// Local returns the reference for slot index of the decoded method.
func (b *Body) Local(index int) LocalVariableReference {
	return LocalRef(b.Method, index)
}

// This returns the receiver slot. ok is false for static methods.
func (b *Body) This() (ref LocalVariableReference, ok bool) {
	if !b.Method.HasThis() {
		return LocalVariableReference{}, false
	}
	return b.Local(0), true
}

// Parameter is a declared parameter and the slot it arrives in.
type Parameter struct {
	Type  classfile.TypeReference
	Local LocalVariableReference
}

// Parameters lists the declared parameters in order, excluding the receiver.
func (b *Body) Parameters() ([]Parameter, error) {
	sig, err := b.Method.Signature()
	if err != nil {
		return nil, err
	}
	slot := 0
	if b.Method.HasThis() {
		slot = 1
	}
	params := make([]Parameter, len(sig.Parameters))
	for i, t := range sig.Parameters {
		params[i] = Parameter{Type: t, Local: b.Local(slot)}
		slot++
		if t.IsWide() {
			slot++
		}
	}
	return params, nil
}

// Targets returns the instructions ins may jump to, default first for
// switches. Fall-through is not included.
func (b *Body) Targets(ins *Instruction) []*Instruction {
	switch op := ins.Operand.(type) {
	case Target:
		return []*Instruction{op.Instruction}
	case *TableSwitch:
		return append([]*Instruction{op.Default}, op.Targets...)
	case *LookupSwitch:
		out := []*Instruction{op.Default}
		for _, c := range op.Cases {
			out = append(out, c.Target)
		}
		return out
	}
	return nil
}
