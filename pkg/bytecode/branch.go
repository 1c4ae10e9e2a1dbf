package bytecode

import "strconv"

// Deferred is an operand that can only be completed once every instruction
// of the method exists. The resolving pass replaces it with the Operand
// returned by Resolve.
type Deferred interface {
	Operand
	Resolve(body *Body, from *Instruction) (Operand, error)
}

// BranchOffset is a jump distance relative to the start of the branching
// instruction, as read from the code array.
type BranchOffset int32

func (BranchOffset) operand() {}

func (o BranchOffset) String() string {
	if o >= 0 {
		return "+" + strconv.Itoa(int(o))
	}
	return strconv.Itoa(int(o))
}

func (o BranchOffset) target(body *Body, from *Instruction) (*Instruction, error) {
	to := from.Offset + int(o)
	ins := body.At(to)
	if ins == nil {
		return nil, &BranchError{From: from.Offset, To: to}
	}
	return ins, nil
}

func (o BranchOffset) Resolve(body *Body, from *Instruction) (Operand, error) {
	ins, err := o.target(body, from)
	if err != nil {
		return nil, err
	}
	return Target{Instruction: ins}, nil
}

// Target is a resolved jump. Instruction points into the owning Body.
type Target struct {
	Instruction *Instruction
}

func (Target) operand() {}

func (t Target) String() string { return strconv.Itoa(t.Instruction.Offset) }
