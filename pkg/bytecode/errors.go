package bytecode

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferUnderrun is returned when an operand extends past the end of the code.
	ErrBufferUnderrun = errors.New("buffer underrun")

	// ErrUnresolvedBranchTarget is returned when a branch or switch offset
	// does not land on the first byte of an instruction.
	ErrUnresolvedBranchTarget = errors.New("unresolved branch target")

	// ErrUnknownOpcode is returned for unassigned and reserved opcode bytes.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// DecodeError locates a failure at the instruction starting at Offset.
type DecodeError struct {
	Offset int
	Opcode Opcode
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d (%s): %v", e.Offset, e.Opcode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BranchError reports a jump from the instruction at From to an offset To
// where no instruction starts.
type BranchError struct {
	From int
	To   int
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("branch from %d to %d: no instruction starts there", e.From, e.To)
}

func (e *BranchError) Unwrap() error { return ErrUnresolvedBranchTarget }
