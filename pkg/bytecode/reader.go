package bytecode

import "fmt"

// codeReader walks a code array. The first read past the end sets err and
// every later read returns zero, so callers check err once per instruction.
type codeReader struct {
	code []byte
	pc   int
	err  error
}

func (r *codeReader) done() bool { return r.pc >= len(r.code) }

func (r *codeReader) remaining() int { return len(r.code) - r.pc }

func (r *codeReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n > r.remaining() {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, code length %d", ErrBufferUnderrun, n, r.pc, len(r.code))
		r.pc = len(r.code)
		return false
	}
	return true
}

// ReadU8 reads a uint8 operand and advances PC.
func (r *codeReader) ReadU8() uint8 {
	if !r.need(1) {
		return 0
	}
	val := r.code[r.pc]
	r.pc++
	return val
}

// ReadI8 reads an int8 operand and advances PC.
func (r *codeReader) ReadI8() int8 {
	return int8(r.ReadU8())
}

// ReadU16 reads a uint16 operand (big-endian) and advances PC by 2.
func (r *codeReader) ReadU16() uint16 {
	if !r.need(2) {
		return 0
	}
	val := uint16(r.code[r.pc])<<8 | uint16(r.code[r.pc+1])
	r.pc += 2
	return val
}

// ReadI16 reads an int16 operand (big-endian) and advances PC by 2.
func (r *codeReader) ReadI16() int16 {
	return int16(r.ReadU16())
}

// ReadI32 reads an int32 operand (big-endian) and advances PC by 4.
func (r *codeReader) ReadI32() int32 {
	if !r.need(4) {
		return 0
	}
	c := r.code[r.pc : r.pc+4]
	r.pc += 4
	return int32(uint32(c[0])<<24 | uint32(c[1])<<16 | uint32(c[2])<<8 | uint32(c[3]))
}

// Align skips switch padding up to the next multiple of 4 from the start
// of the code array.
func (r *codeReader) Align() {
	pad := (4 - r.pc%4) % 4
	if r.need(pad) {
		r.pc += pad
	}
}
