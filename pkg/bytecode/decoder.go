package bytecode

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

var log = commonlog.GetLogger("jvmcode.bytecode")

var (
	loadableTags = []uint8{
		classfile.TagInteger, classfile.TagFloat, classfile.TagString, classfile.TagClass,
		classfile.TagMethodHandle, classfile.TagMethodType, classfile.TagDynamic,
	}
	wideLoadableTags = []uint8{classfile.TagLong, classfile.TagDouble, classfile.TagDynamic}
	methodTags       = []uint8{classfile.TagMethodref, classfile.TagInterfaceMethodref}
)

type options struct {
	lines    classfile.LineNumberTable
	handlers []classfile.ExceptionHandler
	loader   classfile.ClassLoader
}

// Option configures Decode.
type Option func(*options)

// WithLineNumbers attaches source lines from table to each instruction.
func WithLineNumbers(table classfile.LineNumberTable) Option {
	return func(o *options) { o.lines = table }
}

// WithExceptionHandlers resolves the given exception table into Body.Handlers.
func WithExceptionHandlers(handlers []classfile.ExceptionHandler) Option {
	return func(o *options) { o.handlers = handlers }
}

// WithClassLoader resolves every class, field and method operand while
// decoding. A reference that cannot be resolved fails the decode.
func WithClassLoader(loader classfile.ClassLoader) Option {
	return func(o *options) { o.loader = loader }
}

// DecodeMethod decodes the Code attribute of m, a method of cf, with the
// attribute's line numbers and exception table.
func DecodeMethod(cf *classfile.ClassFile, m *classfile.MethodInfo, opts ...Option) (*Body, error) {
	if m.Code == nil {
		return nil, fmt.Errorf("method %s%s has no code", m.Name, m.Descriptor)
	}
	opts = append([]Option{
		WithLineNumbers(m.Code.LineNumbers),
		WithExceptionHandlers(m.Code.ExceptionHandlers),
	}, opts...)
	return Decode(m, m.Code.Code, cf.ConstantPool, opts...)
}

// Decode decodes code, the bytecode of method, against cp. On success every
// branch and switch operand is resolved to an instruction of the returned
// Body. On failure no Body is returned.
func Decode(method *classfile.MethodInfo, code []byte, cp classfile.ConstantPool, opts ...Option) (*Body, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log.Debugf("decoding %s%s: %d bytes", method.Name, method.Descriptor, len(code))

	d := &decoder{method: method, cp: cp, r: codeReader{code: code}}
	instrs, err := d.parse()
	if err != nil {
		return nil, err
	}
	body := newBody(method, instrs, len(code))
	if err := d.resolve(body, &o); err != nil {
		return nil, err
	}

	log.Debugf("decoded %s%s: %d instructions", method.Name, method.Descriptor, len(instrs))
	return body, nil
}

type decoder struct {
	method *classfile.MethodInfo
	cp     classfile.ConstantPool
	r      codeReader
}

func (d *decoder) parse() ([]Instruction, error) {
	var instrs []Instruction
	for !d.r.done() {
		start := d.r.pc
		op := Opcode(d.r.ReadU8())
		ins := Instruction{Index: len(instrs), Offset: start, Opcode: op}
		err := d.operands(&ins)
		if err == nil {
			err = d.r.err
		}
		if err != nil {
			return nil, &DecodeError{Offset: start, Opcode: op, Err: err}
		}
		ins.Length = d.r.pc - start
		instrs = append(instrs, ins)
	}
	return instrs, nil
}

func (d *decoder) local(index int) LocalVariableReference {
	return LocalRef(d.method, index)
}

func (d *decoder) constant(index uint16, tags ...uint8) (Operand, error) {
	if d.r.err != nil {
		return nil, d.r.err
	}
	e, err := d.cp.EntryOf(index, tags...)
	if err != nil {
		return nil, err
	}
	return Constant{Index: index, Entry: e}, nil
}

// operands reads the operands of ins.Opcode and stores them in ins.
func (d *decoder) operands(ins *Instruction) error {
	r := &d.r
	op := ins.Opcode
	var err error

	switch {
	case op >= OpIconstM1 && op <= OpIconst5:
		ins.Operand = Int(int32(op) - int32(OpIconst0))
	case op == OpLconst0 || op == OpLconst1:
		ins.Operand = Long(op - OpLconst0)
	case op >= OpFconst0 && op <= OpFconst2:
		ins.Operand = Float(op - OpFconst0)
	case op == OpDconst0 || op == OpDconst1:
		ins.Operand = Double(op - OpDconst0)

	case op == OpBipush:
		ins.Operand = Int(r.ReadI8())
	case op == OpSipush:
		ins.Operand = Int(r.ReadI16())
	case op == OpLdc:
		ins.Operand, err = d.constant(uint16(r.ReadU8()), loadableTags...)
	case op == OpLdcW:
		ins.Operand, err = d.constant(r.ReadU16(), loadableTags...)
	case op == OpLdc2W:
		ins.Operand, err = d.constant(r.ReadU16(), wideLoadableTags...)

	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		ins.Operand = d.local(int(r.ReadU8()))
	case op >= OpIload0 && op <= OpAload3:
		ins.Operand = d.local(int(op-OpIload0) % 4)
	case op >= OpIstore0 && op <= OpAstore3:
		ins.Operand = d.local(int(op-OpIstore0) % 4)
	case op == OpIinc:
		ins.Operand = d.local(int(r.ReadU8()))
		ins.Operand2 = Int(r.ReadI8())

	case op == OpGotoW || op == OpJsrW:
		ins.Operand = BranchOffset(r.ReadI32())
	case op.IsBranch():
		ins.Operand = BranchOffset(r.ReadI16())
	case op == OpTableswitch:
		ins.Operand, err = d.tableSwitch()
	case op == OpLookupswitch:
		ins.Operand, err = d.lookupSwitch()

	case op >= OpGetstatic && op <= OpPutfield:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagFieldref)
	case op == OpInvokevirtual:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagMethodref)
	case op == OpInvokespecial || op == OpInvokestatic:
		ins.Operand, err = d.constant(r.ReadU16(), methodTags...)
	case op == OpInvokeinterface:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagInterfaceMethodref)
		ins.Operand2 = Int(r.ReadU8())
		r.ReadU8()
	case op == OpInvokedynamic:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagInvokeDynamic)
		r.ReadU16()

	case op == OpNew || op == OpAnewarray || op == OpCheckcast || op == OpInstanceof:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagClass)
	case op == OpNewarray:
		t := ArrayType(r.ReadU8())
		if _, ok := t.Element(); !ok && r.err == nil {
			return fmt.Errorf("invalid newarray element type %d", uint8(t))
		}
		ins.Operand = t
	case op == OpMultianewarray:
		ins.Operand, err = d.constant(r.ReadU16(), classfile.TagClass)
		ins.Operand2 = Int(r.ReadU8())

	case op == OpWide:
		return d.wide(ins)

	case !op.Valid():
		return ErrUnknownOpcode
	}
	return err
}

// wide decodes the instruction wrapped by a wide prefix into ins.
func (d *decoder) wide(ins *Instruction) error {
	r := &d.r
	op := Opcode(r.ReadU8())
	if r.err != nil {
		return r.err
	}
	switch {
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		ins.Operand = d.local(int(r.ReadU16()))
	case op == OpIinc:
		ins.Operand = d.local(int(r.ReadU16()))
		ins.Operand2 = Int(r.ReadI16())
	default:
		return fmt.Errorf("%w: wide %s", ErrUnknownOpcode, op)
	}
	ins.Opcode = op
	ins.Wide = true
	return nil
}

func (d *decoder) tableSwitch() (Operand, error) {
	r := &d.r
	r.Align()
	s := &TableSwitchData{Default: BranchOffset(r.ReadI32())}
	s.Low = r.ReadI32()
	s.High = r.ReadI32()
	if r.err != nil {
		return nil, r.err
	}
	if s.High < s.Low {
		return nil, fmt.Errorf("tableswitch low %d exceeds high %d", s.Low, s.High)
	}
	n := int64(s.High) - int64(s.Low) + 1
	if n*4 > int64(r.remaining()) {
		return nil, fmt.Errorf("%w: tableswitch of %d entries at offset %d", ErrBufferUnderrun, n, r.pc)
	}
	s.Offsets = make([]BranchOffset, n)
	for i := range s.Offsets {
		s.Offsets[i] = BranchOffset(r.ReadI32())
	}
	return s, nil
}

func (d *decoder) lookupSwitch() (Operand, error) {
	r := &d.r
	r.Align()
	s := &LookupSwitchData{Default: BranchOffset(r.ReadI32())}
	n := r.ReadI32()
	if r.err != nil {
		return nil, r.err
	}
	if n < 0 {
		return nil, fmt.Errorf("lookupswitch has negative pair count %d", n)
	}
	if int64(n)*8 > int64(r.remaining()) {
		return nil, fmt.Errorf("%w: lookupswitch of %d pairs at offset %d", ErrBufferUnderrun, n, r.pc)
	}
	s.Pairs = make([]LookupPair, n)
	for i := range s.Pairs {
		s.Pairs[i].Match = r.ReadI32()
		s.Pairs[i].Offset = BranchOffset(r.ReadI32())
	}
	return s, nil
}

// resolve completes every deferred operand, attaches lines and, when asked,
// resolves members and the exception table.
func (d *decoder) resolve(body *Body, o *options) error {
	for i := range body.Instructions {
		ins := &body.Instructions[i]
		if def, ok := ins.Operand.(Deferred); ok {
			resolved, err := def.Resolve(body, ins)
			if err != nil {
				return &DecodeError{Offset: ins.Offset, Opcode: ins.Opcode, Err: err}
			}
			ins.Operand = resolved
		}
		if line, ok := o.lines.LineAt(ins.Offset); ok {
			ins.Line = line
		}
		if o.loader != nil {
			if err := resolveMember(o.loader, ins.Operand); err != nil {
				return &DecodeError{Offset: ins.Offset, Opcode: ins.Opcode, Err: err}
			}
		}
	}

	if len(o.handlers) == 0 {
		return nil
	}
	body.Handlers = make([]ExceptionHandler, len(o.handlers))
	for i, h := range o.handlers {
		var err error
		if body.Handlers[i], err = d.handler(body, h); err != nil {
			return fmt.Errorf("exception handler %d: %w", i, err)
		}
	}
	return nil
}

func (d *decoder) handler(body *Body, h classfile.ExceptionHandler) (ExceptionHandler, error) {
	var out ExceptionHandler
	at := func(offset uint16) (*Instruction, error) {
		ins := body.At(int(offset))
		if ins == nil {
			return nil, fmt.Errorf("%w: offset %d", ErrUnresolvedBranchTarget, offset)
		}
		return ins, nil
	}

	var err error
	if out.Start, err = at(h.StartPC); err != nil {
		return out, fmt.Errorf("start: %w", err)
	}
	if int(h.EndPC) != body.CodeLength {
		if out.End, err = at(h.EndPC); err != nil {
			return out, fmt.Errorf("end: %w", err)
		}
	}
	if out.Handler, err = at(h.HandlerPC); err != nil {
		return out, fmt.Errorf("handler: %w", err)
	}
	if h.CatchType != 0 {
		if out.CatchType, err = d.cp.Class(h.CatchType); err != nil {
			return out, fmt.Errorf("catch type: %w", err)
		}
	}
	return out, nil
}

func resolveMember(loader classfile.ClassLoader, operand Operand) error {
	c, ok := operand.(Constant)
	if !ok {
		return nil
	}
	var err error
	switch e := c.Entry.(type) {
	case *classfile.ConstantClass:
		_, err = e.Resolve(loader)
	case *classfile.ConstantFieldref:
		_, err = e.Resolve(loader)
	case *classfile.ConstantMethodref:
		_, err = e.Resolve(loader)
	case *classfile.ConstantInterfaceMethodref:
		_, err = e.Resolve(loader)
	}
	if err != nil && !errors.Is(err, classfile.ErrUnresolvedMember) {
		return fmt.Errorf("%w: %v", classfile.ErrUnresolvedMember, err)
	}
	return err
}
