package bytecode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmcode/internal/classgen"
	"github.com/daimatz/jvmcode/pkg/classfile"
)

func staticMethod(t *testing.T, desc string) *classfile.MethodInfo {
	t.Helper()
	m, err := classfile.NewMethodInfo(classfile.AccPublic|classfile.AccStatic, "test", desc)
	require.NoError(t, err)
	return m
}

// decode decodes code as the body of a static ()I method with an empty pool.
func decode(t *testing.T, code []byte, opts ...Option) (*Body, error) {
	t.Helper()
	return Decode(staticMethod(t, "()I"), code, classfile.ConstantPool{nil}, opts...)
}

func mustDecode(t *testing.T, code []byte, opts ...Option) *Body {
	t.Helper()
	body, err := decode(t, code, opts...)
	require.NoError(t, err)
	return body
}

// decodeClass parses the class built by b and decodes method name.
func decodeClass(t *testing.T, b *classgen.Builder, name, desc string, opts ...Option) (*Body, error) {
	t.Helper()
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)
	m := cf.FindMethod(name, desc)
	require.NotNil(t, m)
	return DecodeMethod(cf, m, opts...)
}

func be32(v int32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func TestDecodeScenarios(t *testing.T) {
	t.Run("iconst_0 ireturn", func(t *testing.T) {
		body := mustDecode(t, []byte{0x03, 0xAC})
		require.Len(t, body.Instructions, 2)
		require.Equal(t, 0, body.Instructions[0].Offset)
		require.Equal(t, OpIconst0, body.Instructions[0].Opcode)
		require.Equal(t, Int(0), body.Instructions[0].Operand)
		require.Equal(t, 1, body.Instructions[1].Offset)
		require.Equal(t, OpIreturn, body.Instructions[1].Opcode)
		require.Nil(t, body.Instructions[1].Operand)
	})

	t.Run("bipush ireturn", func(t *testing.T) {
		body := mustDecode(t, []byte{0x10, 0x05, 0xAC})
		require.Len(t, body.Instructions, 2)
		require.Equal(t, 0, body.Instructions[0].Offset)
		require.Equal(t, Int(5), body.Instructions[0].Operand)
		require.Equal(t, 2, body.Instructions[1].Offset)
	})

	t.Run("empty code", func(t *testing.T) {
		body := mustDecode(t, nil)
		require.Empty(t, body.Instructions)
		require.Nil(t, body.At(0))
	})
}

func TestDecodeLiterals(t *testing.T) {
	tests := []struct {
		code []byte
		want Operand
	}{
		{[]byte{0x02}, Int(-1)},
		{[]byte{0x08}, Int(5)},
		{[]byte{0x0A}, Long(1)},
		{[]byte{0x0D}, Float(2)},
		{[]byte{0x0F}, Double(1)},
		{[]byte{0x10, 0xFB}, Int(-5)},
		{[]byte{0x11, 0x80, 0x00}, Int(-32768)},
		{[]byte{0xBC, 0x0A}, TInt},
		{[]byte{0x01}, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("% X", tt.code), func(t *testing.T) {
			body := mustDecode(t, tt.code)
			require.Len(t, body.Instructions, 1)
			require.Equal(t, tt.want, body.Instructions[0].Operand)
			require.Equal(t, len(tt.code), body.Instructions[0].Length)
		})
	}
}

func TestDecodeOffsetsAndResolution(t *testing.T) {
	code := []byte{
		0x03,                         // 0: iconst_0
		0x3C,                         // 1: istore_1
		0x84, 0x01, 0x01,             // 2: iinc 1 1
		0x1B,                         // 5: iload_1
		0x10, 0x0A,                   // 6: bipush 10
		0xA1, 0xFF, 0xFA,             // 8: if_icmplt -6 -> 2
		0xC8, 0x00, 0x00, 0x00, 0x05, // 11: goto_w +5 -> 16
		0x00,                         // 16: nop
		0xB1,                         // 17: return
	}
	body := mustDecode(t, code)

	pc := 0
	for i := range body.Instructions {
		ins := &body.Instructions[i]
		require.Equal(t, i, ins.Index)
		require.Equal(t, pc, ins.Offset, "instruction %d", i)
		require.Same(t, ins, body.At(ins.Offset))
		pc += ins.Length
		for _, op := range []Operand{ins.Operand, ins.Operand2} {
			_, deferred := op.(Deferred)
			require.False(t, deferred, "instruction at %d kept %T", ins.Offset, op)
		}
	}
	require.Equal(t, len(code), pc)

	back := body.At(8).Operand.(Target)
	require.Same(t, body.At(2), back.Instruction)
	fwd := body.At(11).Operand.(Target)
	require.Same(t, body.At(16), fwd.Instruction)
	require.Equal(t, []*Instruction{body.At(16)}, body.Targets(body.At(11)))

	require.Same(t, body.At(1), body.Next(body.At(0)))
	require.Nil(t, body.Next(body.At(17)))
	require.Nil(t, body.At(3))
	require.Nil(t, body.At(-1))
	require.Nil(t, body.At(len(code)))
}

func TestDecodeLocals(t *testing.T) {
	t.Run("compressed equals explicit", func(t *testing.T) {
		m := staticMethod(t, "()V")
		cp := classfile.ConstantPool{nil}
		explicit, err := Decode(m, []byte{0x15, 0x02}, cp)
		require.NoError(t, err)
		compressed, err := Decode(m, []byte{0x1C}, cp)
		require.NoError(t, err)
		require.Equal(t, explicit.Instructions[0].Operand, compressed.Instructions[0].Operand)
		require.Equal(t, LocalRef(m, 2), compressed.Instructions[0].Operand)
	})

	tests := []struct {
		code []byte
		slot int
	}{
		{[]byte{0x1A}, 0},
		{[]byte{0x21}, 3},
		{[]byte{0x2A}, 0},
		{[]byte{0x2D}, 3},
		{[]byte{0x3B}, 0},
		{[]byte{0x40}, 1},
		{[]byte{0x4E}, 3},
		{[]byte{0x3A, 0x07}, 7},
		{[]byte{0xA9, 0x04}, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("% X", tt.code), func(t *testing.T) {
			body := mustDecode(t, tt.code)
			ref, ok := body.Instructions[0].Operand.(LocalVariableReference)
			require.True(t, ok)
			require.Equal(t, tt.slot, ref.Index)
		})
	}

	t.Run("iinc", func(t *testing.T) {
		body := mustDecode(t, []byte{0x84, 0x03, 0xFF})
		ins := body.Instructions[0]
		require.Equal(t, 3, ins.Operand.(LocalVariableReference).Index)
		require.Equal(t, Int(-1), ins.Operand2)
	})
}

func TestDecodeWide(t *testing.T) {
	t.Run("iload", func(t *testing.T) {
		body := mustDecode(t, []byte{0xC4, 0x15, 0x01, 0x00, 0xAC})
		require.Len(t, body.Instructions, 2)
		ins := body.Instructions[0]
		require.Equal(t, OpIload, ins.Opcode)
		require.True(t, ins.Wide)
		require.Equal(t, 4, ins.Length)
		require.Equal(t, 256, ins.Operand.(LocalVariableReference).Index)
		require.Equal(t, 4, body.Instructions[1].Offset)
	})

	t.Run("iinc", func(t *testing.T) {
		body := mustDecode(t, []byte{0xC4, 0x84, 0x01, 0x00, 0xFF, 0xFE})
		ins := body.Instructions[0]
		require.Equal(t, OpIinc, ins.Opcode)
		require.Equal(t, 6, ins.Length)
		require.Equal(t, 256, ins.Operand.(LocalVariableReference).Index)
		require.Equal(t, Int(-2), ins.Operand2)
	})

	t.Run("not a local instruction", func(t *testing.T) {
		_, err := decode(t, []byte{0xC4, 0x00})
		require.ErrorIs(t, err, ErrUnknownOpcode)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := decode(t, []byte{0xC4, 0x15, 0x01})
		require.ErrorIs(t, err, ErrBufferUnderrun)
	})
}

func TestDecodeTableSwitch(t *testing.T) {
	// Seven nops put tableswitch at offset 7, so no padding is needed and
	// the default offset starts at byte 8.
	code := []byte{0, 0, 0, 0, 0, 0, 0, 0xAA}
	code = append(code, be32(26)...) // default -> 33
	code = append(code, be32(0)...)  // low
	code = append(code, be32(2)...)  // high
	code = append(code, be32(25)...) // 0 -> 32
	code = append(code, be32(26)...) // 1 -> 33
	code = append(code, be32(25)...) // 2 -> 32
	code = append(code, 0x03, 0xAC)

	body := mustDecode(t, code)
	sw := body.At(7)
	require.NotNil(t, sw)
	require.Equal(t, 25, sw.Length)

	ts, ok := sw.Operand.(*TableSwitch)
	require.True(t, ok)
	require.Len(t, ts.Targets, int(ts.High-ts.Low+1))
	require.Same(t, body.At(33), ts.Default)
	require.Same(t, body.At(32), ts.Targets[0])
	require.Same(t, body.At(33), ts.Targets[1])
	require.Same(t, body.At(32), ts.TargetFor(2))
	require.Same(t, body.At(33), ts.TargetFor(9))
	require.Len(t, body.Targets(sw), 4)

	t.Run("padding", func(t *testing.T) {
		code := []byte{0xAA, 0, 0, 0}
		code = append(code, be32(20)...)
		code = append(code, be32(5)...)
		code = append(code, be32(5)...)
		code = append(code, be32(20)...)
		code = append(code, 0xB1)
		body := mustDecode(t, code)
		require.Equal(t, 20, body.Instructions[0].Length)
		require.Same(t, body.At(20), body.Instructions[0].Operand.(*TableSwitch).Default)
	})

	t.Run("low above high", func(t *testing.T) {
		code := []byte{0xAA, 0, 0, 0}
		code = append(code, be32(0)...)
		code = append(code, be32(3)...)
		code = append(code, be32(1)...)
		_, err := decode(t, code)
		require.Error(t, err)
	})

	t.Run("targets past end", func(t *testing.T) {
		code := []byte{0xAA, 0, 0, 0}
		code = append(code, be32(0)...)
		code = append(code, be32(0)...)
		code = append(code, be32(1000)...)
		_, err := decode(t, code)
		require.ErrorIs(t, err, ErrBufferUnderrun)
	})
}

func TestDecodeLookupSwitch(t *testing.T) {
	code := []byte{0xAB, 0, 0, 0}
	code = append(code, be32(28)...) // default -> 28
	code = append(code, be32(2)...)
	code = append(code, be32(10)...)
	code = append(code, be32(29)...) // 10 -> 29
	code = append(code, be32(-5)...)
	code = append(code, be32(28)...) // -5 -> 28
	code = append(code, 0x03, 0xAC)

	body := mustDecode(t, code)
	ls, ok := body.Instructions[0].Operand.(*LookupSwitch)
	require.True(t, ok)
	require.Len(t, ls.Cases, 2)
	require.EqualValues(t, 10, ls.Cases[0].Match)
	require.EqualValues(t, -5, ls.Cases[1].Match)
	require.Same(t, body.At(29), ls.Cases[0].Target)
	require.Same(t, body.At(28), ls.TargetFor(-5))
	require.Same(t, body.At(28), ls.TargetFor(4))

	t.Run("negative count", func(t *testing.T) {
		code := []byte{0xAB, 0, 0, 0}
		code = append(code, be32(0)...)
		code = append(code, be32(-1)...)
		_, err := decode(t, code)
		require.Error(t, err)
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		want   error
		offset int
	}{
		{"operand past end", []byte{0x00, 0x10}, ErrBufferUnderrun, 1},
		{"short branch", []byte{0xA7, 0x00}, ErrBufferUnderrun, 0},
		{"reserved breakpoint", []byte{0xCA}, ErrUnknownOpcode, 0},
		{"impdep", []byte{0x00, 0xFE}, ErrUnknownOpcode, 1},
		{"branch into operand", []byte{0x10, 0x01, 0xA7, 0xFF, 0xFF}, ErrUnresolvedBranchTarget, 2},
		{"branch past end", []byte{0xA7, 0x00, 0x10}, ErrUnresolvedBranchTarget, 0},
		{"ldc index zero", []byte{0x12, 0x00}, classfile.ErrInvalidConstantPoolIndex, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := decode(t, tt.code)
			require.Nil(t, body)
			require.ErrorIs(t, err, tt.want)
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			require.Equal(t, tt.offset, de.Offset)
		})
	}

	t.Run("bad newarray type", func(t *testing.T) {
		_, err := decode(t, []byte{0xBC, 0x02})
		require.Error(t, err)
	})
}

func TestDecodeConstantOperands(t *testing.T) {
	b := classgen.New("Demo", "java/lang/Object")
	intIdx := b.Integer(42)
	longIdx := b.Long(7)
	strIdx := b.String("hi")
	fieldIdx := b.Fieldref("Demo", "x", "I")
	methodIdx := b.Methodref("java/io/PrintStream", "println", "(I)V")
	imethodIdx := b.InterfaceMethodref("java/util/List", "size", "()I")
	classIdx := b.Class("java/lang/String")

	code := []byte{
		0x12, byte(intIdx), // 0: ldc int
		0x13, byte(strIdx >> 8), byte(strIdx), // 2: ldc_w string
		0x14, byte(longIdx >> 8), byte(longIdx), // 5: ldc2_w long
		0xB2, byte(fieldIdx >> 8), byte(fieldIdx), // 8: getstatic
		0xB6, byte(methodIdx >> 8), byte(methodIdx), // 11: invokevirtual
		0xB9, byte(imethodIdx >> 8), byte(imethodIdx), 1, 0, // 14: invokeinterface
		0xBB, byte(classIdx >> 8), byte(classIdx), // 19: new
		0xC5, byte(classIdx >> 8), byte(classIdx), 2, // 22: multianewarray
		0xB1, // 26: return
	}
	b.Method(classfile.AccPublic|classfile.AccStatic, "run", "()V", &classgen.Code{MaxStack: 4, Bytes: code})
	body, err := decodeClass(t, b, "run", "()V")
	require.NoError(t, err)

	c := body.At(0).Operand.(Constant)
	require.Equal(t, intIdx, c.Index)
	require.EqualValues(t, 42, c.Entry.(*classfile.ConstantInteger).Value)
	require.Equal(t, "hi", body.At(2).Operand.(Constant).Entry.(*classfile.ConstantString).Value())
	require.EqualValues(t, 7, body.At(5).Operand.(Constant).Entry.(*classfile.ConstantLong).Value)

	ref := body.At(11).Operand.(Constant).Entry.(classfile.MemberRef)
	require.Equal(t, "java/io/PrintStream", ref.ClassName())
	require.Equal(t, "println", ref.Name())

	iface := body.At(14)
	require.Equal(t, 5, iface.Length)
	require.Equal(t, Int(1), iface.Operand2)
	require.Equal(t, Int(2), body.At(22).Operand2)
	require.Equal(t, "java/lang/String", body.At(19).Operand.(Constant).Entry.(*classfile.ConstantClass).Name())

	t.Run("wrong kinds", func(t *testing.T) {
		tests := []struct {
			name string
			code []byte
		}{
			{"getfield on methodref", []byte{0xB4, byte(methodIdx >> 8), byte(methodIdx)}},
			{"invokevirtual on interface methodref", []byte{0xB6, byte(imethodIdx >> 8), byte(imethodIdx)}},
			{"ldc on long", []byte{0x12, byte(longIdx)}},
			{"ldc2_w on int", []byte{0x14, byte(intIdx >> 8), byte(intIdx)}},
			{"new on string", []byte{0xBB, byte(strIdx >> 8), byte(strIdx)}},
		}
		for i, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				b.Method(classfile.AccStatic, fmt.Sprintf("bad%d", i), "()V", &classgen.Code{Bytes: tt.code})
				_, err := decodeClass(t, b, fmt.Sprintf("bad%d", i), "()V")
				require.ErrorIs(t, err, classfile.ErrWrongConstantPoolEntryKind)
			})
		}
	})

	t.Run("invokestatic accepts interface methodref", func(t *testing.T) {
		b.Method(classfile.AccStatic, "static", "()V", &classgen.Code{
			Bytes: []byte{0xB8, byte(imethodIdx >> 8), byte(imethodIdx), 0xB1},
		})
		_, err := decodeClass(t, b, "static", "()V")
		require.NoError(t, err)
	})
}

func TestDecodeLineNumbers(t *testing.T) {
	lines := classfile.LineNumberTable{{StartPC: 0, Line: 10}, {StartPC: 2, Line: 11}}
	body := mustDecode(t, []byte{0x10, 0x05, 0x3B, 0x1A, 0xAC}, WithLineNumbers(lines))
	require.Equal(t, 10, body.At(0).Line)
	require.Equal(t, 11, body.At(2).Line)
	require.Equal(t, 11, body.At(4).Line)

	body = mustDecode(t, []byte{0x03, 0xAC}, WithLineNumbers(classfile.LineNumberTable{{StartPC: 1, Line: 3}}))
	require.Equal(t, 0, body.At(0).Line)
	require.Equal(t, 3, body.At(1).Line)
}

func TestDecodeMethodAttributes(t *testing.T) {
	b := classgen.New("Guarded", "java/lang/Object")
	exc := b.Class("java/lang/Exception")
	b.Method(classfile.AccStatic, "run", "()V", &classgen.Code{
		MaxStack: 1,
		// 0: nop, 1: nop, 2: return, 3: astore_0, 4: return
		Bytes: []byte{0x00, 0x00, 0xB1, 0x4B, 0xB1},
		Handlers: []classgen.Handler{
			{Start: 0, End: 2, Handler: 3, CatchType: exc},
			{Start: 0, End: 5, Handler: 3},
		},
		Lines: []classgen.Line{{StartPC: 0, Line: 4}, {StartPC: 3, Line: 6}},
	})

	body, err := decodeClass(t, b, "run", "()V")
	require.NoError(t, err)
	require.Len(t, body.Handlers, 2)

	h := body.Handlers[0]
	require.Same(t, body.At(0), h.Start)
	require.Same(t, body.At(2), h.End)
	require.Same(t, body.At(3), h.Handler)
	require.Equal(t, "java/lang/Exception", h.CatchType.Name())
	require.True(t, h.Covers(body.At(1)))
	require.False(t, h.Covers(body.At(2)))

	all := body.Handlers[1]
	require.Nil(t, all.End)
	require.Nil(t, all.CatchType)
	require.True(t, all.Covers(body.At(4)))

	require.Equal(t, 6, body.At(4).Line)

	t.Run("handler inside an instruction", func(t *testing.T) {
		b.Method(classfile.AccStatic, "broken", "()V", &classgen.Code{
			Bytes:    []byte{0x10, 0x01, 0x57, 0xB1},
			Handlers: []classgen.Handler{{Start: 1, End: 3, Handler: 3}},
		})
		_, err := decodeClass(t, b, "broken", "()V")
		require.ErrorIs(t, err, ErrUnresolvedBranchTarget)
	})

	t.Run("abstract method", func(t *testing.T) {
		b.Method(classfile.AccAbstract, "none", "()V", nil)
		_, err := decodeClass(t, b, "none", "()V")
		require.Error(t, err)
	})
}

// classMap is a ClassLoader over classes built in the test.
type classMap map[string]*classfile.ClassFile

func (m classMap) LoadClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := m[name]; ok {
		return cf, nil
	}
	return nil, fmt.Errorf("%w: %s", classfile.ErrClassNotFound, name)
}

func TestDecodeWithClassLoader(t *testing.T) {
	object := classgen.New("java/lang/Object", "")
	object.Method(classfile.AccPublic, "hashCode", "()I", nil)
	base := classgen.New("Base", "java/lang/Object").Field(classfile.AccPublic|classfile.AccStatic, "count", "I")

	loader := classMap{}
	for _, b := range []*classgen.Builder{object, base} {
		cf, err := classfile.ParseBytes(b.Bytes())
		require.NoError(t, err)
		name, err := cf.ClassName()
		require.NoError(t, err)
		loader[name] = cf
	}

	b := classgen.New("Main", "Base")
	count := b.Fieldref("Main", "count", "I")
	hash := b.Methodref("Main", "hashCode", "()I")
	missing := b.Methodref("Main", "missing", "()V")
	b.Method(classfile.AccPublic, "ok", "()I", &classgen.Code{
		MaxStack: 2, MaxLocals: 1,
		Bytes: []byte{
			0xB2, byte(count >> 8), byte(count), 0x57, // getstatic Main.count, pop
			0x2A, 0xB6, byte(hash >> 8), byte(hash), 0xAC, // aload_0, invokevirtual hashCode, ireturn
		},
	})
	b.Method(classfile.AccPublic, "bad", "()V", &classgen.Code{
		MaxLocals: 1,
		Bytes:     []byte{0x2A, 0xB6, byte(missing >> 8), byte(missing), 0xB1},
	})
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)
	loader["Main"] = cf

	body, err := DecodeMethod(cf, cf.FindMethod("ok", "()I"), WithClassLoader(loader))
	require.NoError(t, err)
	field, err := body.At(0).Operand.(Constant).Entry.(*classfile.ConstantFieldref).Resolve(loader)
	require.NoError(t, err)
	require.Equal(t, "count", field.Name)

	_, err = DecodeMethod(cf, cf.FindMethod("bad", "()V"), WithClassLoader(loader))
	require.ErrorIs(t, err, classfile.ErrUnresolvedMember)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	require.Equal(t, 1, de.Offset)

	_, err = DecodeMethod(cf, cf.FindMethod("bad", "()V"))
	require.NoError(t, err, "members are not resolved without a loader")
}

func TestDecodeSingleLetterClass(t *testing.T) {
	single := classgen.New("C", "java/lang/Object")
	singleCF, err := classfile.ParseBytes(single.Bytes())
	require.NoError(t, err)
	loader := classMap{"C": singleCF}

	b := classgen.New("Main", "java/lang/Object")
	c := b.Class("C")
	b.Method(classfile.AccStatic, "make", "()V", &classgen.Code{
		MaxStack: 2,
		Bytes:    []byte{0xBB, byte(c >> 8), byte(c), 0x57, 0xB1}, // new C, pop, return
	})
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)

	body, err := DecodeMethod(cf, cf.FindMethod("make", "()V"), WithClassLoader(loader))
	require.NoError(t, err)
	entry, ok := body.At(0).Operand.(Constant).Entry.(*classfile.ConstantClass)
	require.True(t, ok)
	got, err := entry.Resolve(loader)
	require.NoError(t, err)
	require.Same(t, singleCF, got)

	t.Run("missing from loader", func(t *testing.T) {
		_, err := DecodeMethod(cf, cf.FindMethod("make", "()V"), WithClassLoader(classMap{}))
		require.NoError(t, err, "entries already resolved keep their first result")

		fresh, err := classfile.ParseBytes(b.Bytes())
		require.NoError(t, err)
		_, err = DecodeMethod(fresh, fresh.FindMethod("make", "()V"), WithClassLoader(classMap{}))
		require.ErrorIs(t, err, classfile.ErrUnresolvedMember)
		require.ErrorIs(t, err, classfile.ErrClassNotFound)
	})
}
