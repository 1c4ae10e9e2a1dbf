package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmcode/pkg/classfile"
)

func TestLocalVariableReference(t *testing.T) {
	inst, err := classfile.NewMethodInfo(classfile.AccPublic, "put", "(IJLjava/lang/String;)V")
	require.NoError(t, err)
	static, err := classfile.NewMethodInfo(classfile.AccStatic, "put", "(IJ)V")
	require.NoError(t, err)

	tests := []struct {
		method *classfile.MethodInfo
		slot   int
		this   bool
		param  bool
		str    string
	}{
		{inst, 0, true, true, "this"},
		{inst, 1, false, true, "arg1"},
		{inst, 2, false, true, "arg2"},
		{inst, 3, false, true, "arg3"},
		{inst, 4, false, true, "arg4"},
		{inst, 5, false, false, "local5"},
		{static, 0, false, true, "arg0"},
		{static, 2, false, true, "arg2"},
		{static, 3, false, false, "local3"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			ref := LocalRef(tt.method, tt.slot)
			require.Equal(t, tt.this, ref.IsThis())
			require.Equal(t, tt.param, ref.IsParameter())
			require.Equal(t, tt.str, ref.String())
		})
	}

	require.Equal(t, LocalRef(inst, 2), LocalRef(inst, 2))
	require.NotEqual(t, LocalRef(inst, 2), LocalRef(static, 2))
}

func TestBodyParameters(t *testing.T) {
	m, err := classfile.NewMethodInfo(classfile.AccPublic, "put", "(IJLjava/lang/String;[D)V")
	require.NoError(t, err)
	body, err := Decode(m, []byte{0xB1}, classfile.ConstantPool{nil})
	require.NoError(t, err)

	this, ok := body.This()
	require.True(t, ok)
	require.True(t, this.IsThis())

	params, err := body.Parameters()
	require.NoError(t, err)
	require.Len(t, params, 4)
	slots := make([]int, len(params))
	for i, p := range params {
		slots[i] = p.Local.Index
		require.True(t, p.Local.IsParameter())
	}
	require.Equal(t, []int{1, 2, 4, 5}, slots)
	require.Equal(t, classfile.Long, params[1].Type)
	require.Equal(t, "java/lang/String", params[2].Type.String())

	static, err := classfile.NewMethodInfo(classfile.AccStatic, "f", "(D)V")
	require.NoError(t, err)
	body, err = Decode(static, []byte{0xB1}, classfile.ConstantPool{nil})
	require.NoError(t, err)
	_, ok = body.This()
	require.False(t, ok)
	params, err = body.Parameters()
	require.NoError(t, err)
	require.Equal(t, 0, params[0].Local.Index)
}

func TestInstructionString(t *testing.T) {
	body := mustDecode(t, []byte{0x10, 0x05, 0xC4, 0x84, 0x01, 0x00, 0x00, 0x02, 0xA7, 0xFF, 0xFA, 0xAC})
	require.Equal(t, "0: bipush 5", body.At(0).String())
	require.Equal(t, "2: wide iinc local256 2", body.At(2).String())
	require.Equal(t, "8: goto 2", body.At(8).String())
	require.Equal(t, "11: ireturn", body.At(11).String())
}
