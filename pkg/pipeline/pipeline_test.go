package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daimatz/jvmcode/internal/classgen"
	"github.com/daimatz/jvmcode/pkg/bytecode"
	"github.com/daimatz/jvmcode/pkg/classfile"
	"github.com/daimatz/jvmcode/pkg/loader"
)

func sampleClass(t *testing.T) *classfile.ClassFile {
	t.Helper()
	b := classgen.New("Sample", "java/lang/Object")
	b.Method(classfile.AccPublic|classfile.AccStatic, "one", "()I", &classgen.Code{Bytes: []byte{0x04, 0xAC}})
	b.Method(classfile.AccPublic|classfile.AccStatic, "broken", "()V", &classgen.Code{Bytes: []byte{0xA7, 0x00, 0x01}})
	b.Method(classfile.AccPublic|classfile.AccAbstract, "pending", "()V", nil)
	b.Method(classfile.AccPublic|classfile.AccStatic, "two", "()I", &classgen.Code{Bytes: []byte{0x05, 0xAC}})
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)
	return cf
}

func TestDecodeClassCollectsFailures(t *testing.T) {
	cf := sampleClass(t)
	result, err := DecodeClass(context.Background(), cf, Options{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, "Sample", result.Name)
	require.Len(t, result.Methods, 3)

	names := make([]string, len(result.Methods))
	for i, m := range result.Methods {
		names[i] = m.Method.Name
	}
	require.Equal(t, []string{"one", "broken", "two"}, names)

	failed := result.Failed()
	require.Len(t, failed, 1)
	require.Equal(t, "broken", failed[0].Method.Name)
	require.Nil(t, failed[0].Body)
	require.ErrorIs(t, failed[0].Err, bytecode.ErrUnresolvedBranchTarget)

	bodies := result.Bodies()
	require.Len(t, bodies, 2)
	require.Equal(t, bytecode.Int(1), bodies[0].Instructions[0].Operand)
	require.Equal(t, bytecode.Int(2), bodies[1].Instructions[0].Operand)
}

func TestDecodeClassFailFast(t *testing.T) {
	_, err := DecodeClass(context.Background(), sampleClass(t), Options{FailFast: true})
	require.ErrorIs(t, err, bytecode.ErrUnresolvedBranchTarget)
	require.ErrorContains(t, err, "Sample.broken()V")
}

func TestDecodeClassCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DecodeClass(ctx, sampleClass(t), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeClassResolvesMembers(t *testing.T) {
	object, err := classfile.ParseBytes(classgen.New("java/lang/Object", "").Bytes())
	require.NoError(t, err)

	b := classgen.New("Caller", "java/lang/Object")
	ref := b.Methodref("Caller", "absent", "()V")
	b.Method(classfile.AccStatic, "call", "()V", &classgen.Code{
		Bytes: []byte{0xB8, byte(ref >> 8), byte(ref), 0xB1},
	})
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)

	l, err := loader.NewMemoryClassLoader(object, cf)
	require.NoError(t, err)

	result, err := DecodeClass(context.Background(), cf, Options{Loader: l})
	require.NoError(t, err)
	require.Len(t, result.Failed(), 1)
	require.ErrorIs(t, result.Failed()[0].Err, classfile.ErrUnresolvedMember)

	result, err = DecodeClass(context.Background(), cf, Options{})
	require.NoError(t, err)
	require.Empty(t, result.Failed())
}

func TestDecodeClassSkipsAbstractAndNative(t *testing.T) {
	b := classgen.New("Mixed", "java/lang/Object")
	b.Method(classfile.AccPublic|classfile.AccNative, "hash", "()I", nil)
	b.Method(classfile.AccPublic|classfile.AccAbstract, "run", "()V", nil)
	b.Method(classfile.AccPublic, "hollow", "()V", nil)
	b.Method(classfile.AccStatic, "zero", "()I", &classgen.Code{Bytes: []byte{0x03, 0xAC}})
	cf, err := classfile.ParseBytes(b.Bytes())
	require.NoError(t, err)

	result, err := DecodeClass(context.Background(), cf, Options{})
	require.NoError(t, err)
	require.Len(t, result.Methods, 2)
	require.Equal(t, "hollow", result.Methods[0].Method.Name)
	require.ErrorContains(t, result.Methods[0].Err, "has no code")
	require.Equal(t, "zero", result.Methods[1].Method.Name)
	require.NotNil(t, result.Methods[1].Body)

	_, err = DecodeClass(context.Background(), cf, Options{FailFast: true})
	require.ErrorContains(t, err, "Mixed.hollow()V")
}
