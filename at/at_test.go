package at

import (
	"testing"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/op"
	"github.com/stretchr/testify/require"
)

func body() (*bytecode.InsnList, []bytecode.Insn) {
	start := bytecode.NewLabel()
	load := bytecode.NewVar(op.Iload, 1)
	call := bytecode.NewMethod(op.Invokestatic, "util/Log", "trace", "(I)V")
	ret1 := bytecode.NewInsn(op.Ireturn)
	mid := bytecode.NewLabel()
	call2 := bytecode.NewMethod(op.Invokestatic, "util/Log", "trace", "(J)V")
	ret2 := bytecode.NewInsn(op.Ireturn)
	insns := []bytecode.Insn{start, load, call, ret1, mid, call2, ret2}
	return bytecode.NewInsnList(insns...), insns
}

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Spec
	}{
		{"HEAD", HeadSpec()},
		{"return", ReturnSpec()},
		{"RETURN#1", ReturnSpec().WithOrdinal(1)},
		{"TAIL", TailSpec()},
		{"INVOKE:util/Log.trace(I)V", InvokeSpec("util/Log.trace(I)V")},
		{"INVOKE:trace#0", InvokeSpec("trace").WithOrdinal(0)},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{"", "BOGUS", "HEAD:x", "INVOKE", "RETURN#x", "RETURN#-1"} {
		_, err := Parse(text)
		require.Error(t, err, text)
	}
}

func TestString(t *testing.T) {
	require.Equal(t, "HEAD", HeadSpec().String())
	require.Equal(t, "INVOKE:a.b()V#2", InvokeSpec("a.b()V").WithOrdinal(2).String())
}

func TestFindHeadSkipsLabels(t *testing.T) {
	list, insns := body()
	points, err := HeadSpec().Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[1]}, points)

	points, err = HeadSpec().Find(bytecode.NewInsnList())
	require.NoError(t, err)
	require.Empty(t, points)
}

func TestFindReturns(t *testing.T) {
	list, insns := body()

	points, err := ReturnSpec().Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[3], insns[6]}, points)

	points, err = ReturnSpec().WithOrdinal(0).Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[3]}, points)

	points, err = ReturnSpec().WithOrdinal(5).Find(list)
	require.NoError(t, err)
	require.Empty(t, points)

	points, err = TailSpec().Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[6]}, points)
}

func TestFindInvoke(t *testing.T) {
	list, insns := body()

	points, err := InvokeSpec("trace").Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[2], insns[5]}, points)

	points, err = InvokeSpec("util/Log.trace(J)V").Find(list)
	require.NoError(t, err)
	require.Equal(t, []bytecode.Insn{insns[5]}, points)

	points, err = InvokeSpec("other/Log.trace").Find(list)
	require.NoError(t, err)
	require.Empty(t, points)

	_, err = InvokeSpec("util/Log.(I)V").Find(list)
	require.Error(t, err)
}
