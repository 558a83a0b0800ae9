package locals

import (
	"bytes"
	"testing"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fixture is an instance method compute(int a, long b, int c) with locals
// sum:int in slot 5 and total:int in slot 6, both live at node.
func fixture(t *testing.T) (*bytecode.Target, bytecode.Insn, bytecode.Insn) {
	t.Helper()
	start := bytecode.NewLabel()
	before := bytecode.NewInsn(op.Nop)
	node := bytecode.NewVar(op.Iload, 5)
	end := bytecode.NewLabel()
	m := &bytecode.Method{
		Access:       bytecode.AccPublic,
		Name:         "compute",
		Desc:         "(IJI)I",
		Instructions: bytecode.NewInsnList(before, start, node, bytecode.NewInsn(op.Ireturn), end),
		MaxLocals:    7,
		LocalVariables: []*bytecode.LocalVariable{
			{Name: "this", Desc: "Lcalc/Calc;", Index: 0},
			{Name: "a", Desc: "I", Index: 1},
			{Name: "b", Desc: "J", Index: 2},
			{Name: "c", Desc: "I", Index: 4},
			{Name: "sum", Desc: "I", Index: 5, Start: start, End: end},
			{Name: "total", Desc: "I", Index: 6, Start: start, End: end},
			{Name: "label", Desc: "Ljava/lang/String;", Index: 7, Start: start, End: end},
		},
	}
	target, err := bytecode.NewTarget("calc/Calc", m)
	require.NoError(t, err)
	return target, node, before
}

func find(t *testing.T, d Discriminator, typ jtype.Type, node bytecode.Insn, target *bytecode.Target) (int, error) {
	return Default{Logger: zerolog.Nop()}.FindLocal(Context{Type: typ, Target: target, Node: node, Handler: "onCompute"}, d)
}

func TestArgsOnly(t *testing.T) {
	target, node, _ := fixture(t)
	arg := func(mut func(a *handler.Arg)) Discriminator {
		a := handler.NewArg()
		mut(a)
		return FromArg(a)
	}

	tests := []struct {
		name string
		d    Discriminator
		typ  jtype.Type
		want int
	}{
		{"implicit unique", arg(func(a *handler.Arg) {}), jtype.Long, 2},
		{"ordinal 0", arg(func(a *handler.Arg) { a.Ordinal = 0 }), jtype.Int, 1},
		{"ordinal 1", arg(func(a *handler.Arg) { a.Ordinal = 1 }), jtype.Int, 4},
		{"index", arg(func(a *handler.Arg) { a.Index = 4 }), jtype.Int, 4},
		{"name", arg(func(a *handler.Arg) { a.Names = []string{"x", "c"} }), jtype.Int, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := find(t, tt.d, tt.typ, node, target)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestArgsOnlyFailures(t *testing.T) {
	target, node, _ := fixture(t)

	// Two int arguments make the implicit form ambiguous.
	_, err := find(t, FromArg(handler.NewArg()), jtype.Int, node, target)
	require.ErrorIs(t, err, ErrLocalNotFound)
	require.True(t, errors.HasCode(err, errors.E4002))

	a := handler.NewArg()
	a.Ordinal = 2
	_, err = find(t, FromArg(a), jtype.Int, node, target)
	require.ErrorIs(t, err, ErrLocalNotFound)

	a = handler.NewArg()
	a.Index = 2
	_, err = find(t, FromArg(a), jtype.Int, node, target)
	require.ErrorIs(t, err, ErrLocalNotFound)

	// Locals are not visible to @Arg.
	a = handler.NewArg()
	a.Index = 5
	_, err = find(t, FromArg(a), jtype.Int, node, target)
	require.ErrorIs(t, err, ErrLocalNotFound)
}

func TestLocals(t *testing.T) {
	target, node, before := fixture(t)

	l := handler.NewLocal()
	l.Ordinal = 1
	got, err := find(t, FromLocal(l), jtype.Int, node, target)
	require.NoError(t, err)
	require.Equal(t, 6, got)

	got, err = find(t, FromLocal(handler.NewLocal()), jtype.StringType, node, target)
	require.NoError(t, err)
	require.Equal(t, 7, got)

	l = handler.NewLocal()
	l.Names = []string{"sum"}
	got, err = find(t, FromLocal(l), jtype.Int, node, target)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	// Out of scope before the start label.
	_, err = find(t, FromLocal(l), jtype.Int, before, target)
	require.ErrorIs(t, err, ErrLocalNotFound)
}

func TestNameSuggestions(t *testing.T) {
	target, node, _ := fixture(t)
	l := handler.NewLocal()
	l.Names = []string{"totl"}
	_, err := find(t, FromLocal(l), jtype.Int, node, target)
	require.Error(t, err)
	require.Contains(t, err.(*errors.InjectionError).FriendlyErrorMessage(), "Did you mean 'total'?")
}

func TestPrintLogsCandidates(t *testing.T) {
	target, node, _ := fixture(t)
	var buf bytes.Buffer
	a := handler.NewArg()
	a.Print = true
	a.Index = 1
	r := Default{Logger: zerolog.New(&buf)}
	got, err := r.FindLocal(Context{Type: jtype.Int, Target: target, Node: node}, FromArg(a))
	require.NoError(t, err)
	require.Equal(t, 1, got)
	out := buf.String()
	require.Contains(t, out, `"message":"local discriminator"`)
	require.Contains(t, out, `"slot":1,"name":"a","type":"int","selected":true`)
	require.Contains(t, out, `"slot":4,"name":"c","type":"int","selected":false`)
}

func TestCandidates(t *testing.T) {
	target, node, _ := fixture(t)
	args := Candidates(Context{Target: target, Node: node}, Discriminator{ArgsOnly: true})
	require.Equal(t, []Candidate{
		{Index: 1, Name: "a", Type: jtype.Int},
		{Index: 2, Name: "b", Type: jtype.Long},
		{Index: 4, Name: "c", Type: jtype.Int},
	}, args)

	locals := Candidates(Context{Target: target, Node: node}, Discriminator{})
	require.Len(t, locals, 3)
	require.Equal(t, "sum", locals[0].Name)
	require.True(t, Discriminator{Ordinal: -1, Index: -1}.IsImplicit())
	require.False(t, Discriminator{Ordinal: 0, Index: -1}.IsImplicit())
}
