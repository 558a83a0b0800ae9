package transform

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/deepnoodle-ai/hookasm/asm"
	"github.com/deepnoodle-ai/hookasm/at"
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/vm"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func method(t *testing.T, name, desc, body string) *bytecode.Method {
	t.Helper()
	prog, err := asm.Parse(body)
	require.NoError(t, err)
	return &bytecode.Method{
		Access:       bytecode.AccPublic,
		Name:         name,
		Desc:         desc,
		Instructions: prog.Instructions,
		MaxStack:     1,
	}
}

func cart(t *testing.T) *bytecode.Class {
	return &bytecode.Class{Name: "shop/Cart", Methods: []*bytecode.Method{
		method(t, "total", "()I", "BIPUSH 10\nIRETURN"),
		method(t, "add", "(I)V", "RETURN"),
		method(t, "clear", "()V", "RETURN"),
	}}
}

func injection(t *testing.T, name, desc string, methods []string, specs ...at.Spec) Injection {
	t.Helper()
	h, err := handler.New("shop/Cart", name, desc, bytecode.AccPublic)
	require.NoError(t, err)
	in := handler.DefaultInject()
	in.Methods = methods
	in.At = specs
	return Injection{Handler: h, Inject: in}
}

func TestApply(t *testing.T) {
	class := cart(t)
	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onTotal", "()V", []string{"total"}, at.HeadSpec()),
		injection(t, "onAny", "()V", []string{"*"}, at.ReturnSpec()),
	}, Config{Verify: true})
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	require.Equal(t, "shop/Cart", report.Class)
	require.Equal(t, 4, report.Injected)
	require.Equal(t, []Result{
		{Handler: "shop/Cart.onTotal()V", Target: "shop/Cart.total()I", Strategy: "LIGHT", Points: 1},
		{Handler: "shop/Cart.onAny()V", Target: "shop/Cart.total()I", Strategy: "LIGHT", Points: 1},
		{Handler: "shop/Cart.onAny()V", Target: "shop/Cart.add(I)V", Strategy: "LIGHT", Points: 1},
		{Handler: "shop/Cart.onAny()V", Target: "shop/Cart.clear()V", Strategy: "LIGHT", Points: 1},
	}, report.Results)

	require.Equal(t, `  ALOAD 0
  INVOKEVIRTUAL shop/Cart.onTotal()V
  BIPUSH 10
  ALOAD 0
  INVOKEVIRTUAL shop/Cart.onAny()V
  IRETURN
`, dis.Format(class.Methods[0].Instructions))
}

func TestApplySameHeadKeepsOrder(t *testing.T) {
	class := cart(t)
	_, err := Apply(context.Background(), class, []Injection{
		injection(t, "first", "()V", []string{"clear"}, at.HeadSpec()),
		injection(t, "second", "()V", []string{"clear"}, at.HeadSpec()),
	}, Config{})
	require.NoError(t, err)
	require.Equal(t, `  ALOAD 0
  INVOKEVIRTUAL shop/Cart.first()V
  ALOAD 0
  INVOKEVIRTUAL shop/Cart.second()V
  RETURN
`, dis.Format(class.Methods[2].Instructions))
}

func TestApplyDeduplicatesPoints(t *testing.T) {
	class := cart(t)
	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onTotal", "()V", []string{"total"}, at.ReturnSpec(), at.TailSpec()),
	}, Config{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Injected)
}

func TestApplyUnknownMethod(t *testing.T) {
	class := cart(t)
	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onTotal", "()V", []string{"totl"}, at.HeadSpec()),
	}, Config{})
	require.Error(t, err)
	require.True(t, errors.HasCode(err, errors.E5003))
	require.Zero(t, report.Injected)

	var ie *errors.InjectionError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Suggestions, 1)
	require.Equal(t, "total", ie.Suggestions[0].Value)
	require.Contains(t, ie.FriendlyErrorMessage(), "Did you mean 'total'?")
}

func TestApplyDescriptorSelector(t *testing.T) {
	class := cart(t)
	_, err := Apply(context.Background(), class, []Injection{
		injection(t, "onAdd", "()V", []string{"add(J)V"}, at.HeadSpec()),
	}, Config{})
	require.True(t, errors.HasCode(err, errors.E5003))

	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onAdd", "(I)V", []string{"add(I)V"}, at.HeadSpec()),
	}, Config{})
	require.NoError(t, err)
	require.Equal(t, "STRICT", report.Results[0].Strategy)
}

func TestApplyCounts(t *testing.T) {
	tests := []struct {
		name    string
		require int
		allow   int
		wantErr bool
	}{
		{"within bounds", 1, 1, false},
		{"below require", 2, -1, true},
		{"above allow", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := injection(t, "onTotal", "()V", []string{"total"}, at.HeadSpec())
			in.Inject.Require = tt.require
			in.Inject.Allow = tt.allow
			_, err := Apply(context.Background(), cart(t), []Injection{in}, Config{})
			if tt.wantErr {
				require.True(t, errors.HasCode(err, errors.E4006))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestApplyInvalidInject(t *testing.T) {
	in := injection(t, "onTotal", "()V", []string{"total"})
	_, err := Apply(context.Background(), cart(t), []Injection{in}, Config{})
	require.True(t, errors.HasCode(err, errors.E5001))
}

func TestApplyAggregatesErrors(t *testing.T) {
	class := cart(t)
	bad, err := handler.New("shop/Cart", "onBad", "()I", bytecode.AccPublic)
	require.NoError(t, err)
	in := handler.DefaultInject()
	in.Methods = []string{"total"}
	in.At = []at.Spec{at.HeadSpec()}

	report, err := Apply(context.Background(), class, []Injection{
		{Handler: bad, Inject: in},
		injection(t, "onMissing", "()V", []string{"missing"}, at.HeadSpec()),
		injection(t, "onClear", "()V", []string{"clear"}, at.HeadSpec()),
	}, Config{})

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
	require.Equal(t, errors.E4005, errors.CodeOf(merr.Errors[0]))
	require.Equal(t, errors.E5003, errors.CodeOf(merr.Errors[1]))
	require.Equal(t, 1, report.Injected)
}

func TestApplyFailureStopsMethod(t *testing.T) {
	class := cart(t)
	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onAdd", "(J)V", []string{"add"}, at.HeadSpec()),
		injection(t, "onClear", "()V", []string{"clear"}, at.HeadSpec()),
	}, Config{})
	require.True(t, errors.HasCode(err, errors.E4001))
	require.Len(t, report.Results, 1)
	require.Equal(t, "shop/Cart.clear()V", report.Results[0].Target)
	require.Equal(t, "  RETURN\n", dis.Format(class.Methods[1].Instructions))
}

func TestApplyCountsPartialInjection(t *testing.T) {
	class := &bytecode.Class{Name: "shop/Cart", Methods: []*bytecode.Method{
		method(t, "add", "(I)V", "GOTO end\nend:\nRETURN\nRETURN"),
	}}
	in := injection(t, "onAdd", "()V", []string{"add"}, at.ReturnSpec())
	in.Inject.Require = 1
	report, err := Apply(context.Background(), class, []Injection{in}, Config{Verify: true})
	require.True(t, errors.HasCode(err, errors.E4007))
	require.False(t, errors.HasCode(err, errors.E4006))
	require.Equal(t, 1, report.Injected)
	require.Equal(t, []Result{
		{Handler: "shop/Cart.onAdd()V", Target: "shop/Cart.add(I)V", Strategy: "LIGHT", Points: 1},
	}, report.Results)
}

func TestApplyPrint(t *testing.T) {
	in := injection(t, "onClear", "()V", []string{"clear"}, at.HeadSpec())
	in.Inject.Print = true
	var out bytes.Buffer
	_, err := Apply(context.Background(), cart(t), []Injection{
		in,
		injection(t, "onTotal", "()V", []string{"total"}, at.HeadSpec()),
	}, Config{Print: &out})
	require.NoError(t, err)

	text := out.String()
	require.Contains(t, text, "public shop/Cart.clear()V  max_stack=1 max_locals=1")
	require.Contains(t, text, "+  INVOKEVIRTUAL shop/Cart.onClear()V")
	require.NotContains(t, text, "total")
}

func TestApplyManyMethods(t *testing.T) {
	class := &bytecode.Class{Name: "shop/Cart"}
	for i := 0; i < 32; i++ {
		class.Methods = append(class.Methods, method(t, fmt.Sprintf("m%d", i), "()I", "ICONST_1\nIRETURN"))
	}
	report, err := Apply(context.Background(), class, []Injection{
		injection(t, "onAny", "()V", []string{"*"}, at.HeadSpec(), at.ReturnSpec()),
	}, Config{Workers: 4, Verify: true})
	require.NoError(t, err)
	require.Equal(t, 64, report.Injected)
	for i, m := range class.Methods {
		require.Equal(t, fmt.Sprintf("shop/Cart.m%d()I", i), report.Results[i].Target)
		require.Equal(t, 2, strings.Count(dis.Format(m.Instructions), "INVOKEVIRTUAL"))
	}
}

func TestApplyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := Apply(ctx, cart(t), []Injection{
		injection(t, "onTotal", "()V", []string{"total"}, at.HeadSpec()),
	}, Config{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Injected)
}

func TestApplyThenRun(t *testing.T) {
	class := cart(t)
	_, err := Apply(context.Background(), class, []Injection{
		injection(t, "onTotal", "()V", []string{"total"}, at.HeadSpec(), at.ReturnSpec()),
	}, Config{Verify: true})
	require.NoError(t, err)

	var calls atomic.Int32
	got, err := vm.Run(context.Background(), class, "total", "", vm.NewObject("shop/Cart"), nil,
		vm.WithNative("shop/Cart.onTotal()V", func(ctx context.Context, args []any) (any, error) {
			calls.Add(1)
			return nil, nil
		}))
	require.NoError(t, err)
	require.Equal(t, int32(10), got)
	require.Equal(t, int32(2), calls.Load())
}

func TestApplyRunID(t *testing.T) {
	report, err := Apply(context.Background(), cart(t), nil, Config{RunID: "fixed"})
	require.NoError(t, err)
	require.Equal(t, "fixed", report.RunID)
	require.Empty(t, report.Results)
	require.NotEqual(t, NewRunID(), NewRunID())
}
