package plan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deepnoodle-ai/hookasm/at"
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/inject"
	"github.com/deepnoodle-ai/hookasm/transform"
	"github.com/deepnoodle-ai/hookasm/vm"
	"github.com/stretchr/testify/require"
)

const onTotalDesc = "(Lorg/spongepowered/asm/mixin/injection/callback/CallbackInfoReturnable;I)V"

func loadCart(t *testing.T) []*Target {
	t.Helper()
	p, err := Load(filepath.Join("testdata", "cart.yaml"))
	require.NoError(t, err)
	targets, err := p.Build()
	require.NoError(t, err)
	return targets
}

func TestLoad(t *testing.T) {
	p, err := Load(filepath.Join("testdata", "cart.yaml"))
	require.NoError(t, err)
	require.Len(t, p.Classes, 1)
	require.Len(t, p.Classes[0].Methods, 2)
	require.Len(t, p.Handlers, 2)
	require.Equal(t, []string{"sum"}, p.Handlers[0].Params[0].Local.Names)
	require.Equal(t, 1, *p.Handlers[0].Inject.Require)
}

func TestBuild(t *testing.T) {
	targets := loadCart(t)
	require.Len(t, targets, 1)

	class := targets[0].Class
	require.Equal(t, "shop/Cart", class.Name)
	require.Equal(t, bytecode.AccPublic, class.Access)

	total := class.FindMethod("total", "(I)I")
	require.NotNil(t, total)
	require.Equal(t, 2, total.MaxStack)
	require.Equal(t, 3, total.MaxLocals)
	require.Equal(t, 1, class.FindMethod("clear", "()V").MaxLocals)
	require.Len(t, total.LocalVariables, 3)
	require.Equal(t, "body", total.LocalVariables[2].Start.Name)
	require.Nil(t, total.LocalVariables[2].End)

	injections := targets[0].Injections
	require.Len(t, injections, 2)
	on := injections[0]
	require.Equal(t, "shop/Cart.onTotal"+onTotalDesc, on.Handler.String())
	require.True(t, on.Handler.IsPrivate())
	require.Equal(t, []string{"sum"}, on.Handler.Local(1).Names)
	require.Equal(t, []at.Spec{at.ReturnSpec()}, on.Inject.At)
	require.True(t, on.Inject.Cancellable)
	require.Equal(t, 1, on.Inject.Require)
	require.Equal(t, 1, on.Inject.Expect)
	require.Equal(t, -1, on.Inject.Allow)
	require.Equal(t, inject.VariantArgs, on.Variant)

	clear := injections[1]
	require.True(t, clear.Handler.IsStatic())
	require.True(t, clear.Inject.Print)
	require.Equal(t, -1, clear.Inject.Require)
}

func TestBuildComputesMaxs(t *testing.T) {
	p, err := Parse([]byte(`
classes:
  - name: a/B
    methods:
      - name: f
        desc: (JI)J
        access: public static
        code: |
          LLOAD 0
          LLOAD 0
          LADD
          LSTORE 3
          IINC 5 1
          LLOAD 3
          LRETURN
      - name: g
        desc: ()V
        max_stack: 4
        max_locals: 9
        code: RETURN
`))
	require.NoError(t, err)
	targets, err := p.Build()
	require.NoError(t, err)
	class := targets[0].Class
	f := class.FindMethod("f", "(JI)J")
	require.Equal(t, 6, f.MaxLocals)
	require.Equal(t, 4, f.MaxStack)
	g := class.FindMethod("g", "()V")
	require.Equal(t, 4, g.MaxStack)
	require.Equal(t, 9, g.MaxLocals)
}

func TestApplyPlan(t *testing.T) {
	targets := loadCart(t)
	class := targets[0].Class
	var out bytes.Buffer
	report, err := transform.Apply(context.Background(), class, targets[0].Injections,
		transform.Config{Verify: true, Print: &out})
	require.NoError(t, err)
	require.Equal(t, 2, report.Injected)
	require.Contains(t, out.String(), "+  INVOKESTATIC shop/Cart.onClear(")

	got, err := vm.Run(context.Background(), class, "total", "(I)I", vm.NewObject("shop/Cart"), []any{3},
		vm.WithNative("shop/Cart.onTotal"+onTotalDesc, func(ctx context.Context, args []any) (any, error) {
			ci, ok := vm.CallbackInfo(args[1])
			require.True(t, ok)
			require.Equal(t, int32(30), ci.ReturnValue())
			return nil, ci.SetReturnValue(args[2].(int32) + 1)
		}))
	require.NoError(t, err)
	require.Equal(t, int32(31), got)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code errors.ErrorCode
	}{
		{"unknown key", "classes:\n  - name: a/B\n    colour: red\n", errors.E5001},
		{"not yaml", "classes: [", errors.E5001},
		{"duplicate class", "classes:\n  - name: a/B\n  - name: a/B\n", errors.E5001},
		{"duplicate method", `
classes:
  - name: a/B
    methods:
      - {name: f, desc: ()V, code: RETURN}
      - {name: f, desc: ()V, code: RETURN}
`, errors.E5001},
		{"unknown class", `
handlers:
  - {owner: a/B, name: on, desc: ()V, inject: {method: [f], at: [HEAD]}}
`, errors.E5001},
		{"bad variant", `
classes:
  - name: a/B
handlers:
  - {owner: a/B, name: on, desc: ()V, inject: {method: [f], at: [HEAD], variant: fancy}}
`, errors.E5001},
		{"arg and local", `
classes:
  - name: a/B
handlers:
  - owner: a/B
    name: on
    desc: (I)V
    params: [{param: 0, arg: {}, local: {}}]
    inject: {method: [f], at: [HEAD]}
`, errors.E5001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			require.Error(t, err)
			require.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code errors.ErrorCode
	}{
		{"bad assembly", `
classes:
  - name: a/B
    methods:
      - {name: f, desc: ()V, code: FROB}
`, errors.E5002},
		{"bad access", `
classes:
  - name: a/B
    access: publik
`, errors.E5001},
		{"bad local label", `
classes:
  - name: a/B
    methods:
      - name: f
        desc: ()V
        locals: [{name: x, desc: I, index: 1, start: nowhere}]
        code: RETURN
`, errors.E5001},
		{"bad selector", `
classes:
  - name: a/B
handlers:
  - {owner: a/B, name: on, desc: ()V, inject: {method: [f], at: [MIDDLE]}}
`, errors.E5001},
		{"bad handler descriptor", `
classes:
  - name: a/B
handlers:
  - {owner: a/B, name: on, desc: (Q)V, inject: {method: [f], at: [HEAD]}}
`, errors.E5001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.src))
			require.NoError(t, err)
			_, err = p.Build()
			require.Error(t, err)
			require.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestBuildAssemblyErrorNamesMethod(t *testing.T) {
	p, err := Parse([]byte(`
classes:
  - name: a/B
    methods:
      - {name: f, desc: ()V, code: FROB}
`))
	require.NoError(t, err)
	_, err = p.Build()
	var ie *errors.InjectionError
	require.ErrorAs(t, err, &ie)
	require.Equal(t, "a/B.f()V", ie.Target)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSnapshotRoundTrip(t *testing.T) {
	targets := loadCart(t)
	class := targets[0].Class
	_, err := transform.Apply(context.Background(), class, targets[0].Injections, transform.Config{Verify: true})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cart.snap")
	require.NoError(t, WriteSnapshot(path, NewSnapshot("run-1", []*bytecode.Class{class})))

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, "run-1", snap.RunID)
	require.Equal(t, SnapshotVersion, snap.Version)

	restored, err := snap.Restore()
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.Equal(t, class.Name, restored[0].Name)
	require.Equal(t, class.Access, restored[0].Access)
	require.Len(t, restored[0].Methods, len(class.Methods))
	for i, m := range class.Methods {
		r := restored[0].Methods[i]
		require.Equal(t, m.Signature(), r.Signature())
		require.Equal(t, m.Access, r.Access)
		require.Equal(t, m.MaxStack, r.MaxStack)
		require.Equal(t, m.MaxLocals, r.MaxLocals)
		require.Equal(t, dis.Format(m.Instructions), dis.Format(r.Instructions))
		require.Len(t, r.LocalVariables, len(m.LocalVariables))
		for j, lv := range m.LocalVariables {
			require.Equal(t, lv.Name, r.LocalVariables[j].Name)
			require.Equal(t, lv.Index, r.LocalVariables[j].Index)
		}
	}

	sum := restored[0].FindMethod("total", "").LocalVariables[2]
	require.Equal(t, "body", sum.Start.Name)

	total := dis.Format(restored[0].FindMethod("total", "").Instructions)
	require.Contains(t, total, "INVOKESPECIAL "+callback.ReturnableClass+".<init>(Ljava/lang/String;ZI)V")
	require.Contains(t, total, "INVOKEVIRTUAL "+callback.ReturnableClass+".getReturnValueI()I")
}

func TestSnapshotCorrupt(t *testing.T) {
	var s Snapshot
	err := s.UnmarshalBinary([]byte("not a snapshot"))
	require.True(t, errors.HasCode(err, errors.E5001))

	data, err := (&Snapshot{Version: 99}).MarshalBinary()
	require.NoError(t, err)
	err = s.UnmarshalBinary(data)
	require.True(t, errors.HasCode(err, errors.E5001))
	require.Contains(t, err.Error(), "unsupported snapshot version 99")
}
