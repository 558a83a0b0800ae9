package inject

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/locals"
	"github.com/deepnoodle-ai/hookasm/op"
)

// binder pushes the handler's receiver and arguments for one injection
// point.
type binder struct {
	inj    *Injector
	target *bytecode.Target
	node   bytecode.Insn
	ctx    *callbackContext
	list   *bytecode.InsnList
}

func (b *binder) bind() error {
	h := b.inj.handler
	if !h.IsStatic() {
		b.list.Add(bytecode.NewVar(op.Aload, 0))
	}
	for i := 0; i < h.NumParams(); i++ {
		if err := b.bindParam(i); err != nil {
			return err
		}
	}
	return nil
}

func (b *binder) bindParam(i int) error {
	h := b.inj.handler
	typ := h.ParamType(i)

	if callback.IsCallbackType(typ) {
		if want := callback.TypeFor(b.target.ReturnType); typ != want {
			return b.unsupported(i, "expects %s but the target provides %s", typ, want)
		}
		b.ctx.push(b.list)
		return nil
	}

	if b.inj.variant == VariantSimple {
		return b.unsupported(i, "only the receiver and the callback context can be bound")
	}

	var d locals.Discriminator
	switch {
	case h.Arg(i) != nil:
		d = locals.FromArg(h.Arg(i))
	case h.Local(i) != nil:
		d = locals.FromLocal(h.Local(i))
	case b.inj.strategy == Strict:
		return b.bindPositional(i, typ)
	default:
		return b.bindByType(i, typ)
	}

	slot, err := b.inj.resolver.FindLocal(locals.Context{
		Type:    typ,
		Target:  b.target,
		Node:    b.node,
		Handler: h.String(),
	}, d)
	if err != nil {
		if errors.CodeOf(err) != "" {
			return err
		}
		return errors.Wrap(errors.E4002, err, "could not resolve parameter %d of handler %s", i, h.Name()).
			WithHandler(h.String()).
			WithTarget(b.target.String())
	}
	b.load(typ, slot)
	return nil
}

// bindPositional loads target argument i for handler parameter i.
func (b *binder) bindPositional(i int, typ jtype.Type) error {
	if i >= len(b.target.Arguments) || b.target.Arguments[i] != typ {
		return b.inj.strictMismatch(b.target)
	}
	b.load(typ, b.target.ArgIndices()[i])
	return nil
}

// bindByType loads the first target argument of type typ. When several
// arguments share the type the first always wins.
func (b *binder) bindByType(i int, typ jtype.Type) error {
	indices := b.target.ArgIndices()
	for j, a := range b.target.Arguments {
		if a == typ {
			b.load(typ, indices[j])
			return nil
		}
	}
	return b.unsupported(i, "no target argument of type %s", typ)
}

func (b *binder) load(typ jtype.Type, slot int) {
	b.list.Add(bytecode.NewVar(typ.Opcode(op.Iload), slot))
}

func (b *binder) unsupported(i int, format string, args ...any) error {
	h := b.inj.handler
	return errors.New(errors.E4003, "cannot bind parameter %d of handler %s: %s", i, h.Name(), fmt.Sprintf(format, args...)).
		WithHandler(h.String()).
		WithTarget(b.target.String())
}
