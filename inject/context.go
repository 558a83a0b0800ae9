package inject

import (
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
)

// IsPreReturn reports whether insn is a return instruction. It looks only at
// the instruction itself.
func IsPreReturn(insn bytecode.Insn) bool {
	return op.IsReturn(insn.Opcode())
}

// callbackContext is the callback context of a single injection point. It is
// created by Inject and dropped when Inject returns.
type callbackContext struct {
	needed      bool
	class       string
	name        string
	ret         jtype.Type
	cancellable bool
	preReturn   bool
	slot        int
}

func newCallbackContext(h *handler.Handler, target *bytecode.Target, node bytecode.Insn, cancellable bool) *callbackContext {
	return &callbackContext{
		needed:      isNeeded(h),
		class:       callback.ClassName(target.ReturnType),
		name:        target.Name(),
		ret:         target.ReturnType,
		cancellable: cancellable,
		preReturn:   IsPreReturn(node),
		slot:        -1,
	}
}

// isNeeded reports whether any handler parameter is a callback context.
func isNeeded(h *handler.Handler) bool {
	for i := 0; i < h.NumParams(); i++ {
		if callback.IsCallbackType(h.ParamType(i)) {
			return true
		}
	}
	return false
}

func (c *callbackContext) materialized() bool {
	return c.slot >= 0
}

// captures reports whether the context is built with the value about to be
// returned.
func (c *callbackContext) captures() bool {
	return c.preReturn && !c.ret.IsVoid()
}

// materialize emits the construction of the context and stores it in a new
// local. It does nothing when the context is not needed or already exists.
//
//	CallbackInfo ci = new CallbackInfo("name", cancellable);
//	CallbackInfoReturnable ci = new CallbackInfoReturnable("name", cancellable, value);
func (c *callbackContext) materialize(list *bytecode.InsnList, target *bytecode.Target) int {
	if !c.needed || c.materialized() {
		return c.slot
	}
	c.slot = target.AllocateLocal()

	ctorDesc := callback.CtorDesc
	tmp := -1
	if c.captures() {
		size := c.ret.Size()
		tmp = target.AllocateLocals(size)
		if size == 2 {
			list.Add(bytecode.NewInsn(op.Dup2))
		} else {
			list.Add(bytecode.NewInsn(op.Dup))
		}
		list.Add(bytecode.NewVar(c.ret.Opcode(op.Istore), tmp))
		ctorDesc = callback.CtorWithValueDesc(c.ret)
	}

	list.Add(bytecode.NewType(op.New, c.class))
	list.Add(bytecode.NewInsn(op.Dup))
	list.Add(bytecode.NewLdc(c.name))
	if c.cancellable {
		list.Add(bytecode.NewInsn(op.Iconst1))
	} else {
		list.Add(bytecode.NewInsn(op.Iconst0))
	}
	if tmp >= 0 {
		list.Add(bytecode.NewVar(c.ret.Opcode(op.Iload), tmp))
	}
	list.Add(bytecode.NewMethod(op.Invokespecial, c.class, callback.Ctor, ctorDesc))
	list.Add(bytecode.NewVar(op.Astore, c.slot))

	target.AddLocalVariable(c.slot, callback.LocalName(c.slot), "L"+c.class+";")
	return c.slot
}

// push loads the context onto the stack.
func (c *callbackContext) push(list *bytecode.InsnList) {
	if !c.needed || !c.materialized() {
		return
	}
	list.Add(bytecode.NewVar(op.Aload, c.slot))
}

// emitCancellationGuard appends the early return taken when the handler
// cancelled the target.
func (c *callbackContext) emitCancellationGuard(list *bytecode.InsnList, target *bytecode.Target) {
	if !c.needed || !c.materialized() {
		return
	}
	emitCancellation(list, target, c.slot)
}
