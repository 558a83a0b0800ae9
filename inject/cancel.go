package inject

import (
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/op"
)

// emitCancellation appends the cancellation check for the context stored in
// slot:
//
//	if (ci.isCancelled()) {
//	    return;                                 // void target
//	    return (T) ci.getReturnValue();         // object or array target
//	    return ci.getReturnValue<D>();          // primitive target
//	}
func emitCancellation(list *bytecode.InsnList, target *bytecode.Target, slot int) {
	ret := target.ReturnType
	class := callback.ClassName(ret)

	list.Add(bytecode.NewVar(op.Aload, slot))
	list.Add(bytecode.NewMethod(op.Invokevirtual, class, callback.IsCancelledName, callback.IsCancelledDesc))
	skip := bytecode.NewLabel()
	list.Add(bytecode.NewJump(op.Ifeq, skip))

	if ret.IsVoid() {
		list.Add(bytecode.NewInsn(op.Return))
	} else {
		list.Add(bytecode.NewVar(op.Aload, slot))
		list.Add(bytecode.NewMethod(op.Invokevirtual, class,
			callback.ReturnAccessorName(ret), callback.ReturnAccessorDesc(ret)))
		if ret.IsReference() {
			list.Add(bytecode.NewType(op.Checkcast, ret.InternalName()))
		}
		list.Add(bytecode.NewInsn(ret.Opcode(op.Ireturn)))
	}
	list.Add(skip)
}
