package vm

import (
	"strings"

	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/jtype"
)

const cancellationException = "org/spongepowered/asm/mixin/injection/callback/CancellationException"

func isCallbackClass(class string) bool {
	return class == callback.VoidClass || class == callback.ReturnableClass
}

// invokeCallback implements the methods of the callback context classes.
// recv is the receiver; args are the logical arguments.
func invokeCallback(class, name, desc string, recv any, args []any) (any, error) {
	obj, ok := recv.(*Object)
	if !ok || obj == nil {
		return nil, throw("java/lang/NullPointerException", "%s.%s on null", class, name)
	}

	if name == callback.Ctor {
		if len(args) < 2 {
			return nil, throw("java/lang/IllegalArgumentException", "%s.<init>%s", class, desc)
		}
		id, _ := args[0].(string)
		cancellable := args[1] != int32(0)
		if class == callback.ReturnableClass {
			var value any
			if len(args) > 2 {
				value = args[2]
			}
			obj.Native = callback.NewReturnable(id, cancellable, value)
		} else {
			obj.Native = callback.NewInfo(id, cancellable)
		}
		return nil, nil
	}

	ci, ok := obj.Native.(*callback.Info)
	if !ok {
		return nil, throw("java/lang/IllegalStateException", "%s used before construction", class)
	}
	switch {
	case name == callback.IsCancelledName && desc == callback.IsCancelledDesc:
		return boolValue(ci.IsCancelled()), nil
	case name == "isCancellable" && desc == "()Z":
		return boolValue(ci.IsCancellable()), nil
	case name == "getId" && desc == "()Ljava/lang/String;":
		return ci.Name(), nil
	case name == "cancel" && desc == "()V":
		if err := ci.Cancel(); err != nil {
			return nil, throw(cancellationException, "%s", err.Error())
		}
		return nil, nil
	case name == "setReturnValue" && len(args) == 1:
		if err := ci.SetReturnValue(args[0]); err != nil {
			return nil, throw(cancellationException, "%s", err.Error())
		}
		return nil, nil
	case strings.HasPrefix(name, callback.ReturnValueName):
		_, ret, err := jtype.ParseMethod(desc)
		if err != nil {
			return nil, err
		}
		v := ci.ReturnValue()
		if ret.IsReference() {
			return v, nil
		}
		if v == nil {
			return Zero(ret), nil
		}
		return coerce(v, ret)
	}
	return nil, throw("java/lang/NoSuchMethodError", "%s.%s%s", class, name, desc)
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
