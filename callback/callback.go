// Package callback describes the callback context classes that injected code
// constructs and passes to handlers.
//
// The class names, constructor descriptors and accessor signatures below are
// a wire contract with the runtime library that defines the context types.
// They must match exactly.
package callback

import (
	"strconv"

	"github.com/deepnoodle-ai/hookasm/jtype"
)

const (
	// VoidClass is the internal name of the context passed for void targets.
	VoidClass = "org/spongepowered/asm/mixin/injection/callback/CallbackInfo"

	// ReturnableClass is the internal name of the context passed for
	// targets that return a value.
	ReturnableClass = "org/spongepowered/asm/mixin/injection/callback/CallbackInfoReturnable"

	// Ctor is the constructor method name.
	Ctor = "<init>"

	// CtorDesc is the (name, cancellable) constructor descriptor.
	CtorDesc = "(Ljava/lang/String;Z)V"

	// IsCancelledName is the accessor the cancellation guard calls.
	IsCancelledName = "isCancelled"

	// IsCancelledDesc is the descriptor of IsCancelledName.
	IsCancelledDesc = "()Z"

	// ReturnValueName is the generic accessor used for object and array
	// return types.
	ReturnValueName = "getReturnValue"
)

var (
	// VoidType is the descriptor type of VoidClass.
	VoidType = jtype.Object(VoidClass)

	// ReturnableType is the descriptor type of ReturnableClass.
	ReturnableType = jtype.Object(ReturnableClass)
)

// ClassName returns the context class used for a target with the given
// return type.
func ClassName(ret jtype.Type) string {
	if ret.IsVoid() {
		return VoidClass
	}
	return ReturnableClass
}

// TypeFor returns the descriptor type of ClassName(ret).
func TypeFor(ret jtype.Type) jtype.Type {
	if ret.IsVoid() {
		return VoidType
	}
	return ReturnableType
}

// IsCallbackType reports whether t is either context type.
func IsCallbackType(t jtype.Type) bool {
	return t == VoidType || t == ReturnableType
}

// valueType is the type a value-carrying constructor or accessor uses for
// ret: primitives keep their own type, references are erased to Object.
func valueType(ret jtype.Type) jtype.Type {
	if ret.IsReference() {
		return jtype.ObjectType
	}
	return ret
}

// CtorWithValueDesc returns the (name, cancellable, value) constructor
// descriptor for a returnable context capturing a value of type ret.
func CtorWithValueDesc(ret jtype.Type) string {
	return "(Ljava/lang/String;Z" + valueType(ret).Descriptor() + ")V"
}

// ReturnAccessorName returns the accessor that reads the overridden return
// value: getReturnValue for references, getReturnValue<D> for primitives.
func ReturnAccessorName(ret jtype.Type) string {
	if ret.IsReference() {
		return ReturnValueName
	}
	return ReturnValueName + ret.Descriptor()
}

// ReturnAccessorDesc returns the descriptor of ReturnAccessorName(ret).
func ReturnAccessorDesc(ret jtype.Type) string {
	return "()" + valueType(ret).Descriptor()
}

// LocalName is the local variable table name given to a context stored in
// slot.
func LocalName(slot int) string {
	return "callbackInfo" + strconv.Itoa(slot)
}
