package vm

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/jtype"
)

// Values on the operand stack and in local slots are Go values:
//
//	int, boolean, byte, char, short   int32
//	long                              int64
//	float                             float32
//	double                            float64
//	java/lang/String                  string
//	class literal                     jtype.Type
//	null                              nil
//	other objects                     *Object
//	arrays                            *Array
//
// long and double values occupy two words; the second word holds top.
type top struct{}

// Object is an instance of a class.
type Object struct {
	Class  string
	Fields map[string]any

	// Native holds runtime state for classes implemented by the VM, such
	// as the callback context.
	Native any
}

// NewObject returns an instance of class with no fields set.
func NewObject(class string) *Object {
	return &Object{Class: class, Fields: map[string]any{}}
}

func (o *Object) String() string {
	if o.Native != nil {
		return fmt.Sprintf("%s", o.Native)
	}
	return fmt.Sprintf("%s@%p", o.Class, o)
}

// Array is a one-dimensional array.
type Array struct {
	Elem   jtype.Type
	Values []any
}

// NewArray returns an array of n zero values of type elem.
func NewArray(elem jtype.Type, n int) *Array {
	values := make([]any, n)
	for i := range values {
		values[i] = Zero(elem)
	}
	return &Array{Elem: elem, Values: values}
}

// Exception is a thrown value that escaped the called method.
type Exception struct {
	Class   string
	Message string
	Value   any
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Class
	}
	return e.Class + ": " + e.Message
}

func throw(class, format string, args ...any) *Exception {
	return &Exception{Class: class, Message: fmt.Sprintf(format, args...)}
}

// CallbackInfo returns the callback context held by v, which is usually a
// handler argument.
func CallbackInfo(v any) (*callback.Info, bool) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, false
	}
	ci, ok := obj.Native.(*callback.Info)
	return ci, ok
}

// Zero returns the default value of a field or array element of type t.
func Zero(t jtype.Type) any {
	switch t.Sort() {
	case jtype.SortLong:
		return int64(0)
	case jtype.SortFloat:
		return float32(0)
	case jtype.SortDouble:
		return float64(0)
	case jtype.SortArray, jtype.SortObject, jtype.SortVoid:
		return nil
	default:
		return int32(0)
	}
}

// isInstance reports whether v can be cast to the class or array type named
// by internalName. Class hierarchies are not modeled: only the exact class
// and java/lang/Object match.
func isInstance(v any, internalName string) bool {
	if v == nil || internalName == jtype.ObjectType.InternalName() {
		return true
	}
	switch x := v.(type) {
	case string:
		return internalName == jtype.StringType.InternalName()
	case jtype.Type:
		return internalName == "java/lang/Class"
	case *Object:
		return x.Class == internalName
	case *Array:
		return jtype.ArrayOf(x.Elem).InternalName() == internalName
	case int32, int64, float32, float64:
		// Boxed primitives returned through an erased accessor.
		return true
	}
	return false
}
