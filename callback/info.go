package callback

import (
	"fmt"
)

// Info is the runtime representation of a callback context. The interpreter
// creates one when injected code executes NEW on VoidClass or
// ReturnableClass, and handlers receive it as their context argument.
type Info struct {
	name        string
	cancellable bool
	returnable  bool
	cancelled   bool
	value       any
}

// NewInfo returns a void context.
func NewInfo(name string, cancellable bool) *Info {
	return &Info{name: name, cancellable: cancellable}
}

// NewReturnable returns a returnable context holding value as the current
// return value. value is nil when the context was created away from a return
// instruction.
func NewReturnable(name string, cancellable bool, value any) *Info {
	return &Info{name: name, cancellable: cancellable, returnable: true, value: value}
}

// Name returns the target method name the context was created for.
func (ci *Info) Name() string {
	return ci.name
}

// ClassName returns the internal name of the context's class.
func (ci *Info) ClassName() string {
	if ci.returnable {
		return ReturnableClass
	}
	return VoidClass
}

// IsCancellable reports whether Cancel may be called.
func (ci *Info) IsCancellable() bool {
	return ci.cancellable
}

// IsCancelled reports whether the handler cancelled the target.
func (ci *Info) IsCancelled() bool {
	return ci.cancelled
}

// Cancel marks the target as cancelled. It fails when the injection was not
// declared cancellable.
func (ci *Info) Cancel() error {
	if !ci.cancellable {
		return fmt.Errorf("the call %s is not cancellable", ci.name)
	}
	ci.cancelled = true
	return nil
}

// SetReturnValue stores value and cancels the target.
func (ci *Info) SetReturnValue(value any) error {
	if !ci.returnable {
		return fmt.Errorf("the call %s has no return value", ci.name)
	}
	if err := ci.Cancel(); err != nil {
		return err
	}
	ci.value = value
	return nil
}

// ReturnValue returns the captured or overridden return value.
func (ci *Info) ReturnValue() any {
	return ci.value
}

func (ci *Info) String() string {
	return fmt.Sprintf("%s[name=%s, cancellable=%t, cancelled=%t]",
		ci.ClassName(), ci.name, ci.cancellable, ci.cancelled)
}
