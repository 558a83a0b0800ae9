package vm

import "github.com/deepnoodle-ai/hookasm/bytecode"

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithClass makes the methods of class callable by INVOKE instructions.
func WithClass(class *bytecode.Class) Option {
	return func(vm *VirtualMachine) {
		vm.classes[class.Name] = class
	}
}

// WithNative registers a Go implementation for the method with the given
// signature, "owner.name(desc)". Natives take precedence over class methods.
func WithNative(signature string, fn Native) Option {
	return func(vm *VirtualMachine) {
		vm.natives[signature] = fn
	}
}

// WithStatics sets initial static field values, keyed by "owner.name".
func WithStatics(statics map[string]any) Option {
	return func(vm *VirtualMachine) {
		for name, value := range statics {
			vm.statics[name] = value
		}
	}
}

// WithStepLimit stops execution with ErrStepLimit after n instructions. Zero
// means no limit.
func WithStepLimit(n int) Option {
	return func(vm *VirtualMachine) {
		vm.stepLimit = n
	}
}

// WithContextCheckInterval sets how often the VM checks ctx.Done(), in
// number of instructions. A value of 0 disables the check. The default is
// DefaultContextCheckInterval.
func WithContextCheckInterval(interval int) Option {
	return func(vm *VirtualMachine) {
		vm.contextCheckInterval = interval
	}
}

// WithObserver sets an observer for execution events.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}
