package vm

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/hookasm/bytecode"
)

// Run executes class.name(desc) in a new Virtual Machine that knows class.
// An empty desc selects the first method with the given name.
func Run(ctx context.Context, class *bytecode.Class, name, desc string, this any, args []any, options ...Option) (any, error) {
	m := class.FindMethod(name, desc)
	if m == nil {
		return nil, fmt.Errorf("%w: %s.%s%s", ErrNoSuchMethod, class.Name, name, desc)
	}
	machine := New(append([]Option{WithClass(class)}, options...)...)
	return machine.Call(ctx, class.Name, m, this, args)
}
