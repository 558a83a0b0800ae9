package inject

import (
	"github.com/deepnoodle-ai/hookasm/callback"
	"github.com/deepnoodle-ai/hookasm/handler"
)

// Strategy is the argument binding discipline of a handler.
type Strategy uint8

const (
	// Strict binds unannotated parameters by position and requires them to
	// match the target's arguments exactly.
	Strict Strategy = iota

	// Light resolves each parameter individually.
	Light
)

func (s Strategy) String() string {
	if s == Light {
		return "LIGHT"
	}
	return "STRICT"
}

// Classify decides the strategy of h. Context parameters and parameters
// annotated with @Local are ignored; if every remaining parameter carries
// @Arg the handler is Light, otherwise Strict. A handler without parameters
// is Light.
func Classify(h *handler.Handler) Strategy {
	for i := 0; i < h.NumParams(); i++ {
		if callback.IsCallbackType(h.ParamType(i)) || h.Local(i) != nil {
			continue
		}
		if h.Arg(i) == nil {
			return Strict
		}
	}
	return Light
}

// Variant selects the argument binding ruleset.
type Variant uint8

const (
	// VariantArgs binds context, annotated, positional and type-matched
	// parameters.
	VariantArgs Variant = iota

	// VariantSimple only binds the receiver and the callback context.
	VariantSimple
)

func (v Variant) String() string {
	if v == VariantSimple {
		return "simple"
	}
	return "args"
}
