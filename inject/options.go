package inject

import (
	"io"

	"github.com/deepnoodle-ai/hookasm/locals"
	"github.com/rs/zerolog"
)

// LocalResolver locates the slot of an @Arg or @Local parameter.
// locals.Default is the reference implementation.
type LocalResolver interface {
	FindLocal(ctx locals.Context, d locals.Discriminator) (int, error)
}

// Option is a configuration function for an Injector.
type Option func(*Injector)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(inj *Injector) {
		inj.logger = logger
	}
}

// WithResolver replaces the local discriminator.
func WithResolver(r LocalResolver) Option {
	return func(inj *Injector) {
		inj.resolver = r
	}
}

// WithVariant selects the argument binding ruleset.
func WithVariant(v Variant) Option {
	return func(inj *Injector) {
		inj.variant = v
	}
}

// WithCancellable marks the injection as cancellable, enabling the
// cancellation check after the handler call.
func WithCancellable(cancellable bool) Option {
	return func(inj *Injector) {
		inj.cancellable = cancellable
	}
}

// WithVerify enables stack verification of every synthesized block. The
// target method is analyzed before and after insertion and its MaxStack is
// raised as needed.
func WithVerify(verify bool) Option {
	return func(inj *Injector) {
		inj.verify = verify
	}
}

// WithPrint writes a disassembly of the target method to w after each
// successful injection.
func WithPrint(w io.Writer) Option {
	return func(inj *Injector) {
		inj.out = w
	}
}
