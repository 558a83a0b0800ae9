// Package inject synthesizes the instructions that call a handler from
// inside a target method.
//
// An Injector is built once per handler. Each call to Inject inserts one
// block immediately before the chosen instruction:
//
//	[capture return value]        at a value return with a context parameter
//	[construct callback context]  when a handler parameter is a context
//	[push this]                   for instance handlers
//	push arguments                context, @Arg/@Local, positional or by type
//	invoke handler
//	[cancellation check]          when cancellable and a context was built
//
// The block leaves the operand stack as it found it. If anything fails the
// target is left untouched.
package inject

import (
	"io"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/dis"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/locals"
	"github.com/deepnoodle-ai/hookasm/op"
	"github.com/deepnoodle-ai/hookasm/stack"
	"github.com/rs/zerolog"
)

const strictNote = "ArgumentHandlingStrategy.STRICT mode has been enabled due to none of the handler's arguments being annotated with @Arg."

// Injector inserts calls to a single handler.
type Injector struct {
	handler     *handler.Handler
	strategy    Strategy
	variant     Variant
	cancellable bool
	verify      bool
	resolver    LocalResolver
	logger      zerolog.Logger
	out         io.Writer
}

// New returns an injector for h. The argument strategy is decided here and
// does not change afterwards.
func New(h *handler.Handler, opts ...Option) (*Injector, error) {
	inj := &Injector{
		handler: h,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(inj)
	}
	if inj.resolver == nil {
		inj.resolver = locals.Default{Logger: inj.logger}
	}
	if !h.ReturnType().IsVoid() {
		return nil, errors.New(errors.E4005, "handler %s must return void, not %s", h.Name(), h.ReturnType()).
			WithHandler(h.String())
	}
	inj.strategy = Classify(h)
	return inj, nil
}

// Handler returns the handler being injected.
func (inj *Injector) Handler() *handler.Handler {
	return inj.handler
}

// Strategy returns the argument strategy chosen for the handler.
func (inj *Injector) Strategy() Strategy {
	return inj.strategy
}

// Inject inserts the handler call before node. It must be called at most
// once per injection point.
func (inj *Injector) Inject(target *bytecode.Target, node bytecode.Insn) error {
	if err := inj.checkModifiers(target); err != nil {
		return err
	}
	if !target.Instructions().Contains(node) {
		return errors.New(errors.E5001, "injection point is not part of %s", target.Name()).
			WithHandler(inj.handler.String()).
			WithTarget(target.String())
	}
	if inj.strategy == Strict {
		if err := inj.checkStrict(target); err != nil {
			return err
		}
	}

	entry, err := inj.entryHeight(target, node)
	if err != nil {
		return err
	}

	cp := target.Checkpoint()
	block, err := inj.build(target, node)
	peak := 0
	if err == nil {
		res, serr := stack.CheckNeutral(block, entry)
		switch {
		case serr != nil && inj.verify:
			err = inj.imbalance(target, serr)
		case res != nil:
			peak = res.Max
		}
	}
	var inserted []bytecode.Insn
	if err == nil {
		inserted = block.Slice()
		err = target.InsertBefore(node, block)
	}
	if err != nil {
		target.Rollback(cp)
		return err
	}
	if inj.verify {
		res, err := stack.Analyze(target.Instructions(), 0)
		if err != nil {
			for _, insn := range inserted {
				target.Instructions().Remove(insn)
			}
			target.Rollback(cp)
			return inj.imbalance(target, err)
		}
		peak = max(peak, res.Max)
	}
	target.Method.MaxStack = max(target.Method.MaxStack, peak)

	inj.logger.Debug().
		Str("handler", inj.handler.String()).
		Str("target", target.String()).
		Str("strategy", inj.strategy.String()).
		Str("at", node.Opcode().String()).
		Msg("injected")

	if inj.out != nil {
		return dis.Print(inj.out, target.Owner, target.Method, false)
	}
	return nil
}

// entryHeight returns the stack height at node. When the method cannot be
// analyzed and verification is off, MaxStack stands in as an upper bound.
func (inj *Injector) entryHeight(target *bytecode.Target, node bytecode.Insn) (int, error) {
	res, err := stack.Analyze(target.Instructions(), 0)
	if err == nil {
		if h, ok := res.Heights[node]; ok {
			return h, nil
		}
		err = stack.ErrUnreachable
	}
	if inj.verify {
		return 0, inj.imbalance(target, err)
	}
	return target.Method.MaxStack, nil
}

// build synthesizes the block for one injection point.
func (inj *Injector) build(target *bytecode.Target, node bytecode.Insn) (*bytecode.InsnList, error) {
	h := inj.handler
	block := bytecode.NewInsnList()
	ctx := newCallbackContext(h, target, node, inj.cancellable)
	ctx.materialize(block, target)

	b := &binder{inj: inj, target: target, node: node, ctx: ctx, list: block}
	if err := b.bind(); err != nil {
		return nil, err
	}

	block.Add(bytecode.NewMethod(inj.invokeOpcode(), target.Owner, h.Name(), h.Desc()))

	if inj.cancellable {
		ctx.emitCancellationGuard(block, target)
	}
	return block, nil
}

func (inj *Injector) invokeOpcode() op.Code {
	switch {
	case inj.handler.IsStatic():
		return op.Invokestatic
	case inj.handler.IsPrivate():
		return op.Invokespecial
	default:
		return op.Invokevirtual
	}
}

func (inj *Injector) checkModifiers(target *bytecode.Target) error {
	acc := target.Method.Access
	var reason string
	switch {
	case acc.Has(bytecode.AccAbstract):
		reason = "target method is abstract"
	case acc.Has(bytecode.AccNative):
		reason = "target method is native"
	case inj.handler.IsStatic() && !target.IsStatic:
		reason = "static handler cannot be injected into an instance method"
	case !inj.handler.IsStatic() && target.IsStatic:
		reason = "instance handler cannot be injected into a static method"
	default:
		return nil
	}
	return errors.New(errors.E4004, "invalid target %s: %s", target.Name(), reason).
		WithHandler(inj.handler.String()).
		WithTarget(target.String())
}

// checkStrict verifies that the handler's leading parameters are exactly
// the target's arguments.
func (inj *Injector) checkStrict(target *bytecode.Target) error {
	if len(target.Arguments) == 0 {
		return nil
	}
	if len(target.Arguments) > inj.handler.NumParams() {
		return inj.strictMismatch(target)
	}
	for i, a := range target.Arguments {
		if inj.handler.ParamType(i) != a {
			return inj.strictMismatch(target)
		}
	}
	return nil
}

func (inj *Injector) strictMismatch(target *bytecode.Target) error {
	err := errors.New(errors.E4001, "Arguments of handler %s do not match target %s", inj.handler.Name(), target.Name()).
		WithHandler(inj.handler.Signature()).
		WithTarget(target.String()).
		WithNote(strictNote)
	inj.logger.Error().
		Str("handler", inj.handler.String()).
		Str("target", target.String()).
		Msg("Injection failure, " + strictNote + " " + err.Message)
	return err
}

func (inj *Injector) imbalance(target *bytecode.Target, cause error) error {
	return errors.Wrap(errors.E4007, cause, "stack verification failed for %s", target.Name()).
		WithHandler(inj.handler.String()).
		WithTarget(target.String())
}
