// Package vm interprets method bodies built with the bytecode package.
//
// It covers the instructions the injector emits plus enough of the rest to
// write realistic fixtures: constants, locals, stack manipulation, int,
// long, float and double arithmetic, branches, fields, arrays, invocation
// and returns. There is no class loading or verification; methods are found
// in the classes and natives registered with the VM, and the callback
// context classes are implemented natively.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
)

const (
	MaxFrameDepth = 1024

	// DefaultContextCheckInterval is the number of instructions between
	// checks of ctx.Done(). Set to 0 to disable.
	DefaultContextCheckInterval = 1000
)

var (
	ErrHalted       = errors.New("vm: halted by observer")
	ErrStepLimit    = errors.New("vm: step limit exceeded")
	ErrNoSuchMethod = errors.New("vm: no such method")
)

// Native is a Go implementation of a method. For instance methods args[0]
// is the receiver; the logical arguments follow.
type Native func(ctx context.Context, args []any) (any, error)

// Error reports a fault in the executed code, such as a type mismatch on
// the operand stack.
type Error struct {
	Method string
	IP     int
	Opcode op.Code
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("vm: %s at %d (%s): %v", e.Method, e.IP, e.Opcode, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// VirtualMachine executes methods. A VirtualMachine runs one call at a time;
// static fields persist between calls.
type VirtualMachine struct {
	classes              map[string]*bytecode.Class
	natives              map[string]Native
	statics              map[string]any
	observer             Observer
	observerConfig       ObserverConfig
	stepLimit            int
	contextCheckInterval int
	steps                int
	runMutex             sync.Mutex
}

// New creates a new Virtual Machine.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		classes:              map[string]*bytecode.Class{},
		natives:              map[string]Native{},
		statics:              map[string]any{},
		contextCheckInterval: DefaultContextCheckInterval,
	}
	for _, opt := range options {
		opt(vm)
	}
	if vm.observer != nil {
		vm.observerConfig = NormalizeConfig(vm.observer.Config())
	}
	return vm
}

// Static returns the value of a static field, keyed by "owner.name".
func (vm *VirtualMachine) Static(name string) (any, bool) {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	v, ok := vm.statics[name]
	return v, ok
}

// Call executes m, declared by class owner, with the given receiver and
// arguments. this is ignored for static methods. Arguments are converted to
// the types of the method descriptor, so plain Go ints may be passed for
// int and long parameters.
func (vm *VirtualMachine) Call(ctx context.Context, owner string, m *bytecode.Method, this any, args []any) (any, error) {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.steps = 0

	c, err := loadCode(owner, m)
	if err != nil {
		return nil, err
	}
	values, err := checkCallArgs(c.name(), c.args, args)
	if err != nil {
		return nil, err
	}
	return vm.callCode(ctx, c, this, values, 0)
}

// Invoke resolves owner.name(desc) the way an INVOKE instruction does and
// calls it.
func (vm *VirtualMachine) Invoke(ctx context.Context, owner, name, desc string, this any, args []any) (any, error) {
	vm.runMutex.Lock()
	defer vm.runMutex.Unlock()
	vm.steps = 0

	types, _, err := jtype.ParseMethod(desc)
	if err != nil {
		return nil, err
	}
	values, err := checkCallArgs(owner+"."+name+desc, types, args)
	if err != nil {
		return nil, err
	}
	opcode := op.Invokevirtual
	if this == nil {
		opcode = op.Invokestatic
	}
	return vm.invoke(ctx, owner, name, desc, opcode, this, values, 0)
}

func (vm *VirtualMachine) invoke(ctx context.Context, owner, name, desc string, opcode op.Code, recv any, args []any, depth int) (any, error) {
	if opcode != op.Invokestatic && recv == nil {
		return nil, throw("java/lang/NullPointerException", "invoking %s.%s on null", owner, name)
	}
	signature := owner + "." + name + desc

	if isCallbackClass(owner) {
		if !vm.onCall(signature, len(args), true, depth) {
			return nil, ErrHalted
		}
		v, err := invokeCallback(owner, name, desc, recv, args)
		if err != nil {
			return nil, err
		}
		return v, vm.onReturn(signature, v, depth)
	}

	if fn, ok := vm.natives[signature]; ok {
		_, ret, err := jtype.ParseMethod(desc)
		if err != nil {
			return nil, err
		}
		all := args
		if opcode != op.Invokestatic {
			all = append([]any{recv}, args...)
		}
		if !vm.onCall(signature, len(args), true, depth) {
			return nil, ErrHalted
		}
		v, err := fn(ctx, all)
		if err != nil {
			return nil, err
		}
		if v, err = coerce(v, ret); err != nil {
			return nil, fmt.Errorf("native %s: %w", signature, err)
		}
		return v, vm.onReturn(signature, v, depth)
	}

	if class, ok := vm.classes[owner]; ok {
		if m := class.FindMethod(name, desc); m != nil {
			c, err := loadCode(owner, m)
			if err != nil {
				return nil, err
			}
			return vm.callCode(ctx, c, recv, args, depth)
		}
	}

	if name == "<init>" {
		// Constructors of classes the VM knows nothing about only
		// initialize the object.
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchMethod, signature)
}

func (vm *VirtualMachine) callCode(ctx context.Context, c *code, this any, args []any, depth int) (any, error) {
	if depth >= MaxFrameDepth {
		return nil, fmt.Errorf("vm: max frame depth (%d) exceeded", MaxFrameDepth)
	}
	if !vm.onCall(c.name(), len(args), false, depth) {
		return nil, ErrHalted
	}
	v, err := vm.execute(ctx, c, this, args, depth)
	if err != nil {
		return nil, err
	}
	return v, vm.onReturn(c.name(), v, depth)
}

func (vm *VirtualMachine) onCall(method string, argc int, native bool, depth int) bool {
	if vm.observer == nil || !vm.observerConfig.ObserveCalls {
		return true
	}
	return vm.observer.OnCall(CallEvent{Method: method, ArgCount: argc, Native: native, FrameDepth: depth})
}

func (vm *VirtualMachine) onReturn(method string, value any, depth int) error {
	if vm.observer == nil || !vm.observerConfig.ObserveReturns {
		return nil
	}
	if !vm.observer.OnReturn(ReturnEvent{Method: method, Value: value, FrameDepth: depth}) {
		return ErrHalted
	}
	return nil
}

// step runs before every instruction other than a label.
func (vm *VirtualMachine) step(ctx context.Context, f *frame, insn bytecode.Insn) error {
	vm.steps++
	if vm.stepLimit > 0 && vm.steps > vm.stepLimit {
		return ErrStepLimit
	}
	if vm.contextCheckInterval > 0 && vm.steps%vm.contextCheckInterval == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if vm.observer == nil {
		return nil
	}
	switch vm.observerConfig.StepMode {
	case StepNone:
		return nil
	case StepSampled:
		if vm.steps%vm.observerConfig.SampleInterval != 0 {
			return nil
		}
	}
	ok := vm.observer.OnStep(StepEvent{
		IP:         f.ip,
		Opcode:     insn.Opcode(),
		OpcodeName: insn.Opcode().String(),
		Method:     f.code.name(),
		StackDepth: len(f.stack),
		FrameDepth: f.depth,
	})
	if !ok {
		return ErrHalted
	}
	return nil
}

func (vm *VirtualMachine) execute(ctx context.Context, c *code, this any, args []any, depth int) (result any, err error) {
	f := newFrame(c, depth)
	f.setArgs(this, args)

	var current bytecode.Insn
	defer func() {
		if r := recover(); r != nil {
			flt, ok := r.(*fault)
			if !ok {
				panic(r)
			}
			err = f.wrap(current, flt.err)
		}
	}()

	for f.ip < len(c.insns) {
		current = c.insns[f.ip]
		if bytecode.IsLabel(current) {
			f.ip++
			continue
		}
		if err := vm.step(ctx, f, current); err != nil {
			return nil, err
		}
		v, returned, err := vm.exec(ctx, f, current)
		if err != nil {
			return nil, f.wrap(current, err)
		}
		if returned {
			return v, nil
		}
	}
	return nil, f.wrap(current, errors.New("execution fell off the end of the method"))
}

// wrap attaches the location to err unless err already describes an
// escaped exception or an error from a nested call.
func (f *frame) wrap(insn bytecode.Insn, err error) error {
	var exc *Exception
	var vmErr *Error
	switch {
	case errors.As(err, &exc), errors.As(err, &vmErr),
		errors.Is(err, ErrHalted), errors.Is(err, ErrStepLimit), errors.Is(err, ErrNoSuchMethod),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	e := &Error{Method: f.code.name(), IP: f.ip, Err: err}
	if insn != nil {
		e.IP = f.code.indexOf(insn)
		e.Opcode = insn.Opcode()
	}
	return e
}

func (vm *VirtualMachine) exec(ctx context.Context, f *frame, insn bytecode.Insn) (any, bool, error) {
	f.ip++
	switch i := insn.(type) {
	case *bytecode.SimpleInsn:
		return vm.execSimple(f, i)
	case *bytecode.IntInsn:
		f.push(int32(i.Operand))
	case *bytecode.VarInsn:
		execVar(f, i)
	case *bytecode.IincInsn:
		if i.Var < 0 || i.Var >= len(f.locals) {
			faultf("local %d out of range (max_locals=%d)", i.Var, len(f.locals))
		}
		v, ok := f.locals[i.Var].(int32)
		if !ok {
			faultf("IINC on a non-int local %d", i.Var)
		}
		f.locals[i.Var] = v + int32(i.Incr)
	case *bytecode.LdcInsn:
		f.pushValue(i.Value, i.Size())
	case *bytecode.TypeInsn:
		return nil, false, execType(f, i)
	case *bytecode.JumpInsn:
		if branch(f, i) {
			target, ok := f.code.labels[i.Label]
			if !ok {
				faultf("jump to a label outside the method")
			}
			f.ip = target
		}
	case *bytecode.FieldInsn:
		return nil, false, vm.execField(f, i)
	case *bytecode.MethodInsn:
		return nil, false, vm.execInvoke(ctx, f, i)
	default:
		faultf("unsupported instruction %s", insn.Opcode())
	}
	return nil, false, nil
}

func wordSize(code op.Code) int {
	switch code {
	case op.Lload, op.Dload, op.Lstore, op.Dstore,
		op.Laload, op.Daload, op.Lastore, op.Dastore,
		op.Lreturn, op.Dreturn:
		return 2
	}
	return 1
}

func execVar(f *frame, i *bytecode.VarInsn) {
	switch i.Op {
	case op.Iload, op.Lload, op.Fload, op.Dload, op.Aload:
		f.load(i.Var, wordSize(i.Op))
	case op.Istore, op.Lstore, op.Fstore, op.Dstore, op.Astore:
		f.store(i.Var, wordSize(i.Op))
	default:
		faultf("unsupported instruction %s", i.Op)
	}
}

func (vm *VirtualMachine) execSimple(f *frame, i *bytecode.SimpleInsn) (any, bool, error) {
	switch c := i.Op; c {
	case op.Nop:
	case op.AconstNull:
		f.push(nil)
	case op.IconstM1, op.Iconst0, op.Iconst1, op.Iconst2, op.Iconst3, op.Iconst4, op.Iconst5:
		f.push(int32(c) - int32(op.Iconst0))
	case op.Lconst0, op.Lconst1:
		f.pushWide(int64(c - op.Lconst0))
	case op.Fconst0, op.Fconst1, op.Fconst2:
		f.push(float32(c - op.Fconst0))
	case op.Dconst0, op.Dconst1:
		f.pushWide(float64(c - op.Dconst0))

	case op.Iaload, op.Laload, op.Faload, op.Daload, op.Aaload, op.Baload, op.Caload, op.Saload:
		index := f.popInt()
		arr, err := popArray(f, index)
		if err != nil {
			return nil, false, err
		}
		f.pushValue(arr.Values[index], wordSize(c))
	case op.Iastore, op.Lastore, op.Fastore, op.Dastore, op.Aastore, op.Bastore, op.Castore, op.Sastore:
		v := f.popValue(wordSize(c))
		index := f.popInt()
		arr, err := popArray(f, index)
		if err != nil {
			return nil, false, err
		}
		arr.Values[index] = v

	case op.Pop:
		f.pop()
	case op.Pop2:
		f.pop()
		f.pop()
	case op.Dup:
		v := f.pop()
		if _, ok := v.(top); ok {
			faultf("DUP of half a long or double")
		}
		f.push(v)
		f.push(v)
	case op.DupX1:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case op.DupX2:
		v1, v2, v3 := f.pop(), f.pop(), f.pop()
		f.push(v1)
		f.push(v3)
		f.push(v2)
		f.push(v1)
	case op.Dup2:
		v1, v2 := f.pop(), f.pop()
		f.push(v2)
		f.push(v1)
		f.push(v2)
		f.push(v1)
	case op.Swap:
		v1, v2 := f.pop(), f.pop()
		f.push(v1)
		f.push(v2)

	case op.Iadd, op.Isub, op.Imul:
		b, a := f.popInt(), f.popInt()
		f.push(arith(c-op.Iadd, a, b))
	case op.Ladd, op.Lsub, op.Lmul:
		b, a := f.popLong(), f.popLong()
		f.pushWide(arith(c-op.Ladd, a, b))
	case op.Fadd, op.Fsub, op.Fmul:
		b, a := f.popFloat(), f.popFloat()
		f.push(arith(c-op.Fadd, a, b))
	case op.Dadd, op.Dsub, op.Dmul:
		b, a := f.popDouble(), f.popDouble()
		f.pushWide(arith(c-op.Dadd, a, b))
	case op.Ineg:
		f.push(-f.popInt())

	case op.Ireturn, op.Freturn, op.Areturn, op.Lreturn, op.Dreturn:
		return f.popValue(wordSize(c)), true, nil
	case op.Return:
		return nil, true, nil
	case op.Athrow:
		v := f.pop()
		obj, ok := v.(*Object)
		if !ok || obj == nil {
			return nil, false, throw("java/lang/NullPointerException", "throwing null")
		}
		msg, _ := obj.Fields["message"].(string)
		return nil, false, &Exception{Class: obj.Class, Message: msg, Value: obj}
	default:
		faultf("unsupported instruction %s", c)
	}
	return nil, false, nil
}

// arith applies the operation at offset family within an arithmetic family
// laid out as add, sub, mul with a stride of four opcodes.
func arith[T int32 | int64 | float32 | float64](family op.Code, a, b T) T {
	switch family {
	case op.Isub - op.Iadd:
		return a - b
	case op.Imul - op.Iadd:
		return a * b
	default:
		return a + b
	}
}

func popArray(f *frame, index int32) (*Array, error) {
	v := f.pop()
	if v == nil {
		return nil, throw("java/lang/NullPointerException", "array is null")
	}
	arr, ok := v.(*Array)
	if !ok {
		faultf("expected an array on the stack, found %T", v)
	}
	if index < 0 || int(index) >= len(arr.Values) {
		return nil, throw("java/lang/ArrayIndexOutOfBoundsException", "index %d out of bounds for length %d", index, len(arr.Values))
	}
	return arr, nil
}

func branch(f *frame, i *bytecode.JumpInsn) bool {
	switch i.Op {
	case op.Goto:
		return true
	case op.Ifeq, op.Ifne, op.Iflt, op.Ifge, op.Ifgt, op.Ifle:
		return compare(i.Op-op.Ifeq, f.popInt(), 0)
	case op.IfIcmpeq, op.IfIcmpne, op.IfIcmplt, op.IfIcmpge, op.IfIcmpgt, op.IfIcmple:
		b, a := f.popInt(), f.popInt()
		return compare(i.Op-op.IfIcmpeq, a, b)
	case op.IfAcmpeq:
		b, a := f.pop(), f.pop()
		return a == b
	case op.IfAcmpne:
		b, a := f.pop(), f.pop()
		return a != b
	case op.Ifnull:
		return f.pop() == nil
	case op.Ifnonnull:
		return f.pop() != nil
	}
	faultf("unsupported instruction %s", i.Op)
	return false
}

// compare evaluates the condition at offset cond in the eq, ne, lt, ge, gt,
// le ordering shared by IFxx and IF_ICMPxx.
func compare(cond op.Code, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}

func execType(f *frame, i *bytecode.TypeInsn) error {
	switch i.Op {
	case op.New:
		if isCallbackClass(i.Desc) {
			f.push(&Object{Class: i.Desc})
		} else {
			f.push(NewObject(i.Desc))
		}
	case op.Checkcast:
		v := f.pop()
		if !isInstance(v, i.Desc) {
			return throw("java/lang/ClassCastException", "%T cannot be cast to %s", v, i.Desc)
		}
		f.push(v)
	case op.Instanceof:
		v := f.pop()
		f.push(boolValue(v != nil && isInstance(v, i.Desc)))
	default:
		faultf("unsupported instruction %s", i.Op)
	}
	return nil
}

func (vm *VirtualMachine) execField(f *frame, i *bytecode.FieldInsn) error {
	t, err := jtype.Parse(i.Desc)
	if err != nil {
		return err
	}
	key := i.Owner + "." + i.Name
	switch i.Op {
	case op.Getstatic:
		v, ok := vm.statics[key]
		if !ok {
			v = Zero(t)
		}
		f.pushValue(v, t.Size())
	case op.Putstatic:
		vm.statics[key] = f.popValue(t.Size())
	case op.Getfield:
		obj, err := popObject(f)
		if err != nil {
			return err
		}
		v, ok := obj.Fields[i.Name]
		if !ok {
			v = Zero(t)
		}
		f.pushValue(v, t.Size())
	case op.Putfield:
		v := f.popValue(t.Size())
		obj, err := popObject(f)
		if err != nil {
			return err
		}
		if obj.Fields == nil {
			obj.Fields = map[string]any{}
		}
		obj.Fields[i.Name] = v
	}
	return nil
}

func popObject(f *frame) (*Object, error) {
	v := f.pop()
	if v == nil {
		return nil, throw("java/lang/NullPointerException", "field access on null")
	}
	obj, ok := v.(*Object)
	if !ok {
		faultf("expected an object on the stack, found %T", v)
	}
	return obj, nil
}

func (vm *VirtualMachine) execInvoke(ctx context.Context, f *frame, i *bytecode.MethodInsn) error {
	args, ret, err := jtype.ParseMethod(i.Desc)
	if err != nil {
		return err
	}
	values := make([]any, len(args))
	for j := len(args) - 1; j >= 0; j-- {
		values[j] = f.popValue(args[j].Size())
	}
	var recv any
	if i.Op != op.Invokestatic {
		recv = f.pop()
	}
	v, err := vm.invoke(ctx, i.Owner, i.Name, i.Desc, i.Op, recv, values, f.depth+1)
	if err != nil {
		return err
	}
	f.pushValue(v, ret.Size())
	return nil
}
