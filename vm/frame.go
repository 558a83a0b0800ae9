package vm

import (
	"fmt"
)

// fault aborts the execution of a frame. It is raised with panic by the
// frame helpers and recovered by execute.
type fault struct {
	err error
}

func faultf(format string, args ...any) {
	panic(&fault{err: fmt.Errorf(format, args...)})
}

type frame struct {
	code   *code
	ip     int
	depth  int
	locals []any
	stack  []any
}

func newFrame(c *code, depth int) *frame {
	return &frame{
		code:   c,
		depth:  depth,
		locals: make([]any, max(c.method.MaxLocals, c.frameSize())),
		stack:  make([]any, 0, max(c.method.MaxStack, 4)),
	}
}

func (f *frame) push(v any) {
	f.stack = append(f.stack, v)
}

func (f *frame) pushWide(v any) {
	f.stack = append(f.stack, v, top{})
}

// pushValue pushes v using size words.
func (f *frame) pushValue(v any, size int) {
	switch size {
	case 0:
	case 2:
		f.pushWide(v)
	default:
		f.push(v)
	}
}

func (f *frame) pop() any {
	n := len(f.stack)
	if n == 0 {
		faultf("operand stack underflow")
	}
	v := f.stack[n-1]
	f.stack = f.stack[:n-1]
	return v
}

func (f *frame) popWide() any {
	if _, ok := f.pop().(top); !ok {
		faultf("expected a long or double on the stack")
	}
	return f.pop()
}

// popValue pops a value of size words.
func (f *frame) popValue(size int) any {
	if size == 2 {
		return f.popWide()
	}
	return f.pop()
}

func (f *frame) popInt() int32 {
	v, ok := f.pop().(int32)
	if !ok {
		faultf("expected an int on the stack")
	}
	return v
}

func (f *frame) popLong() int64 {
	v, ok := f.popWide().(int64)
	if !ok {
		faultf("expected a long on the stack")
	}
	return v
}

func (f *frame) popFloat() float32 {
	v, ok := f.pop().(float32)
	if !ok {
		faultf("expected a float on the stack")
	}
	return v
}

func (f *frame) popDouble() float64 {
	v, ok := f.popWide().(float64)
	if !ok {
		faultf("expected a double on the stack")
	}
	return v
}

func (f *frame) load(index, size int) {
	if index < 0 || index+size > len(f.locals) {
		faultf("local %d out of range (max_locals=%d)", index, len(f.locals))
	}
	f.pushValue(f.locals[index], size)
}

func (f *frame) store(index, size int) {
	if index < 0 || index+size > len(f.locals) {
		faultf("local %d out of range (max_locals=%d)", index, len(f.locals))
	}
	f.locals[index] = f.popValue(size)
	if size == 2 {
		f.locals[index+1] = top{}
	}
}

// setArgs lays out the receiver and arguments in the local slots.
func (f *frame) setArgs(this any, args []any) {
	slot := 0
	if !f.code.method.IsStatic() {
		f.locals[0] = this
		slot = 1
	}
	for i, a := range args {
		f.locals[slot] = a
		if f.code.args[i].Size() == 2 {
			f.locals[slot+1] = top{}
			slot += 2
		} else {
			slot++
		}
	}
}
