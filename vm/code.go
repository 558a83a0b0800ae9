package vm

import (
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/jtype"
)

// code is a method body flattened for execution.
type code struct {
	owner  string
	method *bytecode.Method
	args   []jtype.Type
	ret    jtype.Type
	insns  []bytecode.Insn
	labels map[*bytecode.Label]int
}

// loadCode snapshots m. Methods are loaded on every call so that changes
// made by an injection between calls are picked up.
func loadCode(owner string, m *bytecode.Method) (*code, error) {
	args, ret, err := jtype.ParseMethod(m.Desc)
	if err != nil {
		return nil, err
	}
	c := &code{
		owner:  owner,
		method: m,
		args:   args,
		ret:    ret,
		labels: map[*bytecode.Label]int{},
	}
	if m.Instructions != nil {
		c.insns = m.Instructions.Slice()
	}
	for i, insn := range c.insns {
		if l, ok := insn.(*bytecode.Label); ok {
			c.labels[l] = i
		}
	}
	return c, nil
}

// name returns "owner.name(desc)".
func (c *code) name() string {
	return c.owner + "." + c.method.Name + c.method.Desc
}

func (c *code) indexOf(insn bytecode.Insn) int {
	for i, x := range c.insns {
		if x == insn {
			return i
		}
	}
	return -1
}

// frameSize returns the number of local slots used by the receiver and the
// arguments.
func (c *code) frameSize() int {
	n := jtype.ArgumentsSize(c.args)
	if !c.method.IsStatic() {
		n++
	}
	return n
}
