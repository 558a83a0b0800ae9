// Package stack computes operand stack heights over an instruction list.
//
// Heights are measured in words, so long and double values count twice.
// The analysis follows jumps and fall-through edges with a worklist and
// requires every instruction to be reached with a single consistent height.
package stack

import (
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
)

// Limit is the largest height accepted before reporting an overflow.
const Limit = 65535

// ErrUnreachable is reported when an instruction of interest is never
// reached from the entry.
var ErrUnreachable = errors.New("stack: instruction is unreachable")

// Result is the outcome of Analyze.
type Result struct {
	// Max is the largest height reached.
	Max int
	// Exit is the height when control falls off the end of the list, or -1
	// when the end is unreachable.
	Exit int
	// Heights holds the entry height of each reachable instruction.
	Heights map[bytecode.Insn]int
}

// Error reports an inconsistency found by Analyze.
type Error struct {
	Insn    bytecode.Insn
	Pos     int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("stack: %s at instruction %d (%s)", e.Message, e.Pos, describe(e.Insn))
}

func describe(insn bytecode.Insn) string {
	if l, ok := insn.(*bytecode.Label); ok {
		return l.String()
	}
	return insn.Opcode().String()
}

// Effect returns the number of words popped and pushed by insn.
func Effect(insn bytecode.Insn) (pop, push int, err error) {
	switch i := insn.(type) {
	case *bytecode.Label:
		return 0, 0, nil
	case *bytecode.LdcInsn:
		return 0, i.Size(), nil
	case *bytecode.FieldInsn:
		t, err := jtype.Parse(i.Desc)
		if err != nil {
			return 0, 0, err
		}
		switch i.Op {
		case op.Getstatic:
			return 0, t.Size(), nil
		case op.Putstatic:
			return t.Size(), 0, nil
		case op.Getfield:
			return 1, t.Size(), nil
		default:
			return 1 + t.Size(), 0, nil
		}
	case *bytecode.MethodInsn:
		args, ret, err := jtype.ParseMethod(i.Desc)
		if err != nil {
			return 0, 0, err
		}
		pop = jtype.ArgumentsSize(args)
		if i.Op != op.Invokestatic {
			pop++
		}
		return pop, ret.Size(), nil
	}
	info := op.GetInfo(insn.Opcode())
	if !info.Valid() || info.Pop == op.Variable || info.Push == op.Variable {
		return 0, 0, fmt.Errorf("no stack effect for %s", insn.Opcode())
	}
	return info.Pop, info.Push, nil
}

// Analyze propagates heights from the first instruction, which is entered
// with entry words already on the stack.
func Analyze(list *bytecode.InsnList, entry int) (*Result, error) {
	insns := list.Slice()
	res := &Result{Max: entry, Exit: -1, Heights: make(map[bytecode.Insn]int, len(insns))}
	if len(insns) == 0 {
		res.Exit = entry
		return res, nil
	}
	pos := make(map[bytecode.Insn]int, len(insns))
	for i, insn := range insns {
		pos[insn] = i
	}

	heights := make([]int, len(insns))
	for i := range heights {
		heights[i] = -1
	}
	heights[0] = entry
	worklist := []int{0}

	// merge records the height flowing into instruction i. Index
	// len(insns) stands for falling off the end.
	merge := func(from, i, h int) error {
		if i == len(insns) {
			if res.Exit >= 0 && res.Exit != h {
				return &Error{Insn: insns[from], Pos: from, Message: fmt.Sprintf("inconsistent exit height %d and %d", res.Exit, h)}
			}
			res.Exit = h
			return nil
		}
		switch old := heights[i]; {
		case old < 0:
			heights[i] = h
			worklist = append(worklist, i)
		case old != h:
			return &Error{Insn: insns[i], Pos: i, Message: fmt.Sprintf("inconsistent height %d and %d", old, h)}
		}
		return nil
	}

	for len(worklist) > 0 {
		i := worklist[0]
		worklist = worklist[1:]
		insn := insns[i]
		h := heights[i]

		pop, push, err := Effect(insn)
		if err != nil {
			return nil, &Error{Insn: insn, Pos: i, Message: err.Error()}
		}
		if h < pop {
			return nil, &Error{Insn: insn, Pos: i, Message: fmt.Sprintf("underflow, needs %d words, has %d", pop, h)}
		}
		out := h - pop + push
		if out > Limit {
			return nil, &Error{Insn: insn, Pos: i, Message: fmt.Sprintf("overflow, height %d", out)}
		}
		res.Max = max(res.Max, out)

		if j, ok := insn.(*bytecode.JumpInsn); ok {
			target, found := pos[j.Label]
			if !found {
				return nil, &Error{Insn: insn, Pos: i, Message: "jump to a label outside the list"}
			}
			if err := merge(i, target, out); err != nil {
				return nil, err
			}
		}
		if !op.IsUnconditional(insn.Opcode()) {
			if err := merge(i, i+1, out); err != nil {
				return nil, err
			}
		}
	}

	for i, h := range heights {
		if h >= 0 {
			res.Heights[insns[i]] = h
		}
	}
	return res, nil
}

// CheckNeutral verifies that list leaves the stack as it found it: the end
// of the list is reachable and is reached with the entry height.
func CheckNeutral(list *bytecode.InsnList, entry int) (*Result, error) {
	res, err := Analyze(list, entry)
	if err != nil {
		return nil, err
	}
	if res.Exit != entry {
		return res, fmt.Errorf("stack: block exits with height %d, entered with %d", res.Exit, entry)
	}
	return res, nil
}
