// Package at selects injection points inside a method body.
//
// Only the handful of selectors needed to drive the injector are provided:
//
//	HEAD                  the first real instruction of the method
//	RETURN                every return instruction
//	TAIL                  the last return instruction
//	INVOKE:owner.name(d)  every call to the given method
//
// RETURN and INVOKE accept an ordinal to pick a single match.
package at

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/op"
)

// Kind names a selector.
type Kind string

const (
	Head   Kind = "HEAD"
	Return Kind = "RETURN"
	Tail   Kind = "TAIL"
	Invoke Kind = "INVOKE"
)

// Spec is a parsed selector. Ordinal -1 selects every match.
type Spec struct {
	Kind    Kind
	Target  string
	Ordinal int
}

// HeadSpec returns the HEAD selector.
func HeadSpec() Spec { return Spec{Kind: Head, Ordinal: -1} }

// ReturnSpec returns the RETURN selector.
func ReturnSpec() Spec { return Spec{Kind: Return, Ordinal: -1} }

// TailSpec returns the TAIL selector.
func TailSpec() Spec { return Spec{Kind: Tail, Ordinal: -1} }

// InvokeSpec returns an INVOKE selector for target, written as
// "owner.name(desc)". The owner and descriptor may be omitted.
func InvokeSpec(target string) Spec { return Spec{Kind: Invoke, Target: target, Ordinal: -1} }

// WithOrdinal returns a copy of s selecting only the nth match.
func (s Spec) WithOrdinal(n int) Spec {
	s.Ordinal = n
	return s
}

// Parse parses the text form "KIND[:target][#ordinal]".
func Parse(text string) (Spec, error) {
	s := Spec{Ordinal: -1}
	rest := strings.TrimSpace(text)
	if i := strings.LastIndexByte(rest, '#'); i >= 0 {
		n, err := strconv.Atoi(rest[i+1:])
		if err != nil || n < 0 {
			return Spec{}, fmt.Errorf("invalid ordinal in selector %q", text)
		}
		s.Ordinal = n
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		s.Target = rest[i+1:]
		rest = rest[:i]
	}
	s.Kind = Kind(strings.ToUpper(rest))
	switch s.Kind {
	case Head, Return, Tail:
		if s.Target != "" {
			return Spec{}, fmt.Errorf("selector %s takes no target", s.Kind)
		}
	case Invoke:
		if s.Target == "" {
			return Spec{}, fmt.Errorf("selector INVOKE requires a target")
		}
	default:
		return Spec{}, fmt.Errorf("unknown selector %q", text)
	}
	return s, nil
}

func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(string(s.Kind))
	if s.Target != "" {
		b.WriteByte(':')
		b.WriteString(s.Target)
	}
	if s.Ordinal >= 0 {
		b.WriteByte('#')
		b.WriteString(strconv.Itoa(s.Ordinal))
	}
	return b.String()
}

// Find returns the injection points selected in list, in program order.
func (s Spec) Find(list *bytecode.InsnList) ([]bytecode.Insn, error) {
	var matches []bytecode.Insn
	switch s.Kind {
	case Head:
		for insn := list.First(); insn != nil; insn = insn.Next() {
			if !bytecode.IsLabel(insn) {
				return []bytecode.Insn{insn}, nil
			}
		}
		return nil, nil
	case Tail:
		for insn := list.Last(); insn != nil; insn = insn.Prev() {
			if op.IsReturn(insn.Opcode()) {
				return []bytecode.Insn{insn}, nil
			}
		}
		return nil, nil
	case Return:
		for insn := list.First(); insn != nil; insn = insn.Next() {
			if op.IsReturn(insn.Opcode()) {
				matches = append(matches, insn)
			}
		}
	case Invoke:
		ref, err := parseMethodRef(s.Target)
		if err != nil {
			return nil, err
		}
		for insn := list.First(); insn != nil; insn = insn.Next() {
			if m, ok := insn.(*bytecode.MethodInsn); ok && ref.matches(m) {
				matches = append(matches, insn)
			}
		}
	default:
		return nil, fmt.Errorf("unknown selector %q", s.Kind)
	}
	if s.Ordinal >= 0 {
		if s.Ordinal >= len(matches) {
			return nil, nil
		}
		return matches[s.Ordinal : s.Ordinal+1], nil
	}
	return matches, nil
}

type methodRef struct {
	owner string
	name  string
	desc  string
}

func parseMethodRef(text string) (methodRef, error) {
	var ref methodRef
	rest := text
	if i := strings.IndexByte(rest, '('); i >= 0 {
		ref.desc = rest[i:]
		rest = rest[:i]
	}
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		ref.owner = rest[:i]
		rest = rest[i+1:]
	}
	ref.name = rest
	if ref.name == "" {
		return methodRef{}, fmt.Errorf("invalid method reference %q", text)
	}
	return ref, nil
}

func (r methodRef) matches(m *bytecode.MethodInsn) bool {
	if r.name != m.Name {
		return false
	}
	if r.owner != "" && r.owner != m.Owner {
		return false
	}
	return r.desc == "" || r.desc == m.Desc
}
