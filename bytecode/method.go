package bytecode

import (
	"strings"
)

// Access holds JVM access flags.
type Access uint16

const (
	AccPublic       Access = 0x0001
	AccPrivate      Access = 0x0002
	AccProtected    Access = 0x0004
	AccStatic       Access = 0x0008
	AccFinal        Access = 0x0010
	AccSynchronized Access = 0x0020
	AccNative       Access = 0x0100
	AccAbstract     Access = 0x0400
	AccSynthetic    Access = 0x1000
)

var accessNames = []struct {
	flag Access
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccNative, "native"},
	{AccAbstract, "abstract"},
	{AccSynthetic, "synthetic"},
}

// Has reports whether every bit of flag is set.
func (a Access) Has(flag Access) bool {
	return a&flag == flag
}

// String returns the flags in source order, e.g. "public static".
func (a Access) String() string {
	var parts []string
	for _, n := range accessNames {
		if a.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseAccess converts modifier keywords into flags. Unknown keywords are
// returned as the second result.
func ParseAccess(words []string) (Access, []string) {
	var acc Access
	var unknown []string
outer:
	for _, w := range words {
		for _, n := range accessNames {
			if n.name == w {
				acc |= n.flag
				continue outer
			}
		}
		unknown = append(unknown, w)
	}
	return acc, unknown
}

// LocalVariable is an entry of a method's local variable table. A nil Start
// or End extends the scope to the beginning or end of the method.
type LocalVariable struct {
	Name  string
	Desc  string
	Index int
	Start *Label
	End   *Label
}

// Method is a method declaration with its body.
type Method struct {
	Access         Access
	Name           string
	Desc           string
	Instructions   *InsnList
	MaxLocals      int
	MaxStack       int
	LocalVariables []*LocalVariable
}

// IsStatic reports whether the method has no receiver.
func (m *Method) IsStatic() bool {
	return m.Access.Has(AccStatic)
}

// Signature returns "name(desc)".
func (m *Method) Signature() string {
	return m.Name + m.Desc
}

// LocalVariable returns the first table entry for slot index whose scope
// includes insn. A nil insn ignores scopes.
func (m *Method) LocalVariable(index int, insn Insn) *LocalVariable {
	for _, lv := range m.LocalVariables {
		if lv.Index == index && m.InScope(lv, insn) {
			return lv
		}
	}
	return nil
}

// InScope reports whether insn lies in [lv.Start, lv.End).
func (m *Method) InScope(lv *LocalVariable, insn Insn) bool {
	if insn == nil || m.Instructions == nil {
		return true
	}
	pos := m.Instructions.IndexOf(insn)
	if pos < 0 {
		return false
	}
	if lv.Start != nil {
		if start := m.Instructions.IndexOf(lv.Start); start < 0 || pos < start {
			return false
		}
	}
	if lv.End != nil {
		if end := m.Instructions.IndexOf(lv.End); end >= 0 && pos >= end {
			return false
		}
	}
	return true
}

// Class is a named collection of methods.
type Class struct {
	Name    string
	Access  Access
	Methods []*Method
}

// FindMethod returns the method with the given name. An empty desc matches
// any descriptor.
func (c *Class) FindMethod(name, desc string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && (desc == "" || m.Desc == desc) {
			return m
		}
	}
	return nil
}
