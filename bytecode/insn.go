package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
)

// Kind identifies the concrete node type of an instruction.
type Kind uint8

const (
	KindInsn Kind = iota
	KindInt
	KindVar
	KindType
	KindLdc
	KindField
	KindMethod
	KindJump
	KindIinc
	KindLabel
)

// Insn is a node in an InsnList.
type Insn interface {
	Kind() Kind
	Opcode() op.Code
	Next() Insn
	Prev() Insn
	base() *node
}

type node struct {
	prev Insn
	next Insn
	list *InsnList
}

func (n *node) base() *node { return n }

// Next returns the following instruction or nil.
func (n *node) Next() Insn { return n.next }

// Prev returns the preceding instruction or nil.
func (n *node) Prev() Insn { return n.prev }

// SimpleInsn is an instruction without operands, such as DUP or IRETURN.
type SimpleInsn struct {
	node
	Op op.Code
}

func NewInsn(code op.Code) *SimpleInsn {
	return &SimpleInsn{Op: code}
}

func (i *SimpleInsn) Kind() Kind      { return KindInsn }
func (i *SimpleInsn) Opcode() op.Code { return i.Op }

// IntInsn is BIPUSH or SIPUSH.
type IntInsn struct {
	node
	Op      op.Code
	Operand int
}

func NewInt(code op.Code, operand int) *IntInsn {
	return &IntInsn{Op: code, Operand: operand}
}

func (i *IntInsn) Kind() Kind      { return KindInt }
func (i *IntInsn) Opcode() op.Code { return i.Op }

// VarInsn loads or stores a local variable slot.
type VarInsn struct {
	node
	Op  op.Code
	Var int
}

func NewVar(code op.Code, index int) *VarInsn {
	return &VarInsn{Op: code, Var: index}
}

func (i *VarInsn) Kind() Kind      { return KindVar }
func (i *VarInsn) Opcode() op.Code { return i.Op }

// TypeInsn is NEW, CHECKCAST or INSTANCEOF. Desc holds an internal name.
type TypeInsn struct {
	node
	Op   op.Code
	Desc string
}

func NewType(code op.Code, internalName string) *TypeInsn {
	return &TypeInsn{Op: code, Desc: internalName}
}

func (i *TypeInsn) Kind() Kind      { return KindType }
func (i *TypeInsn) Opcode() op.Code { return i.Op }

// LdcInsn pushes a constant. Value is one of int32, int64, float32, float64,
// string or jtype.Type.
type LdcInsn struct {
	node
	Value any
}

func NewLdc(value any) *LdcInsn {
	return &LdcInsn{Value: value}
}

func (i *LdcInsn) Kind() Kind      { return KindLdc }
func (i *LdcInsn) Opcode() op.Code { return op.Ldc }

// Size returns the number of stack words pushed by the constant.
func (i *LdcInsn) Size() int {
	switch i.Value.(type) {
	case int64, float64:
		return 2
	default:
		return 1
	}
}

// FieldInsn reads or writes a field.
type FieldInsn struct {
	node
	Op    op.Code
	Owner string
	Name  string
	Desc  string
}

func NewField(code op.Code, owner, name, desc string) *FieldInsn {
	return &FieldInsn{Op: code, Owner: owner, Name: name, Desc: desc}
}

func (i *FieldInsn) Kind() Kind      { return KindField }
func (i *FieldInsn) Opcode() op.Code { return i.Op }

// MethodInsn invokes a method.
type MethodInsn struct {
	node
	Op        op.Code
	Owner     string
	Name      string
	Desc      string
	Interface bool
}

func NewMethod(code op.Code, owner, name, desc string) *MethodInsn {
	return &MethodInsn{Op: code, Owner: owner, Name: name, Desc: desc, Interface: code == op.Invokeinterface}
}

func (i *MethodInsn) Kind() Kind      { return KindMethod }
func (i *MethodInsn) Opcode() op.Code { return i.Op }

// Signature returns "owner.name(desc)".
func (i *MethodInsn) Signature() string {
	return i.Owner + "." + i.Name + i.Desc
}

// JumpInsn transfers control to Label, conditionally or not.
type JumpInsn struct {
	node
	Op    op.Code
	Label *Label
}

func NewJump(code op.Code, label *Label) *JumpInsn {
	return &JumpInsn{Op: code, Label: label}
}

func (i *JumpInsn) Kind() Kind      { return KindJump }
func (i *JumpInsn) Opcode() op.Code { return i.Op }

// IincInsn increments an int local in place.
type IincInsn struct {
	node
	Var  int
	Incr int
}

func NewIinc(index, incr int) *IincInsn {
	return &IincInsn{Var: index, Incr: incr}
}

func (i *IincInsn) Kind() Kind      { return KindIinc }
func (i *IincInsn) Opcode() op.Code { return op.Iinc }

// Label marks a position in the list. It emits no code.
type Label struct {
	node
	Name string
}

func NewLabel() *Label {
	return &Label{}
}

// NewNamedLabel returns a label that prints with the given name.
func NewNamedLabel(name string) *Label {
	return &Label{Name: name}
}

func (l *Label) Kind() Kind      { return KindLabel }
func (l *Label) Opcode() op.Code { return op.Nop }

func (l *Label) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("L%p", l)
}

// IsLabel reports whether insn is a pseudo instruction.
func IsLabel(insn Insn) bool {
	return insn != nil && insn.Kind() == KindLabel
}

// LdcType returns the type of a constant accepted by NewLdc.
func LdcType(value any) (jtype.Type, bool) {
	switch value.(type) {
	case int32:
		return jtype.Int, true
	case int64:
		return jtype.Long, true
	case float32:
		return jtype.Float, true
	case float64:
		return jtype.Double, true
	case string:
		return jtype.StringType, true
	case jtype.Type:
		return jtype.Object("java/lang/Class"), true
	default:
		return jtype.Type{}, false
	}
}
