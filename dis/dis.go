// Package dis renders instruction lists as text.
//
// Format produces the syntax accepted by the asm package, so a method can be
// disassembled, edited and assembled again. Print renders a method as a
// table for humans, and Diff compares two renderings.
package dis

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/internal/table"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/fatih/color"
)

// Instruction is one row of a disassembly.
type Instruction struct {
	Offset   int
	Label    string
	Name     string
	Operands string
	Info     string
}

// LabelNames assigns a printable name to every label in list or referenced
// by a jump in list. Named labels keep their name; the rest are numbered in
// order of appearance, skipping numbers a named label already uses.
func LabelNames(list *bytecode.InsnList) map[*bytecode.Label]string {
	taken := map[string]bool{}
	for insn := list.First(); insn != nil; insn = insn.Next() {
		if l, ok := insn.(*bytecode.Label); ok && l.Name != "" {
			taken[l.Name] = true
		} else if j, ok := insn.(*bytecode.JumpInsn); ok && j.Label.Name != "" {
			taken[j.Label.Name] = true
		}
	}
	names := map[*bytecode.Label]string{}
	n := 0
	assign := func(l *bytecode.Label) {
		if _, ok := names[l]; ok {
			return
		}
		if l.Name != "" {
			names[l] = l.Name
			return
		}
		for taken["L"+strconv.Itoa(n)] {
			n++
		}
		names[l] = "L" + strconv.Itoa(n)
		n++
	}
	for insn := list.First(); insn != nil; insn = insn.Next() {
		switch i := insn.(type) {
		case *bytecode.Label:
			assign(i)
		case *bytecode.JumpInsn:
			assign(i.Label)
		}
	}
	return names
}

// FormatLdc renders a constant in assembler syntax.
func FormatLdc(value any) string {
	switch v := value.(type) {
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10) + "L"
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32) + "F"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64) + "D"
	case string:
		return strconv.Quote(v)
	case jtype.Type:
		return v.Descriptor() + ".class"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func operands(insn bytecode.Insn, names map[*bytecode.Label]string) string {
	switch i := insn.(type) {
	case *bytecode.IntInsn:
		return strconv.Itoa(i.Operand)
	case *bytecode.VarInsn:
		return strconv.Itoa(i.Var)
	case *bytecode.TypeInsn:
		return i.Desc
	case *bytecode.LdcInsn:
		return FormatLdc(i.Value)
	case *bytecode.FieldInsn:
		return i.Owner + "." + i.Name + ":" + i.Desc
	case *bytecode.MethodInsn:
		return i.Signature()
	case *bytecode.JumpInsn:
		return names[i.Label]
	case *bytecode.IincInsn:
		return strconv.Itoa(i.Var) + " " + strconv.Itoa(i.Incr)
	default:
		return ""
	}
}

// Format returns list in assembler syntax, one instruction per line.
// Labels are written on their own line as "name:".
func Format(list *bytecode.InsnList) string {
	names := LabelNames(list)
	var b strings.Builder
	for insn := list.First(); insn != nil; insn = insn.Next() {
		if l, ok := insn.(*bytecode.Label); ok {
			b.WriteString(names[l])
			b.WriteString(":\n")
			continue
		}
		b.WriteString("  ")
		b.WriteString(insn.Opcode().String())
		if ops := operands(insn, names); ops != "" {
			b.WriteString(" ")
			b.WriteString(ops)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Disassemble returns the rows of m's body. Labels are attached to the row
// of the instruction that follows them. Local variable loads and stores are
// annotated with the variable name when the local variable table has one.
func Disassemble(m *bytecode.Method) []Instruction {
	list := m.Instructions
	if list == nil {
		return nil
	}
	names := LabelNames(list)
	var out []Instruction
	var pending []string
	offset := 0
	for insn := list.First(); insn != nil; insn = insn.Next() {
		if l, ok := insn.(*bytecode.Label); ok {
			pending = append(pending, names[l])
			continue
		}
		row := Instruction{
			Offset:   offset,
			Label:    strings.Join(pending, ","),
			Name:     insn.Opcode().String(),
			Operands: operands(insn, names),
		}
		pending = nil
		switch i := insn.(type) {
		case *bytecode.VarInsn:
			if lv := m.LocalVariable(i.Var, insn); lv != nil {
				row.Info = lv.Name
			}
		case *bytecode.IincInsn:
			if lv := m.LocalVariable(i.Var, insn); lv != nil {
				row.Info = lv.Name
			}
		}
		out = append(out, row)
		offset++
	}
	if len(pending) > 0 {
		out = append(out, Instruction{Offset: offset, Label: strings.Join(pending, ",")})
	}
	return out
}

type painter struct {
	bold, name, label, info *color.Color
}

func newPainter(useColor bool) painter {
	p := painter{
		bold:  color.New(color.Bold),
		name:  color.New(color.FgHiCyan, color.Bold),
		label: color.New(color.FgYellow),
		info:  color.New(color.FgGreen),
	}
	for _, c := range []*color.Color{p.bold, p.name, p.label, p.info} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Print writes a header line and a table of m's instructions to w.
func Print(w io.Writer, owner string, m *bytecode.Method, useColor bool) error {
	p := newPainter(useColor)
	header := fmt.Sprintf("%s %s.%s%s  max_stack=%d max_locals=%d\n",
		m.Access, owner, m.Name, m.Desc, m.MaxStack, m.MaxLocals)
	if _, err := io.WriteString(w, p.bold.Sprint(strings.TrimSpace(header))+"\n"); err != nil {
		return err
	}
	var rows [][]string
	for _, instr := range Disassemble(m) {
		rows = append(rows, []string{
			strconv.Itoa(instr.Offset),
			p.label.Sprint(instr.Label),
			p.name.Sprint(instr.Name),
			instr.Operands,
			p.info.Sprint(instr.Info),
		})
	}
	return table.NewTable(w).
		WithHeader([]string{"OFFSET", "LABEL", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignLeft,
			table.AlignLeft,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(rows).
		Render()
}
