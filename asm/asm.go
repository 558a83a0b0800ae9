// Package asm assembles the text form of instruction lists produced by
// dis.Format.
//
// Each non-blank line holds one instruction or one label:
//
//	  ILOAD 1                        ; comments run to the end of the line
//	  INVOKESTATIC a/B.m(I)V
//	  GETFIELD a/B.count:J
//	  LDC "text"                     ; also 1, 1L, 1.5F, 1.5D, La/B;.class
//	  IFEQ done
//	done:
//	  IINC 1 -1
//
// A comment starts at a ';' that opens the line or follows whitespace, so
// descriptors such as (Ljava/lang/String;Z)V are left intact. Labels may be
// referenced before they are declared.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
)

// Program is the result of assembling a source text.
type Program struct {
	Instructions *bytecode.InsnList
	Labels       map[string]*bytecode.Label
}

type parser struct {
	labels   map[string]*bytecode.Label
	declared map[string]bool
	list     *bytecode.InsnList
	line     int
}

// Parse assembles src.
func Parse(src string) (*Program, error) {
	p := &parser{
		labels:   map[string]*bytecode.Label{},
		declared: map[string]bool{},
		list:     bytecode.NewInsnList(),
	}
	for i, raw := range strings.Split(src, "\n") {
		p.line = i + 1
		text := strings.TrimSpace(stripComment(raw))
		if text == "" {
			continue
		}
		if err := p.parseLine(text); err != nil {
			return nil, err
		}
	}
	for name := range p.labels {
		if !p.declared[name] {
			return nil, errors.New(errors.E5002, "label %s is referenced but never declared", name)
		}
	}
	return &Program{Instructions: p.list, Labels: p.labels}, nil
}

// MustParse is like Parse but panics on error. Intended for tests.
func MustParse(src string) *Program {
	prog, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return prog
}

// stripComment removes a ';' comment. A comment starts at a ';' that opens
// the line or follows whitespace, outside a string literal. Any other ';'
// belongs to a descriptor such as (Ljava/lang/String;)V.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case ';':
			if !inString && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
				return line[:i]
			}
		}
	}
	return line
}

func (p *parser) errorf(format string, args ...any) error {
	return errors.New(errors.E5002, "line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *parser) label(name string) *bytecode.Label {
	l, ok := p.labels[name]
	if !ok {
		l = bytecode.NewNamedLabel(name)
		p.labels[name] = l
	}
	return l
}

func (p *parser) parseLine(text string) error {
	if name, ok := strings.CutSuffix(text, ":"); ok && !strings.ContainsAny(name, " \t") {
		if p.declared[name] {
			return p.errorf("label %s declared twice", name)
		}
		p.declared[name] = true
		p.list.Add(p.label(name))
		return nil
	}

	mnemonic, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)
	code, ok := op.Lookup(strings.ToUpper(mnemonic))
	if !ok {
		return p.errorf("unknown opcode %s", mnemonic)
	}
	insn, err := p.instruction(code, rest)
	if err != nil {
		return err
	}
	p.list.Add(insn)
	return nil
}

func (p *parser) instruction(code op.Code, operand string) (bytecode.Insn, error) {
	form := op.GetInfo(code).Form
	if form == op.FormNone {
		if operand != "" {
			return nil, p.errorf("%s takes no operand", code)
		}
		return bytecode.NewInsn(code), nil
	}
	if operand == "" {
		return nil, p.errorf("%s requires an operand", code)
	}
	switch form {
	case op.FormInt, op.FormVar:
		n, err := strconv.Atoi(operand)
		if err != nil {
			return nil, p.errorf("%s: invalid integer %q", code, operand)
		}
		if form == op.FormVar {
			if n < 0 {
				return nil, p.errorf("%s: negative local index", code)
			}
			return bytecode.NewVar(code, n), nil
		}
		return bytecode.NewInt(code, n), nil
	case op.FormType:
		return bytecode.NewType(code, operand), nil
	case op.FormLdc:
		v, err := ParseConstant(operand)
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		return bytecode.NewLdc(v), nil
	case op.FormField:
		ref, desc, ok := strings.Cut(operand, ":")
		dot := strings.LastIndexByte(ref, '.')
		if !ok || dot <= 0 || dot == len(ref)-1 {
			return nil, p.errorf("%s: expected owner.name:desc, got %q", code, operand)
		}
		if _, err := jtype.Parse(desc); err != nil {
			return nil, p.errorf("%s: %v", code, err)
		}
		return bytecode.NewField(code, ref[:dot], ref[dot+1:], desc), nil
	case op.FormMethod:
		paren := strings.IndexByte(operand, '(')
		if paren < 0 {
			return nil, p.errorf("%s: expected owner.name(desc), got %q", code, operand)
		}
		ref, desc := operand[:paren], operand[paren:]
		dot := strings.LastIndexByte(ref, '.')
		if dot <= 0 || dot == len(ref)-1 {
			return nil, p.errorf("%s: expected owner.name(desc), got %q", code, operand)
		}
		if _, _, err := jtype.ParseMethod(desc); err != nil {
			return nil, p.errorf("%s: %v", code, err)
		}
		return bytecode.NewMethod(code, ref[:dot], ref[dot+1:], desc), nil
	case op.FormJump:
		return bytecode.NewJump(code, p.label(operand)), nil
	case op.FormIinc:
		fields := strings.Fields(operand)
		if len(fields) != 2 {
			return nil, p.errorf("IINC expects a local index and an increment")
		}
		index, err1 := strconv.Atoi(fields[0])
		incr, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil || index < 0 {
			return nil, p.errorf("IINC: invalid operands %q", operand)
		}
		return bytecode.NewIinc(index, incr), nil
	}
	return nil, p.errorf("unsupported opcode %s", code)
}

// ParseConstant parses an LDC operand.
func ParseConstant(text string) (any, error) {
	switch {
	case strings.HasPrefix(text, `"`):
		s, err := strconv.Unquote(text)
		if err != nil {
			return nil, fmt.Errorf("invalid string constant %s", text)
		}
		return s, nil
	case strings.HasSuffix(text, ".class"):
		t, err := jtype.Parse(strings.TrimSuffix(text, ".class"))
		if err != nil {
			return nil, err
		}
		return t, nil
	case strings.HasSuffix(text, "L"):
		return strconv.ParseInt(strings.TrimSuffix(text, "L"), 10, 64)
	case strings.HasSuffix(text, "F"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(text, "F"), 32)
		return float32(f), err
	case strings.HasSuffix(text, "D"):
		return strconv.ParseFloat(strings.TrimSuffix(text, "D"), 64)
	case strings.ContainsAny(text, ".eE"):
		return strconv.ParseFloat(text, 64)
	default:
		n, err := strconv.ParseInt(text, 10, 32)
		return int32(n), err
	}
}
