// Package jtype models JVM field and method type descriptors.
//
// A Type is a small comparable value, so two types can be compared with ==.
// Method descriptors are split into argument and return types by
// ParseMethod.
package jtype

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/hookasm/op"
)

// Sort is the kind of a type. The ordering follows the JVM's primitive
// ordering, so Sort >= Array means a reference type.
type Sort uint8

const (
	SortVoid Sort = iota
	SortBoolean
	SortChar
	SortByte
	SortShort
	SortInt
	SortFloat
	SortLong
	SortDouble
	SortArray
	SortObject
	SortMethod
)

var sortNames = [...]string{
	SortVoid:    "void",
	SortBoolean: "boolean",
	SortChar:    "char",
	SortByte:    "byte",
	SortShort:   "short",
	SortInt:     "int",
	SortFloat:   "float",
	SortLong:    "long",
	SortDouble:  "double",
	SortArray:   "array",
	SortObject:  "object",
	SortMethod:  "method",
}

func (s Sort) String() string {
	if int(s) < len(sortNames) {
		return sortNames[s]
	}
	return "unknown"
}

// Type is a parsed descriptor.
type Type struct {
	sort Sort
	desc string
}

var (
	Void    = Type{SortVoid, "V"}
	Boolean = Type{SortBoolean, "Z"}
	Char    = Type{SortChar, "C"}
	Byte    = Type{SortByte, "B"}
	Short   = Type{SortShort, "S"}
	Int     = Type{SortInt, "I"}
	Float   = Type{SortFloat, "F"}
	Long    = Type{SortLong, "J"}
	Double  = Type{SortDouble, "D"}

	ObjectType = Object("java/lang/Object")
	StringType = Object("java/lang/String")
)

// Object returns the type of the class with the given internal name, e.g.
// "java/lang/String".
func Object(internalName string) Type {
	return Type{SortObject, "L" + internalName + ";"}
}

// ArrayOf returns the one-dimensional array type of elem.
func ArrayOf(elem Type) Type {
	return Type{SortArray, "[" + elem.desc}
}

// Sort returns the kind of the type.
func (t Type) Sort() Sort {
	return t.sort
}

// Descriptor returns the JVM descriptor, e.g. "I" or "Ljava/lang/String;".
func (t Type) Descriptor() string {
	return t.desc
}

// IsZero returns true for the zero Type, which is not a valid descriptor.
func (t Type) IsZero() bool {
	return t.desc == ""
}

// IsVoid returns true for the void type.
func (t Type) IsVoid() bool {
	return t.sort == SortVoid
}

// IsReference returns true for object and array types.
func (t Type) IsReference() bool {
	return t.sort == SortObject || t.sort == SortArray
}

// InternalName returns the internal name used by NEW and CHECKCAST. Arrays
// use their descriptor as internal name.
func (t Type) InternalName() string {
	switch t.sort {
	case SortObject:
		return t.desc[1 : len(t.desc)-1]
	default:
		return t.desc
	}
}

// ClassName returns the Java source form of the type, e.g. "int[]" or
// "java.lang.String".
func (t Type) ClassName() string {
	switch t.sort {
	case SortObject:
		return strings.ReplaceAll(t.InternalName(), "/", ".")
	case SortArray:
		dims := strings.LastIndexByte(t.desc, '[') + 1
		elem, err := Parse(t.desc[dims:])
		if err != nil {
			return t.desc
		}
		return elem.ClassName() + strings.Repeat("[]", dims)
	case SortMethod:
		return t.desc
	default:
		return t.sort.String()
	}
}

func (t Type) String() string {
	return t.ClassName()
}

// Size returns the number of local slots or stack words a value of this type
// occupies.
func (t Type) Size() int {
	switch t.sort {
	case SortVoid:
		return 0
	case SortLong, SortDouble:
		return 2
	default:
		return 1
	}
}

// Opcode adapts an int-flavored opcode to this type. It accepts ILOAD,
// ISTORE, IALOAD, IASTORE, IADD, ISUB, IMUL and IRETURN, mirroring how the
// JVM lays out its typed instruction families.
func (t Type) Opcode(base op.Code) op.Code {
	switch base {
	case op.Iaload, op.Iastore:
		switch t.sort {
		case SortBoolean, SortByte:
			return base + 5
		case SortChar:
			return base + 6
		case SortShort:
			return base + 7
		}
		return base + t.familyOffset()
	case op.Ireturn:
		if t.sort == SortVoid {
			return op.Return
		}
		return base + t.familyOffset()
	default:
		return base + t.familyOffset()
	}
}

func (t Type) familyOffset() op.Code {
	switch t.sort {
	case SortLong:
		return 1
	case SortFloat:
		return 2
	case SortDouble:
		return 3
	case SortArray, SortObject:
		return 4
	default:
		return 0
	}
}

// Parse parses a single field descriptor.
func Parse(desc string) (Type, error) {
	t, n, err := parseAt(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if n != len(desc) {
		return Type{}, fmt.Errorf("invalid descriptor %q: trailing characters", desc)
	}
	return t, nil
}

// MustParse is like Parse but panics on error. Intended for constants and
// tests.
func MustParse(desc string) Type {
	t, err := Parse(desc)
	if err != nil {
		panic(err)
	}
	return t
}

func parseAt(desc string, pos int) (Type, int, error) {
	if pos >= len(desc) {
		return Type{}, pos, fmt.Errorf("invalid descriptor %q: unexpected end", desc)
	}
	switch desc[pos] {
	case 'V':
		return Void, pos + 1, nil
	case 'Z':
		return Boolean, pos + 1, nil
	case 'C':
		return Char, pos + 1, nil
	case 'B':
		return Byte, pos + 1, nil
	case 'S':
		return Short, pos + 1, nil
	case 'I':
		return Int, pos + 1, nil
	case 'F':
		return Float, pos + 1, nil
	case 'J':
		return Long, pos + 1, nil
	case 'D':
		return Double, pos + 1, nil
	case 'L':
		end := strings.IndexByte(desc[pos:], ';')
		if end <= 1 {
			return Type{}, pos, fmt.Errorf("invalid descriptor %q: unterminated class name", desc)
		}
		end += pos
		return Type{SortObject, desc[pos : end+1]}, end + 1, nil
	case '[':
		start := pos
		for pos < len(desc) && desc[pos] == '[' {
			pos++
		}
		elem, next, err := parseAt(desc, pos)
		if err != nil {
			return Type{}, pos, err
		}
		if elem.sort == SortVoid {
			return Type{}, pos, fmt.Errorf("invalid descriptor %q: array of void", desc)
		}
		return Type{SortArray, desc[start:next]}, next, nil
	default:
		return Type{}, pos, fmt.Errorf("invalid descriptor %q: unexpected %q at %d", desc, desc[pos], pos)
	}
}

// ParseMethod splits a method descriptor such as "(IJ)Ljava/lang/String;"
// into its argument types and return type.
func ParseMethod(desc string) ([]Type, Type, error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, Type{}, fmt.Errorf("invalid method descriptor %q", desc)
	}
	var args []Type
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		t, next, err := parseAt(desc, pos)
		if err != nil {
			return nil, Type{}, err
		}
		if t.sort == SortVoid {
			return nil, Type{}, fmt.Errorf("invalid method descriptor %q: void argument", desc)
		}
		args = append(args, t)
		pos = next
	}
	if pos >= len(desc) {
		return nil, Type{}, fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	ret, err := Parse(desc[pos+1:])
	if err != nil {
		return nil, Type{}, err
	}
	return args, ret, nil
}

// MethodDescriptor builds a method descriptor from its parts.
func MethodDescriptor(ret Type, args ...Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, a := range args {
		b.WriteString(a.desc)
	}
	b.WriteByte(')')
	b.WriteString(ret.desc)
	return b.String()
}

// ArgumentsSize returns the number of stack words taken by the arguments.
func ArgumentsSize(args []Type) int {
	size := 0
	for _, a := range args {
		size += a.Size()
	}
	return size
}
