// Package op defines the JVM opcodes understood by the hookasm assembler,
// injector, verifier and interpreter.
package op

// Code is a JVM opcode.
type Code uint8

const (
	Nop        Code = 0
	AconstNull Code = 1
	IconstM1   Code = 2
	Iconst0    Code = 3
	Iconst1    Code = 4
	Iconst2    Code = 5
	Iconst3    Code = 6
	Iconst4    Code = 7
	Iconst5    Code = 8
	Lconst0    Code = 9
	Lconst1    Code = 10
	Fconst0    Code = 11
	Fconst1    Code = 12
	Fconst2    Code = 13
	Dconst0    Code = 14
	Dconst1    Code = 15
	Bipush     Code = 16
	Sipush     Code = 17
	Ldc        Code = 18

	// Load
	Iload  Code = 21
	Lload  Code = 22
	Fload  Code = 23
	Dload  Code = 24
	Aload  Code = 25
	Iaload Code = 46
	Laload Code = 47
	Faload Code = 48
	Daload Code = 49
	Aaload Code = 50
	Baload Code = 51
	Caload Code = 52
	Saload Code = 53

	// Store
	Istore  Code = 54
	Lstore  Code = 55
	Fstore  Code = 56
	Dstore  Code = 57
	Astore  Code = 58
	Iastore Code = 79
	Lastore Code = 80
	Fastore Code = 81
	Dastore Code = 82
	Aastore Code = 83
	Bastore Code = 84
	Castore Code = 85
	Sastore Code = 86

	// Stack
	Pop   Code = 87
	Pop2  Code = 88
	Dup   Code = 89
	DupX1 Code = 90
	DupX2 Code = 91
	Dup2  Code = 92
	Swap  Code = 95

	// Arithmetic
	Iadd Code = 96
	Ladd Code = 97
	Fadd Code = 98
	Dadd Code = 99
	Isub Code = 100
	Lsub Code = 101
	Fsub Code = 102
	Dsub Code = 103
	Imul Code = 104
	Lmul Code = 105
	Fmul Code = 106
	Dmul Code = 107
	Ineg Code = 116
	Iinc Code = 132

	// Jump
	Ifeq     Code = 153
	Ifne     Code = 154
	Iflt     Code = 155
	Ifge     Code = 156
	Ifgt     Code = 157
	Ifle     Code = 158
	IfIcmpeq Code = 159
	IfIcmpne Code = 160
	IfIcmplt Code = 161
	IfIcmpge Code = 162
	IfIcmpgt Code = 163
	IfIcmple Code = 164
	IfAcmpeq Code = 165
	IfAcmpne Code = 166
	Goto     Code = 167

	// Return
	Ireturn Code = 172
	Lreturn Code = 173
	Freturn Code = 174
	Dreturn Code = 175
	Areturn Code = 176
	Return  Code = 177

	// Fields and methods
	Getstatic       Code = 178
	Putstatic       Code = 179
	Getfield        Code = 180
	Putfield        Code = 181
	Invokevirtual   Code = 182
	Invokespecial   Code = 183
	Invokestatic    Code = 184
	Invokeinterface Code = 185

	// Objects
	New        Code = 187
	Athrow     Code = 191
	Checkcast  Code = 192
	Instanceof Code = 193
	Ifnull     Code = 198
	Ifnonnull  Code = 199
)

// Form describes the operand layout of an opcode. Instruction nodes in the
// bytecode package are chosen by form.
type Form uint8

const (
	FormNone Form = iota
	FormInt
	FormVar
	FormType
	FormLdc
	FormField
	FormMethod
	FormJump
	FormIinc
)

// Variable marks a stack effect that depends on the operands (LDC, field
// and method instructions).
const Variable = -1

// Info contains information about an opcode. Pop and Push are counted in
// stack words, so long and double values take two.
type Info struct {
	Code Code
	Name string
	Form Form
	Pop  int
	Push int
}

// Valid returns true if the info describes a known opcode.
func (i Info) Valid() bool {
	return i.Name != ""
}

var (
	infos  = make([]Info, 256)
	byName = make(map[string]Code, 160)
)

func init() {
	type opInfo struct {
		op   Code
		name string
		form Form
		pop  int
		push int
	}
	ops := []opInfo{
		{Nop, "NOP", FormNone, 0, 0},
		{AconstNull, "ACONST_NULL", FormNone, 0, 1},
		{IconstM1, "ICONST_M1", FormNone, 0, 1},
		{Iconst0, "ICONST_0", FormNone, 0, 1},
		{Iconst1, "ICONST_1", FormNone, 0, 1},
		{Iconst2, "ICONST_2", FormNone, 0, 1},
		{Iconst3, "ICONST_3", FormNone, 0, 1},
		{Iconst4, "ICONST_4", FormNone, 0, 1},
		{Iconst5, "ICONST_5", FormNone, 0, 1},
		{Lconst0, "LCONST_0", FormNone, 0, 2},
		{Lconst1, "LCONST_1", FormNone, 0, 2},
		{Fconst0, "FCONST_0", FormNone, 0, 1},
		{Fconst1, "FCONST_1", FormNone, 0, 1},
		{Fconst2, "FCONST_2", FormNone, 0, 1},
		{Dconst0, "DCONST_0", FormNone, 0, 2},
		{Dconst1, "DCONST_1", FormNone, 0, 2},
		{Bipush, "BIPUSH", FormInt, 0, 1},
		{Sipush, "SIPUSH", FormInt, 0, 1},
		{Ldc, "LDC", FormLdc, 0, Variable},
		{Iload, "ILOAD", FormVar, 0, 1},
		{Lload, "LLOAD", FormVar, 0, 2},
		{Fload, "FLOAD", FormVar, 0, 1},
		{Dload, "DLOAD", FormVar, 0, 2},
		{Aload, "ALOAD", FormVar, 0, 1},
		{Iaload, "IALOAD", FormNone, 2, 1},
		{Laload, "LALOAD", FormNone, 2, 2},
		{Faload, "FALOAD", FormNone, 2, 1},
		{Daload, "DALOAD", FormNone, 2, 2},
		{Aaload, "AALOAD", FormNone, 2, 1},
		{Baload, "BALOAD", FormNone, 2, 1},
		{Caload, "CALOAD", FormNone, 2, 1},
		{Saload, "SALOAD", FormNone, 2, 1},
		{Istore, "ISTORE", FormVar, 1, 0},
		{Lstore, "LSTORE", FormVar, 2, 0},
		{Fstore, "FSTORE", FormVar, 1, 0},
		{Dstore, "DSTORE", FormVar, 2, 0},
		{Astore, "ASTORE", FormVar, 1, 0},
		{Iastore, "IASTORE", FormNone, 3, 0},
		{Lastore, "LASTORE", FormNone, 4, 0},
		{Fastore, "FASTORE", FormNone, 3, 0},
		{Dastore, "DASTORE", FormNone, 4, 0},
		{Aastore, "AASTORE", FormNone, 3, 0},
		{Bastore, "BASTORE", FormNone, 3, 0},
		{Castore, "CASTORE", FormNone, 3, 0},
		{Sastore, "SASTORE", FormNone, 3, 0},
		{Pop, "POP", FormNone, 1, 0},
		{Pop2, "POP2", FormNone, 2, 0},
		{Dup, "DUP", FormNone, 1, 2},
		{DupX1, "DUP_X1", FormNone, 2, 3},
		{DupX2, "DUP_X2", FormNone, 3, 4},
		{Dup2, "DUP2", FormNone, 2, 4},
		{Swap, "SWAP", FormNone, 2, 2},
		{Iadd, "IADD", FormNone, 2, 1},
		{Ladd, "LADD", FormNone, 4, 2},
		{Fadd, "FADD", FormNone, 2, 1},
		{Dadd, "DADD", FormNone, 4, 2},
		{Isub, "ISUB", FormNone, 2, 1},
		{Lsub, "LSUB", FormNone, 4, 2},
		{Fsub, "FSUB", FormNone, 2, 1},
		{Dsub, "DSUB", FormNone, 4, 2},
		{Imul, "IMUL", FormNone, 2, 1},
		{Lmul, "LMUL", FormNone, 4, 2},
		{Fmul, "FMUL", FormNone, 2, 1},
		{Dmul, "DMUL", FormNone, 4, 2},
		{Ineg, "INEG", FormNone, 1, 1},
		{Iinc, "IINC", FormIinc, 0, 0},
		{Ifeq, "IFEQ", FormJump, 1, 0},
		{Ifne, "IFNE", FormJump, 1, 0},
		{Iflt, "IFLT", FormJump, 1, 0},
		{Ifge, "IFGE", FormJump, 1, 0},
		{Ifgt, "IFGT", FormJump, 1, 0},
		{Ifle, "IFLE", FormJump, 1, 0},
		{IfIcmpeq, "IF_ICMPEQ", FormJump, 2, 0},
		{IfIcmpne, "IF_ICMPNE", FormJump, 2, 0},
		{IfIcmplt, "IF_ICMPLT", FormJump, 2, 0},
		{IfIcmpge, "IF_ICMPGE", FormJump, 2, 0},
		{IfIcmpgt, "IF_ICMPGT", FormJump, 2, 0},
		{IfIcmple, "IF_ICMPLE", FormJump, 2, 0},
		{IfAcmpeq, "IF_ACMPEQ", FormJump, 2, 0},
		{IfAcmpne, "IF_ACMPNE", FormJump, 2, 0},
		{Goto, "GOTO", FormJump, 0, 0},
		{Ireturn, "IRETURN", FormNone, 1, 0},
		{Lreturn, "LRETURN", FormNone, 2, 0},
		{Freturn, "FRETURN", FormNone, 1, 0},
		{Dreturn, "DRETURN", FormNone, 2, 0},
		{Areturn, "ARETURN", FormNone, 1, 0},
		{Return, "RETURN", FormNone, 0, 0},
		{Getstatic, "GETSTATIC", FormField, Variable, Variable},
		{Putstatic, "PUTSTATIC", FormField, Variable, Variable},
		{Getfield, "GETFIELD", FormField, Variable, Variable},
		{Putfield, "PUTFIELD", FormField, Variable, Variable},
		{Invokevirtual, "INVOKEVIRTUAL", FormMethod, Variable, Variable},
		{Invokespecial, "INVOKESPECIAL", FormMethod, Variable, Variable},
		{Invokestatic, "INVOKESTATIC", FormMethod, Variable, Variable},
		{Invokeinterface, "INVOKEINTERFACE", FormMethod, Variable, Variable},
		{New, "NEW", FormType, 0, 1},
		{Athrow, "ATHROW", FormNone, 1, 0},
		{Checkcast, "CHECKCAST", FormType, 1, 1},
		{Instanceof, "INSTANCEOF", FormType, 1, 1},
		{Ifnull, "IFNULL", FormJump, 1, 0},
		{Ifnonnull, "IFNONNULL", FormJump, 1, 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code: o.op,
			Name: o.name,
			Form: o.form,
			Pop:  o.pop,
			Push: o.push,
		}
		byName[o.name] = o.op
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(code Code) Info {
	return infos[code]
}

// Lookup returns the opcode with the given mnemonic.
func Lookup(name string) (Code, bool) {
	code, ok := byName[name]
	return code, ok
}

// String returns the mnemonic for the opcode.
func (c Code) String() string {
	if name := infos[c].Name; name != "" {
		return name
	}
	return "UNKNOWN"
}

// IsReturn returns true for IRETURN through RETURN.
func IsReturn(c Code) bool {
	return c >= Ireturn && c <= Return
}

// IsValueReturn returns true for the value-returning exits IRETURN through
// ARETURN.
func IsValueReturn(c Code) bool {
	return c >= Ireturn && c < Return
}

// IsUnconditional returns true if control never falls through the opcode.
func IsUnconditional(c Code) bool {
	return IsReturn(c) || c == Goto || c == Athrow
}
