package bytecode

// InsnList is a doubly linked list of instructions.
type InsnList struct {
	first Insn
	last  Insn
	size  int
}

// NewInsnList returns an empty list, optionally filled with insns.
func NewInsnList(insns ...Insn) *InsnList {
	l := &InsnList{}
	for _, insn := range insns {
		l.Add(insn)
	}
	return l
}

// Len returns the number of nodes, labels included.
func (l *InsnList) Len() int {
	return l.size
}

// First returns the first node or nil.
func (l *InsnList) First() Insn {
	return l.first
}

// Last returns the last node or nil.
func (l *InsnList) Last() Insn {
	return l.last
}

// Contains reports whether insn is linked into this list.
func (l *InsnList) Contains(insn Insn) bool {
	return insn != nil && insn.base().list == l
}

// Add appends insn to the end of the list.
func (l *InsnList) Add(insn Insn) {
	n := insn.base()
	if n.list != nil {
		panic("bytecode: instruction already belongs to a list")
	}
	n.list = l
	n.prev = l.last
	n.next = nil
	if l.last == nil {
		l.first = insn
	} else {
		l.last.base().next = insn
	}
	l.last = insn
	l.size++
}

// AddAll moves every node of other to the end of this list, leaving other
// empty.
func (l *InsnList) AddAll(other *InsnList) {
	if other == nil || other.size == 0 {
		return
	}
	l.adopt(other)
	if l.last == nil {
		l.first = other.first
	} else {
		l.last.base().next = other.first
		other.first.base().prev = l.last
	}
	l.last = other.last
	l.size += other.size
	other.clear()
}

// InsertBefore moves every node of other into this list immediately before
// ref, leaving other empty.
func (l *InsnList) InsertBefore(ref Insn, other *InsnList) {
	if !l.Contains(ref) {
		panic("bytecode: reference instruction does not belong to the list")
	}
	if other == nil || other.size == 0 {
		return
	}
	l.adopt(other)
	prev := ref.Prev()
	other.first.base().prev = prev
	other.last.base().next = ref
	ref.base().prev = other.last
	if prev == nil {
		l.first = other.first
	} else {
		prev.base().next = other.first
	}
	l.size += other.size
	other.clear()
}

// Remove unlinks insn from the list.
func (l *InsnList) Remove(insn Insn) {
	if !l.Contains(insn) {
		panic("bytecode: instruction does not belong to the list")
	}
	n := insn.base()
	if n.prev == nil {
		l.first = n.next
	} else {
		n.prev.base().next = n.next
	}
	if n.next == nil {
		l.last = n.prev
	} else {
		n.next.base().prev = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.size--
}

// IndexOf returns the position of insn, or -1 if it is not in the list.
func (l *InsnList) IndexOf(insn Insn) int {
	if !l.Contains(insn) {
		return -1
	}
	i := 0
	for cur := l.first; cur != nil; cur = cur.Next() {
		if cur == insn {
			return i
		}
		i++
	}
	return -1
}

// At returns the node at the given position or nil.
func (l *InsnList) At(index int) Insn {
	if index < 0 || index >= l.size {
		return nil
	}
	cur := l.first
	for i := 0; i < index; i++ {
		cur = cur.Next()
	}
	return cur
}

// Slice returns the nodes as a newly allocated slice.
func (l *InsnList) Slice() []Insn {
	insns := make([]Insn, 0, l.size)
	for cur := l.first; cur != nil; cur = cur.Next() {
		insns = append(insns, cur)
	}
	return insns
}

func (l *InsnList) adopt(other *InsnList) {
	for cur := other.first; cur != nil; cur = cur.Next() {
		cur.base().list = l
	}
}

func (l *InsnList) clear() {
	l.first, l.last, l.size = nil, nil, 0
}
