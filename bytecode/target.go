package bytecode

import (
	"fmt"

	"github.com/deepnoodle-ai/hookasm/jtype"
)

// Target is a method being transformed together with its parsed signature.
// All mutation performed by an injection goes through Target so it can be
// rolled back as a unit.
type Target struct {
	Owner      string
	Method     *Method
	Arguments  []jtype.Type
	ReturnType jtype.Type
	IsStatic   bool

	argIndices []int
	frameSize  int
}

// Checkpoint captures the mutable bookkeeping of a Target.
type Checkpoint struct {
	maxLocals int
	localVars int
}

// NewTarget parses the method descriptor and computes the argument layout.
// MaxLocals is raised to at least the argument frame size.
func NewTarget(owner string, m *Method) (*Target, error) {
	args, ret, err := jtype.ParseMethod(m.Desc)
	if err != nil {
		return nil, fmt.Errorf("target %s.%s: %w", owner, m.Name, err)
	}
	if m.Instructions == nil {
		m.Instructions = NewInsnList()
	}
	t := &Target{
		Owner:      owner,
		Method:     m,
		Arguments:  args,
		ReturnType: ret,
		IsStatic:   m.IsStatic(),
	}
	slot := 0
	if !t.IsStatic {
		slot = 1
	}
	t.argIndices = make([]int, len(args))
	for i, a := range args {
		t.argIndices[i] = slot
		slot += a.Size()
	}
	t.frameSize = slot
	if m.MaxLocals < slot {
		m.MaxLocals = slot
	}
	return t, nil
}

// Name returns the method name.
func (t *Target) Name() string {
	return t.Method.Name
}

// String returns "owner.name(desc)".
func (t *Target) String() string {
	return t.Owner + "." + t.Method.Name + t.Method.Desc
}

// Instructions returns the method body.
func (t *Target) Instructions() *InsnList {
	return t.Method.Instructions
}

// ArgIndices returns the local slot of each argument.
func (t *Target) ArgIndices() []int {
	indices := make([]int, len(t.argIndices))
	copy(indices, t.argIndices)
	return indices
}

// FrameSize returns the number of slots taken by the receiver and arguments.
func (t *Target) FrameSize() int {
	return t.frameSize
}

// AllocateLocal reserves one new local slot.
func (t *Target) AllocateLocal() int {
	return t.AllocateLocals(1)
}

// AllocateLocals reserves n consecutive slots and returns the first.
func (t *Target) AllocateLocals(n int) int {
	index := t.Method.MaxLocals
	t.Method.MaxLocals += n
	return index
}

// AddLocalVariable records a method-wide local variable table entry.
func (t *Target) AddLocalVariable(index int, name, desc string) {
	t.Method.LocalVariables = append(t.Method.LocalVariables, &LocalVariable{
		Name:  name,
		Desc:  desc,
		Index: index,
	})
}

// InsertBefore moves block into the method body immediately before ref.
func (t *Target) InsertBefore(ref Insn, block *InsnList) error {
	if !t.Method.Instructions.Contains(ref) {
		return fmt.Errorf("%s: injection point is not part of the method body", t)
	}
	t.Method.Instructions.InsertBefore(ref, block)
	return nil
}

// Checkpoint records the allocator and local table state.
func (t *Target) Checkpoint() Checkpoint {
	return Checkpoint{
		maxLocals: t.Method.MaxLocals,
		localVars: len(t.Method.LocalVariables),
	}
}

// Rollback restores the state captured by Checkpoint. Instructions are not
// tracked; callers insert them only once nothing else can fail.
func (t *Target) Rollback(cp Checkpoint) {
	t.Method.MaxLocals = cp.maxLocals
	if cp.localVars <= len(t.Method.LocalVariables) {
		t.Method.LocalVariables = t.Method.LocalVariables[:cp.localVars]
	}
}
