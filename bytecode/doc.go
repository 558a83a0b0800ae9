// Package bytecode provides the mutable representation of JVM method bodies
// that hookasm reads and rewrites.
//
// # Key Types
//
//   - [Insn]: a single instruction node. Concrete nodes are chosen by the
//     opcode's operand form ([VarInsn], [MethodInsn], [JumpInsn], ...).
//   - [Label]: a pseudo instruction marking a jump target or a scope edge.
//   - [InsnList]: a doubly linked list of instructions. Nodes keep their
//     identity while the list is edited, so an injection point stays valid
//     while blocks are inserted around it.
//   - [Method] and [Class]: method bodies with their local variable tables.
//   - [Target]: the view of a method that the injector mutates. It owns the
//     local slot allocator and supports checkpoint/rollback so a failed
//     injection leaves no trace.
//
// # Ownership
//
// An instruction belongs to at most one list. Adding a node that is already
// linked into a list panics, as does inserting relative to a node from a
// different list. Lists are not safe for concurrent mutation; callers that
// transform several methods in parallel give each goroutine its own method.
//
// Example:
//
//	list := bytecode.NewInsnList()
//	list.Add(bytecode.NewVar(op.Iload, 1))
//	list.Add(bytecode.NewInsn(op.Ireturn))
//
//	block := bytecode.NewInsnList()
//	block.Add(bytecode.NewInsn(op.Nop))
//	list.InsertBefore(list.Last(), block)
package bytecode
