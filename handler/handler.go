// Package handler describes the functions that injected code calls.
//
// A Handler is built once from the handler's declaration and annotations and
// is immutable afterwards. The injector reads parameter types and the Arg and
// Local payloads through the accessor methods.
package handler

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/jtype"
)

// Arg addresses a target method argument. Unset Ordinal and Index are -1.
type Arg struct {
	Ordinal int
	Index   int
	Print   bool
	Names   []string
}

// NewArg returns an Arg with no explicit addressing.
func NewArg() *Arg {
	return &Arg{Ordinal: -1, Index: -1}
}

// Local addresses any local variable visible at the injection point.
type Local struct {
	Ordinal int
	Index   int
	Print   bool
	Names   []string
}

// NewLocal returns a Local with no explicit addressing.
func NewLocal() *Local {
	return &Local{Ordinal: -1, Index: -1}
}

// Param is a handler parameter with its optional annotation. At most one of
// Arg and Local is set.
type Param struct {
	Type  jtype.Type
	Arg   *Arg
	Local *Local
}

// Handler is an immutable handler description.
type Handler struct {
	owner  string
	name   string
	desc   string
	access bytecode.Access
	params []Param
	ret    jtype.Type
}

// Option annotates a handler parameter.
type Option func(h *Handler) error

// WithArg attaches an Arg annotation to parameter i.
func WithArg(i int, a *Arg) Option {
	return func(h *Handler) error {
		p, err := h.param(i)
		if err != nil {
			return err
		}
		if p.Local != nil {
			return fmt.Errorf("handler %s: parameter %d has both @Arg and @Local", h.name, i)
		}
		c := *a
		c.Names = append([]string(nil), a.Names...)
		p.Arg = &c
		return nil
	}
}

// WithLocal attaches a Local annotation to parameter i.
func WithLocal(i int, l *Local) Option {
	return func(h *Handler) error {
		p, err := h.param(i)
		if err != nil {
			return err
		}
		if p.Arg != nil {
			return fmt.Errorf("handler %s: parameter %d has both @Arg and @Local", h.name, i)
		}
		c := *l
		c.Names = append([]string(nil), l.Names...)
		p.Local = &c
		return nil
	}
}

func (h *Handler) param(i int) (*Param, error) {
	if i < 0 || i >= len(h.params) {
		return nil, fmt.Errorf("handler %s: no parameter %d", h.name, i)
	}
	return &h.params[i], nil
}

// New parses the handler descriptor and applies the parameter annotations.
func New(owner, name, desc string, access bytecode.Access, opts ...Option) (*Handler, error) {
	args, ret, err := jtype.ParseMethod(desc)
	if err != nil {
		return nil, fmt.Errorf("handler %s: %w", name, err)
	}
	h := &Handler{
		owner:  owner,
		name:   name,
		desc:   desc,
		access: access,
		params: make([]Param, len(args)),
		ret:    ret,
	}
	for i, a := range args {
		h.params[i].Type = a
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// FromMethod builds a handler from a method declaration of class owner.
func FromMethod(owner string, m *bytecode.Method, opts ...Option) (*Handler, error) {
	return New(owner, m.Name, m.Desc, m.Access, opts...)
}

// Owner returns the internal name of the class declaring the handler.
func (h *Handler) Owner() string { return h.owner }

// Name returns the handler method name.
func (h *Handler) Name() string { return h.name }

// Desc returns the handler method descriptor.
func (h *Handler) Desc() string { return h.desc }

// Access returns the handler's access flags.
func (h *Handler) Access() bytecode.Access { return h.access }

// IsStatic reports whether the handler is static.
func (h *Handler) IsStatic() bool { return h.access.Has(bytecode.AccStatic) }

// IsPrivate reports whether the handler is private.
func (h *Handler) IsPrivate() bool { return h.access.Has(bytecode.AccPrivate) }

// ReturnType returns the parsed return type.
func (h *Handler) ReturnType() jtype.Type { return h.ret }

// NumParams returns the number of declared parameters.
func (h *Handler) NumParams() int { return len(h.params) }

// ParamType returns the type of parameter i.
func (h *Handler) ParamType(i int) jtype.Type { return h.params[i].Type }

// Params returns a copy of the parameter list.
func (h *Handler) Params() []Param {
	out := make([]Param, len(h.params))
	copy(out, h.params)
	return out
}

// Arg returns the Arg annotation on parameter i, or nil.
func (h *Handler) Arg(i int) *Arg {
	if a := h.params[i].Arg; a != nil {
		c := *a
		return &c
	}
	return nil
}

// Local returns the Local annotation on parameter i, or nil.
func (h *Handler) Local(i int) *Local {
	if l := h.params[i].Local; l != nil {
		c := *l
		return &c
	}
	return nil
}

// String returns "owner.name(desc)".
func (h *Handler) String() string {
	return h.owner + "." + h.name + h.desc
}

// Signature returns the handler in Java-like form, e.g.
// "void onCompute(int, int)". It is used in diagnostics.
func (h *Handler) Signature() string {
	parts := make([]string, len(h.params))
	for i, p := range h.params {
		var b strings.Builder
		if p.Arg != nil {
			b.WriteString("@Arg ")
		} else if p.Local != nil {
			b.WriteString("@Local ")
		}
		b.WriteString(p.Type.ClassName())
		parts[i] = b.String()
	}
	return fmt.Sprintf("%s %s(%s)", h.ret.ClassName(), h.name, strings.Join(parts, ", "))
}
