// Package plan reads injection plans and stores transformed classes.
//
// A plan is a YAML document describing classes, with method bodies written
// in the asm syntax, and the handlers to inject into them:
//
//	classes:
//	  - name: shop/Cart
//	    methods:
//	      - name: total
//	        desc: ()I
//	        access: public
//	        code: |
//	          BIPUSH 10
//	          IRETURN
//	handlers:
//	  - owner: shop/Cart
//	    name: onTotal
//	    desc: (Lorg/spongepowered/asm/mixin/injection/callback/CallbackInfoReturnable;)V
//	    access: public
//	    inject:
//	      method: [total]
//	      at: [RETURN]
//	      cancellable: true
//
// Build turns a plan into bytecode classes and transform injections.
package plan

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/hookasm/asm"
	"github.com/deepnoodle-ai/hookasm/at"
	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/inject"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/deepnoodle-ai/hookasm/op"
	"github.com/deepnoodle-ai/hookasm/stack"
	"github.com/deepnoodle-ai/hookasm/transform"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Plan is the decoded form of a plan file.
type Plan struct {
	Classes  []ClassDef   `yaml:"classes"`
	Handlers []HandlerDef `yaml:"handlers"`
}

// ClassDef declares a class.
type ClassDef struct {
	Name    string      `yaml:"name"`
	Access  string      `yaml:"access,omitempty"`
	Methods []MethodDef `yaml:"methods"`
}

// MethodDef declares a method and its body.
type MethodDef struct {
	Name      string     `yaml:"name"`
	Desc      string     `yaml:"desc"`
	Access    string     `yaml:"access,omitempty"`
	MaxStack  int        `yaml:"max_stack,omitempty"`
	MaxLocals int        `yaml:"max_locals,omitempty"`
	Locals    []LocalDef `yaml:"locals,omitempty"`
	Code      string     `yaml:"code"`
}

// LocalDef is a local variable table entry. Start and End name labels of
// the method body; empty means the start or end of the method.
type LocalDef struct {
	Name  string `yaml:"name"`
	Desc  string `yaml:"desc"`
	Index int    `yaml:"index"`
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// HandlerDef declares a handler and where it is injected.
type HandlerDef struct {
	Owner  string     `yaml:"owner"`
	Name   string     `yaml:"name"`
	Desc   string     `yaml:"desc"`
	Access string     `yaml:"access,omitempty"`
	Params []ParamDef `yaml:"params,omitempty"`
	Inject InjectDef  `yaml:"inject"`
}

// ParamDef annotates handler parameter Param with @Arg or @Local.
type ParamDef struct {
	Param int               `yaml:"param"`
	Arg   *DiscriminatorDef `yaml:"arg,omitempty"`
	Local *DiscriminatorDef `yaml:"local,omitempty"`
}

// DiscriminatorDef holds the fields shared by @Arg and @Local.
type DiscriminatorDef struct {
	Ordinal *int     `yaml:"ordinal,omitempty"`
	Index   *int     `yaml:"index,omitempty"`
	Names   []string `yaml:"names,omitempty"`
	Print   bool     `yaml:"print,omitempty"`
}

// InjectDef is the @Inject annotation. Class defaults to the handler's
// owner.
type InjectDef struct {
	Class       string   `yaml:"class,omitempty"`
	Method      []string `yaml:"method"`
	At          []string `yaml:"at"`
	Cancellable bool     `yaml:"cancellable,omitempty"`
	Print       bool     `yaml:"print,omitempty"`
	Require     *int     `yaml:"require,omitempty"`
	Expect      *int     `yaml:"expect,omitempty"`
	Allow       *int     `yaml:"allow,omitempty"`
	Variant     string   `yaml:"variant,omitempty"`
}

// Target is a class together with the injections aimed at it.
type Target struct {
	Class      *bytecode.Class
	Injections []transform.Injection
}

// Load reads and validates the plan file at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		if ie, ok := err.(*errors.InjectionError); ok && ie.Target == "" {
			ie.Target = path
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes and validates a plan. Unknown keys are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, errors.Wrap(errors.E5001, err, "cannot decode plan")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan for structural problems. All problems found
// are reported together.
func (p *Plan) Validate() error {
	var result *multierror.Error
	fail := func(format string, args ...any) {
		result = multierror.Append(result, errors.New(errors.E5001, format, args...))
	}

	classes := map[string]bool{}
	for i, c := range p.Classes {
		if c.Name == "" {
			fail("class %d has no name", i)
			continue
		}
		if classes[c.Name] {
			fail("class %s declared twice", c.Name)
		}
		classes[c.Name] = true
		methods := map[string]bool{}
		for _, m := range c.Methods {
			if m.Name == "" || m.Desc == "" {
				fail("class %s: method needs a name and a descriptor", c.Name)
				continue
			}
			if methods[m.Name+m.Desc] {
				fail("class %s: method %s%s declared twice", c.Name, m.Name, m.Desc)
			}
			methods[m.Name+m.Desc] = true
		}
	}

	for _, h := range p.Handlers {
		name := h.Owner + "." + h.Name + h.Desc
		if h.Owner == "" || h.Name == "" || h.Desc == "" {
			fail("handler %q needs an owner, a name and a descriptor", name)
			continue
		}
		if class := h.targetClass(); !classes[class] {
			fail("handler %s: unknown class %s", name, class)
		}
		if _, err := parseVariant(h.Inject.Variant); err != nil {
			fail("handler %s: %v", name, err)
		}
		params := map[int]bool{}
		for _, pd := range h.Params {
			if (pd.Arg == nil) == (pd.Local == nil) {
				fail("handler %s: parameter %d needs exactly one of arg or local", name, pd.Param)
			}
			if params[pd.Param] {
				fail("handler %s: parameter %d annotated twice", name, pd.Param)
			}
			params[pd.Param] = true
		}
	}
	return result.ErrorOrNil()
}

func (h HandlerDef) targetClass() string {
	if h.Inject.Class != "" {
		return h.Inject.Class
	}
	return h.Owner
}

func parseVariant(s string) (inject.Variant, error) {
	switch strings.ToLower(s) {
	case "", "args":
		return inject.VariantArgs, nil
	case "simple":
		return inject.VariantSimple, nil
	}
	return 0, fmt.Errorf("unknown variant %q", s)
}

func parseAccess(s string) (bytecode.Access, error) {
	access, unknown := bytecode.ParseAccess(strings.Fields(s))
	if len(unknown) > 0 {
		return 0, fmt.Errorf("unknown modifiers %s", strings.Join(unknown, " "))
	}
	return access, nil
}

// Build assembles every class and resolves every handler. Targets are
// returned in class declaration order; injections keep handler order.
func (p *Plan) Build() ([]*Target, error) {
	var targets []*Target
	byName := map[string]*Target{}
	for _, cd := range p.Classes {
		class, err := cd.build()
		if err != nil {
			return nil, err
		}
		t := &Target{Class: class}
		targets = append(targets, t)
		byName[class.Name] = t
	}
	for _, hd := range p.Handlers {
		in, err := hd.build()
		if err != nil {
			return nil, err
		}
		t, ok := byName[hd.targetClass()]
		if !ok {
			return nil, errors.New(errors.E5001, "handler %s: unknown class %s", in.Handler, hd.targetClass())
		}
		t.Injections = append(t.Injections, in)
	}
	return targets, nil
}

func (cd ClassDef) build() (*bytecode.Class, error) {
	access, err := parseAccess(cd.Access)
	if err != nil {
		return nil, errors.Wrap(errors.E5001, err, "class %s", cd.Name)
	}
	class := &bytecode.Class{Name: cd.Name, Access: access}
	for _, md := range cd.Methods {
		m, err := md.build()
		if err != nil {
			if ie, ok := err.(*errors.InjectionError); ok {
				return nil, ie.WithTarget(cd.Name + "." + md.Name + md.Desc)
			}
			return nil, err
		}
		class.Methods = append(class.Methods, m)
	}
	return class, nil
}

func (md MethodDef) build() (*bytecode.Method, error) {
	access, err := parseAccess(md.Access)
	if err != nil {
		return nil, errors.Wrap(errors.E5001, err, "method %s%s", md.Name, md.Desc)
	}
	prog, err := asm.Parse(md.Code)
	if err != nil {
		return nil, err
	}
	m := &bytecode.Method{
		Access:       access,
		Name:         md.Name,
		Desc:         md.Desc,
		Instructions: prog.Instructions,
		MaxStack:     md.MaxStack,
		MaxLocals:    md.MaxLocals,
	}
	for _, ld := range md.Locals {
		lv := &bytecode.LocalVariable{Name: ld.Name, Desc: ld.Desc, Index: ld.Index}
		if lv.Start, err = label(prog, ld.Start); err != nil {
			return nil, err
		}
		if lv.End, err = label(prog, ld.End); err != nil {
			return nil, err
		}
		m.LocalVariables = append(m.LocalVariables, lv)
	}
	computeMaxs(m)
	return m, nil
}

// computeMaxs fills in MaxLocals and MaxStack when the plan leaves them
// unset, the way an assembler computes them.
func computeMaxs(m *bytecode.Method) {
	if m.MaxLocals == 0 {
		n := 0
		if args, _, err := jtype.ParseMethod(m.Desc); err == nil {
			n = jtype.ArgumentsSize(args)
			if !m.IsStatic() {
				n++
			}
		}
		for insn := m.Instructions.First(); insn != nil; insn = insn.Next() {
			switch i := insn.(type) {
			case *bytecode.VarInsn:
				size := 1
				switch i.Op {
				case op.Lload, op.Dload, op.Lstore, op.Dstore:
					size = 2
				}
				n = max(n, i.Var+size)
			case *bytecode.IincInsn:
				n = max(n, i.Var+1)
			}
		}
		for _, lv := range m.LocalVariables {
			if t, err := jtype.Parse(lv.Desc); err == nil {
				n = max(n, lv.Index+t.Size())
			}
		}
		m.MaxLocals = n
	}
	if m.MaxStack == 0 {
		// Bodies the analyzer rejects keep zero; verification reports them.
		if res, err := stack.Analyze(m.Instructions, 0); err == nil {
			m.MaxStack = res.Max
		}
	}
}

func label(prog *asm.Program, name string) (*bytecode.Label, error) {
	if name == "" {
		return nil, nil
	}
	l, ok := prog.Labels[name]
	if !ok {
		return nil, errors.New(errors.E5001, "local variable scope refers to unknown label %s", name)
	}
	return l, nil
}

func (hd HandlerDef) build() (transform.Injection, error) {
	name := hd.Owner + "." + hd.Name + hd.Desc
	access, err := parseAccess(hd.Access)
	if err != nil {
		return transform.Injection{}, errors.Wrap(errors.E5001, err, "handler %s", name)
	}
	var opts []handler.Option
	for _, pd := range hd.Params {
		if pd.Arg != nil {
			a := handler.NewArg()
			pd.Arg.fill(&a.Ordinal, &a.Index, &a.Names, &a.Print)
			opts = append(opts, handler.WithArg(pd.Param, a))
		} else if pd.Local != nil {
			l := handler.NewLocal()
			pd.Local.fill(&l.Ordinal, &l.Index, &l.Names, &l.Print)
			opts = append(opts, handler.WithLocal(pd.Param, l))
		}
	}
	h, err := handler.New(hd.Owner, hd.Name, hd.Desc, access, opts...)
	if err != nil {
		return transform.Injection{}, errors.Wrap(errors.E5001, err, "invalid handler").WithHandler(name)
	}

	in := handler.DefaultInject()
	in.Methods = hd.Inject.Method
	in.Cancellable = hd.Inject.Cancellable
	in.Print = hd.Inject.Print
	for _, text := range hd.Inject.At {
		spec, err := at.Parse(text)
		if err != nil {
			return transform.Injection{}, errors.Wrap(errors.E5001, err, "invalid injection point").WithHandler(name)
		}
		in.At = append(in.At, spec)
	}
	if hd.Inject.Require != nil {
		in.Require = *hd.Inject.Require
	}
	if hd.Inject.Expect != nil {
		in.Expect = *hd.Inject.Expect
	}
	if hd.Inject.Allow != nil {
		in.Allow = *hd.Inject.Allow
	}
	variant, err := parseVariant(hd.Inject.Variant)
	if err != nil {
		return transform.Injection{}, errors.Wrap(errors.E5001, err, "invalid handler").WithHandler(name)
	}
	return transform.Injection{Handler: h, Inject: in, Variant: variant}, nil
}

func (d *DiscriminatorDef) fill(ordinal, index *int, names *[]string, show *bool) {
	if d.Ordinal != nil {
		*ordinal = *d.Ordinal
	}
	if d.Index != nil {
		*index = *d.Index
	}
	*names = d.Names
	*show = d.Print
}
