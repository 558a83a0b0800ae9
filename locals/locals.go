// Package locals resolves handler parameters annotated with @Arg or @Local to
// local variable slots of the target method.
package locals

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/hookasm/bytecode"
	"github.com/deepnoodle-ai/hookasm/errors"
	"github.com/deepnoodle-ai/hookasm/handler"
	"github.com/deepnoodle-ai/hookasm/jtype"
	"github.com/rs/zerolog"
)

// ErrLocalNotFound is returned when no variable of the desired type matches
// the discriminator at the program point.
var ErrLocalNotFound = stderrors.New("local not found")

// Discriminator selects a single variable among the candidates. Ordinal and
// Index are -1 when unset. With none of Index, Names and Ordinal given the
// discriminator is implicit and the desired type must be unique.
type Discriminator struct {
	ArgsOnly bool
	Ordinal  int
	Index    int
	Names    []string
	Print    bool
}

// FromArg returns the discriminator for an @Arg payload.
func FromArg(a *handler.Arg) Discriminator {
	return Discriminator{ArgsOnly: true, Ordinal: a.Ordinal, Index: a.Index, Names: a.Names, Print: a.Print}
}

// FromLocal returns the discriminator for a @Local payload.
func FromLocal(l *handler.Local) Discriminator {
	return Discriminator{Ordinal: l.Ordinal, Index: l.Index, Names: l.Names, Print: l.Print}
}

// IsImplicit reports whether no explicit addressing was given.
func (d Discriminator) IsImplicit() bool {
	return d.Index < 0 && d.Ordinal < 0 && len(d.Names) == 0
}

// Context is the query made by the injector for one handler parameter.
type Context struct {
	Type    jtype.Type
	Target  *bytecode.Target
	Node    bytecode.Insn
	Handler string
}

// Candidate is a variable that could satisfy a query.
type Candidate struct {
	Index int
	Name  string
	Type  jtype.Type
}

// Candidates lists the variables visible to d at the context's program
// point. Argument queries see the target's arguments. Local queries see the
// local variable table entries in scope past the argument frame.
func Candidates(ctx Context, d Discriminator) []Candidate {
	t := ctx.Target
	var out []Candidate
	if d.ArgsOnly {
		indices := t.ArgIndices()
		for i, a := range t.Arguments {
			c := Candidate{Index: indices[i], Type: a}
			if lv := t.Method.LocalVariable(indices[i], nil); lv != nil {
				c.Name = lv.Name
			}
			out = append(out, c)
		}
		return out
	}
	for _, lv := range t.Method.LocalVariables {
		if lv.Index < t.FrameSize() || !t.Method.InScope(lv, ctx.Node) {
			continue
		}
		typ, err := jtype.Parse(lv.Desc)
		if err != nil {
			continue
		}
		out = append(out, Candidate{Index: lv.Index, Name: lv.Name, Type: typ})
	}
	return out
}

// Default is the reference discriminator.
type Default struct {
	Logger zerolog.Logger
}

// FindLocal returns the slot of the variable selected by d.
func (r Default) FindLocal(ctx Context, d Discriminator) (int, error) {
	candidates := Candidates(ctx, d)
	index, err := selectCandidate(ctx.Type, candidates, d)
	if d.Print {
		r.print(ctx, d, candidates, index)
	}
	if err != nil {
		return -1, r.notFound(ctx, d, candidates, err)
	}
	return index, nil
}

func selectCandidate(want jtype.Type, candidates []Candidate, d Discriminator) (int, error) {
	switch {
	case d.Index >= 0:
		for _, c := range candidates {
			if c.Index == d.Index {
				if c.Type != want {
					return -1, fmt.Errorf("slot %d holds %s, not %s", d.Index, c.Type, want)
				}
				return c.Index, nil
			}
		}
		return -1, fmt.Errorf("no variable in slot %d", d.Index)
	case len(d.Names) > 0:
		for _, name := range d.Names {
			for _, c := range candidates {
				if c.Name == name && c.Type == want {
					return c.Index, nil
				}
			}
		}
		return -1, fmt.Errorf("no %s variable named %s", want, strings.Join(d.Names, " or "))
	case d.Ordinal >= 0:
		n := 0
		for _, c := range candidates {
			if c.Type != want {
				continue
			}
			if n == d.Ordinal {
				return c.Index, nil
			}
			n++
		}
		return -1, fmt.Errorf("no %s variable with ordinal %d (found %d)", want, d.Ordinal, n)
	default:
		found := -1
		for _, c := range candidates {
			if c.Type != want {
				continue
			}
			if found >= 0 {
				return -1, fmt.Errorf("multiple %s variables, an ordinal, index or name is required", want)
			}
			found = c.Index
		}
		if found < 0 {
			return -1, fmt.Errorf("no %s variable", want)
		}
		return found, nil
	}
}

func (r Default) notFound(ctx Context, d Discriminator, candidates []Candidate, cause error) error {
	kind := "local"
	if d.ArgsOnly {
		kind = "argument"
	}
	err := errors.Wrap(errors.E4002, fmt.Errorf("%w: %w", ErrLocalNotFound, cause),
		"could not resolve %s %s in %s", kind, ctx.Type, ctx.Target.Name()).
		WithHandler(ctx.Handler).
		WithTarget(ctx.Target.String())
	if len(d.Names) > 0 {
		var names []string
		for _, c := range candidates {
			if c.Name != "" {
				names = append(names, c.Name)
			}
		}
		for _, n := range d.Names {
			err.Suggestions = append(err.Suggestions, errors.SuggestSimilar(n, names)...)
		}
	}
	return err
}

func (r Default) print(ctx Context, d Discriminator, candidates []Candidate, selected int) {
	r.Logger.Info().
		Str("target", ctx.Target.String()).
		Str("handler", ctx.Handler).
		Str("type", ctx.Type.String()).
		Bool("args_only", d.ArgsOnly).
		Int("ordinal", d.Ordinal).
		Int("index", d.Index).
		Strs("names", d.Names).
		Int("candidates", len(candidates)).
		Msg("local discriminator")
	for i, c := range candidates {
		r.Logger.Info().
			Int("n", i).
			Int("slot", c.Index).
			Str("name", c.Name).
			Str("type", c.Type.String()).
			Bool("selected", c.Index == selected).
			Msg("candidate")
	}
}
