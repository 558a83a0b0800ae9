package handler

import (
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/hookasm/at"
	"github.com/deepnoodle-ai/hookasm/bytecode"
)

// Inject is the injection annotation placed on a handler. Require and Allow
// are -1 when unset.
type Inject struct {
	Methods     []string
	At          []at.Spec
	Cancellable bool
	Print       bool
	Require     int
	Expect      int
	Allow       int
}

// DefaultInject returns an Inject with the annotation defaults applied.
func DefaultInject() Inject {
	return Inject{Require: -1, Expect: 1, Allow: -1}
}

// Validate checks the count bounds and selectors.
func (in Inject) Validate() error {
	if len(in.Methods) == 0 {
		return fmt.Errorf("no target method selectors")
	}
	if len(in.At) == 0 {
		return fmt.Errorf("no injection point selectors")
	}
	if in.Require >= 0 && in.Allow >= 0 && in.Allow < in.Require {
		return fmt.Errorf("allow (%d) is less than require (%d)", in.Allow, in.Require)
	}
	for _, sel := range in.Methods {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("empty method selector")
		}
	}
	return nil
}

// Matches reports whether m is selected by any method selector. A selector
// is "name", "name(desc)" or "*" for every method except constructors and
// static initializers.
func (in Inject) Matches(m *bytecode.Method) bool {
	for _, sel := range in.Methods {
		if matchSelector(sel, m) {
			return true
		}
	}
	return false
}

func matchSelector(sel string, m *bytecode.Method) bool {
	sel = strings.TrimSpace(sel)
	if sel == "*" {
		return m.Name != "<init>" && m.Name != "<clinit>"
	}
	if i := strings.IndexByte(sel, '('); i >= 0 {
		return sel[:i] == m.Name && sel[i:] == m.Desc
	}
	return sel == m.Name
}

// SelectorNames returns the bare method names of the selectors, used to
// suggest alternatives when nothing matches.
func (in Inject) SelectorNames() []string {
	names := make([]string, 0, len(in.Methods))
	for _, sel := range in.Methods {
		if i := strings.IndexByte(sel, '('); i >= 0 {
			sel = sel[:i]
		}
		names = append(names, strings.TrimSpace(sel))
	}
	return names
}
