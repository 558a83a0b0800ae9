package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCodeCategory(t *testing.T) {
	require.Equal(t, "injection", E4001.Category())
	require.Equal(t, "injection", E4007.Category())
	require.Equal(t, "plan", E5001.Category())
	require.Equal(t, "unknown", ErrorCode("X").Category())
	require.Equal(t, "strict argument mismatch", E4001.Description())
	require.Equal(t, "unknown error", ErrorCode("E9999").Description())
}

func TestInjectionErrorMessage(t *testing.T) {
	err := New(E4001, "Arguments of handler %s do not match target %s", "onCompute", "compute")
	require.Equal(t, "injection error: Arguments of handler onCompute do not match target compute", err.Error())
	require.True(t, err.IsFatal())

	planErr := New(E5001, "missing target class")
	require.Equal(t, "plan error: missing target class", planErr.Error())
}

func TestInjectionErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(E4002, cause, "local lookup failed")
	require.ErrorIs(t, err, cause)
	require.Equal(t, "injection error: local lookup failed: boom", err.Error())

	wrapped := fmt.Errorf("transform: %w", err)
	require.Equal(t, E4002, CodeOf(wrapped))
	require.True(t, HasCode(wrapped, E4002))
	require.False(t, HasCode(wrapped, E4001))
	require.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
}

func TestHasCodeNested(t *testing.T) {
	inner := New(E4003, "unsupported")
	outer := Wrap(E4006, inner, "count")
	require.True(t, HasCode(outer, E4003))
	require.True(t, HasCode(outer, E4006))
}

type aggregate []error

func (a aggregate) Error() string          { return "aggregate" }
func (a aggregate) WrappedErrors() []error { return a }

func TestHasCodeAggregate(t *testing.T) {
	err := aggregate{New(E5003, "missing"), stderrors.New("plain"), New(E4006, "count")}
	require.True(t, HasCode(err, E5003))
	require.True(t, HasCode(err, E4006))
	require.False(t, HasCode(err, E4001))
}

func TestFriendlyErrorMessage(t *testing.T) {
	err := New(E4001, "Arguments of handler h do not match target t").
		WithHandler("Mixin.h(I)V").
		WithTarget("Calc.t(I)V").
		WithNote("strict mode")
	err.Suggestions = []Suggestion{{Value: "total"}}

	msg := err.FriendlyErrorMessage()
	lines := strings.Split(strings.TrimSpace(msg), "\n")
	require.Equal(t, "injection error[E4001]: Arguments of handler h do not match target t", lines[0])
	require.Equal(t, "  --> Calc.t(I)V", lines[1])
	require.Equal(t, "   =  handler: Mixin.h(I)V", lines[2])
	require.Contains(t, msg, "hint: Did you mean 'total'?")
	require.Contains(t, msg, "note: strict mode")
}

func TestFormatMultiple(t *testing.T) {
	f := NewFormatter(false)
	require.Equal(t, "", f.FormatMultiple(nil))

	out := f.FormatMultiple([]*FormattedError{
		{Message: "first"},
		{Message: "second"},
	})
	require.Contains(t, out, "error[1/2]: first")
	require.Contains(t, out, "error[2/2]: second")
	require.Contains(t, out, "found 2 errors")
}

func TestSuggestSimilar(t *testing.T) {
	candidates := []string{"compute", "compile", "commit", "render", "compute"}
	s := SuggestSimilar("compte", candidates)
	require.NotEmpty(t, s)
	require.Equal(t, "compute", s[0].Value)
	require.Equal(t, 1, s[0].Distance)

	require.Empty(t, SuggestSimilar("compute", []string{"compute"}))
	require.Empty(t, SuggestSimilar("", candidates))
	require.Empty(t, SuggestSimilar("xyz", candidates))
}

func TestFormatSuggestions(t *testing.T) {
	require.Equal(t, "", FormatSuggestions(nil))
	require.Equal(t, "Did you mean 'a'?", FormatSuggestions([]Suggestion{{Value: "a"}}))
	require.Equal(t, "Did you mean one of: 'a', 'b'?",
		FormatSuggestions([]Suggestion{{Value: "a"}, {Value: "b"}}))
}

func TestEditDistance(t *testing.T) {
	require.Equal(t, 0, editDistance("abc", "abc"))
	require.Equal(t, 3, editDistance("", "abc"))
	require.Equal(t, 1, editDistance("abc", "abd"))
	require.Equal(t, 3, editDistance("kitten", "sitting"))
}
