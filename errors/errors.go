// Package errors defines the error types reported by the injector and the
// transformation pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FriendlyError is an interface for errors that have a human friendly message
// in addition to the lower level default error message.
type FriendlyError interface {
	Error() string
	FriendlyErrorMessage() string
}

// FatalError is an interface for errors that may or may not be fatal.
type FatalError interface {
	Error() string
	IsFatal() bool
}

// InjectionError describes why a handler could not be injected into a
// target method. All injection errors abort the transformation of the
// target; none are retried.
type InjectionError struct {
	Code        ErrorCode
	Message     string
	Handler     string
	Target      string
	Suggestions []Suggestion
	Note        string
	Cause       error
}

// New returns an InjectionError with a formatted message.
func New(code ErrorCode, format string, args ...any) *InjectionError {
	return &InjectionError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an InjectionError that carries cause.
func Wrap(code ErrorCode, cause error, format string, args ...any) *InjectionError {
	return &InjectionError{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithHandler sets the handler identity.
func (e *InjectionError) WithHandler(name string) *InjectionError {
	e.Handler = name
	return e
}

// WithTarget sets the target identity.
func (e *InjectionError) WithTarget(name string) *InjectionError {
	e.Target = name
	return e
}

// WithNote sets the note shown by FriendlyErrorMessage.
func (e *InjectionError) WithNote(note string) *InjectionError {
	e.Note = note
	return e
}

// Error implements the error interface.
func (e *InjectionError) Error() string {
	var b strings.Builder
	if e.Code.Category() == "plan" {
		b.WriteString("plan error: ")
	} else {
		b.WriteString("injection error: ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *InjectionError) Unwrap() error {
	return e.Cause
}

// IsFatal always returns true.
func (e *InjectionError) IsFatal() bool {
	return true
}

// FriendlyErrorMessage returns a human-friendly error message.
func (e *InjectionError) FriendlyErrorMessage() string {
	return NewFormatter(false).Format(e.ToFormatted())
}

// ToFormatted converts to the FormattedError type for display.
func (e *InjectionError) ToFormatted() *FormattedError {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	fe := &FormattedError{
		Code:    e.Code,
		Kind:    e.Code.Category() + " error",
		Message: msg,
		Target:  e.Target,
		Handler: e.Handler,
		Note:    e.Note,
	}
	if len(e.Suggestions) > 0 {
		fe.Hint = FormatSuggestions(e.Suggestions)
	}
	return fe
}

// CodeOf returns the code of the first InjectionError in err's chain, or an
// empty code.
func CodeOf(err error) ErrorCode {
	var ie *InjectionError
	if stderrors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an InjectionError with code.
// Aggregated errors exposing WrappedErrors are searched one by one.
func HasCode(err error, code ErrorCode) bool {
	if agg, ok := err.(interface{ WrappedErrors() []error }); ok {
		for _, e := range agg.WrappedErrors() {
			if HasCode(e, code) {
				return true
			}
		}
		return false
	}
	for err != nil {
		var ie *InjectionError
		if !stderrors.As(err, &ie) {
			return false
		}
		if ie.Code == code {
			return true
		}
		err = ie.Cause
	}
	return false
}
