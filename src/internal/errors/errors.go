// Package errors provides error creation and wrapping with stack traces.
//
// All errors that cross a package boundary should carry a stack trace.
// Errors created with New, Errorf, Wrap or Wrapf already do; errors received
// from third-party code should be passed through EnsureStack.
package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"runtime"
)

// StackTracer is implemented by errors that carry a stack trace.
type StackTracer interface {
	StackTrace() []runtime.Frame
}

// New returns an error with the supplied message and a stack trace.
func New(message string) error {
	return &fundamental{msg: message, stack: callers()}
}

// Errorf formats according to a format specifier and returns the string as an
// error with a stack trace.
func Errorf(format string, args ...interface{}) error {
	return &fundamental{msg: fmt.Sprintf(format, args...), stack: callers()}
}

// Wrap returns an error annotating err with a message and, if err does not
// already have one, a stack trace.  If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: message, err: err, stack: stackFor(err)}
}

// Wrapf is Wrap with a format specifier.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &wrapped{msg: fmt.Sprintf(format, args...), err: err, stack: stackFor(err)}
}

// EnsureStack returns err unchanged if it already carries a stack trace, and
// otherwise returns err annotated with one.  If err is nil, it returns nil.
func EnsureStack(err error) error {
	if err == nil {
		return nil
	}
	var st StackTracer
	if stderrors.As(err, &st) {
		return err
	}
	return &wrapped{err: err, stack: callers()}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error { return stderrors.Unwrap(err) }

// Join returns an error wrapping the supplied errors, discarding nils.
func Join(errs ...error) error { return stderrors.Join(errs...) }

type fundamental struct {
	msg   string
	stack *stack
}

func (f *fundamental) Error() string                 { return f.msg }
func (f *fundamental) StackTrace() []runtime.Frame   { return f.stack.frames() }
func (f *fundamental) Format(s fmt.State, verb rune) { formatError(f, f.stack, s, verb) }

type wrapped struct {
	msg   string
	err   error
	stack *stack
}

func (w *wrapped) Error() string {
	if w.msg == "" {
		return w.err.Error()
	}
	return w.msg + ": " + w.err.Error()
}

func (w *wrapped) Unwrap() error { return w.err }

func (w *wrapped) StackTrace() []runtime.Frame {
	if w.stack != nil {
		return w.stack.frames()
	}
	return nil
}

func (w *wrapped) Format(s fmt.State, verb rune) { formatError(w, w.stack, s, verb) }

// stackFor returns a fresh stack if err doesn't already carry one.
func stackFor(err error) *stack {
	var st StackTracer
	if stderrors.As(err, &st) {
		return nil
	}
	return callers()
}

type stack []uintptr

func callers() *stack {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	st := stack(pcs[0:n])
	return &st
}

func (s *stack) frames() []runtime.Frame {
	if s == nil {
		return nil
	}
	out := make([]runtime.Frame, 0, len(*s))
	frames := runtime.CallersFrames(*s)
	for {
		frame, more := frames.Next()
		out = append(out, frame)
		if !more {
			break
		}
	}
	return out
}

func formatError(err error, st *stack, s fmt.State, verb rune) {
	switch verb {
	case 'v':
		io.WriteString(s, err.Error()) //nolint:errcheck
		if s.Flag('+') && st != nil {
			for _, f := range st.frames() {
				fmt.Fprintf(s, "\n%s\n\t%s:%d", f.Function, f.File, f.Line)
			}
		}
	case 's':
		io.WriteString(s, err.Error()) //nolint:errcheck
	case 'q':
		fmt.Fprintf(s, "%q", err.Error())
	}
}
