// Package xerrors wraps errors with call-site information for the logger and
// tags them with a Kind so HTTP handlers can pick a status without string matching.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// Kind classifies an error for the caller that has to answer a request.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindInvalid is caller input that failed validation
	KindInvalid
	// KindNotFound is a missing object, catalog or locale
	KindNotFound
	// KindUnavailable is a downstream dependency that failed or timed out (smtp, s3, ssm)
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }

type wrapped struct {
	err error
	msg string
	pc  uintptr
}

func (w *wrapped) Error() string { return w.msg + ": " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
func (w *wrapped) PC() uintptr   { return w.pc }

type kinded struct {
	err  error
	kind Kind
}

func (k *kinded) Error() string { return k.err.Error() }
func (k *kinded) Unwrap() error { return k.err }

// stack of the caller's caller, skip counts frames above that
func stackAt(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3+skip, pcs)
	return pcs[:n]
}

func pcAt(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(3+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// New returns an error with msg and the stack of the caller.
func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stackAt(0)} }

// Newf is New with fmt formatting, %w is honoured.
func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stackAt(0)}
}

// WithStack attaches the caller's stack to err. nil stays nil.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stackAt(0)}
}

// EnsureTrace is WithStack unless something in the chain already carries a stack.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stackAt(0)}
}

// Wrap prefixes err with msg and records where the wrap happened. nil stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: msg, pc: pcAt(0)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapped{err: err, msg: fmt.Sprintf(format, args...), pc: pcAt(0)}
}

// Mark tags err with kind. The outermost mark wins in KindOf.
func Mark(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kinded{err: err, kind: kind}
}

// KindOf returns the first Kind found walking the chain, KindUnknown if none.
func KindOf(err error) Kind {
	var k *kinded
	if errors.As(err, &k) {
		return k.kind
	}
	return KindUnknown
}

// IsKind reports whether KindOf(err) == kind.
func IsKind(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }
