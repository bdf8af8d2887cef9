// Package fatal classifies errors that stop a process and maps them to exit
// codes. Only the entry points call ExitCode.
package fatal

import (
	"errors"
	"fmt"
)

// Kind is a category of unrecoverable error.
type Kind int

const (
	KindUsage Kind = iota + 1
	KindSocket
	KindResolve
	KindTimeout
	KindSecret
)

// Exit codes observed by scripts wrapping the binaries.
const (
	ExitGeneric = 1
	ExitUsage   = 2
	ExitSocket  = 3
	ExitResolve = 4
	ExitTimeout = 5
	ExitSecret  = 6
)

func (k Kind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindSocket:
		return "socket"
	case KindResolve:
		return "resolve"
	case KindTimeout:
		return "timeout"
	case KindSecret:
		return "secret"
	default:
		return "unknown"
	}
}

// Error carries the category of a fatal error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap tags err with kind. A nil err stays nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the category of err, or 0 when it has none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindUsage:
		return ExitUsage
	case KindSocket:
		return ExitSocket
	case KindResolve:
		return ExitResolve
	case KindTimeout:
		return ExitTimeout
	case KindSecret:
		return ExitSecret
	default:
		return ExitGeneric
	}
}
