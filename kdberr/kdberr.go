// Package kdberr implements the stable error-kind taxonomy of spec.md §7 and
// the convention for recording diagnostics on a parent key's metadata.
package kdberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the seven stable error kinds, exposed on meta:/error/kind
// (meta:/error/number carries the Error's Number, e.g. ConflictNumber).
type Kind string

const (
	KindInterface     Kind = "InterfaceError"
	KindInstallation  Kind = "InstallationError"
	KindResource      Kind = "ResourceError"
	KindConflicting   Kind = "ConflictingState"
	KindValidation    Kind = "ValidationError"
	KindMisbehavior   Kind = "PluginMisbehavior"
	KindInternal      Kind = "InternalError"
)

// ConflictNumber is the stable identifier for a resolver-detected concurrent
// writer (spec.md §5, §8 scenario S4).
const ConflictNumber = "C02000"

// Error is the structured diagnostic recorded on a parent key's metadata.
type Error struct {
	Kind        Kind
	Number      string
	Reason      string
	Description string
	Module      string
	File        string
	Line        int
	Mountpoint  string
	cause       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %s: %s", e.Kind, e.Number, e.Reason, e.Description)
}

// Cause implements github.com/pkg/errors' causer interface, so errors.Cause
// and errors.Is/As walk through to the wrapped error.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports the standard library's errors.Is/As as well.
func (e *Error) Unwrap() error { return e.cause }

// New builds a kdberr.Error of the given kind, wrapping cause (may be nil).
func New(kind Kind, number, reason, module string, cause error) *Error {
	return &Error{
		Kind:   kind,
		Number: number,
		Reason: reason,
		Module: module,
		cause:  cause,
	}
}

// Interfacef builds an InterfaceError — a caller contract violation (spec.md
// §7: null, locked, wrong namespace).
func Interfacef(module, format string, args ...interface{}) *Error {
	return New(KindInterface, "", fmt.Sprintf(format, args...), module, nil)
}

// Installationf builds an InstallationError — bad mountpoint config, missing
// plugin, version mismatch.
func Installationf(module, format string, args ...interface{}) *Error {
	return New(KindInstallation, "", fmt.Sprintf(format, args...), module, nil)
}

// Resourcef builds a ResourceError wrapping an I/O failure.
func Resourcef(module string, cause error, format string, args ...interface{}) *Error {
	return New(KindResource, "", fmt.Sprintf(format, args...), module, errors.WithStack(cause))
}

// Conflict builds the well-known concurrent-writer ConflictingState error
// (spec.md §5, §8 S4).
func Conflict(module, mountpoint string) *Error {
	e := New(KindConflicting, ConflictNumber, "concurrent writer detected since last get", module, nil)
	e.Mountpoint = mountpoint
	return e
}

// Validationf builds a ValidationError for a rejected value or metadata
// entry.
func Validationf(module, format string, args ...interface{}) *Error {
	return New(KindValidation, "", fmt.Sprintf(format, args...), module, nil)
}

// Misbehavior builds a PluginMisbehavior error for an out-of-contract
// plugin result.
func Misbehavior(module, detail string) *Error {
	return New(KindMisbehavior, "", detail, module, nil)
}

// Internalf builds an InternalError for a core invariant violation.
func Internalf(module, format string, args ...interface{}) *Error {
	return New(KindInternal, "", fmt.Sprintf(format, args...), module, nil)
}
