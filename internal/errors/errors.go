// Package errors provides the tagged error kinds raised while provisioning the
// application database at startup.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error tag.
type Kind string

const (
	// KindUnknown is reported by KindOf for errors that carry no tag.
	KindUnknown Kind = ""

	// Path resolver
	KindHostPathUnavailable Kind = "HostPathUnavailable"

	// Directory initializer
	KindPathTypeConflict      Kind = "PathTypeConflict"
	KindDirectoryCreateFailed Kind = "DirectoryCreateFailed"

	// Migration runner
	KindOpenFailed            Kind = "OpenFailed"
	KindRegistryInvalid       Kind = "RegistryInvalid"
	KindSchemaNewerThanBinary Kind = "SchemaNewerThanBinary"
	KindMigrationFailed       Kind = "MigrationFailed"
	KindChecksumMismatch      Kind = "ChecksumMismatch"
)

// Stage names the startup stage that raises errors of this kind.
func (k Kind) Stage() string {
	switch k {
	case KindHostPathUnavailable:
		return "path resolver"
	case KindPathTypeConflict, KindDirectoryCreateFailed:
		return "directory initializer"
	case KindOpenFailed, KindRegistryInvalid, KindSchemaNewerThanBinary,
		KindMigrationFailed, KindChecksumMismatch:
		return "migration runner"
	}
	return "startup"
}

// Error is a tagged error. Version is set for kinds that concern a single
// migration.
type Error struct {
	Kind    Kind
	Message string
	Version int
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	tag := string(e.Kind)
	if e.Version > 0 {
		tag = fmt.Sprintf("%s(version %d)", e.Kind, e.Version)
	}
	msg := tag
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a tagged error with a message.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// Wrap creates a tagged error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// MigrationFailed reports that applying migration version failed and was
// rolled back.
func MigrationFailed(version int, cause error) *Error {
	return &Error{
		Kind:    KindMigrationFailed,
		Version: version,
		Cause:   cause,
	}
}

// ChecksumMismatch reports that an applied migration's script no longer
// matches the one compiled into the binary.
func ChecksumMismatch(version int, applied, compiled string) *Error {
	return &Error{
		Kind:    KindChecksumMismatch,
		Version: version,
		Message: fmt.Sprintf("applied script checksum %s, compiled script checksum %s", applied, compiled),
	}
}

// KindOf returns the kind of the first tagged error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// VersionOf returns the migration version carried by the first tagged error
// in err's chain, or 0.
func VersionOf(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Version
	}
	return 0
}
