// Package errors provides error wrapping utilities and the failure
// classification used across the update pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for reporting and persistence.
type Kind string

const (
	KindNoMatch          Kind = "no_match"
	KindNetwork          Kind = "network_error"
	KindChecksumMismatch Kind = "checksum_mismatch"
	KindInstallerExit    Kind = "installer_exit_failure"
	KindVerification     Kind = "verification_mismatch"
	KindRestorePoint     Kind = "restore_point_creation_failed"
	KindRollbackFailed   Kind = "rollback_failed"
	KindValidation       Kind = "validation_failed"
	KindCancelled        Kind = "cancelled"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err with a failure kind. Tagging nil returns nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Kindf builds a tagged error from a format string.
func Kindf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf returns the failure kind carried by err, or the empty Kind
// when err is nil or untagged.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
