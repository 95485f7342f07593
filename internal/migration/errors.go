package migration

import (
	"errors"
	"fmt"
)

const (
	operationErrorTemplateConstant            = "%s failed for %s: %v"
	operationErrorWithoutCauseTemplate        = "%s failed for %s"
	notFoundMessageConstant                   = "resource not found"
	alreadyExistsMessageConstant              = "resource already exists"
	configurationErrorSubjectLabelConstant    = "batch configuration"
	unknownOperationErrorSubjectLabelConstant = "unknown subject"
)

// ErrorKind classifies migration failures.
type ErrorKind string

// Error kinds reported by the migration workflow.
const (
	ErrorKindConfiguration       ErrorKind = ErrorKind("configuration")
	ErrorKindValidation          ErrorKind = ErrorKind("validation")
	ErrorKindClone               ErrorKind = ErrorKind("clone")
	ErrorKindNamespaceResolution ErrorKind = ErrorKind("namespace_resolution")
	ErrorKindProjectProvision    ErrorKind = ErrorKind("project_provision")
	ErrorKindPush                ErrorKind = ErrorKind("push")
	ErrorKindCleanup             ErrorKind = ErrorKind("cleanup")
	ErrorKindCanceled            ErrorKind = ErrorKind("canceled")
)

var (
	// ErrNotFound is wrapped by DestinationAPI implementations when a lookup finds nothing.
	ErrNotFound = errors.New(notFoundMessageConstant)
	// ErrAlreadyExists is wrapped by DestinationAPI implementations when a creation collides with an existing resource.
	ErrAlreadyExists = errors.New(alreadyExistsMessageConstant)
)

// OperationError carries the kind of a migration failure together with its cause.
type OperationError struct {
	Kind    ErrorKind
	Subject string
	Cause   error
}

// Error describes the failure.
func (operationError OperationError) Error() string {
	subject := operationError.Subject
	if len(subject) == 0 {
		subject = unknownOperationErrorSubjectLabelConstant
	}
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorWithoutCauseTemplate, operationError.Kind, subject)
	}
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Kind, subject, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// NewConfigurationError wraps a batch input problem that prevents the migration from starting.
func NewConfigurationError(cause error) error {
	return OperationError{Kind: ErrorKindConfiguration, Subject: configurationErrorSubjectLabelConstant, Cause: cause}
}

// KindOf extracts the ErrorKind of err when it wraps an OperationError.
func KindOf(err error) (ErrorKind, bool) {
	var operationError OperationError
	if !errors.As(err, &operationError) {
		return "", false
	}
	return operationError.Kind, true
}

// IsKind reports whether err wraps an OperationError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	actualKind, found := KindOf(err)
	return found && actualKind == kind
}

func wrapOperationError(err error, kind ErrorKind, subject string) error {
	if err == nil {
		return nil
	}
	var operationError OperationError
	if errors.As(err, &operationError) {
		return err
	}
	return OperationError{Kind: kind, Subject: subject, Cause: err}
}
