package escqrs

import (
	"errors"
	"fmt"
)

type (
	// RouterError is the base carried by every concrete kind below.
	RouterError struct {
		Op  string
		Err error
	}

	// FrameworkError covers missing/ambiguous handler definitions, a
	// state-rebuilding handler returning a nil instance, and resolver
	// failures. Transient indicates the caller may retry (e.g. a
	// temporary sourcing failure); non-transient indicates a structural
	// wiring problem.
	FrameworkError struct {
		RouterError
		Transient bool
	}

	// SubjectConditionError is raised when a command's SubjectCondition
	// is violated. PRISTINE violations are non-transient (the subject
	// will never become un-created); EXISTS violations are transient.
	SubjectConditionError struct {
		RouterError
		Subject   string
		Transient bool
	}
)

func (e RouterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e RouterError) Unwrap() error { return e.Err }

// IsTransient reports whether err, if it is a FrameworkError or
// SubjectConditionError, is retryable.
func IsTransient(err error) bool {
	var frameworkErr *FrameworkError
	if errors.As(err, &frameworkErr) {
		return frameworkErr.Transient
	}
	var subjectErr *SubjectConditionError
	if errors.As(err, &subjectErr) {
		return subjectErr.Transient
	}
	return false
}

// IsSubjectAlreadyExists reports whether err is a PRISTINE violation.
func IsSubjectAlreadyExists(err error) bool {
	var subjectErr *SubjectConditionError
	return errors.As(err, &subjectErr) && !subjectErr.Transient
}

// IsSubjectDoesNotExist reports whether err is an EXISTS violation.
func IsSubjectDoesNotExist(err error) bool {
	var subjectErr *SubjectConditionError
	return errors.As(err, &subjectErr) && subjectErr.Transient
}

func newSubjectAlreadyExists(subject string) error {
	return &SubjectConditionError{
		RouterError: RouterError{Op: "route", Err: fmt.Errorf("subject %s already exists", subject)},
		Subject:     subject,
		Transient:   false,
	}
}

func newSubjectDoesNotExist(subject string) error {
	return &SubjectConditionError{
		RouterError: RouterError{Op: "route", Err: fmt.Errorf("subject %s does not exist", subject)},
		Subject:     subject,
		Transient:   true,
	}
}

func newMissingHandlerDefinition(commandType string) error {
	return &FrameworkError{
		RouterError: RouterError{Op: "route", Err: fmt.Errorf("no command handler registered for %s", commandType)},
		Transient:   false,
	}
}

func newNilInstanceFromHandler(eventType string) error {
	return &FrameworkError{
		RouterError: RouterError{Op: "rebuild", Err: fmt.Errorf("state-rebuilding handler for %s returned a nil instance", eventType)},
		Transient:   false,
	}
}
