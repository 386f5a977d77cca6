package xrepo

import (
	"errors"
	"fmt"
	"reflect"
)

// Configuration errors. They are returned while wiring projections and
// mappers, before any query runs.
var (
	// ErrNoConstructor is returned when a target type has no registered
	// constructor with at least one parameter.
	ErrNoConstructor = errors.New("xrepo: no parameterized constructor found")

	// ErrNoQualifiedConstructor is returned when a qualifier was requested but
	// no constructor carries it.
	ErrNoQualifiedConstructor = errors.New("xrepo: no constructor matches qualifier")

	// ErrAmbiguousConstructor is returned when more than one candidate remains
	// after qualifier and preferred-marker filtering.
	ErrAmbiguousConstructor = errors.New("xrepo: ambiguous constructor; declare a qualifier")

	// ErrNoMatchingConstructor is returned when no constructor accepts a given
	// parameter type list.
	ErrNoMatchingConstructor = errors.New("xrepo: no accessible constructor for parameter types")

	// ErrInvalidConstructor is returned by NewConstructor for functions that
	// cannot serve as constructors.
	ErrInvalidConstructor = errors.New("xrepo: invalid constructor")
)

// Query construction and execution errors.
var (
	// ErrUnknownAttribute is returned when a name does not resolve against the
	// root entity.
	ErrUnknownAttribute = errors.New("xrepo: unknown attribute")

	// ErrTooManyResults is returned by single-result calls when more than one
	// row matched.
	ErrTooManyResults = errors.New("xrepo: query returned more than one result")

	// ErrNoResult is the absence signal of TypedQuery.SingleResult. Repository
	// calls translate it into found == false and never return it.
	ErrNoResult = errors.New("xrepo: query returned no result")

	// ErrShapeMismatch is returned when the selected columns cannot produce the
	// requested row shape.
	ErrShapeMismatch = errors.New("xrepo: row shape does not match selection")

	// ErrMapping marks every failure raised while turning a row into a target
	// value. Test with errors.Is.
	ErrMapping = errors.New("xrepo: mapping failed")
)

// MappingError reports a failed row-to-model conversion.
type MappingError struct {
	Target reflect.Type
	Err    error
}

func (e *MappingError) Error() string {
	if e.Target == nil {
		return fmt.Sprintf("xrepo: mapping failed: %v", e.Err)
	}
	return fmt.Sprintf("xrepo: mapping to %s failed: %v", e.Target, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

func mappingErrorf(target reflect.Type, format string, a ...any) error {
	return &MappingError{Target: target, Err: fmt.Errorf(format, a...)}
}

// asMappingError leaves errors already marked as mapping failures untouched.
func asMappingError(target reflect.Type, err error) error {
	if err == nil || errors.Is(err, ErrMapping) {
		return err
	}
	return &MappingError{Target: target, Err: err}
}
