package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed or incomplete relationship declaration.
	// It is fatal: registration of the declaring class is aborted.
	ErrConfiguration = errors.New("relationship configuration error")

	// ErrTypeMismatch is returned when a value of the wrong capability or class is assigned
	ErrTypeMismatch = errors.New("relationship type mismatch")

	// ErrUnsupportedOperation is returned for mutations a relationship kind does not allow
	ErrUnsupportedOperation = errors.New("unsupported relationship operation")

	// ErrUnknownClass is returned when a class name is not registered
	ErrUnknownClass = errors.New("unknown class")

	// ErrUnknownRelationship is returned when a class has no relationship with the given name
	ErrUnknownRelationship = errors.New("unknown relationship")
)

// RelationError describes a failure tied to a single relationship of a class
type RelationError struct {
	Class    string // Owning class name
	Relation string // Relationship name
	Msg      string // Human readable detail
	Err      error  // One of the sentinel errors above, or a collaborator error
}

// Error implements the error interface
func (e *RelationError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s.%s: %v", e.Class, e.Relation, e.Err)
	}
	return fmt.Sprintf("%s.%s: %v: %s", e.Class, e.Relation, e.Err, e.Msg)
}

// Unwrap returns the underlying error
func (e *RelationError) Unwrap() error {
	return e.Err
}

// NewRelationError builds a RelationError with a formatted message
func NewRelationError(class, relation string, err error, format string, args ...interface{}) *RelationError {
	return &RelationError{
		Class:    class,
		Relation: relation,
		Err:      err,
		Msg:      fmt.Sprintf(format, args...),
	}
}
