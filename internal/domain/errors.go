package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures by how the pipeline reacts to them.
// Only ErrorKindInput fails a job; every other kind is absorbed locally
// and reflected in the result's quality metrics and diagnostics.
type ErrorKind string

const (
	ErrorKindInput   ErrorKind = "input"   // unreadable or corrupt bytes, job fails fast
	ErrorKindPage    ErrorKind = "page"    // one page failed decode/detect, page skipped
	ErrorKindEngine  ErrorKind = "engine"  // one entity engine failed, zero votes from it
	ErrorKindTimeout ErrorKind = "timeout" // external collaborator exceeded its budget
	ErrorKindCache   ErrorKind = "cache"   // cache unavailable, extraction proceeds uncached
	ErrorKindConfig  ErrorKind = "config"  // invalid configuration
)

// DomainError carries an error kind alongside context and a wrapped cause.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error.
func NewError(kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func InputError(message string, err error) *DomainError {
	return NewError(ErrorKindInput, message, err)
}

func PageError(message string, err error) *DomainError {
	return NewError(ErrorKindPage, message, err)
}

func EngineError(message string, err error) *DomainError {
	return NewError(ErrorKindEngine, message, err)
}

func TimeoutError(message string, err error) *DomainError {
	return NewError(ErrorKindTimeout, message, err)
}

func CacheError(message string, err error) *DomainError {
	return NewError(ErrorKindCache, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorKindConfig, message, err)
}

// KindOf returns the error kind of err, or an empty kind when err is not
// a DomainError.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsInput reports whether err is (or wraps) an input-kind error, the only
// kind that surfaces as a job failure.
func IsInput(err error) bool {
	return KindOf(err) == ErrorKindInput
}
