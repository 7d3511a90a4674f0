package errprocess

import (
	"errors"
	"fmt"
)

// Kind classify where an error came from
type Kind string

const (
	// KindValidation missing or malformed input, rejected at the boundary
	KindValidation Kind = "validation"
	// KindStorage message store read / write failure
	KindStorage Kind = "storage"
	// KindFileSystem attachment file operation failure
	KindFileSystem Kind = "filesystem"
)

// Error carry the kind and the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation create a validation error
func Validation(op, msg string) error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// Storage wrap a message store failure
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// FileSystem wrap an attachment file failure
func FileSystem(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindFileSystem, Op: op, Err: err}
}

// IsValidation report whether err is a validation error
func IsValidation(err error) bool {
	return is(err, KindValidation)
}

// IsStorage report whether err is a storage error
func IsStorage(err error) bool {
	return is(err, KindStorage)
}

// IsFileSystem report whether err is a filesystem error
func IsFileSystem(err error) bool {
	return is(err, KindFileSystem)
}

func is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
