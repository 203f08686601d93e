package objectstore

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrConfig indicates missing or invalid configuration
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidArgument indicates a nil or empty OID, PID or stream, or a reserved name
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateOID indicates an object with the OID already exists
	ErrDuplicateOID = errors.New("object already exists")

	// ErrDuplicatePID indicates a payload with the PID already exists in the manifest
	ErrDuplicatePID = errors.New("payload already exists")

	// ErrNotFound indicates an absent object, payload or linked file
	ErrNotFound = errors.New("not found")

	// ErrBackend indicates an I/O or driver failure
	ErrBackend = errors.New("backend failure")

	// ErrFormat indicates a malformed manifest or sidecar document
	ErrFormat = errors.New("malformed document")

	// ErrBlobNotFound is returned by drivers for a missing blob
	ErrBlobNotFound = errors.New("blob not found")
)

// ObjectError represents an error related to object operations
type ObjectError struct {
	OID string
	Op  string
	Err error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("object operation %s failed for object %s: %v", e.Op, e.OID, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// PayloadError represents an error related to payload operations
type PayloadError struct {
	OID string
	PID string
	Op  string
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload operation %s failed for payload %s/%s: %v", e.Op, e.OID, e.PID, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// BackendError represents a failure reported by the blob store driver.
// It matches ErrBackend with errors.Is and unwraps to the driver error.
type BackendError struct {
	Driver string
	Key    string
	Op     string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Driver, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrBackend.
func (e *BackendError) Is(target error) bool {
	return target == ErrBackend
}

func backendError(d Driver, key, op string, err error) error {
	if err == nil {
		return nil
	}
	name := "unknown"
	if d != nil {
		name = d.Name()
	}
	return &BackendError{Driver: name, Key: key, Op: op, Err: err}
}
