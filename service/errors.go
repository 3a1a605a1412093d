package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record of the requested kind has the id.
var ErrNotFound = errors.New("not found")

// StorageError wraps an asset store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError wraps a metadata store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
