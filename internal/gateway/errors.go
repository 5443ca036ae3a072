package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the collection could not be reached
	ErrUnavailable = errors.New("collection unavailable")
	// ErrUnknownCollection means the name is not a board collection
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrNotFound means no record has the requested id
	ErrNotFound = errors.New("record not found")
)

// CollectionError wraps a failed gateway operation
type CollectionError struct {
	Op         string
	Collection string
	Err        error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }
