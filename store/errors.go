package store

import "errors"

var (
	// ErrNotFound indicates no record exists under the given key.
	ErrNotFound = errors.New("store: record not found")

	// ErrUnknownBucket indicates the bucket was not registered at open time.
	ErrUnknownBucket = errors.New("store: unknown bucket")

	// ErrReadOnly indicates a write was attempted inside a View transaction.
	ErrReadOnly = errors.New("store: transaction is read-only")

	// ErrEmptyKey indicates a zero-length record key.
	ErrEmptyKey = errors.New("store: key must not be empty")

	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrCodec indicates a record failed to encode or decode.
	ErrCodec = errors.New("store: record codec failure")
)
